package gate

import (
	"context"
	"errors"

	"github.com/volskaya/norman/cmd/internal/platform"
	feedv1 "github.com/volskaya/norman/cmd/shared/contracts/feed/v1"
)

// Sweep reconciles every live member and the ban list against the store.
func (s *Service) Sweep(ctx context.Context) {
	s.SweepMembers(ctx)
	s.SweepBans(ctx)
}

// SweepMembers decides and applies an action for every live member.
// A failure on one member is logged and the sweep continues.
func (s *Service) SweepMembers(ctx context.Context) {
	members, err := s.platform.Members(ctx, s.cfg.GuildID)
	if err != nil {
		s.log.Error("sweep.members.fail", "err", err)
		return
	}

	counts := make(map[Action]int)
	for _, m := range members {
		if ctx.Err() != nil {
			return
		}
		if m.Bot {
			continue
		}
		if _, err := s.store.UpsertBlank(ctx, m.ID, m.Tag, m.AvatarRef); err != nil {
			s.log.Error("sweep.member.fail", "member_id", m.ID, "err", err)
			continue
		}
		action, err := s.decide(ctx, m)
		if err != nil {
			s.log.Error("sweep.member.fail", "member_id", m.ID, "err", err)
			continue
		}
		counts[action]++
		s.apply(ctx, m, action)
	}

	s.log.Info("sweep.members.done", "members", len(members),
		"grant", counts[Grant], "challenge", counts[Challenge], "deny", counts[Deny])
	s.publish(feedv1.Activity{Kind: feedv1.ActivitySweep, Action: "members"})
}

// SweepBans deletes the records of approved members that are banned. Without
// the ban permission the sweep is queued until a role update grants it.
func (s *Service) SweepBans(ctx context.Context) {
	bans, err := s.platform.Bans(ctx, s.cfg.GuildID)
	if errors.Is(err, platform.ErrPermissionDenied) {
		s.mu.Lock()
		s.sweepBansNeeded = true
		s.mu.Unlock()
		s.log.Warn("sweep.bans.no_permission")
		return
	}
	if err != nil {
		s.log.Error("sweep.bans.fail", "err", err)
		return
	}

	s.mu.Lock()
	s.sweepBansNeeded = false
	s.mu.Unlock()

	deleted := 0
	for _, u := range bans {
		rec, err := s.store.Get(ctx, u.ID)
		if err != nil || !rec.Approved {
			continue
		}
		if _, err := s.store.Delete(ctx, u.ID); err != nil {
			s.log.Error("sweep.ban.fail", "member_id", u.ID, "err", err)
			continue
		}
		deleted++
	}
	s.log.Info("sweep.bans.done", "bans", len(bans), "deleted", deleted)
	s.publish(feedv1.Activity{Kind: feedv1.ActivitySweep, Action: "bans"})
}
