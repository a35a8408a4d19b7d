package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/volskaya/norman/cmd/internal/member"
	"github.com/volskaya/norman/cmd/internal/platform"
	feedv1 "github.com/volskaya/norman/cmd/shared/contracts/feed/v1"
)

// Outcome is how a key challenge ended.
type Outcome string

const (
	OutcomeSkipped         Outcome = "skipped"
	OutcomePending         Outcome = "pending"
	OutcomeAlreadyApproved Outcome = "already_approved"
	OutcomeUnregistered    Outcome = "unregistered"
	OutcomeApproved        Outcome = "approved"
	OutcomeRejected        Outcome = "rejected"
	OutcomeTimedOut        Outcome = "timed_out"
	OutcomeAbandoned       Outcome = "abandoned"
)

// Challenge asks m for their key and applies the result. It blocks until
// the member answers, the kick timeout elapses, ctx is done or the service
// is closed. At most one challenge runs per member; a second call while one
// is pending returns OutcomePending without side effects.
func (s *Service) Challenge(ctx context.Context, m platform.Member) (Outcome, error) {
	if m.Bot {
		return OutcomeSkipped, nil
	}

	reply, ok := s.pending.Begin(m.ID)
	if !ok {
		return OutcomePending, nil
	}
	s.recorder.PendingChallenges(s.pending.Len())
	defer func() {
		s.pending.End(m.ID)
		s.recorder.PendingChallenges(s.pending.Len())
	}()

	rec, err := s.challengeRecord(ctx, m)
	if err != nil {
		return "", err
	}

	if rec.Approved {
		s.addRole(ctx, m)
		return OutcomeAlreadyApproved, nil
	}

	if !rec.HasKey() {
		s.denyWithNotice(ctx, m, s.templates().Unregistered(), "no key")
		s.resolved(m, OutcomeUnregistered)
		return OutcomeUnregistered, ErrUnregisteredMember
	}

	s.recorder.ChallengeStarted()
	s.log.Info("challenge.start", "member_id", m.ID, "name", m.Tag, "timeout", s.cfg.KickTimeout)
	s.dm(ctx, m.ID, s.templates().KeyRequest(m.Tag))

	var timeout <-chan time.Time
	if s.cfg.KickTimeout > 0 {
		timer := time.NewTimer(s.cfg.KickTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var (
		outcome  Outcome
		response string
	)
	select {
	case response = <-reply:
	case <-timeout:
		outcome = OutcomeTimedOut
	case <-ctx.Done():
		s.resolved(m, OutcomeAbandoned)
		return OutcomeAbandoned, ctx.Err()
	case <-s.baseCtx.Done():
		s.resolved(m, OutcomeAbandoned)
		return OutcomeAbandoned, s.baseCtx.Err()
	}

	if outcome == "" {
		matched, err := s.store.MatchKey(ctx, m.ID, response)
		if err != nil {
			return "", fmt.Errorf("match key: %w", err)
		}
		if matched {
			return s.approve(ctx, m)
		}
		outcome = OutcomeRejected
	}

	s.dm(ctx, m.ID, s.templates().KeyDeclined(m.Tag, m.Username, m.AvatarRef))

	// An admin may have approved the member while we waited.
	latest, err := s.store.Get(ctx, m.ID)
	if err != nil && !member.IsNotFound(err) {
		return "", err
	}
	if !latest.Approved {
		s.deny(ctx, m, "key declined")
	}
	s.resolved(m, outcome)
	return outcome, nil
}

func (s *Service) approve(ctx context.Context, m platform.Member) (Outcome, error) {
	rec, err := s.store.SetApproval(ctx, member.Identity{ID: m.ID, DisplayName: m.Tag, AvatarRef: m.AvatarRef}, true)
	if err != nil {
		return "", fmt.Errorf("approve: %w", err)
	}
	s.dm(ctx, m.ID, s.templates().KeyAccepted(m.Tag, m.Username, rec.Key, m.AvatarRef))
	s.addRole(ctx, m)
	s.move(ctx, m)
	s.resolved(m, OutcomeApproved)
	return OutcomeApproved, nil
}

// challengeRecord loads the member's record, creating a blank one when
// absent and refreshing display fields when stale.
func (s *Service) challengeRecord(ctx context.Context, m platform.Member) (member.Record, error) {
	rec, err := s.store.Get(ctx, m.ID)
	switch {
	case member.IsNotFound(err):
		if _, err := s.store.UpsertBlank(ctx, m.ID, m.Tag, m.AvatarRef); err != nil {
			return member.Record{}, err
		}
		return s.store.Get(ctx, m.ID)
	case err != nil:
		return member.Record{}, err
	case !rec.Valid && m.Tag != "":
		return s.store.RefreshIdentity(ctx, m.ID, m.Tag, m.AvatarRef)
	default:
		return rec, nil
	}
}

func (s *Service) resolved(m platform.Member, o Outcome) {
	s.recorder.ChallengeResolved(string(o))
	s.log.Info("challenge.resolve", "member_id", m.ID, "outcome", string(o))
	s.publish(feedv1.Activity{
		Kind:     feedv1.ActivityChallenge,
		MemberID: m.ID,
		Name:     m.Tag,
		Outcome:  string(o),
	})
}

// startChallenge runs Challenge in the background, bound to the service lifetime.
func (s *Service) startChallenge(m platform.Member) {
	if s.pending.Has(m.ID) {
		return
	}
	started := s.spawn(func(ctx context.Context) {
		outcome, err := s.Challenge(ctx, m)
		switch {
		case err == nil, errors.Is(err, ErrUnregisteredMember), errors.Is(err, context.Canceled):
		default:
			s.log.Error("challenge.fail", "member_id", m.ID, "outcome", string(outcome), "err", err)
		}
	})
	if !started {
		s.log.Debug("challenge.skip_closed", "member_id", m.ID)
	}
}

// OfferResponse routes a member's message to their pending challenge.
func (s *Service) OfferResponse(memberID, content string) bool {
	return s.pending.Offer(memberID, content)
}
