package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/volskaya/norman/cmd/internal/member"
	"github.com/volskaya/norman/cmd/internal/platform"
	feedv1 "github.com/volskaya/norman/cmd/shared/contracts/feed/v1"
)

// liveMember resolves target against the guild: digits are treated as an
// ID, anything else as a name#tag. ok is false when the member is not present.
func (s *Service) liveMember(ctx context.Context, target string) (platform.Member, bool, error) {
	var (
		m   platform.Member
		err error
	)
	if isSnowflake(target) {
		m, err = s.platform.Member(ctx, s.cfg.GuildID, target)
	} else {
		m, err = s.platform.MemberByTag(ctx, s.cfg.GuildID, target)
	}
	switch {
	case err == nil:
		return m, true, nil
	case errors.Is(err, platform.ErrNotFound):
		return platform.Member{}, false, nil
	default:
		return platform.Member{}, false, err
	}
}

// AddMember assigns a key to target, approving it when approve is set.
// Approved targets yield ErrAlreadyApproved together with their record.
func (s *Service) AddMember(ctx context.Context, target string, approve bool) (member.Record, error) {
	m, live, err := s.liveMember(ctx, target)
	if err != nil {
		return member.Record{}, fmt.Errorf("resolve %q: %w", target, err)
	}

	ident := member.Identity{ID: target}
	switch {
	case live:
		ident = member.Identity{ID: m.ID, DisplayName: m.Tag, AvatarRef: m.AvatarRef}
	case !isSnowflake(target):
		return member.Record{}, fmt.Errorf("%w: %s", ErrNotFound, target)
	}

	existing, err := s.store.Get(ctx, ident.ID)
	switch {
	case err == nil && existing.Approved:
		return existing, ErrAlreadyApproved
	case err != nil && !member.IsNotFound(err):
		return member.Record{}, err
	}

	rec, err := s.store.SetApproval(ctx, ident, approve)
	if err != nil {
		return member.Record{}, err
	}

	event, kind := "admin.add", feedv1.ActivityAdminAdd
	if approve {
		event, kind = "admin.approve", feedv1.ActivityAdminApprove
	}
	s.log.Info(event, "member_id", rec.ID, "live", live)
	s.publish(feedv1.Activity{Kind: kind, MemberID: rec.ID, Name: rec.DisplayName})

	if live {
		action := Decide(rec, true, s.subject(m))
		if action == Challenge && !m.Status.Online() {
			// Offline members are challenged on their next presence change.
			action = NoOp
		}
		s.apply(ctx, m, action)
	}
	return rec, nil
}

// RemoveMember deletes target's key. An ID target must have a record; a
// name target is resolved against live members first, then the store.
// It returns the record as it was before deletion.
func (s *Service) RemoveMember(ctx context.Context, target string) (member.Record, error) {
	m, live, err := s.liveMember(ctx, target)
	if err != nil {
		return member.Record{}, fmt.Errorf("resolve %q: %w", target, err)
	}

	var rec member.Record
	switch {
	case isSnowflake(target):
		rec, err = s.store.Get(ctx, target)
	case live:
		rec, err = s.store.Get(ctx, m.ID)
	default:
		rec, err = s.store.GetByName(ctx, target)
	}
	if member.IsNotFound(err) {
		return member.Record{}, fmt.Errorf("%w: %s", ErrNotFound, target)
	}
	if err != nil {
		return member.Record{}, err
	}

	if _, err := s.store.Delete(ctx, rec.ID); err != nil {
		return member.Record{}, err
	}
	s.log.Info("admin.remove", "member_id", rec.ID, "live", live)
	s.publish(feedv1.Activity{Kind: feedv1.ActivityAdminRemove, MemberID: rec.ID, Name: rec.DisplayName})

	if live {
		s.dm(ctx, m.ID, s.templates().YouWereDeleted())
		s.removeRole(ctx, m)
		s.kick(ctx, m, "key deleted")
	}
	return rec, nil
}

// InvalidateMember resets id's record without keeping the key and removes
// the member from the guild when present.
func (s *Service) InvalidateMember(ctx context.Context, id string) error {
	if err := s.store.Invalidate(ctx, id, false); err != nil {
		return err
	}
	s.log.Info("admin.invalidate", "member_id", id)
	s.publish(feedv1.Activity{Kind: feedv1.ActivityAdminInvalidate, MemberID: id})

	m, err := s.platform.Member(ctx, s.cfg.GuildID, id)
	if errors.Is(err, platform.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.log.Warn("admin.invalidate.lookup_fail", "member_id", id, "err", err)
		return nil
	}
	s.removeRole(ctx, m)
	s.kick(ctx, m, "key revoked")
	return nil
}

// Lookup returns the stored record for id.
func (s *Service) Lookup(ctx context.Context, id string) (member.Record, error) {
	return s.store.Get(ctx, id)
}

// LookupByName returns the single record carrying name.
func (s *Service) LookupByName(ctx context.Context, name string) (member.Record, error) {
	return s.store.GetByName(ctx, name)
}
