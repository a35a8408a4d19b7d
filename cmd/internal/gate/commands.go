package gate

import (
	"context"
	"errors"
	"strings"

	"github.com/volskaya/norman/cmd/internal/member"
	"github.com/volskaya/norman/cmd/internal/platform"
)

type command struct {
	admin bool
	run   func(ctx context.Context, msg platform.Message, arg string)
}

func (s *Service) commands() map[string]command {
	return map[string]command{
		"add":     {admin: true, run: func(ctx context.Context, msg platform.Message, arg string) { s.cmdAdd(ctx, msg, arg, false) }},
		"approve": {admin: true, run: func(ctx context.Context, msg platform.Message, arg string) { s.cmdAdd(ctx, msg, arg, true) }},
		"remove":  {admin: true, run: s.cmdRemove},
		"hey":     {admin: true, run: s.cmdHey},
		"am":      {run: s.cmdAm},
	}
}

// command parses and runs a prefixed chat command.
func (s *Service) command(ctx context.Context, msg platform.Message) {
	body := strings.TrimPrefix(msg.Content, s.cfg.CommandPrefix)
	name, arg, _ := strings.Cut(strings.TrimSpace(body), " ")
	cmd, ok := s.commands()[strings.ToLower(name)]
	if !ok {
		return
	}
	if cmd.admin && !s.isAdmin(ctx, msg.AuthorID) {
		s.log.Warn("command.unauthorized", "command", name, "author_id", msg.AuthorID, "author", msg.AuthorTag)
		return
	}
	s.log.Info("command", "command", name, "author_id", msg.AuthorID)
	cmd.run(ctx, msg, parseTarget(arg))
}

// isAdmin reports whether id may run admin commands.
func (s *Service) isAdmin(ctx context.Context, id string) bool {
	if s.isOwner(id) {
		return true
	}
	if s.cfg.DisableAdminRole {
		return false
	}
	m, err := s.platform.Member(ctx, s.cfg.GuildID, id)
	if err != nil {
		return false
	}
	return s.roles.MemberHas(m, SlotAdmin)
}

// parseTarget strips mention markup: "<@123>" and "<@!123>" become "123".
func parseTarget(arg string) string {
	arg = strings.TrimSpace(arg)
	if strings.HasPrefix(arg, "<@") && strings.HasSuffix(arg, ">") {
		inner := strings.TrimPrefix(strings.TrimSuffix(arg[2:], ">"), "!")
		if isSnowflake(inner) {
			return inner
		}
	}
	return arg
}

func (s *Service) cmdAdd(ctx context.Context, msg platform.Message, target string, approve bool) {
	if target == "" {
		return
	}
	t := s.templates()
	rec, err := s.AddMember(ctx, target, approve)
	switch {
	case errors.Is(err, ErrAlreadyApproved):
		s.reply(ctx, msg.ChannelID, t.AlreadyApproved(displayOr(rec, target), rec.Key))
	case errors.Is(err, ErrNotFound):
		s.reply(ctx, msg.ChannelID, t.CouldNotFind(target))
	case err != nil:
		s.log.Error("command.add.fail", "target", target, "err", err)
	default:
		s.reply(ctx, msg.ChannelID, t.Added(displayOr(rec, target), "", rec.Key, rec.AvatarRef, rec.Approved))
	}
}

func (s *Service) cmdRemove(ctx context.Context, msg platform.Message, target string) {
	if target == "" {
		return
	}
	t := s.templates()
	rec, err := s.RemoveMember(ctx, target)
	switch {
	case errors.Is(err, ErrNotFound):
		s.reply(ctx, msg.ChannelID, t.NotFound(target))
	case member.IsAmbiguous(err):
		s.reply(ctx, msg.ChannelID, t.Ambiguous(target))
	case err != nil:
		s.log.Error("command.remove.fail", "target", target, "err", err)
	default:
		s.reply(ctx, msg.ChannelID, t.Deleted(displayOr(rec, target)))
	}
}

func (s *Service) cmdAm(ctx context.Context, msg platform.Message, _ string) {
	rec, err := s.store.Get(ctx, msg.AuthorID)
	if err != nil && !member.IsNotFound(err) {
		s.log.Error("command.am.fail", "author_id", msg.AuthorID, "err", err)
		return
	}
	s.reply(ctx, msg.ChannelID, s.templates().Status(msg.AuthorTag, rec.DisplayName, rec.AvatarRef, rec.Approved))
}

func (s *Service) cmdHey(ctx context.Context, msg platform.Message, _ string) {
	role, _ := s.roles.Resolved(SlotBot)
	s.reply(ctx, msg.ChannelID, s.templates().Hey(msg.AuthorID, role.Color))
}

func displayOr(rec member.Record, fallback string) string {
	if rec.DisplayName != "" {
		return rec.DisplayName
	}
	return fallback
}
