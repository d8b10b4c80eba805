package chat

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Processor executes protocol lines on behalf of a session.
type Processor struct {
	registry    *Registry
	systemLabel string
	logger      *zap.Logger
}

// NewProcessor creates a Processor routing through registry.
//
// Precondition: registry and logger must be non-nil; systemLabel must be non-empty.
func NewProcessor(registry *Registry, systemLabel string, logger *zap.Logger) *Processor {
	return &Processor{
		registry:    registry,
		systemLabel: systemLabel,
		logger:      logger,
	}
}

// Handle parses and executes one line received from s.
// Protocol errors are answered to s only and never end the session.
//
// Postcondition: Returns true when the session asked to quit.
func (p *Processor) Handle(s *Session, line string) bool {
	cmd, err := Parse(line)
	if err != nil {
		p.reply(s, "%s", usageMessage(err))
		return false
	}

	switch cmd.Kind {
	case KindQuit:
		return true
	case KindRename:
		p.rename(s, cmd.NewName)
	case KindDirectMessage:
		p.direct(s, cmd.Target, cmd.Body)
	case KindBroadcast:
		p.broadcast(s, cmd.Body)
	default:
		p.reply(s, "unrecognized command. Use: %s", strings.Join(Keywords(), ", "))
	}
	return false
}

func (p *Processor) rename(s *Session, newName string) {
	if err := ValidateName(newName, p.systemLabel); err != nil {
		p.reply(s, "invalid name. Avoid whitespace and '%s'.", p.systemLabel)
		return
	}

	oldName := s.Name()
	if err := p.registry.Rename(oldName, newName, s); err != nil {
		if errors.Is(err, ErrNameInUse) {
			p.reply(s, "the name '%s' is already in use.", newName)
			return
		}
		p.logger.Error("rename failed", zap.String("session_id", s.ID()), zap.Error(err))
		return
	}

	p.reply(s, "your name is now: %s", newName)
	p.registry.BroadcastExcept(p.System("user %s is now known as %s", oldName, newName), s)
	p.logger.Info("session renamed",
		zap.String("session_id", s.ID()),
		zap.String("old_name", oldName),
		zap.String("new_name", newName),
	)
}

func (p *Processor) direct(s *Session, target, body string) {
	dest, ok := p.registry.Lookup(target)
	if !ok {
		p.reply(s, "user not found: %s", target)
		return
	}
	if dest == s {
		p.reply(s, "you cannot message yourself.")
		return
	}

	name := s.Name()
	if err := dest.Send(fmt.Sprintf("[private from %s]: %s", name, body)); err != nil {
		// The target disconnected between lookup and send.
		p.reply(s, "user not found: %s", target)
		return
	}
	p.reply(s, "[enviado a %s]: %s", target, body)
	p.logger.Info("private message",
		zap.String("from", name),
		zap.String("to", target),
	)
}

func (p *Processor) broadcast(s *Session, body string) {
	name := s.Name()
	n := p.registry.BroadcastExcept(fmt.Sprintf("[%s]: %s", name, body), s)
	p.reply(s, "global message sent to %d user(s).", n)
	p.logger.Info("global message",
		zap.String("from", name),
		zap.Int("recipients", n),
	)
}

// System formats a line labelled as a server notice.
func (p *Processor) System(format string, args ...any) string {
	return p.systemLabel + ": " + fmt.Sprintf(format, args...)
}

func (p *Processor) reply(s *Session, format string, args ...any) {
	if err := s.Send(p.System(format, args...)); err != nil {
		p.logger.Debug("reply failed", zap.String("session_id", s.ID()), zap.Error(err))
	}
}

func usageMessage(err error) string {
	return "usage: " + strings.TrimPrefix(err.Error(), ErrUsage.Error()+": ")
}
