package services

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// Mailer delivers account mails. Implementations receive secrets (reset
// tokens, initial passwords) and must not log them.
type Mailer interface {
	SendPasswordReset(ctx context.Context, mail string, token string) error
	SendInvite(ctx context.Context, mail string, password string) error
}

// LogMailer records that a mail would have been sent. It stands in until an
// outbound mail transport is configured.
type LogMailer struct {
	logger logging.Logger
}

func NewLogMailer(l logging.Logger) *LogMailer {
	return &LogMailer{logger: l.With("module", "mailer")}
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, mail string, _ string) error {
	m.logger.Warn(ctx, "mail transport not configured, password reset mail dropped", "to", mail)
	return nil
}

func (m *LogMailer) SendInvite(ctx context.Context, mail string, _ string) error {
	m.logger.Warn(ctx, "mail transport not configured, invite mail dropped", "to", mail)
	return nil
}
