package mqhandler

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	pkgconfig "stageflow/pkg/config"
)

// SMTPMailer sends plain-text mail through the configured relay. With no
// SMTP host configured, delivery is logged and skipped so local environments
// work without a relay.
type SMTPMailer struct {
	cfg    pkgconfig.MailConfig
	logger *zap.Logger
}

func NewSMTPMailer(cfg pkgconfig.MailConfig, logger *zap.Logger) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, logger: logger}
}

func (m *SMTPMailer) Send(ctx context.Context, to []string, subject, body string) error {
	if m.cfg.SMTPHost == "" {
		m.logger.Info("SMTP not configured, skipping delivery",
			zap.Strings("to", to),
			zap.String("subject", subject),
		)
		return nil
	}

	msg := strings.Join([]string{
		fmt.Sprintf("From: %s", m.cfg.From),
		fmt.Sprintf("To: %s", strings.Join(to, ", ")),
		fmt.Sprintf("Subject: %s", subject),
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)
	return smtp.SendMail(addr, nil, m.cfg.From, to, []byte(msg))
}
