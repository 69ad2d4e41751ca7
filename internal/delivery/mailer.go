package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/wneessen/go-mail"

	"kindle_digest/internal/domain"
)

const (
	EncryptionSSL = "SSL"
	EncryptionTLS = "TLS"

	messageBody = "Hot off the press!\n\n--\n\n"
)

type Config struct {
	Host       string
	Port       int
	User       string
	Password   string
	From       string
	To         string
	Encryption string
	Timeout    time.Duration
}

type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer sends packaged issues to a Kindle address over SMTP.
type Mailer struct {
	cfg    Config
	client sender
	logger *slog.Logger
}

// New builds the SMTP client. SSL means implicit TLS on connect, TLS means a
// mandatory STARTTLS upgrade; anything else is a configuration error.
func New(cfg Config, logger *slog.Logger) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.User),
		mail.WithPassword(cfg.Password),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}

	switch cfg.Encryption {
	case EncryptionSSL:
		opts = append(opts, mail.WithSSL())
	case EncryptionTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		return nil, fmt.Errorf("%w: encryption type %q not found", domain.ErrConfiguration, cfg.Encryption)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: smtp client: %v", domain.ErrConfiguration, err)
	}

	return &Mailer{
		cfg:    cfg,
		client: client,
		logger: logger.With("component", "mailer", "to", cfg.To),
	}, nil
}

// Subject is "<title> - YYYY-MM-DD".
func Subject(issue domain.Issue) string {
	return fmt.Sprintf("%s - %s", issue.Title, issue.Date.Format("2006-01-02"))
}

func (m *Mailer) NewMessage(issue domain.Issue, art *domain.Artifact) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(m.cfg.To); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}
	msg.Subject(Subject(issue))
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, messageBody)
	msg.AttachFile(art.Path, mail.WithFileName(filepath.Base(art.Path)))
	return msg, nil
}

// Deliver mails the artifact. Errors wrap domain.ErrDelivery.
func (m *Mailer) Deliver(ctx context.Context, issue domain.Issue, art *domain.Artifact) error {
	msg, err := m.NewMessage(issue, art)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDelivery, err)
	}

	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDelivery, err)
	}

	m.logger.Info("issue delivered",
		"subject", Subject(issue),
		"attachment", filepath.Base(art.Path),
		"duration", time.Since(start),
	)
	return nil
}
