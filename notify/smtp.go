package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
)

var (
	ErrMissingHost = errors.New("smtp host is required")
	ErrMissingPort = errors.New("smtp port is required")
	ErrMissingFrom = errors.New("smtp from address is required")
	ErrInvalidFrom = errors.New("smtp from address is not valid")
)

// SMTPConfig configures [SMTPSender].
type SMTPConfig struct {
	Host                  string `mapstructure:"host"`
	Port                  int    `mapstructure:"port"`
	Username              string `mapstructure:"username"`
	Password              string `mapstructure:"password"`
	From                  string `mapstructure:"from"`
	TLSEnable             bool   `mapstructure:"tls_enable"`
	TLSInsecureSkipVerify bool   `mapstructure:"tls_insecure_skip_verify"`
}

func (c SMTPConfig) Validate() error {
	if c.Host == "" {
		return ErrMissingHost
	}
	if c.Port < 1 {
		return ErrMissingPort
	}
	if c.From == "" {
		return ErrMissingFrom
	}
	if strings.Count(c.From, "@") != 1 {
		return ErrInvalidFrom
	}
	return nil
}

// SMTPSender sends plain-text mail through go-mail.
type SMTPSender struct {
	cfg    SMTPConfig
	client *mail.Client
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
		)
	}
	if cfg.TLSEnable {
		opts = append(opts,
			mail.WithTLSPolicy(mail.TLSMandatory),
			mail.WithTLSConfig(&tls.Config{
				ServerName:         cfg.Host,
				InsecureSkipVerify: cfg.TLSInsecureSkipVerify,
			}),
		)
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{cfg: cfg, client: client}, nil
}

func (s *SMTPSender) buildMessage(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, ErrInvalidFrom
	}
	if err := m.To(msg.To); err != nil {
		// A malformed address will never succeed.
		return nil, Permanent(fmt.Errorf("smtp recipient: %w", err))
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := s.buildMessage(msg)
	if err != nil {
		return err
	}
	return s.client.DialAndSendWithContext(ctx, m)
}
