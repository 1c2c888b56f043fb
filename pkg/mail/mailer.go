package mail

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	gomail "gopkg.in/gomail.v2"

	"github.com/clinsim/simlab-api/pkg/config"
)

// Mailer sends transactional mail over SMTP. Its settings can be swapped at
// runtime by the configuration endpoint; Reconfigure persists the new values
// back to the env file so they survive restarts.
type Mailer struct {
	mu      sync.RWMutex
	cfg     config.MailConfig
	envFile string
	logger  *zap.Logger
}

// NewMailer constructs a mailer with the given settings.
func NewMailer(cfg config.MailConfig, envFile string, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if envFile == "" {
		envFile = ".env"
	}
	return &Mailer{cfg: cfg, envFile: envFile, logger: logger}
}

// Settings returns a copy of the current SMTP settings.
func (m *Mailer) Settings() config.MailConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Reconfigure swaps SMTP settings and persists them to the env file.
func (m *Mailer) Reconfigure(cfg config.MailConfig) error {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	env, err := godotenv.Read(m.envFile)
	if err != nil {
		env = map[string]string{}
	}
	env["MAIL_HOST"] = cfg.Host
	env["MAIL_PORT"] = strconv.Itoa(cfg.Port)
	env["MAIL_USERNAME"] = cfg.Username
	env["MAIL_PASSWORD"] = cfg.Password
	env["MAIL_FROM"] = cfg.From
	if err := godotenv.Write(env, m.envFile); err != nil {
		return fmt.Errorf("persist mail settings: %w", err)
	}

	m.logger.Sugar().Infow("mail settings reloaded", "host", cfg.Host, "port", cfg.Port)
	return nil
}

// Send delivers a single HTML message.
func (m *Mailer) Send(to, subject, htmlBody string) error {
	m.mu.RLock()
	cfg := m.cfg
	m.mu.RUnlock()

	msg := gomail.NewMessage()
	msg.SetHeader("From", cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}
