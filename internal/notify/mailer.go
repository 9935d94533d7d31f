package notify

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// Message — текстовое письмо (text/plain).
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer — отправка писем. Ошибки отправки вызывающая сторона логирует
// и не пробрасывает клиенту.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig — параметры SMTP-relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPMailer отправляет письма через SMTP (STARTTLS, если сервер его предлагает).
type SMTPMailer struct {
	cfg    SMTPConfig
	from   mail.Address
	logger *slog.Logger
}

// NewSMTPMailer создаёт SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) (*SMTPMailer, error) {
	addr, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("некорректный адрес отправителя %q: %w", cfg.From, err)
	}
	addr.Name = cfg.FromName
	return &SMTPMailer{
		cfg:    cfg,
		from:   *addr,
		logger: logger.With(slog.String("component", "smtp_mailer")),
	}, nil
}

// Send отправляет письмо. smtp.SendMail не принимает контекст, поэтому
// отмена учитывается только до начала отправки.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("некорректный адрес получателя %q: %w", msg.To, err)
	}

	var auth smtp.Auth
	if m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	body := buildMessage(m.from, *to, msg.Subject, msg.Body, time.Now())
	if err := smtp.SendMail(addr, auth, m.from.Address, []string{to.Address}, body); err != nil {
		return fmt.Errorf("отправка письма на %s: %w", to.Address, err)
	}

	m.logger.Debug("Письмо отправлено",
		slog.String("to", to.Address),
		slog.String("subject", msg.Subject),
	)
	return nil
}

// buildMessage формирует RFC 5322 сообщение.
func buildMessage(from, to mail.Address, subject, body string, date time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from.String() + "\r\n")
	b.WriteString("To: " + to.String() + "\r\n")
	b.WriteString("Subject: " + mimeHeader(subject) + "\r\n")
	b.WriteString("Date: " + date.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// mimeHeader кодирует не-ASCII заголовок (RFC 2047).
func mimeHeader(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.QEncoding.Encode("UTF-8", s)
		}
	}
	return s
}

// LogMailer пишет письма в лог вместо отправки. Используется, когда
// EL_SMTP_HOST не задан.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer создаёт LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With(slog.String("component", "log_mailer"))}
}

// Send логирует письмо.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("Письмо (SMTP не настроен)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}
