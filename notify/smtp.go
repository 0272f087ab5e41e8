package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"time"

	"github.com/MrEthical07/otpauth"
)

// SMTP sends plain-text mail through one relay, upgrading with STARTTLS when
// the server offers it and authenticating with PLAIN when a username is set.
type SMTP struct {
	cfg    Config
	dialer net.Dialer
	tls    *tls.Config
	now    func() time.Time
}

func NewSMTP(cfg Config) *SMTP {
	return &SMTP{
		cfg: cfg,
		tls: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		now: time.Now,
	}
}

func (s *SMTP) Mode() string { return "smtp" }

func (s *SMTP) Deliver(ctx context.Context, d otpauth.Delivery) otpauth.DeliveryOutcome {
	msg, err := Render(d, s.cfg.senderName())
	if err != nil {
		return otpauth.Failed(err.Error())
	}

	if err := s.send(ctx, d.To, s.compose(d.To, msg)); err != nil {
		return otpauth.Failed(err.Error())
	}
	return otpauth.Sent()
}

func (s *SMTP) compose(to string, msg Message) []byte {
	from := mail.Address{Name: s.cfg.senderName(), Address: s.cfg.From}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from.String())
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.Write(bytes.ReplaceAll([]byte(msg.Body), []byte("\n"), []byte("\r\n")))
	return buf.Bytes()
}

func (s *SMTP) send(ctx context.Context, to string, body []byte) error {
	conn, err := s.dialer.DialContext(ctx, "tcp", s.cfg.addr())
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(s.tls); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data end: %w", err)
	}

	return client.Quit()
}
