package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"pushdeploy/pkg/templates"
)

// DefaultSMTPPort is the submission port used when none is configured.
const DefaultSMTPPort = 587

// SMTPConfig holds the outgoing mail server settings.
type SMTPConfig struct {
	Server   string
	Port     int
	User     string
	Password string
	From     string
}

// Complete reports whether every setting needed to send mail is present.
func (c SMTPConfig) Complete() bool {
	return c.Server != "" && c.User != "" && c.Password != "" && c.From != ""
}

// EmailSender delivers plain-text mail over SMTP, upgrading the
// connection with STARTTLS when the server offers it.
type EmailSender struct {
	Config SMTPConfig

	// TLSConfig overrides the STARTTLS configuration (tests only).
	TLSConfig *tls.Config
}

// Send implements Sender.
func (s *EmailSender) Send(ctx context.Context, to string, msg Message) error {
	if !s.Config.Complete() {
		return fmt.Errorf("email: %w (SMTP_SERVER, SMTP_USER, SMTP_PASSWORD and FROM_EMAIL are required)", ErrNotConfigured)
	}

	fromAddr, err := mail.ParseAddress(s.Config.From)
	if err != nil {
		return fmt.Errorf("email: invalid sender address: %w", err)
	}
	toAddr, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("email: invalid recipient address: %w", err)
	}

	body, err := buildEmail(fromAddr, toAddr, msg)
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}

	if err := s.deliver(ctx, fromAddr.Address, toAddr.Address, body); err != nil {
		return fmt.Errorf("email: %w", err)
	}
	return nil
}

func (s *EmailSender) deliver(ctx context.Context, from, to string, body []byte) error {
	port := s.Config.Port
	if port == 0 {
		port = DefaultSMTPPort
	}
	addr := net.JoinHostPort(s.Config.Server, strconv.Itoa(port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.Config.Server)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake failed: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		tlsConfig := s.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{ServerName: s.Config.Server, MinVersion: tls.VersionTLS12}
		}
		if err := c.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls failed: %w", err)
		}
	}

	if err := c.Auth(smtp.PlainAuth("", s.Config.User, s.Config.Password, s.Config.Server)); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	return c.Quit()
}

// buildEmail renders the message into an RFC 5322 mail.
func buildEmail(from, to *mail.Address, msg Message) ([]byte, error) {
	text, err := templates.Render(templates.Email, msg)
	if err != nil {
		return nil, err
	}

	date := msg.Timestamp
	if date.IsZero() {
		date = time.Now()
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from.String())
	fmt.Fprintf(&buf, "To: %s\r\n", to.String())
	fmt.Fprintf(&buf, "Subject: Deployment %s: %s\r\n", msg.Status, msg.Project)
	fmt.Fprintf(&buf, "Date: %s\r\n", date.Format(time.RFC1123Z))
	if msg.ID != "" {
		fmt.Fprintf(&buf, "Message-ID: <%s@pushdeploy>\r\n", msg.ID)
	}
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.Write(bytes.ReplaceAll([]byte(text), []byte("\n"), []byte("\r\n")))
	buf.WriteString("\r\n")

	return buf.Bytes(), nil
}
