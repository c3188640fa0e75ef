// Package mail is the notification dispatcher. Delivery is fire-and-forget:
// the triggering request never blocks on it, and a failed send is logged and
// swallowed, never propagated back into the mutation that caused it.
package mail

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"sort"
	"strings"

	"github.com/johoo26/myzhihu/internal/app"
)

type Dispatcher interface {
	Notify(recipient, purpose string, data map[string]string)
}

var subjects = map[string]string{
	"confirm":      "Confirm your account",
	"reset":        "Reset your password",
	"change-email": "Confirm your new email address",
}

// SMTP sends each notification on its own goroutine.
type SMTP struct {
	Cfg app.Config
}

func NewSMTP(cfg app.Config) *SMTP { return &SMTP{Cfg: cfg} }

func (s *SMTP) Notify(recipient, purpose string, data map[string]string) {
	go func() {
		if err := s.send(recipient, purpose, data); err != nil {
			slog.Warn("mail delivery failed", "recipient", recipient, "purpose", purpose, "err", err)
		}
	}()
}

func (s *SMTP) send(recipient, purpose string, data map[string]string) error {
	subject, ok := subjects[purpose]
	if !ok {
		subject = purpose
	}

	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\n", s.Cfg.MailSender)
	fmt.Fprintf(&body, "To: %s\r\n", recipient)
	fmt.Fprintf(&body, "Subject: %s %s\r\n\r\n", s.Cfg.MailSubjectPrefix, subject)
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&body, "%s: %s\r\n", k, data[k])
	}

	host := s.Cfg.SMTPAddr
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	var a smtp.Auth
	if s.Cfg.SMTPUsername != "" {
		a = smtp.PlainAuth("", s.Cfg.SMTPUsername, s.Cfg.SMTPPassword, host)
	}
	return smtp.SendMail(s.Cfg.SMTPAddr, a, s.Cfg.MailSender, []string{recipient}, []byte(body.String()))
}

// Log is the dispatcher for development and tests: it only logs.
type Log struct{}

func (Log) Notify(recipient, purpose string, data map[string]string) {
	slog.Info("mail (not sent)", "recipient", recipient, "purpose", purpose, "data", data)
}
