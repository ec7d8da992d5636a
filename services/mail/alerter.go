package mail

import (
	"bytes"
	"context"
	"sync"
	"text/template"
	"time"

	"github.com/tech-arch1tect/walletauth/services/logging"
	"github.com/tech-arch1tect/walletauth/session"
	"go.uber.org/zap"
)

const alertSendTimeout = 30 * time.Second

var alertBody = template.Must(template.New("alert").Parse(`A session was revoked because it failed an integrity check.

Kind:            {{.Kind}}
Stored identity: {{.Identity}}
Token identity:  {{.TokenIdentity}}
Session:         {{.SessionID}}
Client IP:       {{if .IPAddress}}{{.IPAddress}}{{else}}unknown{{end}}
Detected at:     {{.At.Format "2006-01-02 15:04:05 MST"}}

The session has been deactivated. No action is needed unless this repeats.
`))

type Sender interface {
	SendPlain(ctx context.Context, to []string, subject, body string) error
}

// SecurityAlerter mails security alerts to operators. Sending happens in the
// background so a slow SMTP server never holds up a request.
type SecurityAlerter struct {
	sender     Sender
	recipients []string
	logger     *logging.Service
	timeout    time.Duration

	wg sync.WaitGroup
}

func NewSecurityAlerter(sender Sender, recipients []string, logger *logging.Service) *SecurityAlerter {
	return &SecurityAlerter{
		sender:     sender,
		recipients: recipients,
		logger:     logger,
		timeout:    alertSendTimeout,
	}
}

func (a *SecurityAlerter) SecurityAlert(ctx context.Context, alert session.SecurityAlert) {
	if len(a.recipients) == 0 {
		return
	}

	var body bytes.Buffer
	if err := alertBody.Execute(&body, alert); err != nil {
		a.logger.Error("failed to render security alert", zap.Error(err))
		return
	}
	subject := "[walletauth] security alert: " + alert.Kind

	// the request context ends with the response
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()

		if err := a.sender.SendPlain(sendCtx, a.recipients, subject, body.String()); err != nil {
			a.logger.Error("failed to mail security alert",
				zap.String("kind", alert.Kind),
				zap.Error(err))
		}
	}()
}

// Wait blocks until every queued alert has been handed to the mail server or
// ctx is done.
func (a *SecurityAlerter) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
