package mail

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/walletauth/services/logging"
	"github.com/tech-arch1tect/walletauth/session"
	"github.com/tech-arch1tect/walletauth/testutils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testAlert() session.SecurityAlert {
	return session.SecurityAlert{
		Kind:          "identity_mismatch",
		Identity:      "0xbbb",
		TokenIdentity: "0xaaa",
		SessionID:     "3f2a9c10d4e5",
		IPAddress:     "203.0.113.7",
		At:            time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSecurityAlerter_SendsInBackground(t *testing.T) {
	sender := &testutils.MockMailSender{}
	recipients := []string{"oncall@example.com", "security@example.com"}
	sender.On("SendPlain", mock.Anything, recipients, "[walletauth] security alert: identity_mismatch", mock.MatchedBy(func(body string) bool {
		for _, want := range []string{"0xbbb", "0xaaa", "203.0.113.7", "2026-03-01 12:00:00 UTC"} {
			if !strings.Contains(body, want) {
				return false
			}
		}
		return true
	})).Return(nil)

	alerter := NewSecurityAlerter(sender, recipients, nil)

	ctx, cancel := context.WithCancel(context.Background())
	alerter.SecurityAlert(ctx, testAlert())
	cancel()

	require.NoError(t, alerter.Wait(context.Background()))
	sender.AssertExpectations(t)

	sendCtx := sender.Calls[0].Arguments.Get(0).(context.Context)
	assert.NoError(t, sendCtx.Err(), "a cancelled request must not cancel the mail")
}

func TestSecurityAlerter_NoRecipients(t *testing.T) {
	sender := &testutils.MockMailSender{}
	alerter := NewSecurityAlerter(sender, nil, nil)

	alerter.SecurityAlert(context.Background(), testAlert())

	require.NoError(t, alerter.Wait(context.Background()))
	sender.AssertNotCalled(t, "SendPlain", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSecurityAlerter_LogsSendFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sender := &testutils.MockMailSender{}
	sender.On("SendPlain", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	alerter := NewSecurityAlerter(sender, []string{"oncall@example.com"}, logging.NewFromZap(zap.New(core)))
	alerter.SecurityAlert(context.Background(), testAlert())
	require.NoError(t, alerter.Wait(context.Background()))

	failures := logs.FilterMessage("failed to mail security alert").All()
	require.Len(t, failures, 1)
	assert.Equal(t, "identity_mismatch", failures[0].ContextMap()["kind"])
}

func TestSecurityAlerter_WaitHonoursContext(t *testing.T) {
	release := make(chan time.Time)
	sender := &testutils.MockMailSender{}
	sender.On("SendPlain", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		WaitUntil(release).Return(nil)

	alerter := NewSecurityAlerter(sender, []string{"oncall@example.com"}, nil)
	alerter.SecurityAlert(context.Background(), testAlert())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, alerter.Wait(ctx), context.DeadlineExceeded)

	close(release)
	assert.NoError(t, alerter.Wait(context.Background()))
}

func TestSecurityAlerter_ImplementsSessionAlerter(t *testing.T) {
	var _ session.Alerter = NewSecurityAlerter(nil, nil, nil)
}
