package testutils

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockMailSender records plain-text mails instead of dialing SMTP.
type MockMailSender struct {
	mock.Mock
}

func (m *MockMailSender) SendPlain(ctx context.Context, to []string, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}
