package logging

import (
	"github.com/tech-arch1tect/walletauth/config"
)

// NewLoggingService builds the process logger from the LOG_ settings.
func NewLoggingService(cfg *config.Config) (*Service, error) {
	return NewService(Config{
		Level:      LogLevel(cfg.Log.Level),
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.Output,
	})
}
