package notify

import (
	"github.com/MrEthical07/otpauth"
	"go.uber.org/zap"
)

// New returns the notifier for cfg: SMTP backed by the console simulation
// when mail is configured, the console simulation alone otherwise.
func New(cfg Config, logger *zap.Logger) otpauth.Notifier {
	console := NewConsole(logger)
	if !cfg.Configured() {
		if logger != nil {
			logger.Warn("mail not configured, codes will be printed to the log")
		}
		return console
	}
	return &Fallback{
		Primary:   NewSMTP(cfg),
		Secondary: console,
	}
}
