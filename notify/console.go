package notify

import (
	"context"

	"github.com/MrEthical07/otpauth"
	"go.uber.org/zap"
)

// Console prints messages to a zap logger instead of sending them. Every
// delivery is Simulated.
type Console struct {
	logger *zap.Logger
	sender string
}

func NewConsole(logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{logger: logger.Named("notify"), sender: DefaultSenderName}
}

func (c *Console) Mode() string { return "console" }

func (c *Console) Deliver(_ context.Context, d otpauth.Delivery) otpauth.DeliveryOutcome {
	msg, err := Render(d, c.sender)
	if err != nil {
		return otpauth.Failed(err.Error())
	}

	c.logger.Info("email simulation",
		zap.String("to", d.To),
		zap.String("subject", msg.Subject),
		zap.String("code", d.Code),
		zap.Int("expires_in_minutes", d.TTLMinutes()),
	)

	return otpauth.DeliveryOutcome{Status: otpauth.DeliverySimulated, Reason: "mail not configured"}
}
