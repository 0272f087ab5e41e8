package notify

import (
	"context"

	"github.com/MrEthical07/otpauth"
)

// Fallback delivers through Secondary when Primary does not report Sent.
// A successful fallback is reported as Simulated with the primary's reason.
type Fallback struct {
	Primary   otpauth.Notifier
	Secondary otpauth.Notifier
}

func (f *Fallback) Mode() string { return "smtp+console" }

func (f *Fallback) Deliver(ctx context.Context, d otpauth.Delivery) otpauth.DeliveryOutcome {
	first := f.Primary.Deliver(ctx, d)
	if first.Status == otpauth.DeliverySent || f.Secondary == nil {
		return first
	}

	second := f.Secondary.Deliver(ctx, d)
	if second.Status == otpauth.DeliveryFailed {
		return otpauth.Failed(first.Reason + "; " + second.Reason)
	}
	return otpauth.DeliveryOutcome{Status: otpauth.DeliverySimulated, Reason: first.Reason}
}
