package otpauth

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// deliver hands an issued code to the notifier under Config.Notify.Timeout.
// The outcome is reported, never returned as an error.
func (e *Engine) deliver(ctx context.Context, accountID, to string, token IssuedToken) (outcome DeliveryOutcome) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Notify.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			outcome = Failed(fmt.Sprintf("notifier panic: %v", r))
		}
		if outcome.Status == 0 {
			outcome = Failed("notifier returned no status")
		}
		e.recordDelivery(ctx, accountID, token.Purpose, outcome)
	}()

	return e.notifier.Deliver(ctx, Delivery{
		To:      to,
		Purpose: token.Purpose,
		Code:    token.Code,
		TTL:     token.TTL,
	})
}

func (e *Engine) recordDelivery(ctx context.Context, accountID string, purpose Purpose, outcome DeliveryOutcome) {
	switch outcome.Status {
	case DeliverySent:
		e.metricInc(MetricDeliverySent)
	case DeliverySimulated:
		e.metricInc(MetricDeliverySimulated)
		e.logger.Info("delivery simulated",
			zap.String("account_id", accountID),
			zap.String("purpose", string(purpose)),
			zap.String("reason", outcome.Reason),
		)
	default:
		e.metricInc(MetricDeliveryFailed)
		e.logger.Warn("delivery failed",
			zap.String("account_id", accountID),
			zap.String("purpose", string(purpose)),
			zap.String("reason", outcome.Reason),
		)
		e.emitAudit(ctx, auditEventDeliveryFailed, false, accountID, "", nil, func() map[string]string {
			return map[string]string{"purpose": string(purpose), "reason": outcome.Reason}
		})
	}
}
