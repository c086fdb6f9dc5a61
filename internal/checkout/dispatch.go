package checkout

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/metrics"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/payment"
)

type Dispatch struct {
	EventType string
	Handled   bool
	Result    *Result
}

// HandleEvent routes an authenticated webhook event. Unknown event types are
// acknowledged without action.
func (w *Workflow) HandleEvent(ctx context.Context, ev *payment.Event) Dispatch {
	d := Dispatch{EventType: ev.Type}

	switch ev.Type {
	case payment.EventPaymentSucceeded, payment.EventPaymentFailed:
	default:
		log.Info().Str("event_id", ev.ID).Str("event_type", ev.Type).Msg("checkout: unhandled event type")
		metrics.RecordWebhookEvent("other", "ignored")
		return d
	}

	var result Result
	intent, err := ev.PaymentIntent()
	switch {
	case err != nil:
		result = failure(fmt.Errorf("%w: %v", ErrMalformedPaymentPayload, err))
	case ev.Type == payment.EventPaymentSucceeded:
		result = w.ProcessSucceededPayment(ctx, intent)
	default:
		result = w.ProcessFailedPayment(ctx, intent)
	}

	d.Handled = true
	d.Result = &result

	outcome := "processed"
	if !result.Success {
		outcome = "rejected"
		log.Error().Err(result.Error).Str("event_id", ev.ID).Str("event_type", ev.Type).Msg("checkout: webhook event not processed")
	}
	metrics.RecordWebhookEvent(ev.Type, outcome)

	return d
}
