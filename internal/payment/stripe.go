package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

type StripeProvider struct {
	api *client.API
}

func NewStripeProvider(secretKey string) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProvider{api: api}
}

func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, params ProviderIntentParams) (*Intent, error) {
	sp := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(params.Amount),
		Currency: stripe.String(params.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	sp.Context = ctx
	if params.ReceiptEmail != "" {
		sp.ReceiptEmail = stripe.String(params.ReceiptEmail)
	}
	for k, v := range params.Metadata {
		sp.AddMetadata(k, v)
	}

	pi, err := p.api.PaymentIntents.New(sp)
	if err != nil {
		return nil, err
	}

	return &Intent{
		ID:           pi.ID,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
		ClientSecret: pi.ClientSecret,
		Created:      pi.Created,
		ReceiptEmail: pi.ReceiptEmail,
		Metadata:     pi.Metadata,
	}, nil
}

// SignatureVerifier checks a webhook payload against its signature header.
type SignatureVerifier interface {
	Verify(payload []byte, signature string) (*Event, error)
}

type StripeVerifier struct {
	secret string
}

func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret}
}

func (v *StripeVerifier) Verify(payload []byte, signature string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data != nil {
		out.Data.Object = ev.Data.Raw
	}
	return out, nil
}
