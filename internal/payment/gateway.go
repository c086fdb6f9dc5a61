package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

type ProviderIntentParams struct {
	Amount       int64
	Currency     string
	ReceiptEmail string
	Metadata     map[string]string
}

// Provider creates payment intents at the payment provider.
type Provider interface {
	CreatePaymentIntent(ctx context.Context, params ProviderIntentParams) (*Intent, error)
}

type Gateway struct {
	testMode        bool
	provider        Provider
	defaultCurrency string
	timeout         time.Duration
	now             func() time.Time
}

// NewGateway: в live-режиме provider может быть nil, если ключ не задан.
// Тогда CreateIntent возвращает ErrGatewayNotConfigured, а не уходит в тестовый режим.
func NewGateway(testMode bool, provider Provider, defaultCurrency string, timeout time.Duration) *Gateway {
	if defaultCurrency == "" {
		defaultCurrency = "usd"
	}
	return &Gateway{
		testMode:        testMode,
		provider:        provider,
		defaultCurrency: defaultCurrency,
		timeout:         timeout,
		now:             time.Now,
	}
}

func (g *Gateway) TestMode() bool {
	return g.testMode
}

func (g *Gateway) CreateIntent(ctx context.Context, req IntentRequest) (*CreatedIntent, error) {
	if req.AmountMinor <= 0 {
		return nil, ErrInvalidAmount
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = g.defaultCurrency
	}

	metadata, err := BuildMetadata(req.Shipping, req.Items, g.testMode)
	if err != nil {
		return nil, err
	}

	var receiptEmail string
	if req.Shipping != nil {
		receiptEmail = req.Shipping.Email
	}

	if g.testMode {
		intent := g.mockIntent(req.AmountMinor, currency, receiptEmail, metadata)
		log.Info().Str("payment_intent_id", intent.ID).Int64("amount", intent.Amount).Msg("payment: created test mode payment intent")
		return &CreatedIntent{ClientSecret: intent.ClientSecret, IntentID: intent.ID, TestMode: true, Intent: intent}, nil
	}

	if g.provider == nil {
		log.Error().Msg("payment: live mode without STRIPE_SECRET_KEY")
		return nil, ErrGatewayNotConfigured
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	intent, err := g.provider.CreatePaymentIntent(callCtx, ProviderIntentParams{
		Amount:       req.AmountMinor,
		Currency:     currency,
		ReceiptEmail: receiptEmail,
		Metadata:     metadata,
	})
	if err != nil {
		log.Error().Err(err).Int64("amount", req.AmountMinor).Msg("payment: provider failed to create payment intent")
		return nil, fmt.Errorf("payment: failed to create payment intent: %w", err)
	}

	log.Info().Str("payment_intent_id", intent.ID).Int64("amount", intent.Amount).Msg("payment: created payment intent")
	return &CreatedIntent{ClientSecret: intent.ClientSecret, IntentID: intent.ID, TestMode: false, Intent: intent}, nil
}

func (g *Gateway) mockIntent(amount int64, currency, receiptEmail string, metadata map[string]string) *Intent {
	now := g.now()
	id := fmt.Sprintf("pi_test_%d_%s", now.UnixMilli(), randomToken(9))
	return &Intent{
		ID:           id,
		Amount:       amount,
		Currency:     currency,
		Status:       "requires_payment_method",
		ClientSecret: fmt.Sprintf("%s_secret_%s", id, randomToken(16)),
		Created:      now.Unix(),
		ReceiptEmail: receiptEmail,
		Metadata:     metadata,
	}
}

// randomToken возвращает n случайных символов [0-9a-f].
func randomToken(n int) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(strings.ReplaceAll(uuid.Must(uuid.NewV4()).String(), "-", ""))
	}
	return b.String()[:n]
}
