package payment

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrGatewayNotConfigured = errors.New("stripe is not configured")
	ErrSignatureInvalid     = errors.New("webhook signature verification failed")
	ErrMissingSignature     = fmt.Errorf("%w: no signature", ErrSignatureInvalid)
	ErrMalformedEvent       = errors.New("malformed webhook event")
)

const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

const (
	MetadataShipping = "shipping"
	MetadataItems    = "items"
	MetadataTestMode = "test_mode"
)

// Intent is the subset of a provider payment intent the storefront reads.
// JSON names follow the provider's wire format.
type Intent struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Status           string            `json:"status,omitempty"`
	ClientSecret     string            `json:"client_secret,omitempty"`
	Created          int64             `json:"created"`
	ReceiptEmail     string            `json:"receipt_email,omitempty"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *PaymentError     `json:"last_payment_error,omitempty"`
}

type PaymentError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type IntentRequest struct {
	AmountMinor int64
	Currency    string
	Shipping    *order.ShippingInfo
	Items       []order.LineItem
}

type CreatedIntent struct {
	ClientSecret string  `json:"clientSecret"`
	IntentID     string  `json:"paymentIntentId"`
	TestMode     bool    `json:"testMode"`
	Intent       *Intent `json:"-"`
}

type EventData struct {
	Object json.RawMessage `json:"object"`
}

// Event is the webhook envelope {id, type, data.object}.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Data      EventData `json:"data"`
	Simulated bool      `json:"-"`
}

// PaymentIntent декодирует data.object как payment intent. Пустой объект
// дает nil без ошибки: решать, что с этим делать, будет workflow.
func (e *Event) PaymentIntent() (*Intent, error) {
	if len(e.Data.Object) == 0 || string(e.Data.Object) == "null" {
		return nil, nil
	}
	var intent Intent
	if err := json.Unmarshal(e.Data.Object, &intent); err != nil {
		return nil, fmt.Errorf("%w: data.object: %v", ErrMalformedEvent, err)
	}
	return &intent, nil
}

// BuildMetadata сериализует доставку и позиции: провайдер возвращает в
// вебхуке только то, что было сохранено в metadata при создании.
func BuildMetadata(shipping *order.ShippingInfo, items []order.LineItem, testMode bool) (map[string]string, error) {
	metadata := make(map[string]string, 3)

	if shipping != nil {
		raw, err := json.Marshal(shipping)
		if err != nil {
			return nil, fmt.Errorf("payment: failed to encode shipping metadata: %w", err)
		}
		metadata[MetadataShipping] = string(raw)
	}

	if items == nil {
		items = []order.LineItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("payment: failed to encode items metadata: %w", err)
	}
	metadata[MetadataItems] = string(raw)

	if testMode {
		metadata[MetadataTestMode] = "true"
	}

	return metadata, nil
}
