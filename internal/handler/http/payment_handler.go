package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/checkout"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/payment"
)

const maxWebhookBody = 1 << 20

type IntentCreator interface {
	CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.CreatedIntent, error)
}

type WebhookReceiver interface {
	Receive(payload []byte, signature string, simulated bool) (*payment.Event, error)
}

type EventHandler interface {
	HandleEvent(ctx context.Context, ev *payment.Event) checkout.Dispatch
}

// CreatePaymentIntentRequest: amount в центах, дробные значения округляются.
type CreatePaymentIntentRequest struct {
	Amount   float64             `json:"amount"`
	Currency string              `json:"currency" validate:"omitempty,len=3"`
	Shipping *order.ShippingInfo `json:"shipping"`
	Items    []order.LineItem    `json:"items"`
}

type PaymentHandler struct {
	gateway  IntentCreator
	receiver WebhookReceiver
	events   EventHandler
	validate *validator.Validate
}

func NewPaymentHandler(gateway IntentCreator, receiver WebhookReceiver, events EventHandler) *PaymentHandler {
	return &PaymentHandler{
		gateway:  gateway,
		receiver: receiver,
		events:   events,
		validate: validator.New(),
	}
}

func (h *PaymentHandler) RegisterRoutes(router chi.Router) {
	router.Post("/api/create-payment-intent", h.handleCreatePaymentIntent)
	router.Post("/api/webhook", h.handleWebhook)
}

func (h *PaymentHandler) handleCreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var requestPayload CreatePaymentIntentRequest

	// витрина присылает корзину целиком, лишние поля не считаем ошибкой
	if err := json.NewDecoder(r.Body).Decode(&requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode payment intent request")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationError(w, err)
		return
	}

	created, err := h.gateway.CreateIntent(r.Context(), payment.IntentRequest{
		AmountMinor: int64(math.Round(requestPayload.Amount)),
		Currency:    requestPayload.Currency,
		Shipping:    requestPayload.Shipping,
		Items:       requestPayload.Items,
	})
	if err != nil {
		statusCode := mapErrorToStatusCode(err)

		var clientMessage string
		switch {
		case errors.Is(err, payment.ErrInvalidAmount):
			clientMessage = "Invalid amount"
		case errors.Is(err, payment.ErrGatewayNotConfigured):
			clientMessage = "Stripe is not configured. Please set STRIPE_SECRET_KEY in your environment variables."
		default:
			clientMessage = "Failed to create payment intent"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	respondWithJSON(w, http.StatusOK, created)
}

func (h *PaymentHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read webhook body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	simulated := r.Header.Get("X-Test-Mode") == "true"
	ev, err := h.receiver.Receive(payload, r.Header.Get("Stripe-Signature"), simulated)
	if err != nil {
		statusCode := mapErrorToStatusCode(err)

		var clientMessage string
		switch {
		case errors.Is(err, payment.ErrMissingSignature):
			clientMessage = "No signature"
		case errors.Is(err, payment.ErrGatewayNotConfigured):
			clientMessage = "Stripe is not configured. Please set STRIPE_WEBHOOK_SECRET or enable test mode."
		case statusCode == http.StatusBadRequest:
			clientMessage = "Webhook Error: " + err.Error()
		default:
			clientMessage = "Failed to process webhook"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	// обрыв соединения провайдером не должен прерывать запись заказа
	h.events.HandleEvent(context.WithoutCancel(r.Context()), ev)

	// провайдер считает любой не-2xx поводом для повтора, поэтому
	// результат обработки заказа в ответ не попадает
	respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}
