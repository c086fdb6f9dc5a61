package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
)

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ordered couriered delivered"`
}

type listOrdersResponse struct {
	Success bool `json:"success"`
	*order.OrderPage
}

type OrderHandler struct {
	service        order.Service
	auth           Authenticator
	internalAPIKey string
	validate       *validator.Validate
}

func NewOrderHandler(service order.Service, auth Authenticator, internalAPIKey string) *OrderHandler {
	return &OrderHandler{
		service:        service,
		auth:           auth,
		internalAPIKey: internalAPIKey,
		validate:       validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Route("/api/admin/orders", func(r chi.Router) {
		r.With(h.requireInternalKey).Post("/", h.handleIngestOrder)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin(h.auth))
			r.Get("/", h.handleListOrders)
			r.Get("/{orderId}", h.handleGetOrder)
			r.Patch("/{orderId}/status", h.handleUpdateStatus)
		})
	})
}

// requireInternalKey проверяет X-Internal-API-Key, только если ключ задан.
func (h *OrderHandler) requireInternalKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.internalAPIKey != "" {
			got := r.Header.Get("X-Internal-API-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(h.internalAPIKey)) != 1 {
				respondWithError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func parseFilter(r *http.Request) (order.Filter, bool, error) {
	q := r.URL.Query()
	f := order.Filter{OrderID: q.Get("orderId")}

	switch q.Get("testMode") {
	case "true":
		testMode := true
		f.TestMode = &testMode
	case "false":
		testMode := false
		f.TestMode = &testMode
	}

	if raw := q.Get("orderStatus"); raw != "" {
		status, err := order.ParseStatus(raw)
		if err != nil {
			return f, false, err
		}
		f.OrderStatus = status
	}

	var err error
	if raw := q.Get("limit"); raw != "" {
		if f.Limit, err = strconv.Atoi(raw); err != nil || f.Limit < 0 {
			return f, false, errors.New("invalid limit")
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if f.Offset, err = strconv.Atoi(raw); err != nil || f.Offset < 0 {
			return f, false, errors.New("invalid offset")
		}
	}

	return f, q.Get("includeMetrics") == "true", nil
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	f, includeMetrics, err := parseFilter(r)
	if err != nil {
		log.Warn().Err(err).Str("query", r.URL.RawQuery).Msg("Failed to parse order filter")
		if errors.Is(err, order.ErrInvalidStatus) {
			respondWithError(w, http.StatusBadRequest, "Invalid orderStatus. Must be one of: "+order.AllowedStatusList())
			return
		}
		respondWithError(w, http.StatusBadRequest, "Invalid query parameter: "+err.Error())
		return
	}

	page, err := h.service.ListOrders(r.Context(), f, includeMetrics)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list orders via service")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, listOrdersResponse{Success: true, OrderPage: page})
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	o, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		statusCode := mapErrorToStatusCode(err)

		var clientMessage string
		if errors.Is(err, order.ErrOrderNotFound) {
			clientMessage = "Order not found"
		} else {
			log.Error().Err(err).Str("order_id", orderID).Msg("Failed to get order via service")
			clientMessage = "Failed to get order"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"success": true, "order": o})
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var requestPayload UpdateStatusRequest
	if err := decodeStrict(r, &requestPayload); err != nil {
		log.Warn().Err(err).Str("order_id", orderID).Msg("Failed to decode status update")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithError(w, http.StatusBadRequest, "Invalid status. Must be one of: "+order.AllowedStatusList())
			return
		}
		respondWithValidationError(w, err)
		return
	}

	updated, err := h.service.UpdateStatus(r.Context(), orderID, requestPayload.Status)
	if err != nil {
		statusCode := mapErrorToStatusCode(err)

		var clientMessage string
		switch {
		case errors.Is(err, order.ErrOrderNotFound):
			clientMessage = "Order not found"
		case errors.Is(err, order.ErrInvalidStatus):
			clientMessage = "Invalid status. Must be one of: " + order.AllowedStatusList()
		default:
			clientMessage = "Failed to update order status: " + err.Error()
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"orderId":     updated.OrderID,
		"orderStatus": updated.OrderStatus,
		"message":     "Order status updated to " + updated.OrderStatus.String(),
		"order":       updated,
	})
}

func (h *OrderHandler) handleIngestOrder(w http.ResponseWriter, r *http.Request) {
	// старые записи приходят в разных формах, поэтому без DisallowUnknownFields
	var record order.Record
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		log.Warn().Err(err).Msg("Failed to decode order record")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	stored, err := h.service.IngestOrder(r.Context(), record)
	if err != nil {
		statusCode := mapErrorToStatusCode(err)

		var clientMessage string
		switch {
		case errors.Is(err, order.ErrMissingField):
			clientMessage = "Missing required fields: orderId and customerEmail"
		case errors.Is(err, order.ErrDuplicateOrder):
			clientMessage = "Order with this ID already exists"
		case statusCode == http.StatusBadRequest:
			clientMessage = err.Error()
		default:
			log.Error().Err(err).Str("order_id", record.OrderID).Msg("Failed to ingest order via service")
			clientMessage = "Failed to store order"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"orderId":  stored.OrderID,
		"message":  "Order stored successfully",
		"storedAt": time.Now().UTC().Format(time.RFC3339),
	})
}
