package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/admin"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/checkout"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/payment"
)

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

// respondWithError отправляет JSON ошибку
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondWithValidationError(w http.ResponseWriter, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:   "Validation failed",
			Details: formatValidationErrors(validationErrors),
		})
		return
	}
	log.Error().Err(err).Type("validation_error_type", err).Msg("Unexpected error type during validation")
	respondWithError(w, http.StatusInternalServerError, "Internal validation error")
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		field := fe.Field()
		if field != "" {
			field = strings.ToLower(field[:1]) + field[1:]
		}
		switch fe.Tag() {
		case "required":
			details[field] = "is required"
		case "email":
			details[field] = "must be a valid email"
		case "oneof":
			details[field] = fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
		case "min":
			details[field] = fmt.Sprintf("must be at least %s characters", fe.Param())
		case "len":
			details[field] = fmt.Sprintf("must be exactly %s characters", fe.Param())
		default:
			details[field] = fmt.Sprintf("failed on '%s' validation", fe.Tag())
		}
	}
	return details
}

func decodeStrict(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, payment.ErrInvalidAmount),
		errors.Is(err, payment.ErrSignatureInvalid),
		errors.Is(err, payment.ErrMalformedEvent),
		errors.Is(err, checkout.ErrMalformedPaymentPayload),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrMissingField),
		errors.Is(err, order.ErrInvalidPrice),
		errors.Is(err, order.ErrInvalidItem),
		errors.Is(err, admin.ErrWeakPassword):
		return http.StatusBadRequest
	case errors.Is(err, admin.ErrInvalidCredentials),
		errors.Is(err, admin.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, admin.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrDuplicateOrder),
		errors.Is(err, admin.ErrEmailExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
