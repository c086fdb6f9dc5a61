package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/admin"
)

type Authenticator interface {
	Authenticate(token string) (*admin.Claims, error)
}

type claimsKey struct{}

// RequireAdmin отклоняет запрос с 401 до вызова обработчика, если сессии нет
// или токен невалиден.
func RequireAdmin(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := admin.TokenFromRequest(r)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			claims, err := auth.Authenticate(token)
			if err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("Rejected admin session")
				respondWithError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

func claimsFromContext(ctx context.Context) *admin.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*admin.Claims)
	return claims
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AdminResponse struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	IsActive    bool       `json:"isActive"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func newAdminResponse(u *admin.AdminUser) AdminResponse {
	return AdminResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		IsActive:    u.IsActive,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

type AuthHandler struct {
	service      admin.Service
	secureCookie bool
	validate     *validator.Validate
}

func NewAuthHandler(service admin.Service, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		service:      service,
		secureCookie: secureCookie,
		validate:     validator.New(),
	}
}

func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Post("/api/auth/login", h.handleLogin)
	router.Post("/api/auth/logout", h.handleLogout)
	router.With(RequireAdmin(h.service)).Get("/api/auth/me", h.handleMe)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var requestPayload LoginRequest
	if err := decodeStrict(r, &requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode login request")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationError(w, err)
		return
	}

	session, err := h.service.Login(r.Context(), requestPayload.Email, requestPayload.Password)
	if err != nil {
		statusCode := mapErrorToStatusCode(err)

		var clientMessage string
		if errors.Is(err, admin.ErrInvalidCredentials) {
			clientMessage = "Invalid email or password"
		} else {
			log.Error().Err(err).Msg("Failed to log in admin via service")
			clientMessage = "An error occurred during login"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	admin.SetSessionCookie(w, session.Token, session.ExpiresAt, h.secureCookie)
	respondWithJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    newAdminResponse(session.User),
	})
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	admin.ClearSessionCookie(w, h.secureCookie)
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	user, err := h.service.Me(r.Context(), claims)
	if err != nil {
		if errors.Is(err, admin.ErrNotFound) || errors.Is(err, admin.ErrUnauthorized) {
			respondWithError(w, http.StatusUnauthorized, "User not found or inactive")
			return
		}
		log.Error().Err(err).Msg("Failed to load current admin via service")
		respondWithError(w, mapErrorToStatusCode(err), "An error occurred")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    newAdminResponse(user),
	})
}
