package transport_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/ecommerce-storefront/internal/transport"
)

type pingRoutes struct{}

func (pingRoutes) RegisterRoutes(router chi.Router) {
	router.Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

type panicRoutes struct{}

func (panicRoutes) RegisterRoutes(router chi.Router) {
	router.Get("/api/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
}

func TestNewRouter_Health(t *testing.T) {
	router := transport.NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestNewRouter_RegistersHandlersAndMetrics(t *testing.T) {
	router := transport.NewRouter(pingRoutes{}, panicRoutes{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	require.Equal(t, http.StatusTeapot, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code, "panics must be recovered")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "storefront_http_requests_total")
	assert.Contains(t, rr.Body.String(), `path="/api/ping"`)
}
