package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vasiliy-maslov/ecommerce-storefront/internal/config"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
)

const adminPanelSource = "stripe-webhook"

// HTTPSink отправляет заказ POST-запросом во внешний сервис: в API базы
// данных (тело = заказ) или в админ-панель (тело = конверт с заказом).
type HTTPSink struct {
	name     string
	url      string
	apiKey   string
	envelope bool
	client   *http.Client
	now      func() time.Time
}

func NewDatabaseAPISink(cfg config.EndpointConfig, timeout time.Duration) *HTTPSink {
	return &HTTPSink{
		name:   "database_api",
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func NewAdminPanelSink(cfg config.EndpointConfig, timeout time.Duration) *HTTPSink {
	return &HTTPSink{
		name:     "admin_panel",
		url:      cfg.URL,
		apiKey:   cfg.APIKey,
		envelope: true,
		client:   &http.Client{Timeout: timeout},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *HTTPSink) Name() string {
	return s.name
}

type adminPanelEnvelope struct {
	Order     *order.Order `json:"order"`
	Timestamp string       `json:"timestamp"`
	Source    string       `json:"source"`
}

func (s *HTTPSink) Put(ctx context.Context, o *order.Order) (string, error) {
	var payload any = o
	if s.envelope {
		payload = adminPanelEnvelope{Order: o, Timestamp: s.now().Format(isoMillis), Source: adminPanelSource}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("storage: failed to encode order %s: %w", o.OrderID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("storage: failed to build request to %s: %w", s.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage: request to %s failed: %w", s.name, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("storage: %s responded %d: %s", s.name, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var ack struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(respBody, &ack) == nil && ack.ID != "" {
		return ack.ID, nil
	}
	return fmt.Sprintf("%s:%d", s.name, resp.StatusCode), nil
}
