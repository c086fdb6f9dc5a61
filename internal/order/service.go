package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/metrics"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusUpdated = "order.status_updated"
)

// EventPublisher получает уведомления об изменениях заказов. Реализация
// может отсутствовать.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, eventType string, o *Order) error
}

type OrderPage struct {
	*Page
	Metrics *Metrics `json:"metrics,omitempty"`
}

type Service interface {
	ListOrders(ctx context.Context, f Filter, includeMetrics bool) (*OrderPage, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	UpdateStatus(ctx context.Context, orderID string, status string) (*Order, error)
	IngestOrder(ctx context.Context, r Record) (*Order, error)
}

type service struct {
	repo            Repository
	publisher       EventPublisher
	defaultShipping decimal.Decimal
	now             func() time.Time
}

func NewService(repo Repository, publisher EventPublisher, defaultShipping decimal.Decimal) Service {
	return &service{
		repo:            repo,
		publisher:       publisher,
		defaultShipping: defaultShipping,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) ListOrders(ctx context.Context, f Filter, includeMetrics bool) (*OrderPage, error) {
	f = f.WithDefaults()

	page, err := s.repo.Query(ctx, f)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to query orders")
		return nil, fmt.Errorf("service: failed to query orders: %w", err)
	}

	result := &OrderPage{Page: page}
	if !includeMetrics {
		return result, nil
	}

	// метрики считаются по всему магазину, фильтры списка на них не влияют,
	// кроме testMode; тестовую выручку показываем только по явному запросу
	metricsFilter := Filter{TestMode: f.TestMode}
	if metricsFilter.TestMode == nil {
		live := false
		metricsFilter.TestMode = &live
	}

	m, err := s.repo.Metrics(ctx, metricsFilter)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to aggregate order metrics")
		return nil, fmt.Errorf("service: failed to aggregate order metrics: %w", err)
	}
	result.Metrics = m

	return result, nil
}

func (s *service) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Str("order_id", orderID).Msg("service: order not found by id")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Str("order_id", orderID).Msg("service: failed to fetch order by id")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}
	return o, nil
}

// UpdateStatus не проверяет направление перехода: админ может вернуть
// delivered обратно в ordered.
func (s *service) UpdateStatus(ctx context.Context, orderID string, rawStatus string) (*Order, error) {
	newStatus, err := ParseStatus(rawStatus)
	if err != nil {
		log.Warn().Str("order_id", orderID).Str("new_status", rawStatus).Msg("service: rejected invalid status")
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, orderID, newStatus, s.now())
	if err != nil {
		metrics.RecordOrderOperation("update_status", false)
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Str("order_id", orderID).Stringer("new_status", newStatus).Msg("service: order not found, cannot update status")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Str("order_id", orderID).Stringer("new_status", newStatus).Msg("service: failed to update order status")
		return nil, fmt.Errorf("service: failed to update order status: %w", err)
	}
	metrics.RecordOrderOperation("update_status", true)

	log.Info().Str("order_id", orderID).Stringer("new_status", newStatus).Msg("service: order status updated successfully")
	s.publish(ctx, EventOrderStatusUpdated, updated)

	return updated, nil
}

func (s *service) IngestOrder(ctx context.Context, r Record) (*Order, error) {
	o, err := r.Normalize(s.defaultShipping)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, o); err != nil {
		metrics.RecordOrderOperation("ingest", false)
		if errors.Is(err, ErrDuplicateOrder) {
			return nil, ErrDuplicateOrder
		}
		log.Error().Err(err).Str("order_id", o.OrderID).Msg("service: failed to store ingested order")
		return nil, fmt.Errorf("service: failed to store order: %w", err)
	}
	metrics.RecordOrderOperation("ingest", true)

	log.Info().Str("order_id", o.OrderID).Msg("service: order ingested")
	s.publish(ctx, EventOrderCreated, o)

	return o, nil
}

func (s *service) publish(ctx context.Context, eventType string, o *Order) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOrderEvent(ctx, eventType, o); err != nil {
		log.Warn().Err(err).Str("event", eventType).Str("order_id", o.OrderID).Msg("service: failed to publish order event")
	}
}
