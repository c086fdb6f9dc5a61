package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/metrics"
)

// Sink is a write-only archival destination (object storage, external HTTP API).
// Put returns a reference to the written copy, e.g. an object URL.
type Sink interface {
	Name() string
	Put(ctx context.Context, o *Order) (string, error)
}

// store пробует основной (реляционный) бэкенд и прозрачно переключается на
// резервный при отказе. Вызывающий код не видит, кто обслужил запрос.
type store struct {
	primary  Repository
	fallback Repository
	sinks    []Sink
}

// NewStore собирает фасад хранения. primary может быть nil, тогда все операции
// идут в fallback.
func NewStore(primary, fallback Repository, sinks ...Sink) Repository {
	return &store{primary: primary, fallback: fallback, sinks: sinks}
}

func (s *store) Insert(ctx context.Context, o *Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	if err := s.insert(ctx, o); err != nil {
		return err
	}

	return s.archive(ctx, o)
}

func (s *store) insert(ctx context.Context, o *Order) error {
	if s.primary != nil {
		// заказ мог осесть в памяти во время отказа базы; повторная доставка
		// вебхука после восстановления не должна создать вторую запись
		if _, err := s.fallback.Get(ctx, o.OrderID); err == nil {
			return ErrDuplicateOrder
		}

		err := s.primary.Insert(ctx, o)
		if err == nil || isDomainError(err) {
			return err
		}
		s.logFallback("insert", err).Str("order_id", o.OrderID).Msg("store: primary backend failed, storing order in memory")
	}
	return s.fallback.Insert(ctx, o)
}

// archive пишет копию во все sinks. Резервного объектного хранилища нет,
// поэтому ошибки возвращаются как есть.
func (s *store) archive(ctx context.Context, o *Order) error {
	var errs []error
	for _, sink := range s.sinks {
		ref, err := sink.Put(ctx, o)
		if err != nil {
			log.Error().Err(err).Str("sink", sink.Name()).Str("order_id", o.OrderID).Msg("store: failed to archive order")
			errs = append(errs, fmt.Errorf("store: %s sink: %w", sink.Name(), err))
			continue
		}
		log.Info().Str("sink", sink.Name()).Str("order_id", o.OrderID).Str("ref", ref).Msg("store: order archived")
	}
	return errors.Join(errs...)
}

func (s *store) UpdateStatus(ctx context.Context, orderID string, status OrderStatus, at time.Time) (*Order, error) {
	if s.primary != nil {
		updated, err := s.primary.UpdateStatus(ctx, orderID, status, at)
		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, ErrOrderNotFound):
			// заказ мог попасть только в память, пока база была недоступна
		case isDomainError(err):
			return nil, err
		default:
			s.logFallback("update_status", err).Str("order_id", orderID).Msg("store: primary backend failed, updating in memory")
		}
	}
	return s.fallback.UpdateStatus(ctx, orderID, status, at)
}

func (s *store) Get(ctx context.Context, orderID string) (*Order, error) {
	if s.primary != nil {
		o, err := s.primary.Get(ctx, orderID)
		switch {
		case err == nil:
			return o, nil
		case errors.Is(err, ErrOrderNotFound):
		default:
			s.logFallback("get", err).Str("order_id", orderID).Msg("store: primary backend failed, reading from memory")
		}
	}
	return s.fallback.Get(ctx, orderID)
}

func (s *store) Query(ctx context.Context, f Filter) (*Page, error) {
	if s.primary != nil {
		page, err := s.primary.Query(ctx, f)
		if err == nil {
			return page, nil
		}
		s.logFallback("query", err).Msg("store: primary backend failed, querying memory")
	}
	return s.fallback.Query(ctx, f)
}

func (s *store) Metrics(ctx context.Context, f Filter) (*Metrics, error) {
	if s.primary != nil {
		m, err := s.primary.Metrics(ctx, f)
		if err == nil {
			return m, nil
		}
		s.logFallback("metrics", err).Msg("store: primary backend failed, aggregating from memory")
	}
	return s.fallback.Metrics(ctx, f)
}

func (s *store) logFallback(operation string, err error) *zerolog.Event {
	metrics.RecordStorageFallback(operation)
	return log.Warn().Err(err).Str("operation", operation)
}
