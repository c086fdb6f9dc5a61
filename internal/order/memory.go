package order

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryRepository живет только пока живет процесс. Это деградированная копия,
// долговечной ее считать нельзя.
type memoryRepository struct {
	mu     sync.RWMutex
	orders map[string]*Order
}

func NewMemoryRepository() Repository {
	return &memoryRepository{orders: make(map[string]*Order)}
}

func (r *memoryRepository) Insert(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[o.OrderID]; exists {
		return ErrDuplicateOrder
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	r.orders[o.OrderID] = o.Clone()
	return nil
}

func (r *memoryRepository) UpdateStatus(_ context.Context, orderID string, status OrderStatus, at time.Time) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	stored.OrderStatus = status
	updatedAt := at
	stored.StatusUpdatedAt = &updatedAt
	return stored.Clone(), nil
}

func (r *memoryRepository) Get(_ context.Context, orderID string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return stored.Clone(), nil
}

func (r *memoryRepository) Query(_ context.Context, f Filter) (*Page, error) {
	f = f.WithDefaults()
	matched := r.matching(f)

	total := len(matched)
	start := min(f.Offset, total)
	end := min(start+f.Limit, total)

	orders := make([]Order, 0, end-start)
	for _, o := range matched[start:end] {
		orders = append(orders, *o)
	}
	return newPage(orders, total, f), nil
}

func (r *memoryRepository) Metrics(_ context.Context, f Filter) (*Metrics, error) {
	metrics := &Metrics{}
	for _, o := range r.matching(f) {
		metrics.TotalOrders++
		metrics.TotalRevenue = metrics.TotalRevenue.Add(o.Total)
		metrics.StatusCounts.Add(o.OrderStatus)
	}
	metrics.finalize()
	return metrics, nil
}

// matching возвращает копии заказов под фильтр, от новых к старым.
func (r *memoryRepository) matching(f Filter) []*Order {
	r.mu.RLock()
	matched := make([]*Order, 0, len(r.orders))
	for _, o := range r.orders {
		if f.Matches(o) {
			matched = append(matched, o.Clone())
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].OrderID > matched[j].OrderID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched
}
