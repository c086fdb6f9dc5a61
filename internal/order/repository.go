package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Repository is the storage contract every order backend implements.
type Repository interface {
	Insert(ctx context.Context, o *Order) error
	UpdateStatus(ctx context.Context, orderID string, status OrderStatus, at time.Time) (*Order, error)
	Get(ctx context.Context, orderID string) (*Order, error)
	Query(ctx context.Context, f Filter) (*Page, error)
	Metrics(ctx context.Context, f Filter) (*Metrics, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

// Денежные поля и items гоняем через text, чтобы не зависеть от кодеков pgx
// для numeric/jsonb.
const orderColumns = `
	order_id, payment_intent_id, customer_email, customer_name, has_shipping,
	customer_first_name, customer_last_name, customer_phone,
	shipping_address, shipping_city, shipping_state, shipping_zip_code, shipping_country,
	items::text, subtotal::text, shipping_cost::text, total::text, currency,
	status, payment_status, order_status, is_test_mode, created_at, status_updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o                             Order
		hasShipping                   bool
		shipping                      ShippingInfo
		itemsRaw                      string
		subtotal, shippingCost, total string
		paymentStatus, orderStatus    string
	)

	err := row.Scan(
		&o.OrderID,
		&o.PaymentIntentID,
		&o.CustomerEmail,
		&o.CustomerName,
		&hasShipping,
		&shipping.FirstName,
		&shipping.LastName,
		&shipping.Phone,
		&shipping.Address,
		&shipping.City,
		&shipping.State,
		&shipping.ZipCode,
		&shipping.Country,
		&itemsRaw,
		&subtotal,
		&shippingCost,
		&total,
		&o.Currency,
		&o.Status,
		&paymentStatus,
		&orderStatus,
		&o.IsTestMode,
		&o.CreatedAt,
		&o.StatusUpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if hasShipping {
		shipping.Email = o.CustomerEmail
		o.Shipping = &shipping
	}
	o.PaymentStatus = PaymentStatus(paymentStatus)
	o.OrderStatus = OrderStatus(orderStatus)

	o.Items = []LineItem{}
	if err := json.Unmarshal([]byte(itemsRaw), &o.Items); err != nil {
		return nil, fmt.Errorf("repository: failed to decode items for order %s: %w", o.OrderID, err)
	}

	if o.Subtotal, err = parseAmount(o.OrderID, subtotal); err != nil {
		return nil, err
	}
	if o.ShippingCost, err = parseAmount(o.OrderID, shippingCost); err != nil {
		return nil, err
	}
	if o.Total, err = parseAmount(o.OrderID, total); err != nil {
		return nil, err
	}

	return &o, nil
}

func parseAmount(orderID, raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("repository: failed to decode amount %q for order %s: %w", raw, orderID, err)
	}
	return value, nil
}

func (r *postgresRepository) Insert(ctx context.Context, o *Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	items := o.Items
	if items == nil {
		items = []LineItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("repository: failed to encode items for order %s: %w", o.OrderID, err)
	}

	var shipping ShippingInfo
	if o.Shipping != nil {
		shipping = *o.Shipping
	}
	if shipping.Country == "" {
		shipping.Country = "US"
	}

	query := `
		INSERT INTO orders (
			order_id, payment_intent_id, customer_email, customer_name, has_shipping,
			customer_first_name, customer_last_name, customer_phone,
			shipping_address, shipping_city, shipping_state, shipping_zip_code, shipping_country,
			items, subtotal, shipping_cost, total, currency,
			status, payment_status, order_status, is_test_mode, created_at
		)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14::text::jsonb, $15::text::numeric, $16::text::numeric, $17::text::numeric, $18,
			$19, $20, $21, $22, $23
		)
	`
	_, err = r.db.Exec(ctx, query,
		o.OrderID,
		o.PaymentIntentID,
		o.CustomerEmail,
		o.CustomerName,
		o.Shipping != nil,
		shipping.FirstName,
		shipping.LastName,
		shipping.Phone,
		shipping.Address,
		shipping.City,
		shipping.State,
		shipping.ZipCode,
		shipping.Country,
		string(itemsJSON),
		o.Subtotal.StringFixed(2),
		o.ShippingCost.StringFixed(2),
		o.Total.StringFixed(2),
		o.Currency,
		o.Status,
		string(o.PaymentStatus),
		string(o.OrderStatus),
		o.IsTestMode,
		o.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			log.Warn().Str("order_id", o.OrderID).Msg("repository: order already exists")
			return ErrDuplicateOrder
		}
		return fmt.Errorf("repository: failed to insert order %s: %w", o.OrderID, err)
	}

	return nil
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, orderID string, status OrderStatus, at time.Time) (*Order, error) {
	query := `
		UPDATE orders
		SET order_status = $1, status_updated_at = $2
		WHERE order_id = $3
		RETURNING ` + orderColumns

	updated, err := scanOrder(r.db.QueryRow(ctx, query, string(status), at, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Warn().Str("order_id", orderID).Stringer("new_status", status).Msg("repository: order not found for status update")
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to update order status %s: %w", orderID, err)
	}

	return updated, nil
}

func (r *postgresRepository) Get(ctx context.Context, orderID string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`

	o, err := scanOrder(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", orderID, err)
	}

	return o, nil
}

func (r *postgresRepository) Query(ctx context.Context, f Filter) (*Page, error) {
	f = f.WithDefaults()
	where, args := whereClause(f)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("repository: failed to count orders: %w", err)
	}

	listQuery := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, order_id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)+1, len(args)+2)

	rows, err := r.db.Query(ctx, listQuery, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}

	return newPage(orders, total, f), nil
}

func (r *postgresRepository) Metrics(ctx context.Context, f Filter) (*Metrics, error) {
	where, args := whereClause(f)
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(total), 0)::text,
			COUNT(*) FILTER (WHERE order_status = 'ordered'),
			COUNT(*) FILTER (WHERE order_status = 'couriered'),
			COUNT(*) FILTER (WHERE order_status = 'delivered')
		FROM orders` + where

	var (
		metrics Metrics
		revenue string
	)
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&metrics.TotalOrders,
		&revenue,
		&metrics.StatusCounts.Ordered,
		&metrics.StatusCounts.Couriered,
		&metrics.StatusCounts.Delivered,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to aggregate order metrics: %w", err)
	}

	metrics.TotalRevenue, err = decimal.NewFromString(revenue)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to decode revenue %q: %w", revenue, err)
	}
	metrics.finalize()

	return &metrics, nil
}

func whereClause(f Filter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	if f.OrderID != "" {
		args = append(args, f.OrderID)
		conditions = append(conditions, fmt.Sprintf("order_id = $%d", len(args)))
	}
	if f.TestMode != nil {
		args = append(args, *f.TestMode)
		conditions = append(conditions, fmt.Sprintf("is_test_mode = $%d", len(args)))
	}
	if f.OrderStatus != "" {
		args = append(args, string(f.OrderStatus))
		conditions = append(conditions, fmt.Sprintf("order_status = $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
