package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/metrics"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/notify"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/payment"
)

// Notifier sends the customer invoice and the admin new-order email.
type Notifier interface {
	SendInvoice(ctx context.Context, o *order.Order) (string, error)
	NotifyAdmin(ctx context.Context, o *order.Order) (string, error)
}

type Options struct {
	ShippingCost  decimal.Decimal
	TestMode      bool
	EffectTimeout time.Duration
}

type Workflow struct {
	notifier  Notifier
	orders    order.Repository
	publisher order.EventPublisher
	opts      Options
	now       func() time.Time
}

// NewWorkflow: notifier и publisher могут быть nil, тогда соответствующие
// эффекты помечаются как пропущенные.
func NewWorkflow(notifier Notifier, orders order.Repository, publisher order.EventPublisher, opts Options) *Workflow {
	return &Workflow{
		notifier:  notifier,
		orders:    orders,
		publisher: publisher,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ProcessSucceededPayment turns a captured payment intent into an order and
// fires its side effects. Only a malformed intent yields Success == false:
// the money is already captured, so effect failures end up in the report.
func (w *Workflow) ProcessSucceededPayment(ctx context.Context, intent *payment.Intent) Result {
	o, warnings, err := w.BuildOrder(intent)
	if err != nil {
		log.Error().Err(err).Msg("checkout: cannot process succeeded payment")
		return failure(err)
	}

	for _, warning := range warnings {
		log.Warn().Str("order_id", o.OrderID).Msg("checkout: " + warning)
	}

	report := w.runEffects(ctx, o)

	log.Info().
		Str("order_id", o.OrderID).
		Str("total", o.Total.StringFixed(2)).
		Bool("test_mode", o.IsTestMode).
		Int("failed_effects", len(report.Failed())).
		Msg("checkout: order processed")

	return Result{
		Success:  true,
		OrderID:  o.OrderID,
		Order:    o,
		Effects:  report,
		Warnings: warnings,
	}
}

// ProcessFailedPayment only acknowledges the failure; no order is recorded.
func (w *Workflow) ProcessFailedPayment(_ context.Context, intent *payment.Intent) Result {
	if intent == nil {
		return failure(fmt.Errorf("%w: payment intent is missing", ErrMalformedPaymentPayload))
	}
	if intent.ID == "" {
		return failure(fmt.Errorf("%w: payment intent id is missing", ErrMalformedPaymentPayload))
	}

	event := log.Warn().Str("payment_intent_id", intent.ID).Int64("amount", intent.Amount)
	if intent.LastPaymentError != nil {
		event = event.Str("reason", intent.LastPaymentError.Message).Str("code", intent.LastPaymentError.Code)
	}
	event.Msg("checkout: payment failed")

	return Result{Success: true, OrderID: intent.ID}
}

// BuildOrder maps an intent onto an order record. Problems with optional
// metadata are returned as warnings, not errors.
func (w *Workflow) BuildOrder(intent *payment.Intent) (*order.Order, []string, error) {
	if intent == nil {
		return nil, nil, fmt.Errorf("%w: payment intent is missing", ErrMalformedPaymentPayload)
	}
	if intent.ID == "" {
		return nil, nil, fmt.Errorf("%w: payment intent id is missing", ErrMalformedPaymentPayload)
	}
	if intent.Amount <= 0 {
		return nil, nil, fmt.Errorf("%w: amount %d for %s", ErrMalformedPaymentPayload, intent.Amount, intent.ID)
	}

	var warnings []string

	shipping, err := parseShipping(intent.Metadata[payment.MetadataShipping])
	if err != nil {
		warnings = append(warnings, err.Error())
	}

	items, err := parseItems(intent.Metadata[payment.MetadataItems])
	if err != nil {
		warnings = append(warnings, err.Error())
	}

	total := order.FromMinorUnits(intent.Amount)
	shippingCost := w.opts.ShippingCost

	subtotal, err := order.Subtotal(items)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("cannot compute subtotal: %v", err))
		subtotal = total.Sub(shippingCost)
	}

	currency := strings.ToLower(intent.Currency)
	if currency == "" {
		currency = "usd"
	}

	email := intent.ReceiptEmail
	if email == "" && shipping != nil {
		email = shipping.Email
	}
	if email == "" {
		warnings = append(warnings, "order has no customer email")
	}

	name := shipping.FullName()
	if name == "" {
		name = "Customer"
	}

	createdAt := w.now()
	if intent.Created > 0 {
		createdAt = time.Unix(intent.Created, 0).UTC()
	}

	o := &order.Order{
		OrderID:         intent.ID,
		PaymentIntentID: intent.ID,
		CustomerEmail:   email,
		CustomerName:    name,
		Shipping:        shipping,
		Items:           items,
		Subtotal:        subtotal,
		ShippingCost:    shippingCost,
		Total:           total,
		Currency:        currency,
		Status:          order.StatusCompleted,
		PaymentStatus:   order.PaymentSucceeded,
		OrderStatus:     order.StatusOrdered,
		IsTestMode:      intent.Metadata[payment.MetadataTestMode] == "true" || w.opts.TestMode,
		CreatedAt:       createdAt,
	}

	// сумма провайдера главнее: расхождение только фиксируем
	if err := o.CheckTotals(); err != nil {
		warnings = append(warnings, err.Error())
	}

	return o, warnings, nil
}

func parseShipping(raw string) (*order.ShippingInfo, error) {
	if raw == "" {
		return nil, nil
	}
	var shipping order.ShippingInfo
	if err := json.Unmarshal([]byte(raw), &shipping); err != nil {
		return nil, fmt.Errorf("cannot parse shipping metadata: %v", err)
	}
	if shipping.Country == "" {
		shipping.Country = "US"
	}
	return &shipping, nil
}

func parseItems(raw string) ([]order.LineItem, error) {
	items := []order.LineItem{}
	if raw == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return []order.LineItem{}, fmt.Errorf("cannot parse items metadata: %v", err)
	}
	if items == nil {
		items = []order.LineItem{}
	}
	return items, nil
}

type effect struct {
	name string
	run  func(ctx context.Context) (string, error)
}

func (w *Workflow) effects(o *order.Order) []effect {
	var invoice, admin func(ctx context.Context) (string, error)
	if w.notifier != nil {
		invoice = func(ctx context.Context) (string, error) { return w.notifier.SendInvoice(ctx, o) }
		admin = func(ctx context.Context) (string, error) { return w.notifier.NotifyAdmin(ctx, o) }
	}

	list := []effect{
		{name: EffectInvoice, run: invoice},
		{name: EffectAdminNotification, run: admin},
		{name: EffectPersistence, run: func(ctx context.Context) (string, error) {
			// Insert может дописать CreatedAt, поэтому пишем копию
			return o.OrderID, w.orders.Insert(ctx, o.Clone())
		}},
	}
	if w.publisher != nil {
		list = append(list, effect{name: EffectEvents, run: func(ctx context.Context) (string, error) {
			return order.EventOrderCreated, w.publisher.PublishOrderEvent(ctx, order.EventOrderCreated, o)
		}})
	}
	return list
}

func (w *Workflow) runEffects(ctx context.Context, o *order.Order) Report {
	effects := w.effects(o)
	report := make(Report, len(effects))

	var wg sync.WaitGroup
	for i, e := range effects {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report[i] = w.runEffect(ctx, o, e)
		}()
	}
	wg.Wait()

	return report
}

func (w *Workflow) runEffect(ctx context.Context, o *order.Order, e effect) (outcome EffectOutcome) {
	outcome.Name = e.name
	if e.run == nil {
		outcome.Skipped = true
		log.Warn().Str("order_id", o.OrderID).Str("effect", e.name).Msg("checkout: effect not configured, skipped")
		return outcome
	}

	if w.opts.EffectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.EffectTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			outcome.OK = false
			outcome.Error = fmt.Errorf("checkout: %s effect panicked: %v", e.name, r)
		}
		outcome.Duration = time.Since(start)
		w.logOutcome(o, outcome)
	}()

	ref, err := e.run(ctx)
	switch {
	case err == nil:
		outcome.OK = true
		outcome.Ref = ref
	case e.name == EffectPersistence && errors.Is(err, order.ErrDuplicateOrder):
		// повторная доставка вебхука: заказ уже записан
		outcome.OK = true
		outcome.Duplicate = true
		outcome.Ref = ref
	case notify.IsNotConfigured(err):
		outcome.Skipped = true
		outcome.Error = err
	default:
		outcome.Error = err
	}
	return outcome
}

func (w *Workflow) logOutcome(o *order.Order, outcome EffectOutcome) {
	if !outcome.Skipped {
		metrics.RecordSideEffect(outcome.Name, outcome.OK)
	}

	switch {
	case outcome.Duplicate:
		log.Info().Str("order_id", o.OrderID).Str("effect", outcome.Name).Msg("checkout: order already recorded, duplicate delivery")
	case outcome.OK:
		log.Info().Str("order_id", o.OrderID).Str("effect", outcome.Name).Str("ref", outcome.Ref).Dur("duration", outcome.Duration).Msg("checkout: effect completed")
	case outcome.Skipped:
		log.Warn().Err(outcome.Error).Str("order_id", o.OrderID).Str("effect", outcome.Name).Msg("checkout: effect skipped")
	default:
		log.Error().Err(outcome.Error).Str("order_id", o.OrderID).Str("customer_email", o.CustomerEmail).Str("effect", outcome.Name).Dur("duration", outcome.Duration).Msg("checkout: effect failed")
	}
}
