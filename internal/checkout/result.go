package checkout

import (
	"errors"
	"time"

	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
)

var ErrMalformedPaymentPayload = errors.New("malformed payment payload")

const (
	EffectInvoice           = "invoice"
	EffectAdminNotification = "admin_notification"
	EffectPersistence       = "persistence"
	EffectEvents            = "events"
)

// EffectOutcome is what happened to one downstream side effect of an order.
type EffectOutcome struct {
	Name      string
	OK        bool
	Skipped   bool
	Duplicate bool
	Ref       string
	Error     error
	Duration  time.Duration
}

type Report []EffectOutcome

func (r Report) Outcome(name string) (EffectOutcome, bool) {
	for _, o := range r {
		if o.Name == name {
			return o, true
		}
	}
	return EffectOutcome{}, false
}

// Failed returns effects that were attempted and did not succeed.
func (r Report) Failed() []EffectOutcome {
	var failed []EffectOutcome
	for _, o := range r {
		if !o.OK && !o.Skipped {
			failed = append(failed, o)
		}
	}
	return failed
}

type Result struct {
	Success  bool
	OrderID  string
	Order    *order.Order
	Effects  Report
	Warnings []string
	Error    error
}

func failure(err error) Result {
	return Result{Success: false, Error: err}
}
