package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is an order in any of the historical shapes the storefront has
// produced: webhook records carry `shipping`, database rows carry
// `shippingInfo` or flat customer*/shipping* columns.
type Record struct {
	OrderID         string `json:"orderId"`
	PaymentIntentID string `json:"paymentIntentId"`
	CustomerEmail   string `json:"customerEmail"`
	CustomerName    string `json:"customerName"`

	CustomerFirstName string `json:"customerFirstName"`
	CustomerLastName  string `json:"customerLastName"`
	CustomerPhone     string `json:"customerPhone"`
	ShippingAddress   string `json:"shippingAddress"`
	ShippingCity      string `json:"shippingCity"`
	ShippingState     string `json:"shippingState"`
	ShippingZipCode   string `json:"shippingZipCode"`
	ShippingCountry   string `json:"shippingCountry"`

	Shipping     *ShippingInfo `json:"shipping"`
	ShippingInfo *ShippingInfo `json:"shippingInfo"`

	Items        []LineItem       `json:"items"`
	Subtotal     *decimal.Decimal `json:"subtotal"`
	ShippingCost *decimal.Decimal `json:"shippingCost"`
	Total        decimal.Decimal  `json:"total"`
	Currency     string           `json:"currency"`

	Status          string     `json:"status"`
	PaymentStatus   string     `json:"paymentStatus"`
	OrderStatus     string     `json:"orderStatus"`
	IsTestMode      bool       `json:"isTestMode"`
	CreatedAt       *time.Time `json:"createdAt"`
	StatusUpdatedAt *time.Time `json:"statusUpdatedAt"`
}

// Normalize приводит запись к единому виду Order. defaultShipping
// подставляется, если стоимость доставки не пришла.
func (r Record) Normalize(defaultShipping decimal.Decimal) (*Order, error) {
	if strings.TrimSpace(r.OrderID) == "" {
		return nil, fmt.Errorf("%w: orderId", ErrMissingField)
	}

	o := &Order{
		OrderID:         strings.TrimSpace(r.OrderID),
		PaymentIntentID: r.PaymentIntentID,
		Shipping:        r.shipping(),
		Items:           r.Items,
		Total:           r.Total.Round(2),
		Currency:        strings.ToLower(r.Currency),
		Status:          r.Status,
		PaymentStatus:   PaymentStatus(strings.ToLower(r.PaymentStatus)),
		IsTestMode:      r.IsTestMode,
		StatusUpdatedAt: r.StatusUpdatedAt,
	}

	o.CustomerEmail = strings.TrimSpace(r.CustomerEmail)
	if o.CustomerEmail == "" && o.Shipping != nil {
		o.CustomerEmail = o.Shipping.Email
	}
	if o.CustomerEmail == "" {
		return nil, fmt.Errorf("%w: customerEmail", ErrMissingField)
	}
	if o.Shipping != nil && o.Shipping.Email == "" {
		o.Shipping.Email = o.CustomerEmail
	}

	o.CustomerName = strings.TrimSpace(r.CustomerName)
	if o.CustomerName == "" {
		o.CustomerName = o.Shipping.FullName()
	}
	if o.CustomerName == "" {
		o.CustomerName = "Customer"
	}

	if o.Items == nil {
		o.Items = []LineItem{}
	}

	o.ShippingCost = defaultShipping
	if r.ShippingCost != nil {
		o.ShippingCost = *r.ShippingCost
	}
	o.ShippingCost = o.ShippingCost.Round(2)

	if r.Subtotal != nil {
		o.Subtotal = r.Subtotal.Round(2)
	} else {
		o.Subtotal = o.Total.Sub(o.ShippingCost).Round(2)
	}

	if o.Currency == "" {
		o.Currency = "usd"
	}
	if o.Status == "" {
		o.Status = StatusCompleted
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = PaymentSucceeded
	}

	o.OrderStatus = StatusOrdered
	if r.OrderStatus != "" {
		status, err := ParseStatus(r.OrderStatus)
		if err != nil {
			return nil, err
		}
		o.OrderStatus = status
	}

	if r.CreatedAt != nil {
		o.CreatedAt = r.CreatedAt.UTC()
	}

	return o, nil
}

// shipping: shippingInfo важнее shipping, плоские колонки используются последними.
func (r Record) shipping() *ShippingInfo {
	var info *ShippingInfo
	switch {
	case r.ShippingInfo != nil:
		copied := *r.ShippingInfo
		info = &copied
	case r.Shipping != nil:
		copied := *r.Shipping
		info = &copied
	case r.hasFlatShipping():
		info = &ShippingInfo{
			FirstName: r.CustomerFirstName,
			LastName:  r.CustomerLastName,
			Phone:     r.CustomerPhone,
			Address:   r.ShippingAddress,
			City:      r.ShippingCity,
			State:     r.ShippingState,
			ZipCode:   r.ShippingZipCode,
			Country:   r.ShippingCountry,
		}
	default:
		return nil
	}

	if info.Country == "" {
		info.Country = "US"
	}
	return info
}

func (r Record) hasFlatShipping() bool {
	for _, v := range []string{
		r.CustomerFirstName, r.CustomerLastName, r.CustomerPhone,
		r.ShippingAddress, r.ShippingCity, r.ShippingState, r.ShippingZipCode, r.ShippingCountry,
	} {
		if v != "" {
			return true
		}
	}
	return false
}
