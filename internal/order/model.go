package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusOrdered   OrderStatus = "ordered"
	StatusCouriered OrderStatus = "couriered"
	StatusDelivered OrderStatus = "delivered"
)

// AllowedStatuses в порядке прохождения заказа.
var AllowedStatuses = []OrderStatus{StatusOrdered, StatusCouriered, StatusDelivered}

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) Valid() bool {
	for _, allowed := range AllowedStatuses {
		if s == allowed {
			return true
		}
	}
	return false
}

// ParseStatus принимает значение в любом регистре ("ORDERED" из старых записей тоже).
func ParseStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return status, nil
}

// AllowedStatusList is the comma separated list used in client error messages.
func AllowedStatusList() string {
	names := make([]string, 0, len(AllowedStatuses))
	for _, s := range AllowedStatuses {
		names = append(names, s.String())
	}
	return strings.Join(names, ", ")
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
)

const StatusCompleted = "completed"

type ShippingInfo struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zipCode"`
	Country   string `json:"country"`
}

// FullName returns "First Last" without stray spaces.
func (s *ShippingInfo) FullName() string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

type LineItem struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Price    string `json:"price"` // витринная цена, например "$50.00"
	Quantity int    `json:"quantity"`
}

type Order struct {
	OrderID         string          `json:"orderId"`
	PaymentIntentID string          `json:"paymentIntentId"`
	CustomerEmail   string          `json:"customerEmail"`
	CustomerName    string          `json:"customerName"`
	Shipping        *ShippingInfo   `json:"shippingInfo"`
	Items           []LineItem      `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ShippingCost    decimal.Decimal `json:"shippingCost"`
	Total           decimal.Decimal `json:"total"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	OrderStatus     OrderStatus     `json:"orderStatus"`
	IsTestMode      bool            `json:"isTestMode"`
	CreatedAt       time.Time       `json:"createdAt"`
	StatusUpdatedAt *time.Time      `json:"statusUpdatedAt,omitempty"`
}

// Clone копирует заказ вместе со слайсом позиций и блоком доставки.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.Shipping != nil {
		shipping := *o.Shipping
		c.Shipping = &shipping
	}
	c.Items = append(make([]LineItem, 0, len(o.Items)), o.Items...)
	if o.StatusUpdatedAt != nil {
		at := *o.StatusUpdatedAt
		c.StatusUpdatedAt = &at
	}
	return &c
}

// ShortID is the last eight characters of the order id, used in email subjects.
func (o *Order) ShortID() string {
	if len(o.OrderID) <= 8 {
		return o.OrderID
	}
	return o.OrderID[len(o.OrderID)-8:]
}

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

type Filter struct {
	OrderID     string
	TestMode    *bool
	OrderStatus OrderStatus
	Limit       int
	Offset      int
}

// WithDefaults подставляет limit/offset по умолчанию.
func (f Filter) WithDefaults() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func (f Filter) Matches(o *Order) bool {
	if f.OrderID != "" && o.OrderID != f.OrderID {
		return false
	}
	if f.TestMode != nil && o.IsTestMode != *f.TestMode {
		return false
	}
	if f.OrderStatus != "" && o.OrderStatus != f.OrderStatus {
		return false
	}
	return true
}

type Page struct {
	Orders  []Order `json:"orders"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
	HasMore bool    `json:"hasMore"`
}

func newPage(orders []Order, total int, f Filter) *Page {
	if orders == nil {
		orders = []Order{}
	}
	return &Page{
		Orders:  orders,
		Total:   total,
		Limit:   f.Limit,
		Offset:  f.Offset,
		HasMore: f.Offset+f.Limit < total,
	}
}

type StatusCounts struct {
	Ordered   int `json:"ordered"`
	Couriered int `json:"couriered"`
	Delivered int `json:"delivered"`
}

// Add increments the bucket for status. Empty status counts as ordered,
// unknown values are ignored.
func (c *StatusCounts) Add(status OrderStatus) {
	switch status {
	case StatusOrdered, "":
		c.Ordered++
	case StatusCouriered:
		c.Couriered++
	case StatusDelivered:
		c.Delivered++
	}
}

type Metrics struct {
	TotalOrders       int             `json:"totalOrders"`
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`
	AverageOrderValue decimal.Decimal `json:"averageOrderValue"`
	StatusCounts      StatusCounts    `json:"statusCounts"`
}

// finalize считает средний чек; при нуле заказов он равен 0.
func (m *Metrics) finalize() {
	m.TotalRevenue = m.TotalRevenue.Round(2)
	if m.TotalOrders == 0 {
		m.AverageOrderValue = decimal.Zero
		return
	}
	m.AverageOrderValue = m.TotalRevenue.Div(decimal.NewFromInt(int64(m.TotalOrders))).Round(2)
}
