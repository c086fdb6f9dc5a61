package order

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseDisplayPrice разбирает витринную цену вида "$1,250.00".
func ParseDisplayPrice(raw string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("%w: empty price", ErrInvalidPrice)
	}
	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative price %q", ErrInvalidPrice, raw)
	}
	return price, nil
}

func (li LineItem) LineTotal() (decimal.Decimal, error) {
	if li.Quantity <= 0 {
		return decimal.Zero, fmt.Errorf("%w: quantity for %q must be greater than zero", ErrInvalidItem, li.Name)
	}
	price, err := ParseDisplayPrice(li.Price)
	if err != nil {
		return decimal.Zero, err
	}
	return price.Mul(decimal.NewFromInt(int64(li.Quantity))), nil
}

// Subtotal is the sum of price × quantity over items, rounded to cents.
func Subtotal(items []LineItem) (decimal.Decimal, error) {
	subtotal := decimal.Zero
	for _, item := range items {
		lineTotal, err := item.LineTotal()
		if err != nil {
			return decimal.Zero, err
		}
		subtotal = subtotal.Add(lineTotal)
	}
	return subtotal.Round(2), nil
}

func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// CheckTotals проверяет инвариант total == subtotal + shippingCost.
func (o *Order) CheckTotals() error {
	expected := o.Subtotal.Add(o.ShippingCost).Round(2)
	if !expected.Equal(o.Total.Round(2)) {
		return fmt.Errorf("%w: subtotal %s + shipping %s = %s, total %s",
			ErrTotalMismatch,
			o.Subtotal.StringFixed(2),
			o.ShippingCost.StringFixed(2),
			expected.StringFixed(2),
			o.Total.StringFixed(2),
		)
	}
	return nil
}
