package order

import "errors"

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order with this ID already exists")
	ErrInvalidStatus  = errors.New("invalid order status")
	ErrMissingField   = errors.New("missing required field")
	ErrInvalidPrice   = errors.New("invalid line item price")
	ErrInvalidItem    = errors.New("invalid line item")
	ErrTotalMismatch  = errors.New("order total does not match subtotal plus shipping")
)

// isDomainError: такие ошибки являются ответом бэкенда, а не его отказом,
// поэтому на резервное хранилище не переключаемся.
func isDomainError(err error) bool {
	return errors.Is(err, ErrDuplicateOrder) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrMissingField)
}
