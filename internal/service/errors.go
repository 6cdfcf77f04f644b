package service

import "errors"

var (
	ErrEmptyCart       = errors.New("cart is empty, nothing to checkout")
	ErrInvalidQuantity = errors.New("cart item quantity must be positive")
	ErrInvalidCustomer = errors.New("customer email is required")
	ErrNoPricedItems   = errors.New("none of the cart items exist in the catalog")
)

// IsValidationError reports whether err was caused by the request itself.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidCustomer) ||
		errors.Is(err, ErrNoPricedItems)
}
