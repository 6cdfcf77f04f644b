package cache

import (
	"context"
	"errors"
)

// CustomerCache maps a customer email to the id the payment gateway assigned to it.
type CustomerCache interface {
	Get(ctx context.Context, email string) (string, error)
	Set(ctx context.Context, email, gatewayCustomerID string) error
	Delete(ctx context.Context, email string) error
}

var ErrCacheMiss = errors.New("cache miss")
