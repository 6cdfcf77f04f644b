package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/fjod/food-commerce/domain"
	"github.com/fjod/food-commerce/internal/cache"
)

type customerRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	MobilePhone          string `json:"mobilePhone,omitempty"`
	CpfCnpj              string `json:"cpfCnpj,omitempty"`
	PostalCode           string `json:"postalCode,omitempty"`
	Address              string `json:"address,omitempty"`
	AddressNumber        string `json:"addressNumber,omitempty"`
	Complement           string `json:"complement,omitempty"`
	Province             string `json:"province,omitempty"`
	NotificationDisabled bool   `json:"notificationDisabled"`
}

type customerResponse struct {
	ID string `json:"id"`
}

type customerListResponse struct {
	Data []customerResponse `json:"data"`
}

// FindCustomerByEmail returns the first gateway customer registered with email.
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (string, bool, error) {
	var list customerListResponse
	path := "/customers?email=" + url.QueryEscape(email)
	if err := c.do(ctx, "find_customer", http.MethodGet, path, nil, &list); err != nil {
		return "", false, err
	}
	for _, cus := range list.Data {
		if cus.ID != "" {
			return cus.ID, true, nil
		}
	}
	return "", false, nil
}

func (c *Client) CreateCustomer(ctx context.Context, customer domain.CustomerProfile) (string, error) {
	req := customerRequest{
		Name:                 customer.FullName,
		Email:                customer.Email,
		MobilePhone:          customer.Mobile,
		CpfCnpj:              customer.Document,
		PostalCode:           customer.ZipCode,
		Address:              customer.Street,
		AddressNumber:        customer.Number,
		Complement:           customer.Complement,
		Province:             customer.Neighborhood,
		NotificationDisabled: true,
	}

	var created customerResponse
	if err := c.do(ctx, "create_customer", http.MethodPost, "/customers", req, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", ErrEmptyCustomerID
	}
	return created.ID, nil
}

// ResolveCustomer returns the gateway id for the customer's email, creating the
// remote customer when the lookup finds none. Emails are matched case-insensitively.
//
// Lookup and create are two separate calls. Two processes checking out the same
// new email at once can both miss the lookup and create duplicate remote
// customers; the singleflight group only collapses callers inside this process.
func (c *Client) ResolveCustomer(ctx context.Context, customer domain.CustomerProfile) (string, error) {
	id, _, err := c.resolveCustomer(ctx, customer)
	return id, err
}

// resolveCustomer also reports whether the id came from the cache.
func (c *Client) resolveCustomer(ctx context.Context, customer domain.CustomerProfile) (string, bool, error) {
	email := normalizeEmail(customer.Email)
	if email == "" {
		return "", false, ErrMissingEmail
	}
	customer.Email = email

	if c.customers != nil {
		id, err := c.customers.Get(ctx, email)
		if err == nil {
			return id, true, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.WarnContext(ctx, "gateway customer cache read failed", slog.Any("error", err))
		}
	}

	// The flight is shared by every caller waiting on this email, so it must not
	// inherit the first caller's deadline. Each caller still stops waiting on its own.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(email, func() (interface{}, error) {
		id, found, err := c.FindCustomerByEmail(flightCtx, email)
		if err != nil {
			return "", err
		}
		if found {
			return id, nil
		}
		return c.CreateCustomer(flightCtx, customer)
	})

	var id string
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", false, res.Err
		}
		id = res.Val.(string)
	case <-ctx.Done():
		return "", false, ctx.Err()
	}

	if c.customers != nil {
		if err := c.customers.Set(ctx, email, id); err != nil {
			c.logger.WarnContext(ctx, "gateway customer cache write failed", slog.Any("error", err))
		}
	}
	return id, false, nil
}

// forgetCustomer drops a cached customer id the gateway refused, so the next
// checkout for the email looks the customer up again.
func (c *Client) forgetCustomer(ctx context.Context, email string, cause error) {
	var apiErr *APIError
	if c.customers == nil || !errors.As(cause, &apiErr) || !apiErr.IsClientError() {
		return
	}
	if err := c.customers.Delete(context.WithoutCancel(ctx), email); err != nil {
		c.logger.WarnContext(ctx, "failed to evict gateway customer from cache", slog.Any("error", err))
		return
	}
	c.logger.InfoContext(ctx, "evicted cached gateway customer after rejection",
		slog.Int("gateway_status_code", apiErr.StatusCode))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
