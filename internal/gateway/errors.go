package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidExpiry    = errors.New("card expiry must be MM/YY")
	ErrMissingEmail     = errors.New("customer email is required")
	ErrEmptyCustomerID  = errors.New("gateway returned an empty customer id")
	ErrEmptyTransaction = errors.New("gateway returned an empty payment id")
)

type APIErrorDetail struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// APIError is a non-2xx gateway response.
type APIError struct {
	StatusCode int
	Errors     []APIErrorDetail
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("gateway responded with status %d", e.StatusCode)
	}
	parts := make([]string, 0, len(e.Errors))
	for _, d := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", d.Code, d.Description))
	}
	return fmt.Sprintf("gateway responded with status %d: %s", e.StatusCode, strings.Join(parts, "; "))
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var parsed struct {
		Errors []APIErrorDetail `json:"errors"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		apiErr.Errors = parsed.Errors
	}
	return apiErr
}

// IsClientError reports a 4xx rejection: the request was understood and refused.
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}
