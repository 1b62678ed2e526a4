package domain

import (
	"context"
	"errors"
)

type BeginCheckoutRequest struct {
	UserID string
	Email  string
}

// Service starts a subscription purchase. It guarantees at most one billing
// customer per user and returns the session id the client redirects to; it
// never learns whether the payment succeeded.
type Service interface {
	BeginCheckout(ctx context.Context, req BeginCheckoutRequest) (string, error)
}

var (
	ErrInvalidRequest = errors.New("invalid_checkout_request")
	// ErrConfig marks a misconfigured price or plan; not retryable.
	ErrConfig = errors.New("checkout_misconfigured")
)
