package domain

import (
	"context"
	"errors"
)

// SubscriptionState is the slice of a provider subscription object this
// service cares about.
type SubscriptionState struct {
	ID       string
	Status   string
	UserID   string // from subscription metadata; empty when unresolvable
	Customer string
}

type CreateCheckoutSessionRequest struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	TrialDays  int
	// Metadata is attached to both the session and the subscription it
	// creates so webhook events resolve the user without a reverse lookup.
	Metadata map[string]string
}

// Gateway is the typed pass-through to the billing provider. Every call may
// fail with ErrUnavailable (retryable) or ErrInvalidRequest (caller error).
type Gateway interface {
	CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CreateCheckoutSessionRequest) (string, error)
	RetrieveSubscription(ctx context.Context, subscriptionID string) (SubscriptionState, error)
}

var (
	ErrUnavailable      = errors.New("billing_unavailable")
	ErrInvalidRequest   = errors.New("billing_invalid_request")
	ErrSignatureInvalid = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrEventIgnored     = errors.New("event_ignored")
	ErrEventProcessed   = errors.New("event_already_processed")
)
