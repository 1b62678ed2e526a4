// Package domain defines the canonical billing events the webhook verifier
// produces and the reconciler consumes, plus the gateway's typed shapes.
package domain

import (
	"time"
)

// Event is the closed set of billing notifications this service reacts to.
// The verifier is the only producer; the reconciler switches over the
// concrete types and treats anything else as a programming error.
type Event interface {
	// EventID is the provider-assigned unique identifier.
	EventID() string
	// OccurredAt is the provider's own timestamp for the event, used as the
	// recency guard against out-of-order delivery.
	OccurredAt() time.Time

	billingEvent()
}

// Header carries the fields common to every event variant.
type Header struct {
	ID      string
	Created time.Time
}

func (h Header) EventID() string       { return h.ID }
func (h Header) OccurredAt() time.Time { return h.Created }
func (Header) billingEvent()           {}

// CheckoutCompleted reports a finished subscription-mode checkout session.
// UserID comes from the session metadata written at checkout creation.
type CheckoutCompleted struct {
	Header
	UserID         string
	CustomerID     string
	SubscriptionID string
}

// SubscriptionChanged covers subscription created, updated and deleted.
// A deleted subscription arrives with Status "canceled".
type SubscriptionChanged struct {
	Header
	UserID         string
	SubscriptionID string
	Status         string
}

// TrialWillEnd is informational; it never changes the role and usually
// leaves the status untouched.
type TrialWillEnd struct {
	Header
	UserID         string
	SubscriptionID string
	Status         string
	TrialEnd       time.Time
}

// InvoicePaymentSucceeded carries only the subscription reference; the
// reconciler re-retrieves the subscription to resolve the user.
type InvoicePaymentSucceeded struct {
	Header
	SubscriptionID string
}

// InvoicePaymentFailed typically moves the subscription to past_due.
type InvoicePaymentFailed struct {
	Header
	SubscriptionID string
}
