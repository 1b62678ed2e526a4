package domain

import (
	"context"
	"errors"
	"time"
)

type ApplySubscriptionStateRequest struct {
	UserID         string
	Status         SubscriptionStatus
	SubscriptionID *string
	// EventTime is the billing event's own timestamp, used as the recency
	// guard against out-of-order delivery.
	EventTime time.Time
}

// ApplyResult says what a conditional write did.
type ApplyResult string

const (
	ApplyResultWritten ApplyResult = "written"
	ApplyResultStale   ApplyResult = "stale"
)

type Service interface {
	Get(ctx context.Context, userID string) (UserIdentity, error)
	CreateDefault(ctx context.Context, userID string) (UserIdentity, error)

	// EnsureCustomerID returns the user's billing customer id, persisting
	// candidateID only when no id has been set yet. Concurrent callers all
	// observe the same winning value.
	EnsureCustomerID(ctx context.Context, userID, candidateID string) (string, error)

	SetRole(ctx context.Context, userID string, role Role) error
	ApplySubscriptionState(ctx context.Context, req ApplySubscriptionStateRequest) (ApplyResult, error)
}

var (
	ErrNotFound      = errors.New("identity_not_found")
	ErrAlreadyExists = errors.New("identity_already_exists")
	ErrInvalidUser   = errors.New("invalid_user_id")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidStatus = errors.New("invalid_subscription_status")
)
