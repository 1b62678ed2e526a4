package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, identity *UserIdentity) error
	FindByID(ctx context.Context, db *gorm.DB, userID string) (*UserIdentity, error)

	// SetCustomerIDIfAbsent claims the customer id slot for userID. It
	// returns true when this call set the value; false when the slot was
	// already taken (by this or a concurrent call).
	SetCustomerIDIfAbsent(ctx context.Context, db *gorm.DB, userID, customerID string, now time.Time) (bool, error)

	UpdateRole(ctx context.Context, db *gorm.DB, userID string, role Role, now time.Time) (bool, error)

	// ApplySubscriptionState writes status and subscription id only when the
	// row's updated_at is older than eventTime. Returns false when the write
	// was skipped because a newer write already landed.
	ApplySubscriptionState(ctx context.Context, db *gorm.DB, userID string, status SubscriptionStatus, subscriptionID *string, eventTime time.Time) (bool, error)
}
