// Package domain contains the persistence model for per-user entitlement
// state: the authorization role plus the subscription fields mirrored from
// the billing provider.
package domain

import (
	"time"
)

// Role is the authorization role a user presents on authenticated requests.
type Role string

const (
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
	RoleAdmin   Role = "admin"
)

// Valid reports whether the role is one of the enumerated values.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleParent, RoleAdmin:
		return true
	}
	return false
}

// SubscriptionStatus mirrors the billing provider's subscription lifecycle.
type SubscriptionStatus string

const (
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusInactive, SubscriptionStatusTrialing,
		SubscriptionStatusActive, SubscriptionStatusPastDue,
		SubscriptionStatusCanceled:
		return true
	}
	return false
}

// UserIdentity is the durable per-user record. UserID is assigned by the
// external identity provider at account creation and never reused.
// StripeCustomerID is set at most once and immutable thereafter.
type UserIdentity struct {
	UserID               string             `gorm:"column:user_id;primaryKey" json:"user_id"`
	Role                 Role               `gorm:"type:text;not null" json:"role"`
	SubscriptionStatus   SubscriptionStatus `gorm:"type:text;not null" json:"subscription_status"`
	StripeCustomerID     *string            `gorm:"uniqueIndex" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string            `gorm:"" json:"stripe_subscription_id,omitempty"`
	CreatedAt            time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt            time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (UserIdentity) TableName() string { return "user_identities" }
