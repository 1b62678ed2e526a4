package repository

import (
	"context"
	"time"

	"github.com/kevobebop/kindmind/internal/identity/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, identity *domain.UserIdentity) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO user_identities (user_id, role, subscription_status, stripe_customer_id, stripe_subscription_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		identity.UserID,
		identity.Role,
		identity.SubscriptionStatus,
		identity.StripeCustomerID,
		identity.StripeSubscriptionID,
		identity.CreatedAt,
		identity.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, userID string) (*domain.UserIdentity, error) {
	var identity domain.UserIdentity
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, role, subscription_status, stripe_customer_id, stripe_subscription_id, created_at, updated_at
		 FROM user_identities WHERE user_id = ?`,
		userID,
	).Scan(&identity).Error
	if err != nil {
		return nil, err
	}
	if identity.UserID == "" {
		return nil, nil
	}
	return &identity, nil
}

// Single conditional UPDATE so two concurrent checkout attempts cannot both
// claim the slot; the loser sees zero rows affected.
func (r *repo) SetCustomerIDIfAbsent(ctx context.Context, db *gorm.DB, userID, customerID string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE user_identities
		 SET stripe_customer_id = ?, updated_at = ?
		 WHERE user_id = ? AND stripe_customer_id IS NULL`,
		customerID,
		now,
		userID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateRole(ctx context.Context, db *gorm.DB, userID string, role domain.Role, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE user_identities SET role = ?, updated_at = ? WHERE user_id = ?`,
		role,
		now,
		userID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ApplySubscriptionState(ctx context.Context, db *gorm.DB, userID string, status domain.SubscriptionStatus, subscriptionID *string, eventTime time.Time) (bool, error) {
	stmt := db.WithContext(ctx)
	var result *gorm.DB
	if subscriptionID != nil {
		result = stmt.Exec(
			`UPDATE user_identities
			 SET subscription_status = ?, stripe_subscription_id = ?, updated_at = ?
			 WHERE user_id = ? AND updated_at < ?`,
			status,
			*subscriptionID,
			eventTime,
			userID,
			eventTime,
		)
	} else {
		result = stmt.Exec(
			`UPDATE user_identities
			 SET subscription_status = ?, updated_at = ?
			 WHERE user_id = ? AND updated_at < ?`,
			status,
			eventTime,
			userID,
			eventTime,
		)
	}
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
