package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventRecord is the durable dedupe ledger row for a webhook delivery.
// Identity state stays correct without it (every write is an idempotent
// set), but the record suppresses duplicate downstream side effects.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "billing_event_records" }

type EventRepository interface {
	// InsertEvent records a delivery; returns false when the provider event
	// id was already recorded by an earlier or concurrent delivery.
	InsertEvent(ctx context.Context, db *gorm.DB, record *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, providerEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}
