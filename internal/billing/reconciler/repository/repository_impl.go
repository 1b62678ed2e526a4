package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kevobebop/kindmind/internal/billing/domain"
	dbpkg "github.com/kevobebop/kindmind/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.EventRepository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, record *domain.EventRecord) (bool, error) {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO billing_event_records (id, provider_event_id, event_type, payload, received_at, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.ProviderEventID,
		record.EventType,
		record.Payload,
		record.ReceivedAt,
		record.ProcessedAt,
	).Error
	if err != nil {
		if dbpkg.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, providerEventID string) (*domain.EventRecord, error) {
	var record domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider_event_id, event_type, payload, received_at, processed_at
		 FROM billing_event_records WHERE provider_event_id = ?`,
		providerEventID,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billing_event_records SET processed_at = ? WHERE id = ?`,
		processedAt,
		id,
	).Error
}
