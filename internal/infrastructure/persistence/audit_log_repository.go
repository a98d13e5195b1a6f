package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ledgerflow/backend/internal/domain/bookkeeping"
	"github.com/ledgerflow/backend/internal/infrastructure/persistence/models"
)

// GormAuditLogRepository implements bookkeeping.AuditLog. Rows are never updated.
type GormAuditLogRepository struct {
	db *gorm.DB
}

// NewGormAuditLogRepository creates a new GormAuditLogRepository
func NewGormAuditLogRepository(db *gorm.DB) *GormAuditLogRepository {
	return &GormAuditLogRepository{db: db}
}

// Append inserts one audit record.
func (r *GormAuditLogRepository) Append(ctx context.Context, rec *bookkeeping.AuditRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(models.AuditRecordModelFromDomain(rec)).Error; err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// ListByEvent returns the records of one event, oldest first.
func (r *GormAuditLogRepository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*bookkeeping.AuditRecord, error) {
	var rows []models.AuditRecordModel
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("started_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	out := make([]*bookkeeping.AuditRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

var _ bookkeeping.AuditLog = (*GormAuditLogRepository)(nil)
