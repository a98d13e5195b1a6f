package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ledgerflow/backend/internal/domain/bookkeeping"
	"github.com/ledgerflow/backend/internal/infrastructure/persistence/models"
)

// GormReviewQueueRepository implements bookkeeping.ReviewRepository using GORM
type GormReviewQueueRepository struct {
	db *gorm.DB
}

// NewGormReviewQueueRepository creates a new GormReviewQueueRepository
func NewGormReviewQueueRepository(db *gorm.DB) *GormReviewQueueRepository {
	return &GormReviewQueueRepository{db: db}
}

// Enqueue stores a new review item.
func (r *GormReviewQueueRepository) Enqueue(ctx context.Context, item *bookkeeping.ReviewItem) error {
	model, err := models.ReviewItemModelFromDomain(item)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: event %s", bookkeeping.ErrReviewExists, item.Event.ID)
		}
		return fmt.Errorf("enqueue review item: %w", err)
	}
	return nil
}

// FindOpenByEvent loads the pending, approved or failed item of an event.
func (r *GormReviewQueueRepository) FindOpenByEvent(ctx context.Context, eventID uuid.UUID) (*bookkeeping.ReviewItem, error) {
	var model models.ReviewItemModel
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND status IN ?", eventID, openStatuses()).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bookkeeping.ErrReviewNotFound
		}
		return nil, fmt.Errorf("find open review item: %w", err)
	}
	return model.ToDomain()
}

func openStatuses() []string {
	out := make([]string, 0, len(bookkeeping.OpenReviewStatuses))
	for _, st := range bookkeeping.OpenReviewStatuses {
		out = append(out, string(st))
	}
	return out
}

// FindByID loads one review item.
func (r *GormReviewQueueRepository) FindByID(ctx context.Context, id uuid.UUID) (*bookkeeping.ReviewItem, error) {
	var model models.ReviewItemModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bookkeeping.ErrReviewNotFound
		}
		return nil, fmt.Errorf("find review item: %w", err)
	}
	return model.ToDomain()
}

// Save writes item with optimistic locking and bumps item.Version.
func (r *GormReviewQueueRepository) Save(ctx context.Context, item *bookkeeping.ReviewItem) error {
	model, err := models.ReviewItemModelFromDomain(item)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Model(&models.ReviewItemModel{}).
		Where("id = ? AND version = ?", item.ID, item.Version).
		Updates(map[string]any{
			"status":      model.Status,
			"payload":     model.Payload,
			"approver":    model.Approver,
			"voucher_ref": model.VoucherRef,
			"last_error":  model.LastError,
			"version":     item.Version + 1,
			"updated_at":  model.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("save review item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.ReviewItemModel{}).Where("id = ?", item.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("check review item: %w", err)
		}
		if count == 0 {
			return bookkeeping.ErrReviewNotFound
		}
		return bookkeeping.ErrReviewConflict
	}
	item.Version++
	return nil
}

// ListPending returns the oldest pending items of a user.
func (r *GormReviewQueueRepository) ListPending(ctx context.Context, userID uuid.UUID, limit int) ([]*bookkeeping.ReviewItem, error) {
	var rows []models.ReviewItemModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, string(bookkeeping.ReviewPending)).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list pending review items: %w", err)
	}
	out := make([]*bookkeeping.ReviewItem, 0, len(rows))
	for i := range rows {
		item, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

var _ bookkeeping.ReviewRepository = (*GormReviewQueueRepository)(nil)
