package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ledgerflow/backend/internal/domain/bookkeeping"
	"github.com/ledgerflow/backend/internal/domain/guardrail"
	"github.com/ledgerflow/backend/internal/infrastructure/persistence/models"
)

// GormPolicyRepository implements bookkeeping.PolicyRepository using GORM
type GormPolicyRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormPolicyRepository creates a new GormPolicyRepository
func NewGormPolicyRepository(db *gorm.DB) *GormPolicyRepository {
	return &GormPolicyRepository{db: db, now: time.Now}
}

// NormalizeCounterparty folds case and whitespace so "ACME  AB" and "acme ab" match.
func NormalizeCounterparty(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// FindPolicy returns the stored policy or (nil, nil).
func (r *GormPolicyRepository) FindPolicy(ctx context.Context, userID, companyID uuid.UUID) (*guardrail.Policy, error) {
	var model models.AutoPostPolicyModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND company_id = ?", userID, companyID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find autopost policy: %w", err)
	}
	return model.ToDomain(), nil
}

// SavePolicy inserts or replaces the policy of a company.
func (r *GormPolicyRepository) SavePolicy(ctx context.Context, userID, companyID uuid.UUID, p guardrail.Policy) error {
	model := models.AutoPostPolicyModel{
		UserID:                   userID,
		CompanyID:                companyID,
		Enabled:                  p.Enabled,
		MinConfidence:            p.MinConfidence,
		MaxAmount:                p.MaxAmount,
		RequireKnownCounterparty: p.RequireKnownCounterparty,
		AllowVATDeviation:        p.AllowVATDeviation,
		UpdatedAt:                r.now(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "company_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"enabled", "min_confidence", "max_amount",
			"require_known_counterparty", "allow_vat_deviation", "updated_at",
		}),
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("save autopost policy: %w", err)
	}
	return nil
}

// Counterparty reports whether the user has a rule for the counterparty.
func (r *GormPolicyRepository) Counterparty(ctx context.Context, userID uuid.UUID, counterparty string) (bookkeeping.CounterpartyProfile, error) {
	var rule models.CounterpartyRuleModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND name = ?", userID, NormalizeCounterparty(counterparty)).
		First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return bookkeeping.CounterpartyProfile{}, nil
		}
		return bookkeeping.CounterpartyProfile{}, fmt.Errorf("find counterparty rule: %w", err)
	}
	return bookkeeping.CounterpartyProfile{
		Known:           true,
		HasActiveRule:   rule.Active,
		ExpectedVATRate: rule.ExpectedVATRate,
	}, nil
}

// SaveCounterpartyRule inserts or replaces the rule for a counterparty.
func (r *GormPolicyRepository) SaveCounterpartyRule(ctx context.Context, userID uuid.UUID, counterparty string, active bool, expectedVATRate *int) error {
	now := r.now()
	rule := models.CounterpartyRuleModel{
		BaseModel:       models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		UserID:          userID,
		Name:            NormalizeCounterparty(counterparty),
		Active:          active,
		ExpectedVATRate: expectedVATRate,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"active", "expected_vat_rate", "updated_at"}),
	}).Create(&rule).Error
	if err != nil {
		return fmt.Errorf("save counterparty rule: %w", err)
	}
	return nil
}

// IsPeriodLocked reports whether date falls inside a locked period of the company.
func (r *GormPolicyRepository) IsPeriodLocked(ctx context.Context, companyID uuid.UUID, date time.Time) (bool, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PeriodLockModel{}).
		Where("company_id = ? AND period_start <= ? AND period_end >= ?", companyID, day, day).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check period lock: %w", err)
	}
	return count > 0, nil
}

// LockPeriod closes [start, end] for further automatic postings.
func (r *GormPolicyRepository) LockPeriod(ctx context.Context, companyID uuid.UUID, start, end time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("lock period: end %s before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	lock := models.PeriodLockModel{
		ID:          uuid.New(),
		CompanyID:   companyID,
		PeriodStart: time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC),
		LockedAt:    r.now(),
	}
	if err := r.db.WithContext(ctx).Create(&lock).Error; err != nil {
		return fmt.Errorf("lock period: %w", err)
	}
	return nil
}

var _ bookkeeping.PolicyRepository = (*GormPolicyRepository)(nil)
