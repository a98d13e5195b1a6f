package models

import (
	"time"

	"github.com/google/uuid"
)

// BaseModel provides common persistence fields for all models.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// AggregateModel extends BaseModel with version for optimistic locking.
type AggregateModel struct {
	BaseModel
	Version int `gorm:"not null;default:1"`
}

// All returns every model the repositories read and write, in migration order.
func All() []any {
	return []any{
		&CredentialModel{},
		&AuditRecordModel{},
		&AutoPostPolicyModel{},
		&CounterpartyRuleModel{},
		&PeriodLockModel{},
		&ReviewItemModel{},
	}
}
