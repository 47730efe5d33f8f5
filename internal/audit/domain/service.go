package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeSystem ActorType = "system"
	ActorTypeUser   ActorType = "user"
)

const (
	ActionBillCreated       = "bill.created"
	ActionInvoiceGenerated  = "invoice.generated"
	ActionPaymentRecorded   = "payment.recorded"
	ActionRemainderIssued   = "invoice.remainder_issued"
	ActionDocumentCancelled = "document.cancelled"
	ActionDocumentDeleted   = "document.deleted"
)

const TargetLedgerDocument = "ledger_document"

// AuditLog is one recorded change to the ledger. Rows are never updated.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorType  string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID    *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action     string            `gorm:"type:text;not null;index" json:"action"`
	TargetType string            `gorm:"type:text;not null;index:ix_audit_logs_target,priority:1" json:"target_type"`
	TargetID   *string           `gorm:"type:text;index:ix_audit_logs_target,priority:2" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	ListByTarget(ctx context.Context, db *gorm.DB, targetType, targetID string) ([]AuditLog, error)
}

// Service writes audit entries on the caller's handle so an entry commits
// or rolls back with the change it describes.
type Service interface {
	AuditLog(ctx context.Context, db *gorm.DB, action string, targetType string, targetID *string, metadata map[string]any) error
}

var ErrInvalidAction = errors.New("invalid_action")
