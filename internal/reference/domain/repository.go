package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// Highest returns the most recently issued value for prefix and period,
	// or "" when the period has none.
	Highest(ctx context.Context, db *gorm.DB, prefix, periodKey string) (string, error)
	// Claim inserts rec inside a savepoint so a duplicate does not poison
	// the caller's transaction.
	Claim(ctx context.Context, db *gorm.DB, rec *ReferenceNumber) error
}

// Generator issues unique reference numbers.
type Generator interface {
	// Next claims the next value for kind in the period containing at. Pass
	// the caller's transaction as db so the claim commits with the document.
	Next(ctx context.Context, db *gorm.DB, kind Kind, at time.Time) (string, error)
}
