// Package repository provides persistence for the import pipeline: the
// entities a transaction links to, the transactions themselves (written
// through a unit of work) and import job records.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/model"
)

var ErrNotFound = errors.New("not found")

// EntityStore looks up accounts and cards and matches or creates the
// classification entities. Name lookups are case-insensitive and scoped to
// the owner.
type EntityStore interface {
	AccountByID(ctx context.Context, owner uuid.UUID, id int64) (*model.Account, error)
	AccountByName(ctx context.Context, owner uuid.UUID, name string) (*model.Account, error)
	CreditCardByID(ctx context.Context, owner uuid.UUID, id int64) (*model.CreditCard, error)
	CreditCardByName(ctx context.Context, owner uuid.UUID, name string) (*model.CreditCard, error)

	// GetOrCreateCategory matches on (owner, lower(name), type).
	GetOrCreateCategory(ctx context.Context, owner uuid.UUID, name string, categoryType model.CategoryType) (*model.Category, error)
	// GetOrCreateSubcategory matches on (owner, category, lower(name)).
	GetOrCreateSubcategory(ctx context.Context, owner uuid.UUID, categoryID int64, name string) (*model.Subcategory, error)
	// GetOrCreateTag matches on (owner, lower(name)).
	GetOrCreateTag(ctx context.Context, owner uuid.UUID, name string) (*model.Tag, error)
}

// TxWriter writes transactions inside a unit of work.
type TxWriter interface {
	InsertTransaction(ctx context.Context, tx *model.Transaction) error
	SetTransactionTags(ctx context.Context, transactionID int64, tagIDs []int64) error
}

// UnitOfWork runs fn atomically: either every write made through the
// TxWriter is kept or none is.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(w TxWriter) error) error
}

// JobStore persists import jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.ImportJob) error
	GetJob(ctx context.Context, id int64) (*model.ImportJob, error)
	UpdateJob(ctx context.Context, job *model.ImportJob) error
	// ListJobsByStatus returns jobs last updated before the given time,
	// oldest first.
	ListJobsByStatus(ctx context.Context, status model.JobStatus, updatedBefore time.Time, limit int) ([]*model.ImportJob, error)
	CountJobsByStatus(ctx context.Context, status model.JobStatus) (int, error)
}

// Store is everything the import pipeline persists.
type Store interface {
	EntityStore
	UnitOfWork
	JobStore
}
