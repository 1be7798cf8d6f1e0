// Package model holds the entities shared by the import pipeline: drafts
// produced by format handlers, the persisted transaction, the entities a
// transaction links to, and the import job record.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a transaction.
type TransactionType string

const (
	TransactionTypeIncome   TransactionType = "INCOME"
	TransactionTypeExpense  TransactionType = "EXPENSE"
	TransactionTypeTransfer TransactionType = "TRANSFER"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeIncome, TransactionTypeExpense, TransactionTypeTransfer:
		return true
	}
	return false
}

// CategoryType is the polarity a category (and its subcategories) carries.
type CategoryType string

const (
	CategoryTypeIncome  CategoryType = "INCOME"
	CategoryTypeExpense CategoryType = "EXPENSE"
)

// CategoryTypeFor maps a transaction type to the polarity used for category
// lookups. Anything that is not income is filed under expense.
func CategoryTypeFor(t TransactionType) CategoryType {
	if t == TransactionTypeIncome {
		return CategoryTypeIncome
	}
	return CategoryTypeExpense
}

// Account is a checking account owned by a user.
type Account struct {
	ID     int64
	UserID uuid.UUID
	Name   string
}

// CreditCard is a card owned by a user.
type CreditCard struct {
	ID     int64
	UserID uuid.UUID
	Name   string
}

// Category groups transactions of a single polarity.
type Category struct {
	ID     int64
	UserID uuid.UUID
	Name   string
	Type   CategoryType
}

// Subcategory always belongs to exactly one category.
type Subcategory struct {
	ID         int64
	UserID     uuid.UUID
	CategoryID int64
	Name       string
}

// Tag is a free-form label, unique per user and case-insensitive name.
type Tag struct {
	ID     int64
	UserID uuid.UUID
	Name   string
}

// ImportHints carries optional references found in the source file. They are
// consumed by the entity resolver and are never required.
type ImportHints struct {
	AccountIdentifier    string
	CreditCardIdentifier string
	CategoryName         string
	SubcategoryName      string
	// TagsText is a raw comma separated value, as found in CSV columns.
	TagsText string
	// TagsList is set when the source provides tags as a list (JSON arrays).
	TagsList []string
}

// HasTags reports whether any tag value was supplied.
func (h ImportHints) HasTags() bool {
	return h.TagsText != "" || len(h.TagsList) > 0
}

// Draft is an unpersisted transaction produced by a format handler.
type Draft struct {
	Row               int
	Type              TransactionType
	Amount            decimal.Decimal
	Description       string
	OccurredAt        time.Time
	InstallmentsTotal int
	InstallmentNumber int
	Hints             ImportHints
}

// NewDraft returns a draft with single-installment defaults.
func NewDraft(row int, txType TransactionType, amount decimal.Decimal, description string, occurredAt time.Time) Draft {
	return Draft{
		Row:               row,
		Type:              txType,
		Amount:            amount,
		Description:       description,
		OccurredAt:        occurredAt,
		InstallmentsTotal: 1,
		InstallmentNumber: 1,
	}
}
