package model

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	maxDescriptionLength = 255
	maxAmountDigits      = 12
	amountPlaces         = 2
	dateLayout           = "2006-01-02"
)

var (
	ErrAccountAndCreditCard = errors.New("a transaction cannot be associated with both an account and a credit card")
	ErrMissingOccurredAt    = errors.New("occurred_at: this field cannot be empty")
	ErrInvalidType          = errors.New("transaction_type: invalid choice")
)

// Transaction is the persisted form of a draft.
type Transaction struct {
	ID                 int64
	UserID             uuid.UUID
	AccountID          *int64
	CreditCardID       *int64
	Type               TransactionType
	Amount             decimal.Decimal
	Description        string
	OccurredAt         time.Time
	CategoryID         *int64
	SubcategoryID      *int64
	TagIDs             []int64
	InstallmentsTotal  int
	InstallmentNumber  int
	InstallmentGroupID *string
	Origin             string
	Hash               string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewTransaction copies the scalar fields of a draft into a transaction owned
// by userID. Links are filled in by the resolver.
func NewTransaction(userID uuid.UUID, d Draft) *Transaction {
	return &Transaction{
		UserID:            userID,
		Type:              d.Type,
		Amount:            d.Amount,
		Description:       d.Description,
		OccurredAt:        d.OccurredAt,
		InstallmentsTotal: d.InstallmentsTotal,
		InstallmentNumber: d.InstallmentNumber,
	}
}

// AssignInstallmentGroup gives multi-installment transactions a group id when
// they do not have one yet.
func (t *Transaction) AssignInstallmentGroup() {
	if t.InstallmentsTotal <= 1 && t.InstallmentNumber <= 1 {
		return
	}
	if t.InstallmentGroupID == nil || *t.InstallmentGroupID == "" {
		id := uuid.NewString()
		t.InstallmentGroupID = &id
	}
}

// Validate enforces the field and cross-field rules a transaction must meet
// before it can be written.
func (t *Transaction) Validate() error {
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, t.Type)
	}
	if t.OccurredAt.IsZero() {
		return ErrMissingOccurredAt
	}
	if err := validateAmount(t.Amount); err != nil {
		return err
	}
	if utf8.RuneCountInString(t.Description) > maxDescriptionLength {
		return fmt.Errorf("description: ensure this value has at most %d characters", maxDescriptionLength)
	}
	if t.AccountID != nil && t.CreditCardID != nil {
		return ErrAccountAndCreditCard
	}
	if t.InstallmentsTotal < 1 {
		return errors.New("installments_total must be greater than 0")
	}
	if t.InstallmentNumber < 1 {
		return errors.New("installment_number must be greater than 0")
	}
	if t.InstallmentNumber > t.InstallmentsTotal {
		return fmt.Errorf("installment_number (%d) cannot be greater than installments_total (%d)",
			t.InstallmentNumber, t.InstallmentsTotal)
	}
	return nil
}

func validateAmount(amount decimal.Decimal) error {
	if -amount.Exponent() > amountPlaces && !amount.Equal(amount.Truncate(amountPlaces)) {
		return fmt.Errorf("amount: ensure that there are no more than %d decimal places", amountPlaces)
	}
	whole := amount.Abs().Truncate(0).String()
	if whole == "0" {
		return nil
	}
	if len(whole) > maxAmountDigits-amountPlaces {
		return fmt.Errorf("amount: ensure that there are no more than %d digits before the decimal point",
			maxAmountDigits-amountPlaces)
	}
	return nil
}

// Fingerprint is the duplicate-detection hash over amount, description and
// occurrence date. The amount is always rendered with two fraction digits so
// equal values hash equally regardless of how they were written in the file.
func Fingerprint(amount decimal.Decimal, description string, occurredAt time.Time) string {
	date := ""
	if !occurredAt.IsZero() {
		date = occurredAt.Format(dateLayout)
	}
	input := amount.StringFixed(amountPlaces) + "|" + description + "|" + date
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}

// RefreshHash recomputes the fingerprint from the current field values.
func (t *Transaction) RefreshHash() {
	t.Hash = Fingerprint(t.Amount, t.Description, t.OccurredAt)
}
