// Package format turns bank exports into transaction drafts. Each Handler
// recognises one layout; a Factory picks the first handler that accepts a
// file.
package format

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/model"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/parser"
)

// Handler recognises and parses one file layout.
type Handler interface {
	// CanHandle reports whether the file at path matches the layout. It reads
	// at most a bounded probe and never returns an error.
	CanHandle(path string) bool
	// Parse reads the whole file. Rows that fail are reported in
	// ParseResult.Skipped; only file-level failures are returned as errors.
	Parse(ctx context.Context, path string, owner uuid.UUID) (*ParseResult, error)
}

// Named is implemented by handlers that report a stable name for job records.
type Named interface {
	Name() string
}

// HandlerName returns the name recorded as a job's handler_type.
func HandlerName(h Handler) string {
	if n, ok := h.(Named); ok {
		return n.Name()
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", h), "*")
}

// ParseResult is the outcome of parsing one file.
type ParseResult struct {
	Drafts    []model.Draft
	Skipped   []*parser.ParseError
	TotalRows int
}

func (r *ParseResult) add(d model.Draft) {
	r.TotalRows++
	r.Drafts = append(r.Drafts, d)
}

func (r *ParseResult) skip(ctx context.Context, logger *slog.Logger, handler string, err *parser.ParseError) {
	r.TotalRows++
	r.Skipped = append(r.Skipped, err)
	logger.WarnContext(ctx, "skipping row",
		"handler", handler,
		"row", err.Row,
		"error", err.Error(),
	)
}

// applySign maps a signed amount to a transaction type using the layout's
// convention for negative values. The returned amount is non-negative.
func applySign(amount decimal.Decimal, negativeIs model.TransactionType) (model.TransactionType, decimal.Decimal) {
	if amount.IsNegative() {
		return negativeIs, amount.Abs()
	}
	if negativeIs == model.TransactionTypeExpense {
		return model.TransactionTypeIncome, amount
	}
	return model.TransactionTypeExpense, amount
}

func requireValue(row int, field, raw string) (string, *parser.ParseError) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", parser.MissingField(row, field)
	}
	return v, nil
}

// requireDate parses a mandatory date. Placeholders such as "00/00/0000" are
// rejected like any other invalid value.
func requireDate(row int, field, raw string, parse func(string) (time.Time, error)) (time.Time, *parser.ParseError) {
	v, perr := requireValue(row, field, raw)
	if perr != nil {
		return time.Time{}, perr
	}
	t, err := parse(v)
	if err != nil || t.IsZero() {
		return time.Time{}, &parser.ParseError{Row: row, Field: field, Kind: parser.KindInvalidDate, Value: v}
	}
	return t, nil
}

func requireAmount(row int, field, raw string, parse func(string) (decimal.Decimal, error)) (decimal.Decimal, *parser.ParseError) {
	v, perr := requireValue(row, field, raw)
	if perr != nil {
		return decimal.Zero, perr
	}
	amount, err := parse(v)
	if err != nil {
		return decimal.Zero, &parser.ParseError{Row: row, Field: field, Kind: parser.KindInvalidAmount, Value: v, Err: err}
	}
	return amount, nil
}
