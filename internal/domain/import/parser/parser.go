// Package parser provides the locale-aware amount and date parsing shared by
// every format handler, along with the row-level error type handlers report.
package parser

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ErrorKind classifies a row-level parse failure.
type ErrorKind string

const (
	KindMissingField  ErrorKind = "missing_field"
	KindInvalidAmount ErrorKind = "invalid_amount"
	KindInvalidDate   ErrorKind = "invalid_date"
	KindInvalidValue  ErrorKind = "invalid_value"
)

var (
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidValue  = errors.New("invalid value")
)

// ParseError represents a parsing error for a specific row
type ParseError struct {
	Row   int
	Field string
	Kind  ErrorKind
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	msg := e.sentinel().Error()
	switch {
	case e.Kind == KindMissingField:
		msg += ": " + e.Field
	case e.Kind == KindInvalidValue && e.Err != nil:
		msg = fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	case e.Value != "":
		msg += ": " + e.Value
	}
	if e.Row > 0 {
		return fmt.Sprintf("row %d: %s", e.Row, msg)
	}
	return msg
}

// Unwrap lets callers match on the sentinel kind with errors.Is.
func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.sentinel(), e.Err}
	}
	return []error{e.sentinel()}
}

func (e *ParseError) sentinel() error {
	switch e.Kind {
	case KindMissingField:
		return ErrMissingField
	case KindInvalidAmount:
		return ErrInvalidAmount
	case KindInvalidDate:
		return ErrInvalidDate
	default:
		return ErrInvalidValue
	}
}

// MissingField builds a MissingField error for row.
func MissingField(row int, field string) *ParseError {
	return &ParseError{Row: row, Field: field, Kind: KindMissingField}
}

// InvalidValue builds a generic InvalidValue error for row.
func InvalidValue(row int, field, value string, err error) *ParseError {
	return &ParseError{Row: row, Field: field, Kind: KindInvalidValue, Value: value, Err: err}
}

// ParseAmount parses an amount written in the Brazilian Real convention:
// optional "R$" prefix, "." as thousands separator, "," as decimal separator
// and a leading "-" for negatives ("-R$ 1.468,78", "-5,00", "5.000,00").
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "R$", ""))

	negative := strings.HasPrefix(s, "-")
	if negative {
		s = strings.TrimSpace(s[1:])
	}

	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")

	return finishAmount(raw, s, negative)
}

// ParseFlexibleAmount accepts either plain decimal notation ("-12.50",
// "1,234.56") or the Brazilian convention ("1.234,56"). The separator that
// appears last is taken as the decimal separator.
func ParseFlexibleAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "R$", ""))

	negative := strings.HasPrefix(s, "-")
	if negative {
		s = strings.TrimSpace(s[1:])
	}

	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	if comma > dot {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	return finishAmount(raw, s, negative)
}

func finishAmount(raw, normalized string, negative bool) (decimal.Decimal, error) {
	if normalized == "" || strings.ContainsAny(normalized, "-eE") {
		return decimal.Zero, &ParseError{Kind: KindInvalidAmount, Value: strings.TrimSpace(raw)}
	}

	amount, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, &ParseError{Kind: KindInvalidAmount, Value: strings.TrimSpace(raw), Err: err}
	}

	if negative {
		amount = amount.Neg()
	}
	return amount, nil
}

// Date layouts tried by ParseDate, in order.
var defaultDateLayouts = []string{
	"2/1/2006",
	"2/1/06",
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// GenericDateLayouts are the layouts used by the generic CSV and JSON
// handlers, ISO first.
var GenericDateLayouts = []string{
	"2006-01-02",
	"2/1/2006",
	"1/2/2006",
	"2006/01/02",
	"02-01-2006",
	"01-02-2006",
}

// IsNoDate reports whether s is one of the placeholders banks use for rows
// without a date.
func IsNoDate(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "00/00/0000", "00/00/00", "nan":
		return true
	}
	return false
}

// ParseDate tries DD/MM/YYYY, DD/MM/YY and ISO-8601 in that order. The
// placeholders recognised by IsNoDate yield the zero time and no error.
func ParseDate(raw string) (time.Time, error) {
	return ParseDateLayouts(raw, defaultDateLayouts...)
}

// ParseDateLayouts parses raw with the given layouts in order. The result is
// truncated to a UTC calendar date.
func ParseDateLayouts(raw string, layouts ...string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if IsNoDate(s) {
		return time.Time{}, nil
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return toDate(t), nil
		}
	}

	return time.Time{}, &ParseError{Kind: KindInvalidDate, Value: s}
}

// DateFromSerial converts a spreadsheet date serial (days since 1899-12-30)
// into a calendar date.
func DateFromSerial(serial float64) (time.Time, error) {
	if serial <= 0 {
		return time.Time{}, nil
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, &ParseError{Kind: KindInvalidDate, Value: fmt.Sprintf("%v", serial), Err: err}
	}
	return toDate(t), nil
}

func toDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
