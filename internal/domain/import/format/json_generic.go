package format

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/model"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/parser"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/sniffer"
)

var (
	ErrNotJSONArray = errors.New("json file must contain a list of transactions")

	jsonRequiredFields = []string{"name", "date", "total"}

	jsonAccountKeys     = []string{"account", "account_id", "account_name"}
	jsonCreditCardKeys  = []string{"credit_card", "credit_card_id", "credit_card_name"}
	jsonCategoryKeys    = []string{"category", "category_name"}
	jsonSubcategoryKeys = []string{"subcategory", "subcategory_name"}
	jsonTagsKeys        = []string{"tags", "tag"}
)

// GenericJSONHandler reads a top-level array of {name, date, total, ...}
// objects. Negative totals are income, as in card bill exports.
type GenericJSONHandler struct {
	logger *slog.Logger
}

func NewGenericJSONHandler(logger *slog.Logger) *GenericJSONHandler {
	return &GenericJSONHandler{logger: logger}
}

func (h *GenericJSONHandler) Name() string { return "GenericJSONHandler" }

// CanHandle decodes only the opening bracket and the first element.
func (h *GenericJSONHandler) CanHandle(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	dec := json.NewDecoder(skipBOM(io.LimitReader(f, sniffer.ProbeLimit)))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('[') {
		return false
	}
	if !dec.More() {
		return true
	}

	var first map[string]json.RawMessage
	if err := dec.Decode(&first); err != nil {
		return false
	}
	for _, field := range jsonRequiredFields {
		if _, ok := first[field]; !ok {
			return false
		}
	}
	return true
}

func (h *GenericJSONHandler) Parse(ctx context.Context, path string, owner uuid.UUID) (*ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := sniffer.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var items []any
	if err := dec.Decode(&items); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, ErrNotJSONArray
		}
		return nil, fmt.Errorf("invalid json: %w", err)
	}

	result := &ParseResult{}
	for i, item := range items {
		draft, perr := h.parseItem(item, i+1)
		if perr != nil {
			result.skip(ctx, h.logger, h.Name(), perr)
			continue
		}
		result.add(draft)
	}

	h.logger.DebugContext(ctx, "parsed generic json",
		"owner", owner,
		"rows", result.TotalRows,
		"skipped", len(result.Skipped),
	)
	return result, nil
}

func (h *GenericJSONHandler) parseItem(item any, row int) (model.Draft, *parser.ParseError) {
	obj, ok := item.(map[string]any)
	if !ok {
		return model.Draft{}, parser.InvalidValue(row, "item", fmt.Sprint(item), errors.New("expected an object"))
	}

	for _, field := range jsonRequiredFields {
		if _, ok := obj[field]; !ok {
			return model.Draft{}, parser.MissingField(row, field)
		}
	}

	occurredAt, perr := requireDate(row, "date", jsonString(obj["date"]), parseGenericDate)
	if perr != nil {
		return model.Draft{}, perr
	}

	amount, perr := jsonAmount(row, obj["total"])
	if perr != nil {
		return model.Draft{}, perr
	}

	txType, amount := applySign(amount, model.TransactionTypeIncome)
	draft := model.NewDraft(row, txType, amount, strings.TrimSpace(jsonString(obj["name"])), occurredAt)

	if draft.InstallmentNumber, perr = jsonInstallment(row, "current_installment", obj); perr != nil {
		return model.Draft{}, perr
	}
	if draft.InstallmentsTotal, perr = jsonInstallment(row, "total_installments", obj); perr != nil {
		return model.Draft{}, perr
	}
	if draft.InstallmentNumber > draft.InstallmentsTotal {
		return model.Draft{}, parser.InvalidValue(row, "current_installment", fmt.Sprint(draft.InstallmentNumber),
			fmt.Errorf("current_installment (%d) cannot be greater than total_installments (%d)",
				draft.InstallmentNumber, draft.InstallmentsTotal))
	}

	draft.Hints = model.ImportHints{
		AccountIdentifier:    firstJSONString(obj, jsonAccountKeys),
		CreditCardIdentifier: firstJSONString(obj, jsonCreditCardKeys),
		CategoryName:         firstJSONString(obj, jsonCategoryKeys),
		SubcategoryName:      firstJSONString(obj, jsonSubcategoryKeys),
	}
	for _, key := range jsonTagsKeys {
		switch v := obj[key].(type) {
		case string:
			draft.Hints.TagsText = v
		case []any:
			for _, tag := range v {
				draft.Hints.TagsList = append(draft.Hints.TagsList, jsonString(tag))
			}
		}
		if draft.Hints.HasTags() {
			break
		}
	}

	return draft, nil
}

func jsonAmount(row int, v any) (decimal.Decimal, *parser.ParseError) {
	switch n := v.(type) {
	case json.Number:
		amount, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero, &parser.ParseError{Row: row, Field: "total", Kind: parser.KindInvalidAmount, Value: n.String(), Err: err}
		}
		return amount, nil
	case string:
		return requireAmount(row, "total", n, parser.ParseFlexibleAmount)
	default:
		return decimal.Zero, &parser.ParseError{Row: row, Field: "total", Kind: parser.KindInvalidAmount, Value: fmt.Sprint(v)}
	}
}

var errPositiveInteger = errors.New("expected a positive integer")

// jsonInstallment defaults an absent key to 1. A present value must be a
// positive integer.
func jsonInstallment(row int, field string, obj map[string]any) (int, *parser.ParseError) {
	v, ok := obj[field]
	if !ok {
		return 1, nil
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, parser.InvalidValue(row, field, fmt.Sprint(v), errPositiveInteger)
	}
	i, err := n.Int64()
	if err != nil || i < 1 {
		return 0, parser.InvalidValue(row, field, n.String(), errPositiveInteger)
	}
	return int(i), nil
}

func jsonString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

func firstJSONString(obj map[string]any, keys []string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(jsonString(obj[key])); v != "" {
			return v
		}
	}
	return ""
}

func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && string(b) == "\uFEFF" {
		_, _ = br.Discard(3)
	}
	return br
}
