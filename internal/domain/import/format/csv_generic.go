package format

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/model"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/parser"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/sniffer"
)

// Column synonyms understood by the generic CSV handler, in lookup order.
var (
	dateColumns              = []string{"date", "occurred_at", "transaction_date", "occurred_date"}
	amountColumns            = []string{"amount", "value", "total"}
	descriptionColumns       = []string{"description", "name", "memo", "note"}
	typeColumns              = []string{"transaction_type", "type"}
	accountColumns           = []string{"account", "account_id", "account_name"}
	creditCardColumns        = []string{"credit_card", "credit_card_id", "credit_card_name"}
	categoryColumns          = []string{"category", "category_name"}
	subcategoryColumns       = []string{"subcategory", "subcategory_name"}
	tagsColumns              = []string{"tags", "tag"}
	installmentsTotalColumns = []string{"installments_total", "total_installments"}
	installmentNumberColumns = []string{"installment_number", "current_installment"}
)

var typeAliases = map[string]model.TransactionType{
	"INCOME":   model.TransactionTypeIncome,
	"I":        model.TransactionTypeIncome,
	"IN":       model.TransactionTypeIncome,
	"EXPENSE":  model.TransactionTypeExpense,
	"E":        model.TransactionTypeExpense,
	"EX":       model.TransactionTypeExpense,
	"EXP":      model.TransactionTypeExpense,
	"TRANSFER": model.TransactionTypeTransfer,
	"T":        model.TransactionTypeTransfer,
	"TR":       model.TransactionTypeTransfer,
	"TRANS":    model.TransactionTypeTransfer,
}

// ParseTransactionType resolves a type column value, accepting the short
// aliases ("I", "EXP", "TR", ...). Matching is case-insensitive.
func ParseTransactionType(s string) (model.TransactionType, error) {
	if t, ok := typeAliases[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown transaction type %q", strings.TrimSpace(s))
}

// GenericCSVHandler accepts any delimited file whose header has a date and
// an amount column. It is the fallback for CSV uploads. Without a type
// column, negative amounts are income.
type GenericCSVHandler struct {
	logger *slog.Logger
}

func NewGenericCSVHandler(logger *slog.Logger) *GenericCSVHandler {
	return &GenericCSVHandler{logger: logger}
}

func (h *GenericCSVHandler) Name() string { return "GenericCSVHandler" }

func (h *GenericCSVHandler) CanHandle(path string) bool {
	head, err := sniffer.ReadHead(path, sniffer.ProbeLimit)
	if err != nil {
		return false
	}
	cfg, err := sniffer.Probe(head, sniffer.Options{})
	if err != nil {
		return false
	}
	return cfg.Index(dateColumns...) >= 0 && cfg.Index(amountColumns...) >= 0
}

func (h *GenericCSVHandler) Parse(ctx context.Context, path string, owner uuid.UUID) (*ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := sniffer.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	result := &ParseResult{}
	cfg, err := sniffer.Probe(data, sniffer.Options{})
	if errors.Is(err, sniffer.ErrEmptyFile) {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	reader := sniffer.NewReader(data, cfg.Delimiter)
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	for rowNum := 2; ; rowNum++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", rowNum, err)
		}

		draft, perr := h.parseRow(genericRecord{cfg: cfg, values: record}, rowNum)
		if perr != nil {
			result.skip(ctx, h.logger, h.Name(), perr)
			continue
		}
		result.add(draft)
	}

	h.logger.DebugContext(ctx, "parsed generic csv",
		"owner", owner,
		"fingerprint", cfg.Fingerprint,
		"rows", result.TotalRows,
		"skipped", len(result.Skipped),
	)
	return result, nil
}

// genericRecord looks values up by column synonym.
type genericRecord struct {
	cfg    *sniffer.FileConfig
	values []string
}

// get returns the first non-empty value among the synonym columns.
func (r genericRecord) get(names []string) string {
	for _, name := range names {
		idx := r.cfg.Index(name)
		if idx < 0 || idx >= len(r.values) {
			continue
		}
		if v := strings.TrimSpace(r.values[idx]); v != "" {
			return v
		}
	}
	return ""
}

func (h *GenericCSVHandler) parseRow(r genericRecord, rowNum int) (model.Draft, *parser.ParseError) {
	occurredAt, perr := requireDate(rowNum, "date", r.get(dateColumns), parseGenericDate)
	if perr != nil {
		return model.Draft{}, perr
	}

	amount, perr := requireAmount(rowNum, "amount", r.get(amountColumns), parser.ParseFlexibleAmount)
	if perr != nil {
		return model.Draft{}, perr
	}

	var txType model.TransactionType
	if raw := r.get(typeColumns); raw != "" {
		t, err := ParseTransactionType(raw)
		if err != nil {
			return model.Draft{}, parser.InvalidValue(rowNum, "transaction_type", raw, err)
		}
		txType, amount = t, amount.Abs()
	} else {
		txType, amount = applySign(amount, model.TransactionTypeIncome)
	}

	draft := model.NewDraft(rowNum, txType, amount, r.get(descriptionColumns), occurredAt)
	draft.InstallmentsTotal = lenientInstallment(r.get(installmentsTotalColumns))
	draft.InstallmentNumber = lenientInstallment(r.get(installmentNumberColumns))
	draft.Hints = model.ImportHints{
		AccountIdentifier:    r.get(accountColumns),
		CreditCardIdentifier: r.get(creditCardColumns),
		CategoryName:         r.get(categoryColumns),
		SubcategoryName:      r.get(subcategoryColumns),
		TagsText:             r.get(tagsColumns),
	}
	return draft, nil
}

// parseGenericDate tries the generic layouts first, then the statement
// layouts, which also cover ISO datetimes.
func parseGenericDate(s string) (time.Time, error) {
	if t, err := parser.ParseDateLayouts(s, parser.GenericDateLayouts...); err == nil {
		return t, nil
	}
	return parser.ParseDate(s)
}

// lenientInstallment reads an installment counter, falling back to 1 for
// blank, non-numeric or non-positive values.
func lenientInstallment(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
