package format

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/model"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/parser"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/sniffer"
)

var interCreditCardHeaders = []string{"data", "lançamento", "categoria", "tipo", "valor"}

type interCreditCardRow struct {
	Date     string `csv:"data"`
	Entry    string `csv:"lancamento"`
	Category string `csv:"categoria"`
	Kind     string `csv:"tipo"`
	Amount   string `csv:"valor"`
}

// InterCreditCardCSVHandler reads Banco Inter credit card bills. Charges are
// positive; negative values are payments and refunds credited to the card.
type InterCreditCardCSVHandler struct {
	logger *slog.Logger
}

func NewInterCreditCardCSVHandler(logger *slog.Logger) *InterCreditCardCSVHandler {
	return &InterCreditCardCSVHandler{logger: logger}
}

func (h *InterCreditCardCSVHandler) Name() string { return "InterCreditCardCSVHandler" }

func (h *InterCreditCardCSVHandler) CanHandle(path string) bool {
	head, err := sniffer.ReadHead(path, sniffer.ProbeLimit)
	if err != nil {
		return false
	}
	cfg, err := sniffer.Probe(head, sniffer.Options{Delimiter: ','})
	if err != nil {
		return false
	}
	return cfg.Has(interCreditCardHeaders...)
}

func (h *InterCreditCardCSVHandler) Parse(ctx context.Context, path string, owner uuid.UUID) (*ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := sniffer.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credit card bill: %w", err)
	}

	rows, err := unmarshalRows[interCreditCardRow](data, ',')
	if err != nil {
		return nil, err
	}

	result := &ParseResult{}
	for i, row := range rows {
		draft, perr := h.parseRow(row, i+2)
		if perr != nil {
			result.skip(ctx, h.logger, h.Name(), perr)
			continue
		}
		result.add(draft)
	}

	h.logger.DebugContext(ctx, "parsed inter credit card bill",
		"owner", owner,
		"rows", result.TotalRows,
		"skipped", len(result.Skipped),
	)
	return result, nil
}

func (h *InterCreditCardCSVHandler) parseRow(row interCreditCardRow, rowNum int) (model.Draft, *parser.ParseError) {
	occurredAt, perr := requireDate(rowNum, "data", row.Date, parser.ParseDate)
	if perr != nil {
		return model.Draft{}, perr
	}

	amount, perr := requireAmount(rowNum, "valor", row.Amount, parser.ParseAmount)
	if perr != nil {
		return model.Draft{}, perr
	}

	txType, amount := applySign(amount, model.TransactionTypeIncome)
	return model.NewDraft(rowNum, txType, amount, strings.TrimSpace(row.Entry), occurredAt), nil
}
