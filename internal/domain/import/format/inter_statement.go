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

const (
	interStatementSkipLines = 5
	// first data row: metadata lines, header line, 1-based
	interStatementFirstRow = interStatementSkipLines + 2
)

var interStatementHeaders = []string{"data lançamento", "descrição", "valor", "saldo"}

type interStatementRow struct {
	Date        string `csv:"data lancamento"`
	Description string `csv:"descricao"`
	Amount      string `csv:"valor"`
	Balance     string `csv:"saldo"`
}

// InterStatementCSVHandler reads Banco Inter checking account statements:
// five metadata lines, then a ';' separated table. Negative values are
// money leaving the account.
type InterStatementCSVHandler struct {
	logger *slog.Logger
}

func NewInterStatementCSVHandler(logger *slog.Logger) *InterStatementCSVHandler {
	return &InterStatementCSVHandler{logger: logger}
}

func (h *InterStatementCSVHandler) Name() string { return "InterStatementCSVHandler" }

func (h *InterStatementCSVHandler) CanHandle(path string) bool {
	head, err := sniffer.ReadHead(path, sniffer.ProbeLimit)
	if err != nil {
		return false
	}
	cfg, err := sniffer.Probe(head, sniffer.Options{SkipLines: interStatementSkipLines, Delimiter: ';'})
	if err != nil {
		return false
	}
	return cfg.Has(interStatementHeaders...)
}

func (h *InterStatementCSVHandler) Parse(ctx context.Context, path string, owner uuid.UUID) (*ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := sniffer.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read statement: %w", err)
	}

	rows, err := unmarshalRows[interStatementRow](sniffer.SkipLines(data, interStatementSkipLines), ';')
	if err != nil {
		return nil, err
	}

	result := &ParseResult{}
	for i, row := range rows {
		draft, perr := h.parseRow(row, i+interStatementFirstRow)
		if perr != nil {
			result.skip(ctx, h.logger, h.Name(), perr)
			continue
		}
		result.add(draft)
	}

	h.logger.DebugContext(ctx, "parsed inter statement",
		"owner", owner,
		"rows", result.TotalRows,
		"skipped", len(result.Skipped),
	)
	return result, nil
}

func (h *InterStatementCSVHandler) parseRow(row interStatementRow, rowNum int) (model.Draft, *parser.ParseError) {
	occurredAt, perr := requireDate(rowNum, "data lançamento", row.Date, parser.ParseDate)
	if perr != nil {
		return model.Draft{}, perr
	}

	amount, perr := requireAmount(rowNum, "valor", row.Amount, parser.ParseAmount)
	if perr != nil {
		return model.Draft{}, perr
	}

	txType, amount := applySign(amount, model.TransactionTypeExpense)
	return model.NewDraft(rowNum, txType, amount, strings.TrimSpace(row.Description), occurredAt), nil
}
