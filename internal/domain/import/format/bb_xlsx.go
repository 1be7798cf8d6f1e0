package format

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/model"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/normalizer"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/parser"
)

const (
	bbColDate      = "data"
	bbColEntry     = "lançamento"
	bbColDetails   = "detalhes"
	bbColAmount    = "valor"
	bbColEntryType = "tipo lançamento"
)

var (
	bbDocumentAliases = []string{"n° documento", "nº documento", "no documento", "numero documento"}
	bbIgnorePatterns  = []string{"saldo", "saldo do dia"}
)

// BBStatementXLSXHandler reads Banco do Brasil account statements exported as
// spreadsheets. The "tipo lançamento" column decides the direction when
// present; otherwise negative values are expenses. Balance rows are dropped.
type BBStatementXLSXHandler struct {
	logger *slog.Logger
}

func NewBBStatementXLSXHandler(logger *slog.Logger) *BBStatementXLSXHandler {
	return &BBStatementXLSXHandler{logger: logger}
}

func (h *BBStatementXLSXHandler) Name() string { return "BBStatementXLSXHandler" }

// bbColumns maps folded header names to column indexes.
type bbColumns map[string]int

func newBBColumns(header []string) bbColumns {
	cols := make(bbColumns, len(header))
	for i, name := range header {
		key := normalizer.Fold(name)
		if _, dup := cols[key]; !dup && key != "" {
			cols[key] = i
		}
	}
	return cols
}

func (c bbColumns) index(names ...string) int {
	for _, name := range names {
		if i, ok := c[normalizer.Fold(name)]; ok {
			return i
		}
	}
	return -1
}

func (c bbColumns) complete() bool {
	for _, name := range []string{bbColDate, bbColEntry, bbColDetails, bbColAmount, bbColEntryType} {
		if c.index(name) < 0 {
			return false
		}
	}
	return c.index(bbDocumentAliases...) >= 0
}

// CanHandle streams only the first non-empty row of the first sheet.
func (h *BBStatementXLSXHandler) CanHandle(path string) bool {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return false
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return false
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		header, err := rows.Columns()
		if err != nil {
			return false
		}
		if isBlankRow(header) {
			continue
		}
		return newBBColumns(header).complete()
	}
	return false
}

func (h *BBStatementXLSXHandler) Parse(ctx context.Context, path string, owner uuid.UUID) (*ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &ParseResult{}, nil
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}

	headerIdx := -1
	for i, row := range rows {
		if !isBlankRow(row) {
			headerIdx = i
			break
		}
	}

	result := &ParseResult{}
	if headerIdx < 0 {
		return result, nil
	}

	cells := &bbSheet{file: f, sheet: sheet, cols: newBBColumns(rows[headerIdx])}
	for i := headerIdx + 1; i < len(rows); i++ {
		if isBlankRow(rows[i]) {
			continue
		}
		// spreadsheet rows are 1-based
		rowNum := i + 1
		draft, keep, perr := h.parseRow(cells, rows[i], rowNum)
		if perr != nil {
			result.skip(ctx, h.logger, h.Name(), perr)
			continue
		}
		if keep {
			result.add(draft)
		}
	}

	h.logger.DebugContext(ctx, "parsed bb statement",
		"owner", owner,
		"sheet", sheet,
		"rows", result.TotalRows,
		"skipped", len(result.Skipped),
	)
	return result, nil
}

// bbSheet reads cell values together with their stored type, so numbers and
// date serials can be told apart from text written in the Brazilian format.
type bbSheet struct {
	file  *excelize.File
	sheet string
	cols  bbColumns
}

func (s *bbSheet) value(row []string, names ...string) string {
	i := s.cols.index(names...)
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// numeric reports whether the named column of rowNum holds a number cell.
func (s *bbSheet) numeric(rowNum int, name string) bool {
	i := s.cols.index(name)
	if i < 0 {
		return false
	}
	cell, err := excelize.CoordinatesToCellName(i+1, rowNum)
	if err != nil {
		return false
	}
	cellType, err := s.file.GetCellType(s.sheet, cell)
	if err != nil {
		return false
	}
	return cellType == excelize.CellTypeUnset || cellType == excelize.CellTypeNumber
}

// parseRow returns keep=false for balance rows.
func (h *BBStatementXLSXHandler) parseRow(s *bbSheet, row []string, rowNum int) (model.Draft, bool, *parser.ParseError) {
	entry := s.value(row, bbColEntry)
	folded := normalizer.Fold(entry)
	for _, pattern := range bbIgnorePatterns {
		if strings.Contains(folded, pattern) {
			return model.Draft{}, false, nil
		}
	}

	occurredAt, perr := requireDate(rowNum, bbColDate, s.value(row, bbColDate), func(raw string) (time.Time, error) {
		if s.numeric(rowNum, bbColDate) {
			if serial, err := strconv.ParseFloat(raw, 64); err == nil {
				return parser.DateFromSerial(serial)
			}
		}
		return parser.ParseDate(raw)
	})
	if perr != nil {
		return model.Draft{}, false, perr
	}

	amount, perr := requireAmount(rowNum, bbColAmount, s.value(row, bbColAmount), func(raw string) (decimal.Decimal, error) {
		if s.numeric(rowNum, bbColAmount) {
			if d, err := decimal.NewFromString(raw); err == nil {
				return d, nil
			}
		}
		return parser.ParseAmount(raw)
	})
	if perr != nil {
		return model.Draft{}, false, perr
	}

	var txType model.TransactionType
	switch normalizer.Fold(s.value(row, bbColEntryType)) {
	case "entrada":
		txType, amount = model.TransactionTypeIncome, amount.Abs()
	case "saida":
		txType, amount = model.TransactionTypeExpense, amount.Abs()
	default:
		txType, amount = applySign(amount, model.TransactionTypeExpense)
	}

	description := normalizer.JoinNonEmpty(" - ", entry, s.value(row, bbColDetails))
	return model.NewDraft(rowNum, txType, amount, description, occurredAt), true, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
