package format

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFixture(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

// writeXLSX saves rows to Sheet1 of a new workbook, one slice per row.
func writeXLSX(t *testing.T, name string, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, f.SaveAs(path))
	return path
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func assertDraft(t *testing.T, d model.Draft, txType model.TransactionType, amount, description string, occurredAt time.Time) {
	t.Helper()
	assert.Equal(t, txType, d.Type, "type of row %d", d.Row)
	assert.True(t, decimal.RequireFromString(amount).Equal(d.Amount), "amount of row %d: got %s", d.Row, d.Amount)
	assert.Equal(t, description, d.Description)
	assert.Equal(t, occurredAt, d.OccurredAt)
}
