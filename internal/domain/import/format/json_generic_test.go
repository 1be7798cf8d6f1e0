package format

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/model"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/parser"
)

const billJSON = `[
  {"name": "Notebook", "date": "2024-01-10", "total": 300.00, "total_installments": 10, "current_installment": 2,
   "credit_card_name": "Visa", "category": "Shopping", "tags": ["tech", "work"]},
  {"name": "Refund", "date": "11/01/2024", "total": "-25,90", "account_id": 7, "tag": "returns, misc"},
  {"name": "Odd installments", "date": "2024-01-12", "total": 10, "total_installments": "3", "current_installment": 0},
  {"name": "Too far", "date": "2024-01-13", "total": 10, "total_installments": 3, "current_installment": 5},
  {"name": "No total", "date": "2024-01-14"},
  {"name": "Bad date", "date": "someday", "total": 1},
  "not an object"
]`

func TestGenericJSONHandler(t *testing.T) {
	h := NewGenericJSONHandler(testLogger())
	path := writeFixture(t, "bill.json", []byte(billJSON))

	t.Run("parses items", func(t *testing.T) {
		require.True(t, h.CanHandle(path))

		result, err := h.Parse(context.Background(), path, uuid.New())
		require.NoError(t, err)
		require.Len(t, result.Drafts, 2)
		assert.Equal(t, 7, result.TotalRows)

		notebook := result.Drafts[0]
		assertDraft(t, notebook, model.TransactionTypeExpense, "300", "Notebook", day(2024, 1, 10))
		assert.Equal(t, 10, notebook.InstallmentsTotal)
		assert.Equal(t, 2, notebook.InstallmentNumber)
		assert.Equal(t, "Visa", notebook.Hints.CreditCardIdentifier)
		assert.Equal(t, "Shopping", notebook.Hints.CategoryName)
		assert.Equal(t, []string{"tech", "work"}, notebook.Hints.TagsList)

		refund := result.Drafts[1]
		assertDraft(t, refund, model.TransactionTypeIncome, "25.90", "Refund", day(2024, 1, 11))
		assert.Equal(t, "7", refund.Hints.AccountIdentifier)
		assert.Equal(t, "returns, misc", refund.Hints.TagsText)
		assert.Equal(t, 1, refund.InstallmentsTotal, "absent installment keys default to 1")
		assert.Equal(t, 1, refund.InstallmentNumber)

		require.Len(t, result.Skipped, 5)
		assert.Equal(t, 3, result.Skipped[0].Row)
		assert.Equal(t, "current_installment", result.Skipped[0].Field)
		assert.ErrorIs(t, result.Skipped[0], parser.ErrInvalidValue)
		assert.Equal(t, 4, result.Skipped[1].Row)
		assert.Contains(t, result.Skipped[1].Error(), "cannot be greater than")
		assert.Equal(t, "row 5: missing required field: total", result.Skipped[2].Error())
		assert.ErrorIs(t, result.Skipped[3], parser.ErrInvalidDate)
		assert.ErrorIs(t, result.Skipped[4], parser.ErrInvalidValue)
	})

	t.Run("present installment values must be positive integers", func(t *testing.T) {
		cases := map[string]struct {
			item  string
			field string
		}{
			"string total":   {`"total_installments": "3"`, "total_installments"},
			"zero current":   {`"current_installment": 0`, "current_installment"},
			"negative total": {`"total_installments": -2`, "total_installments"},
			"float current":  {`"current_installment": 1.5`, "current_installment"},
			"null total":     {`"total_installments": null`, "total_installments"},
		}
		for name, tc := range cases {
			t.Run(name, func(t *testing.T) {
				doc := `[{"name": "x", "date": "2024-01-12", "total": 10, ` + tc.item + `}]`
				result, err := h.Parse(context.Background(), writeFixture(t, "inst.json", []byte(doc)), uuid.New())
				require.NoError(t, err)
				assert.Empty(t, result.Drafts)
				require.Len(t, result.Skipped, 1)
				assert.Equal(t, tc.field, result.Skipped[0].Field)
				assert.ErrorIs(t, result.Skipped[0], parser.ErrInvalidValue)
			})
		}
	})

	t.Run("detection reads the first element only", func(t *testing.T) {
		truncated := writeFixture(t, "truncated.json", []byte(`[{"name": "a", "date": "2024-01-01", "total": 1}, {"name": `))
		assert.True(t, h.CanHandle(truncated))

		_, err := h.Parse(context.Background(), truncated, uuid.New())
		assert.Error(t, err, "the full parse still rejects malformed json")
	})

	t.Run("rejects other shapes", func(t *testing.T) {
		obj := writeFixture(t, "object.json", []byte(`{"name": "a", "date": "2024-01-01", "total": 1}`))
		assert.False(t, h.CanHandle(obj))
		_, err := h.Parse(context.Background(), obj, uuid.New())
		assert.ErrorIs(t, err, ErrNotJSONArray)

		assert.False(t, h.CanHandle(writeFixture(t, "fields.json", []byte(`[{"title": "a"}]`))))
		assert.False(t, h.CanHandle(writeFixture(t, "garbage.json", []byte(`not json`))))
	})

	t.Run("empty array", func(t *testing.T) {
		empty := writeFixture(t, "empty.json", []byte("\uFEFF[]"))
		assert.True(t, h.CanHandle(empty))
		result, err := h.Parse(context.Background(), empty, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, result.Drafts)
	})
}
