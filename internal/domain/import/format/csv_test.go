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

const interStatementCSV = "Extrato Conta Corrente\n" +
	"Conta ;12345678\n" +
	"Período ;01/01/2024 a 31/01/2024\n" +
	"Saldo ;3.759,50\n" +
	"\n" +
	"Data Lançamento;Descrição;Valor;Saldo\n" +
	"15/01/2024;Market;-120,50;879,50\n" +
	"16/01/2024;Salary;3000,00;3.879,50\n" +
	"00/00/0000;Broken;1,00;3.880,50\n"

const interCardCSV = `"Data","Lançamento","Categoria","Tipo","Valor"
"15/01/2024","RESTAURANTE SABOR","RESTAURANTES","Compra à vista","R$ 50,00"
"16/01/2024","PAGAMENTO ON LINE","OUTROS","Pagamento","-R$ 50,00"
"17/01/2024","LOJA","COMPRAS","Parcela 2/10","R$ 1.468,78"
"18/01/2024","SEM VALOR","OUTROS","Compra à vista",""
`

func TestInterStatementCSVHandler(t *testing.T) {
	h := NewInterStatementCSVHandler(testLogger())
	path := writeFixture(t, "extrato.csv", []byte(interStatementCSV))

	t.Run("detects the layout", func(t *testing.T) {
		assert.True(t, h.CanHandle(path))
		assert.False(t, h.CanHandle(writeFixture(t, "card.csv", []byte(interCardCSV))))
		assert.False(t, h.CanHandle(path+".missing"), "missing files are not handled")
	})

	t.Run("negative values are expenses", func(t *testing.T) {
		result, err := h.Parse(context.Background(), path, uuid.New())
		require.NoError(t, err)

		require.Len(t, result.Drafts, 2)
		assertDraft(t, result.Drafts[0], model.TransactionTypeExpense, "120.50", "Market", day(2024, 1, 15))
		assertDraft(t, result.Drafts[1], model.TransactionTypeIncome, "3000.00", "Salary", day(2024, 1, 16))
		assert.Equal(t, 7, result.Drafts[0].Row, "data starts after five metadata lines and the header")
		assert.Equal(t, 1, result.Drafts[0].InstallmentsTotal)

		require.Len(t, result.Skipped, 1)
		assert.Equal(t, 9, result.Skipped[0].Row)
		assert.ErrorIs(t, result.Skipped[0], parser.ErrInvalidDate)
		assert.Equal(t, 3, result.TotalRows)
	})

	t.Run("latin1 export", func(t *testing.T) {
		latin1 := []byte("x\nx\nx\nx\n\nData Lan\xe7amento;Descri\xe7\xe3o;Valor;Saldo\n15/01/2024;P\xe3o;-5,00;1,00\n")
		latinPath := writeFixture(t, "latin1.csv", latin1)
		require.True(t, h.CanHandle(latinPath))

		result, err := h.Parse(context.Background(), latinPath, uuid.New())
		require.NoError(t, err)
		require.Len(t, result.Drafts, 1)
		assertDraft(t, result.Drafts[0], model.TransactionTypeExpense, "5", "Pão", day(2024, 1, 15))
	})

	t.Run("header only", func(t *testing.T) {
		p := writeFixture(t, "empty.csv", []byte("a\nb\nc\nd\n\nData Lançamento;Descrição;Valor;Saldo\n"))
		result, err := h.Parse(context.Background(), p, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, result.Drafts)
	})
}

func TestInterCreditCardCSVHandler(t *testing.T) {
	h := NewInterCreditCardCSVHandler(testLogger())
	path := writeFixture(t, "fatura.csv", []byte(interCardCSV))

	require.True(t, h.CanHandle(path))
	assert.False(t, h.CanHandle(writeFixture(t, "extrato.csv", []byte(interStatementCSV))))

	result, err := h.Parse(context.Background(), path, uuid.New())
	require.NoError(t, err)

	require.Len(t, result.Drafts, 3)
	assertDraft(t, result.Drafts[0], model.TransactionTypeExpense, "50.00", "RESTAURANTE SABOR", day(2024, 1, 15))
	assertDraft(t, result.Drafts[1], model.TransactionTypeIncome, "50.00", "PAGAMENTO ON LINE", day(2024, 1, 16))
	assertDraft(t, result.Drafts[2], model.TransactionTypeExpense, "1468.78", "LOJA", day(2024, 1, 17))
	assert.Equal(t, 2, result.Drafts[0].Row)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "row 5: missing required field: valor", result.Skipped[0].Error())
	assert.Equal(t, 4, result.TotalRows)
}

func TestGenericCSVHandler(t *testing.T) {
	h := NewGenericCSVHandler(testLogger())

	t.Run("columns by synonym", func(t *testing.T) {
		content := "Occurred_At;Value;Memo;Type;Account_Name;Category;Subcategory;Tags;Total_Installments;Current_Installment\n" +
			"2024-01-15;-12.50;Coffee;;Main;Food;Cafe;morning, work;;\n" +
			"15/01/2024;1.234,56;Rent;exp;;Housing;;;x;1\n" +
			"2024-01-20;100;Move;TR;;;;;3;2\n" +
			";10;No date;;;;;;;\n" +
			"2024-01-21;10;Odd;REFUND;;;;;;\n"
		path := writeFixture(t, "generic.csv", []byte(content))
		require.True(t, h.CanHandle(path))

		result, err := h.Parse(context.Background(), path, uuid.New())
		require.NoError(t, err)
		require.Len(t, result.Drafts, 3)

		coffee := result.Drafts[0]
		assertDraft(t, coffee, model.TransactionTypeIncome, "12.50", "Coffee", day(2024, 1, 15))
		assert.Equal(t, model.ImportHints{
			AccountIdentifier: "Main",
			CategoryName:      "Food",
			SubcategoryName:   "Cafe",
			TagsText:          "morning, work",
		}, coffee.Hints)

		rent := result.Drafts[1]
		assertDraft(t, rent, model.TransactionTypeExpense, "1234.56", "Rent", day(2024, 1, 15))
		assert.Equal(t, 1, rent.InstallmentsTotal, "invalid installment values fall back to 1")

		move := result.Drafts[2]
		assert.Equal(t, model.TransactionTypeTransfer, move.Type)
		assert.Equal(t, 3, move.InstallmentsTotal)
		assert.Equal(t, 2, move.InstallmentNumber)

		require.Len(t, result.Skipped, 2)
		assert.Equal(t, "row 5: missing required field: date", result.Skipped[0].Error())
		assert.ErrorIs(t, result.Skipped[1], parser.ErrInvalidValue)
		assert.Equal(t, 6, result.Skipped[1].Row)
	})

	t.Run("positive amounts are expenses", func(t *testing.T) {
		path := writeFixture(t, "plain.csv", []byte("date,amount,description\n2024-02-01,45.90,Books\n"))
		result, err := h.Parse(context.Background(), path, uuid.New())
		require.NoError(t, err)
		require.Len(t, result.Drafts, 1)
		assertDraft(t, result.Drafts[0], model.TransactionTypeExpense, "45.90", "Books", day(2024, 2, 1))
	})

	t.Run("requires date and amount columns", func(t *testing.T) {
		assert.False(t, h.CanHandle(writeFixture(t, "nodate.csv", []byte("amount,description\n1,a\n"))))
		assert.False(t, h.CanHandle(writeFixture(t, "noamount.csv", []byte("date,description\n2024-01-01,a\n"))))
		assert.False(t, h.CanHandle(writeFixture(t, "blank.csv", nil)))
	})

	t.Run("empty file parses to nothing", func(t *testing.T) {
		result, err := h.Parse(context.Background(), writeFixture(t, "blank.csv", nil), uuid.New())
		require.NoError(t, err)
		assert.Empty(t, result.Drafts)
	})
}

func TestParseTransactionType(t *testing.T) {
	tests := map[string]model.TransactionType{
		"income": model.TransactionTypeIncome,
		"I":      model.TransactionTypeIncome,
		"in":     model.TransactionTypeIncome,
		"E":      model.TransactionTypeExpense,
		"Exp":    model.TransactionTypeExpense,
		"EX":     model.TransactionTypeExpense,
		"t":      model.TransactionTypeTransfer,
		" TRANS": model.TransactionTypeTransfer,
		"tr":     model.TransactionTypeTransfer,
	}
	for input, expected := range tests {
		got, err := ParseTransactionType(input)
		require.NoError(t, err, input)
		assert.Equal(t, expected, got, input)
	}

	_, err := ParseTransactionType("refund")
	assert.Error(t, err)
}
