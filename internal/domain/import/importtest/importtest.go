// Package importtest generates statement files with known contents for
// tests of the import pipeline.
package importtest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/model"
)

// Row is one generated transaction. Amount is always positive; each writer
// applies the sign convention of its layout.
type Row struct {
	Date        time.Time
	Description string
	Type        model.TransactionType
	Amount      decimal.Decimal
	Category    string
	Tags        []string
}

var expenseCategories = []string{
	"Groceries", "Transportation", "Restaurants", "Health",
	"Bills & Utilities", "Entertainment", "Shopping", "Travel",
}

var incomeCategories = []string{"Salary", "Freelance", "Refund", "Interest"}

var tagPool = []string{"home", "work", "family", "recurring", "travel", "reimbursable"}

// Generator produces reproducible rows.
type Generator struct {
	faker *gofakeit.Faker
}

// New creates a generator. The same seed yields the same rows.
func New(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// Rows generates n rows dated in January 2024, roughly one in four income.
func (g *Generator) Rows(n int) []Row {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]Row, n)
	for i := range rows {
		txType := model.TransactionTypeExpense
		category := g.faker.RandomString(expenseCategories)
		cents := g.faker.IntRange(100, 150000)
		if g.faker.IntRange(1, 4) == 1 {
			txType = model.TransactionTypeIncome
			category = g.faker.RandomString(incomeCategories)
			cents = g.faker.IntRange(50000, 1500000)
		}

		rows[i] = Row{
			Date:        start.AddDate(0, 0, g.faker.IntRange(0, 30)),
			Description: g.description(),
			Type:        txType,
			Amount:      decimal.New(int64(cents), -2),
			Category:    category,
			Tags:        g.tags(),
		}
	}
	return rows
}

func (g *Generator) description() string {
	clean := strings.NewReplacer(";", " ", ",", " ", `"`, "", "\n", " ")
	desc := strings.Join(strings.Fields(clean.Replace(g.faker.Company())), " ")
	if desc == "" {
		desc = "Purchase"
	}
	return strings.ToUpper(desc)
}

func (g *Generator) tags() []string {
	n := g.faker.IntRange(0, 2)
	seen := map[string]bool{}
	var tags []string
	for len(tags) < n {
		tag := g.faker.RandomString(tagPool)
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	return tags
}

// Totals sums the generated income and expense amounts.
func Totals(rows []Row) (income, expense decimal.Decimal) {
	income, expense = decimal.Zero, decimal.Zero
	for _, r := range rows {
		if r.Type == model.TransactionTypeIncome {
			income = income.Add(r.Amount)
		} else {
			expense = expense.Add(r.Amount)
		}
	}
	return income, expense
}

func signed(r Row, negativeIs model.TransactionType) decimal.Decimal {
	if r.Type == negativeIs {
		return r.Amount.Neg()
	}
	return r.Amount
}

// FormatBRAmount writes d as "-1.234,56".
func FormatBRAmount(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return sign + b.String() + "," + frac
}

// InterStatementCSV renders rows as a Banco Inter checking account export.
func InterStatementCSV(rows []Row) []byte {
	var b strings.Builder
	b.WriteString("Extrato Conta Corrente\n")
	b.WriteString("Conta ;12345678\n")
	b.WriteString("Período ;01/01/2024 a 31/01/2024\n")
	b.WriteString("Saldo ;0,00\n")
	b.WriteString("\n")
	b.WriteString("Data Lançamento;Descrição;Valor;Saldo\n")

	balance := decimal.Zero
	for _, r := range rows {
		amount := signed(r, model.TransactionTypeExpense)
		balance = balance.Add(amount)
		fmt.Fprintf(&b, "%s;%s;%s;%s\n",
			r.Date.Format("02/01/2006"), r.Description, FormatBRAmount(amount), FormatBRAmount(balance))
	}
	return []byte(b.String())
}

type genericCSVRow struct {
	Date        string `csv:"date"`
	Amount      string `csv:"amount"`
	Description string `csv:"description"`
	Category    string `csv:"category"`
	Tags        string `csv:"tags"`
}

// GenericCSV renders rows with the generic column names. Without a type
// column, positive amounts are expenses.
func GenericCSV(rows []Row) []byte {
	out := make([]genericCSVRow, len(rows))
	for i, r := range rows {
		out[i] = genericCSVRow{
			Date:        r.Date.Format("2006-01-02"),
			Amount:      signed(r, model.TransactionTypeIncome).StringFixed(2),
			Description: r.Description,
			Category:    r.Category,
			Tags:        strings.Join(r.Tags, ", "),
		}
	}

	data, err := gocsv.MarshalBytes(&out)
	if err != nil {
		panic(fmt.Sprintf("importtest: marshal csv: %v", err))
	}
	return data
}

type jsonItem struct {
	Name     string   `json:"name"`
	Date     string   `json:"date"`
	Total    string   `json:"total"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// JSON renders rows as a JSON array; negative totals are income.
func JSON(rows []Row) []byte {
	items := make([]jsonItem, len(rows))
	for i, r := range rows {
		items[i] = jsonItem{
			Name:     r.Description,
			Date:     r.Date.Format("2006-01-02"),
			Total:    signed(r, model.TransactionTypeIncome).StringFixed(2),
			Category: r.Category,
			Tags:     r.Tags,
		}
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("importtest: marshal json: %v", err))
	}
	return data
}

// WriteFile writes data into a temporary directory owned by t.
func WriteFile(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}
