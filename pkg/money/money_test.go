package money

import (
	"testing"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewFromDecimal(t *testing.T) {
	tests := []struct {
		amount string
		cents  int64
	}{
		{"120.50", 12050},
		{"3000", 300000},
		{"0.005", 1},
		{"-13.94", -1394},
		{"10.004", 1000},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			m := NewFromDecimal(decimal.RequireFromString(tt.amount), BRL)
			assert.Equal(t, tt.cents, m.m.Amount())
			assert.Equal(t, BRL, m.m.Currency().Code)
		})
	}
}

func TestFormatBRL(t *testing.T) {
	got := FormatBRL(decimal.RequireFromString("1234.56"))
	assert.Equal(t, gomoney.New(123456, gomoney.BRL).Display(), got)
	assert.Contains(t, got, "1.234,56")
}

func TestNilSafety(t *testing.T) {
	var m *Money
	assert.Empty(t, m.Display())
}
