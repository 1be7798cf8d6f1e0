package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Data Lançamento", "data lancamento"},
		{"  DESCRIÇÃO ", "descricao"},
		{"Tipo   Lançamento", "tipo lancamento"},
		{"N° Documento", "n° documento"},
		{"Saída", "saida"},
		{"amount", "amount"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Fold(tt.input))
		})
	}
}

func TestCollapseSpaces(t *testing.T) {
	assert.Equal(t, "PIX RECEBIDO Maria", CollapseSpaces("  PIX  RECEBIDO\tMaria "))
}

func TestJoinNonEmpty(t *testing.T) {
	assert.Equal(t, "Pix - Enviado - Maria", JoinNonEmpty(" - ", "Pix", "Enviado", "Maria"))
	assert.Equal(t, "Tarifa", JoinNonEmpty(" - ", " Tarifa ", "  "))
	assert.Equal(t, "", JoinNonEmpty(" - "))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"food", "work", "Food"}, SplitList(" food, work,, Food ,"))
	assert.Nil(t, SplitList(" , "))
}
