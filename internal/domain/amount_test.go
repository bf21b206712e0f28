package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAmountMatches(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		received string
		want     bool
	}{
		{name: "exact", expected: "5000", received: "5000", want: true},
		{name: "rounding difference", expected: "10000", received: "9999.50", want: true},
		{name: "at tolerance", expected: "10000", received: "9900", want: true},
		{name: "underpaid", expected: "5000", received: "50", want: false},
		{name: "overpaid beyond tolerance", expected: "5000", received: "5100", want: false},
		{name: "zero", expected: "5000", received: "0", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AmountMatches(decimal.RequireFromString(tt.expected), decimal.RequireFromString(tt.received))
			assert.Equal(t, tt.want, got)
		})
	}
}
