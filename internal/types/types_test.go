package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"lowercase", "0x742d35cc6634c0532925a3b844bc454e4438f44e", true},
		{"checksummed", "0x742d35Cc6634C0532925a3b844Bc454e4438f44e", true},
		{"missing prefix", "742d35cc6634c0532925a3b844bc454e4438f44e", false},
		{"too short", "0x742d35cc6634c0532925a3b844bc454e4438f44", false},
		{"too long", "0x742d35cc6634c0532925a3b844bc454e4438f44e0", false},
		{"non hex", "0x742d35cc6634c0532925a3b844bc454e4438f44g", false},
		{"uppercase prefix", "0X742d35cc6634c0532925a3b844bc454e4438f44e", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidAddress(tt.input))
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0xabcdef", NormalizeAddress("  0xABCdef "))
}

func TestTransactionContext_IsEmpty(t *testing.T) {
	assert.True(t, TransactionContext{}.IsEmpty())
	assert.True(t, TransactionContext{ChainEthereum: nil, ChainBase: {}}.IsEmpty())
	assert.False(t, TransactionContext{ChainBase: {{Hash: "0x1"}}}.IsEmpty())
}

func TestAnalysisResult_IsFallback(t *testing.T) {
	assert.False(t, AnalysisResult{Source: SourceModel}.IsFallback())
	assert.False(t, AnalysisResult{Source: SourceRecovered}.IsFallback())
	assert.True(t, AnalysisResult{Source: SourceFallbackParse}.IsFallback())
	assert.True(t, AnalysisResult{Source: SourceFallbackUnavailable}.IsFallback())
}
