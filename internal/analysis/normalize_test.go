package analysis

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/address-analyzer/internal/types"
)

const testAddress = "0x742d35cc6634c0532925a3b844bc454e4438f44e"

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(DefaultCatalog(), FallbackPolicy{ParseCategory: 7, UnavailableCategory: 8}, 255)
	require.NoError(t, err)
	return n
}

func TestNormalize(t *testing.T) {
	n := newTestNormalizer(t)

	tests := []struct {
		name        string
		raw         string
		category    int
		explanation string
		source      types.AnalysisSource
	}{
		{"empty", "", 7, ExplanationUnparseable, types.SourceFallbackParse},
		{"whitespace", "   \n\t", 7, ExplanationUnparseable, types.SourceFallbackParse},
		{"plain json", `{"category":3,"explanation":"x"}`, 3, "x", types.SourceModel},
		{"json fence", "```json\n{\"category\":3,\"explanation\":\"x\"}\n```", 3, "x", types.SourceModel},
		{"bare fence", "```\n{\"category\":2,\"explanation\":\"votes\"}\n```", 2, "votes", types.SourceModel},
		{"single line fence", "```{\"category\":4,\"explanation\":\"games\"}```", 4, "games", types.SourceModel},
		{"float category", `{"category":5.0,"explanation":"social"}`, 5, "social", types.SourceModel},
		{"string category", `{"category":"6","explanation":"exchange"}`, 6, "exchange", types.SourceModel},
		{"extra keys", `{"category":1,"explanation":"whale","networks":["eth-mainnet"]}`, 1, "whale", types.SourceModel},
		{"empty explanation", `{"category":1,"explanation":"  "}`, 1, ExplanationMissing, types.SourceModel},
		{"json inside prose", "Sure! Here it is: {\"category\":3,\"explanation\":\"lends\"} hope it helps", 3, "lends", types.SourceRecovered},
		{"garbage with category", "garbage category: 4 garbage", 4, ExplanationExtracted, types.SourceRecovered},
		{"quoted key truncated json", `{"category": 2, "explanation": "unterminated`, 2, ExplanationExtracted, types.SourceRecovered},
		{"out of range category", "garbage category: 42 garbage", 7, ExplanationUnparseable, types.SourceFallbackParse},
		{"json out of range", `{"category":99,"explanation":"x"}`, 7, ExplanationUnparseable, types.SourceFallbackParse},
		{"fractional category", `{"category":2.5,"explanation":"x"}`, 7, ExplanationUnparseable, types.SourceFallbackParse},
		{"no category at all", "I cannot help with that.", 7, ExplanationUnparseable, types.SourceFallbackParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(testAddress, tt.raw)
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, tt.explanation, got.Explanation)
			assert.Equal(t, tt.source, got.Source)
			assert.Equal(t, testAddress, got.Address)
		})
	}
}

func TestNormalize_TruncatesExplanation(t *testing.T) {
	n, err := NewNormalizer(DefaultCatalog(), FallbackPolicy{ParseCategory: 7, UnavailableCategory: 7}, 10)
	require.NoError(t, err)

	got := n.Normalize(testAddress, `{"category":3,"explanation":"ünïcode explanation that is long"}`)
	assert.Equal(t, 3, got.Category)
	assert.Equal(t, 10, len([]rune(got.Explanation)))
	assert.Equal(t, "ünïcode ex", got.Explanation)
}

func TestUnavailable(t *testing.T) {
	n := newTestNormalizer(t)

	got := n.Unavailable(testAddress, errors.New("dial tcp: connection refused"))
	assert.Equal(t, 8, got.Category)
	assert.Equal(t, types.SourceFallbackUnavailable, got.Source)
	assert.Contains(t, got.Explanation, "connection refused")
	assert.True(t, got.IsFallback())

	assert.Contains(t, n.Unavailable(testAddress, nil).Explanation, "unknown error")
}

func TestNewNormalizer_RejectsUnknownFallback(t *testing.T) {
	_, err := NewNormalizer(DefaultCatalog(), FallbackPolicy{ParseCategory: 9, UnavailableCategory: 7}, 255)
	assert.Error(t, err)

	_, err = NewNormalizer(DefaultCatalog(), FallbackPolicy{ParseCategory: 7, UnavailableCategory: 5}, 255)
	assert.NoError(t, err)
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```JSON\n{}\n```  ", `{}`},
		{"```json {\"a\":1}```", `{"a":1}`},
		{"{\"a\":1}", `{"a":1}`},
		{"{\"a\":1}\n```", `{"a":1}`},
		{"```{\"a\":\n1}\n```", "{\"a\":\n1}"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripFences(tt.in), "input %q", tt.in)
	}
}

func TestStripFences_SingleLayer(t *testing.T) {
	doubled := "```json\n```json\n{\"category\":3,\"explanation\":\"swaps\"}\n```\n```"

	once := StripFences(doubled)
	assert.Equal(t, "```json\n{\"category\":3,\"explanation\":\"swaps\"}\n```", once)
	assert.Equal(t, `{"category":3,"explanation":"swaps"}`, StripFences(once))

	got := newTestNormalizer(t).Normalize(testAddress, doubled)
	assert.Equal(t, 3, got.Category)
	assert.Equal(t, "swaps", got.Explanation)
	assert.Equal(t, types.SourceRecovered, got.Source)
}

func TestNormalizeProperties(t *testing.T) {
	n := newTestNormalizer(t)
	catalog := DefaultCatalog()
	properties := gopter.NewProperties(nil)

	payload := gen.IntRange(1, 8).Map(func(id int) string {
		return `{"category":` + itoa(id) + `,"explanation":"reason"}`
	})

	properties.Property("stripping fences twice equals stripping once", prop.ForAll(
		func(body string, fence string) bool {
			wrapped := fence + "\n" + body + "\n```"
			once := StripFences(wrapped)
			return once == body && StripFences(once) == once
		},
		payload,
		gen.OneConstOf("```", "```json", "```JSON"),
	))

	properties.Property("normalize always yields a configured category", prop.ForAll(
		func(raw string) bool {
			got := n.Normalize(testAddress, raw)
			return catalog.Contains(got.Category) && got.Explanation != ""
		},
		gen.AnyString(),
	))

	properties.Property("category mentioned in noise is recovered when valid", prop.ForAll(
		func(id int, noise string) bool {
			noise = strings.Map(func(r rune) rune {
				if r >= '0' && r <= '9' {
					return 'x'
				}
				return r
			}, noise)
			got := n.Normalize(testAddress, "category: "+itoa(id)+" "+noise)
			if catalog.Contains(id) {
				return got.Category == id
			}
			return got.Source == types.SourceFallbackParse
		},
		gen.IntRange(0, 20),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
