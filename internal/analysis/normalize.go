package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/address-analyzer/internal/types"
)

const (
	// ExplanationExtracted is used when only the category could be scraped from the reply
	ExplanationExtracted = "Category extracted from response text; the reply carried no readable explanation."
	// ExplanationUnparseable is used when nothing usable was found in the reply
	ExplanationUnparseable = "Unable to parse the analysis response; assigned the default category."
	// ExplanationMissing fills a well-formed reply with an empty explanation
	ExplanationMissing = "No explanation provided."
)

var categoryPattern = regexp.MustCompile(`(?i)category["'\s:=]*(\d+)`)

// FallbackPolicy names the categories assigned when the model reply cannot be used
type FallbackPolicy struct {
	// ParseCategory is assigned when the reply is empty or unreadable
	ParseCategory int
	// UnavailableCategory is assigned when the model could not be reached
	UnavailableCategory int
}

// Normalizer turns raw model text into an AnalysisResult. It never fails.
type Normalizer struct {
	catalog        *Catalog
	fallback       FallbackPolicy
	explanationMax int
}

// NewNormalizer validates the fallback categories against the catalog
func NewNormalizer(catalog *Catalog, fallback FallbackPolicy, explanationMax int) (*Normalizer, error) {
	if !catalog.Contains(fallback.ParseCategory) {
		return nil, fmt.Errorf("parse fallback category %d is not in the catalog", fallback.ParseCategory)
	}
	if !catalog.Contains(fallback.UnavailableCategory) {
		return nil, fmt.Errorf("unavailable fallback category %d is not in the catalog", fallback.UnavailableCategory)
	}
	if explanationMax <= 0 {
		explanationMax = 255
	}
	return &Normalizer{catalog: catalog, fallback: fallback, explanationMax: explanationMax}, nil
}

// Normalize converts a raw model reply for address into a result.
// Malformed replies are absorbed into a recovered or fallback result.
func (n *Normalizer) Normalize(address, raw string) types.AnalysisResult {
	if strings.TrimSpace(raw) == "" {
		return n.parseFallback(address)
	}

	cleaned := StripFences(raw)
	if result, ok := n.decode(cleaned); ok {
		result.Address = address
		result.Source = types.SourceModel
		return result
	}

	// JSON surrounded by prose
	if start, end := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}"); start >= 0 && end > start {
		if result, ok := n.decode(cleaned[start : end+1]); ok {
			result.Address = address
			result.Source = types.SourceRecovered
			return result
		}
	}

	if m := categoryPattern.FindStringSubmatch(raw); m != nil {
		if id, err := strconv.Atoi(m[1]); err == nil && n.catalog.Contains(id) {
			return types.AnalysisResult{
				Category:    id,
				Explanation: ExplanationExtracted,
				Address:     address,
				Source:      types.SourceRecovered,
			}
		}
	}

	return n.parseFallback(address)
}

// Unavailable builds the result used when the model could not be reached
func (n *Normalizer) Unavailable(address string, cause error) types.AnalysisResult {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	return types.AnalysisResult{
		Category:    n.fallback.UnavailableCategory,
		Explanation: truncate(fmt.Sprintf("Unable to reach the analysis service (%s); assigned the default category.", reason), n.explanationMax),
		Address:     address,
		Source:      types.SourceFallbackUnavailable,
	}
}

func (n *Normalizer) parseFallback(address string) types.AnalysisResult {
	return types.AnalysisResult{
		Category:    n.fallback.ParseCategory,
		Explanation: ExplanationUnparseable,
		Address:     address,
		Source:      types.SourceFallbackParse,
	}
}

type modelReply struct {
	Category    json.Number `json:"category"`
	Explanation string      `json:"explanation"`
}

// decode strictly parses a JSON reply and checks the category against the catalog
func (n *Normalizer) decode(text string) (types.AnalysisResult, bool) {
	var reply modelReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		return types.AnalysisResult{}, false
	}

	id, ok := integerCategory(reply.Category)
	if !ok || !n.catalog.Contains(id) {
		return types.AnalysisResult{}, false
	}

	explanation := strings.TrimSpace(reply.Explanation)
	if explanation == "" {
		explanation = ExplanationMissing
	}
	return types.AnalysisResult{
		Category:    id,
		Explanation: truncate(explanation, n.explanationMax),
	}, true
}

// integerCategory accepts 3, 3.0 and "3" but not 3.5
func integerCategory(num json.Number) (int, bool) {
	if num == "" {
		return 0, false
	}
	if i, err := num.Int64(); err == nil {
		return int(i), true
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

// StripFences removes one surrounding markdown code fence, with or without
// an info string such as "json". Text without a fence is only trimmed.
// Only a single layer is stripped: a reply wrapped in two fences keeps the
// inner one, and Normalize then recovers the object from its braces.
func StripFences(s string) string {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "```") {
		t = t[3:]
		if nl := strings.IndexByte(t, '\n'); nl >= 0 {
			if info := strings.TrimSpace(t[:nl]); !strings.ContainsAny(info, "{[\"") {
				t = t[nl+1:]
			}
		} else {
			t = strings.TrimPrefix(t, "json")
		}
		t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	} else {
		t = strings.TrimSuffix(t, "```")
	}
	return strings.TrimSpace(t)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
