package cloud

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cardamage/damage-analyzer/pkg/types"
)

// Field defaults substituted when tolerant key-value scanning cannot extract
// a field from an otherwise JSON-looking response.
const (
	defaultDamageType  = types.DamageNone
	defaultSeverity    = 1
	defaultConfidence  = 0.5
	defaultCost        = 0.0
	defaultDescription = "analysis unavailable"
)

// Narrative fallback values used when the response contains no JSON object
// at all and has to be treated as free text.
const (
	narrativeDamageType = types.DamageGeneral
	narrativeSeverity   = 2
	narrativeConfidence = 0.6
	narrativeCost       = 15000.0
	narrativeMaxChars   = 200
)

// ParseAnalysis turns a raw model response into a DamageAnalysis. Vision
// models drift from the requested schema, so parsing is an ordered strategy
// chain rather than a single decode:
//
//  1. slice the first '{' .. last '}' and attempt strict JSON
//  2. tolerant per-field key-value scan with per-field defaults
//  3. treat the whole response as narrative text
//
// The chain is total: malformed output degrades, it never errors.
func ParseAnalysis(raw string) types.DamageAnalysis {
	if result, err := parseStrict(raw); err == nil {
		return result
	}
	if result, err := parseFieldScan(raw); err == nil {
		return result
	}
	return parseNarrative(raw)
}

// sliceJSONObject extracts the first-'{' to last-'}' substring. It returns
// ErrUnparsable when either brace is absent.
func sliceJSONObject(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object in response", ErrUnparsable)
	}
	return raw[start : end+1], nil
}

// parseStrict attempts a full JSON decode of the brace-sliced candidate.
func parseStrict(raw string) (types.DamageAnalysis, error) {
	candidate, err := sliceJSONObject(raw)
	if err != nil {
		return types.DamageAnalysis{}, err
	}

	var result types.DamageAnalysis
	if err := json.Unmarshal([]byte(candidate), &result); err != nil {
		return types.DamageAnalysis{}, fmt.Errorf("strict decode: %w", err)
	}
	result.Normalize()
	return result, nil
}

// parseFieldScan extracts each field independently from the brace-sliced
// candidate. A field that cannot be extracted gets its documented default;
// one bad field never discards the others.
func parseFieldScan(raw string) (types.DamageAnalysis, error) {
	candidate, err := sliceJSONObject(raw)
	if err != nil {
		return types.DamageAnalysis{}, err
	}

	result := types.DamageAnalysis{
		DamageType:            stringField(candidate, "damageType", defaultDamageType),
		SeverityLevel:         intField(candidate, "severityLevel", defaultSeverity),
		Confidence:            floatField(candidate, "confidence", defaultConfidence),
		EstimatedCost:         floatField(candidate, "estimatedCost", defaultCost),
		Description:           stringField(candidate, "description", defaultDescription),
		RepairRecommendations: stringField(candidate, "repairRecommendations", ""),
	}
	result.Normalize()
	return result, nil
}

// parseNarrative treats the response as free text about the photo: a generic
// damage result carrying the leading part of the text as its description.
func parseNarrative(raw string) types.DamageAnalysis {
	result := types.DamageAnalysis{
		DamageType:            narrativeDamageType,
		SeverityLevel:         narrativeSeverity,
		Confidence:            narrativeConfidence,
		EstimatedCost:         narrativeCost,
		Description:           truncate(strings.TrimSpace(raw), narrativeMaxChars),
		RepairRecommendations: "Consult a specialist for an accurate assessment.",
	}
	result.Normalize()
	return result
}

// fieldPatterns holds one compiled matcher per response field; the field set
// is fixed by the prompt, so the patterns are built once.
var fieldPatterns = func() map[string]*regexp.Regexp {
	keys := []string{
		"damageType", "severityLevel", "confidence",
		"estimatedCost", "description", "repairRecommendations",
	}
	patterns := make(map[string]*regexp.Regexp, len(keys))
	for _, key := range keys {
		patterns[key] = regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:\s*(?:"([^"]*)"|([^,}\s]+))`)
	}
	return patterns
}()

// extractValue finds the value of key inside a JSON-ish blob, accepting
// either a quoted value or a bare token.
func extractValue(blob, key string) (string, bool) {
	pattern, ok := fieldPatterns[key]
	if !ok {
		return "", false
	}
	match := pattern.FindStringSubmatch(blob)
	if match == nil {
		return "", false
	}
	if match[1] != "" {
		return match[1], true
	}
	return match[2], true
}

func stringField(blob, key, fallback string) string {
	if v, ok := extractValue(blob, key); ok && v != "" {
		return v
	}
	return fallback
}

func intField(blob, key string, fallback int) int {
	v, ok := extractValue(blob, key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		// Models sometimes emit "3.0" for integer fields.
		f, ferr := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if ferr != nil {
			return fallback
		}
		return int(f)
	}
	return n
}

func floatField(blob, key string, fallback float64) float64 {
	v, ok := extractValue(blob, key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fallback
	}
	return f
}

// truncate limits s to max characters, counting runes so multi-byte text is
// never split mid-character.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
