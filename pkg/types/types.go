package types

import "strings"

// Damage taxonomy. The set is closed: every analysis result carries one of
// these values. Comparisons are case-insensitive (see IsKnownDamageType).
const (
	DamageScratch     = "scratch"
	DamageDent        = "dent"
	DamageCrack       = "crack"
	DamageRust        = "rust"
	DamageBrokenGlass = "broken-glass"
	DamagePaint       = "paint-damage"
	DamageGeneral     = "general-damage"
	DamageNone        = "not-detected"
)

// Severity scale bounds (1 = minimal, 5 = critical).
const (
	MinSeverity = 1
	MaxSeverity = 5
)

// DamageTypes lists the full taxonomy in canonical order.
var DamageTypes = []string{
	DamageScratch,
	DamageDent,
	DamageCrack,
	DamageRust,
	DamageBrokenGlass,
	DamagePaint,
	DamageGeneral,
	DamageNone,
}

// DamageAnalysis is the result of a single analysis run, produced by either
// the cloud path or the on-device fallback path.
type DamageAnalysis struct {
	DamageType            string  `json:"damageType"`
	SeverityLevel         int     `json:"severityLevel"`
	Confidence            float64 `json:"confidence"`
	EstimatedCost         float64 `json:"estimatedCost"`
	Description           string  `json:"description,omitempty"`
	RepairRecommendations string  `json:"repairRecommendations,omitempty"`
}

// Normalize clamps SeverityLevel to [1,5], Confidence to [0,1] and
// EstimatedCost to >= 0. Both producers call this before returning a result,
// so out-of-range values never escape the package that made them.
func (a *DamageAnalysis) Normalize() {
	a.SeverityLevel = ClampSeverity(a.SeverityLevel)
	a.Confidence = ClampConfidence(a.Confidence)
	if a.EstimatedCost < 0 {
		a.EstimatedCost = 0
	}
	if a.DamageType == "" {
		a.DamageType = DamageNone
	}
}

// AnalysisRecord is one persisted outcome of a completed analysis.
// Records are append-only: immutable after insert, deletable by id.
type AnalysisRecord struct {
	ID             int64   `json:"id"`
	ImageReference string  `json:"imageReference"`
	DamageType     string  `json:"damageType"`
	SeverityLevel  int     `json:"severityLevel"`
	Confidence     float64 `json:"confidence"`
	EstimatedCost  float64 `json:"estimatedCost"`
	Description    *string `json:"description,omitempty"`
	Timestamp      int64   `json:"timestamp"` // epoch milliseconds, sole sort key
}

// AnalysisRequest is the ephemeral input of one run. It is owned by the call
// that creates it and never persisted.
type AnalysisRequest struct {
	ImageReference string
	Credential     string // optional; empty means on-device only
}

// ClampSeverity forces v into the closed [1,5] severity scale.
func ClampSeverity(v int) int {
	if v < MinSeverity {
		return MinSeverity
	}
	if v > MaxSeverity {
		return MaxSeverity
	}
	return v
}

// ClampConfidence forces v into the closed [0,1] range.
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// IsKnownDamageType reports whether v is one of the taxonomy values,
// ignoring case.
func IsKnownDamageType(v string) bool {
	for _, t := range DamageTypes {
		if strings.EqualFold(v, t) {
			return true
		}
	}
	return false
}

// SeverityAdjective maps a severity level to its display adjective.
func SeverityAdjective(severity int) string {
	switch ClampSeverity(severity) {
	case 1:
		return "minimal"
	case 2:
		return "light"
	case 3:
		return "moderate"
	case 4:
		return "serious"
	default:
		return "critical"
	}
}
