// Package classifier implements the on-device fallback damage classifier.
//
// It maps free-text label/object tags (as produced by a local vision engine)
// onto the damage taxonomy using a fixed, ordered keyword table. It is a total
// function: any tag set, including an empty one, yields a usable result.
package classifier

import (
	"fmt"
	"strings"

	"github.com/cardamage/damage-analyzer/pkg/types"
)

// rule associates one damage type with its detection keywords, severity and
// base repair cost. Rules are evaluated in declaration order and the first
// match wins; order is part of the contract.
type rule struct {
	damageType string
	keywords   []string
	severity   int
	baseCost   float64
}

var rules = []rule{
	{types.DamageScratch, []string{"scratch", "scrape", "mark"}, 2, 5000},
	{types.DamageDent, []string{"dent", "bent", "damaged"}, 3, 15000},
	{types.DamageCrack, []string{"crack", "broken", "fracture"}, 4, 25000},
	{types.DamageRust, []string{"rust", "corrosion", "oxidation"}, 3, 20000},
	{types.DamageBrokenGlass, []string{"broken glass", "shattered", "glass"}, 5, 30000},
	{types.DamagePaint, []string{"paint damage", "faded", "peeling"}, 2, 10000},
}

// vehicleKeywords boost confidence when the tags suggest the photo actually
// shows a vehicle, independently of whether a damage rule matched.
var vehicleKeywords = []string{"car", "vehicle", "auto", "automobile", "bumper", "door", "hood"}

// Confidence constants for the heuristic path.
const (
	baselineConfidence = 0.3 // no rule matched
	matchConfidence    = 0.8 // a rule matched
	vehicleBoost       = 0.2
)

// Defaults when no rule matches.
const (
	defaultSeverity = 1
	defaultBaseCost = 10000.0
)

// Classifier maps on-device tags to a DamageAnalysis.
type Classifier struct{}

// New creates a Classifier.
func New() *Classifier {
	return &Classifier{}
}

// Classify analyzes a set of tags and returns a damage estimate. It never
// fails; an empty or unrecognized tag set yields the general-damage baseline.
func (c *Classifier) Classify(tags []string) types.DamageAnalysis {
	lowered := make([]string, len(tags))
	for i, tag := range tags {
		lowered[i] = strings.ToLower(tag)
	}

	damageType := types.DamageGeneral
	severity := defaultSeverity
	baseCost := defaultBaseCost
	confidence := baselineConfidence

	for _, r := range rules {
		if matchesAny(lowered, r.keywords) {
			damageType = r.damageType
			severity = r.severity
			baseCost = r.baseCost
			confidence = matchConfidence
			break
		}
	}

	if matchesAny(lowered, vehicleKeywords) {
		confidence = types.ClampConfidence(confidence + vehicleBoost)
	}

	result := types.DamageAnalysis{
		DamageType:            damageType,
		SeverityLevel:         severity,
		Confidence:            confidence,
		EstimatedCost:         estimateCost(baseCost, severity),
		Description:           describe(damageType, severity),
		RepairRecommendations: "Consult a specialist for an accurate assessment and repair.",
	}
	result.Normalize()
	return result
}

// estimateCost scales the per-type base cost by severity: a severity-1 issue
// costs the base, a severity-5 issue costs 3x the base.
func estimateCost(baseCost float64, severity int) float64 {
	return baseCost * (float64(severity)*0.5 + 0.5)
}

func describe(damageType string, severity int) string {
	return fmt.Sprintf("Detected %s %s damage.", types.SeverityAdjective(severity), damageType)
}

// matchesAny reports whether any keyword is a substring of any tag.
// Tags must already be lower-cased.
func matchesAny(tags, keywords []string) bool {
	for _, keyword := range keywords {
		for _, tag := range tags {
			if strings.Contains(tag, keyword) {
				return true
			}
		}
	}
	return false
}
