package cloud

// analysisPrompt is the fixed instruction sent alongside the image. The model
// is asked for a specific JSON shape, but responses are not guaranteed to
// honor it; see parse.go for the tolerant handling.
const analysisPrompt = `Analyze this photo of a vehicle and identify any body damage.

Respond with JSON in exactly this shape:
{
  "damageType": "damage type (scratch/dent/crack/rust/broken-glass/paint-damage)",
  "severityLevel": integer from 1 to 5,
  "confidence": number from 0.0 to 1.0,
  "estimatedCost": estimated repair cost,
  "description": "detailed description of the damage",
  "repairRecommendations": "repair recommendations"
}

If you do not see any vehicle damage, set damageType to "not-detected".
JSON only. No markdown, no code fences.`
