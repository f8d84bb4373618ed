package answer

import (
	"regexp"
	"strconv"
	"strings"

	"fin-query-agent/internal/types"
)

var levelWordRe = regexp.MustCompile(`\b(high|medium|moderate|low)\b`)

var numberRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(%|/\s*100|/\s*10)?`)

// NormalizeConfidence maps free confidence text onto Low/Medium/High.
// Words win over numbers. A number with % or /100 is a 0-100 score and one
// with /10 a 0-10 score. A bare number below 1 is a fraction, a bare number
// from 1 to 10 is a 0-10 score, and anything larger is a 0-100 score. The
// bool is false when nothing recognizable was found, in which case the level
// is Low.
func NormalizeConfidence(text string) (types.ConfidenceLevel, bool) {
	lower := strings.ToLower(text)
	// First word found wins, so "High (not low)" reads as High.
	if w := levelWordRe.FindString(lower); w != "" {
		switch w {
		case "high":
			return types.ConfidenceHigh, true
		case "medium", "moderate":
			return types.ConfidenceMedium, true
		default:
			return types.ConfidenceLow, true
		}
	}

	m := numberRe.FindStringSubmatch(lower)
	if m == nil {
		return types.ConfidenceLow, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return types.ConfidenceLow, false
	}
	switch {
	case strings.HasPrefix(m[2], "/") && strings.HasSuffix(m[2], "10") && !strings.HasSuffix(m[2], "100"):
		v *= 10
	case m[2] == "" && v < 1:
		v *= 100
	case m[2] == "" && v <= 10:
		v *= 10
	}
	if v < 0 || v > 100 {
		return types.ConfidenceLow, false
	}
	return LevelForScore(v), true
}

// LevelForScore buckets a 0-100 score: >=70 High, >=40 Medium, else Low.
func LevelForScore(v float64) types.ConfidenceLevel {
	switch {
	case v >= 70:
		return types.ConfidenceHigh
	case v >= 40:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}

// CapConfidence lowers a well-formed answer to Low when any metric reports
// insufficient data.
func CapConfidence(a *types.StructuredAnswer, metrics []types.Metric) {
	if a == nil || a.State != types.WellFormed || !types.HasInsufficientData(metrics) {
		return
	}
	if types.ConfidenceLevel(a.Confidence) != types.ConfidenceLow {
		a.Notes = append(a.Notes, "confidence capped at Low: insufficient data")
		a.Confidence = string(types.ConfidenceLow)
	}
}
