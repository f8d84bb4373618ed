package analyze

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	priceRe     = regexp.MustCompile(`\$\s?(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)(\s*(?:trillion|billion|million|bn|tn|[TBMK]\b))?`)
	percentRe   = regexp.MustCompile(`([+\-−]?\d+(?:\.\d+)?)\s?%`)
	highRe      = regexp.MustCompile(`(?i)(52[- ]week|all[- ]time|record)\s+high\s+(?:of\s+|at\s+|:\s*)?\$?\s?(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`)
	peRe        = regexp.MustCompile(`(?i)(?:p/e|pe ratio|price[- ]to[- ]earnings)(?:\s+ratio)?(?:\s+\(ttm\))?\s*(?:of|is|at|:|=)?\s*(\d+(?:\.\d+)?)`)
	marketCapRe = regexp.MustCompile(`(?i)market\s+cap(?:italization)?\s*(?:of|is|at|:|=)?\s*\$?\s?(\d+(?:\.\d+)?)\s*(trillion|billion|million|tn|bn|t|b|m)\b`)
	relativeRe  = regexp.MustCompile(`(?i)^(\d+|an?|one)\s+(minute|min|hour|hr|day|week|month|year)s?\s+ago$`)
	inlineDate  = regexp.MustCompile(`(?i)\b((?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4}|\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4})\b`)
	gnewsSuffix = regexp.MustCompile(`,?\s*[+-]\d{4}\s+UTC$`)
)

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return v, err == nil
}

// firstPrice returns the first plain dollar amount in text, skipping amounts
// with a magnitude suffix ($2.1 trillion is a market cap, not a quote).
func firstPrice(text string) (float64, bool) {
	for _, m := range priceRe.FindAllStringSubmatch(text, -1) {
		if strings.TrimSpace(m[2]) != "" {
			continue
		}
		if v, ok := parseNumber(m[1]); ok && v > 0 {
			return v, true
		}
	}
	return 0, false
}

func firstPercent(text string) (float64, bool) {
	m := percentRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	return parseNumber(strings.Replace(m[1], "−", "-", 1))
}

func reportedHigh(text string) (float64, string, bool) {
	m := highRe.FindStringSubmatch(text)
	if m == nil {
		return 0, "", false
	}
	v, ok := parseNumber(m[2])
	return v, strings.ToLower(strings.ReplaceAll(m[1], "-", " ")), ok
}

func peRatio(text string) (float64, bool) {
	m := peRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, ok := parseNumber(m[1])
	return v, ok && v > 0 && v < 10000
}

// marketCap returns the cap in billions of dollars.
func marketCap(text string) (float64, bool) {
	m := marketCapRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, ok := parseNumber(m[1])
	if !ok {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "trillion", "tn", "t":
		v *= 1000
	case "million", "m":
		v /= 1000
	}
	return v, true
}

// parseDate reads provider date text ("3 days ago", "Jan 5, 2025",
// "01/06/2025, 08:00 AM, +0000 UTC") relative to ref.
func parseDate(text string, ref time.Time) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	lower := strings.ToLower(text)
	switch lower {
	case "today", "just now":
		return ref, true
	case "yesterday":
		return ref.AddDate(0, 0, -1), true
	}

	if m := relativeRe.FindStringSubmatch(lower); m != nil {
		n := 1
		if v, err := strconv.Atoi(m[1]); err == nil {
			n = v
		}
		switch m[2] {
		case "minute", "min":
			return ref.Add(-time.Duration(n) * time.Minute), true
		case "hour", "hr":
			return ref.Add(-time.Duration(n) * time.Hour), true
		case "day":
			return ref.AddDate(0, 0, -n), true
		case "week":
			return ref.AddDate(0, 0, -7*n), true
		case "month":
			return ref.AddDate(0, -n, 0), true
		case "year":
			return ref.AddDate(-n, 0, 0), true
		}
	}

	if t, ok := snippetDate(text); ok {
		return t, true
	}
	cleaned := gnewsSuffix.ReplaceAllString(text, "")
	for _, candidate := range []string{cleaned, strings.SplitN(cleaned, ",", 2)[0]} {
		if t, err := dateparse.ParseIn(candidate, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// snippetDate finds an absolute date written inside free text.
func snippetDate(text string) (time.Time, bool) {
	m := inlineDate.FindString(text)
	if m == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(strings.Replace(m, "Sept", "Sep", 1), time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
