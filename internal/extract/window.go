package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fin-query-agent/internal/types"
)

const (
	day       = 24 * time.Hour
	maxWindow = 3660 * day
)

var (
	countedWindowRe = regexp.MustCompile(`(?i)\b(\d{1,4}|a|an|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)[\s-]*(day|week|month|year|yr|wk)s?\b`)
	bareWindowRe    = regexp.MustCompile(`(?i)\b(past|last|previous|this|prior)\s+(day|week|month|quarter|year)\b`)
	ytdRe           = regexp.MustCompile(`(?i)\b(ytd|year[\s-]to[\s-]date)\b`)
	todayRe         = regexp.MustCompile(`(?i)\b(today|intraday)\b`)
)

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

var unitDays = map[string]int{
	"day": 1, "week": 7, "wk": 7, "month": 30, "quarter": 91, "year": 365, "yr": 365,
}

// ParseWindow reads the time frame stated in q, falling back to def.
func ParseWindow(q string, def time.Duration) types.TimeWindow {
	return parseWindowAt(q, def, time.Now())
}

func parseWindowAt(q string, def time.Duration, now time.Time) types.TimeWindow {
	if m := countedWindowRe.FindStringSubmatch(q); m != nil {
		n, ok := numberWords[strings.ToLower(m[1])]
		if !ok {
			n, _ = strconv.Atoi(m[1])
		}
		unit := strings.ToLower(m[2])
		if n > 0 {
			return window(time.Duration(n*unitDays[unit])*day, n, unitLabel(unit), true)
		}
	}
	if m := bareWindowRe.FindStringSubmatch(q); m != nil {
		unit := strings.ToLower(m[2])
		return window(time.Duration(unitDays[unit])*day, 1, unit, true)
	}
	if ytdRe.MatchString(q) {
		start := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
		d := now.Sub(start)
		if d < day {
			d = day
		}
		return types.TimeWindow{Duration: d, Label: "year to date", Explicit: true}
	}
	if todayRe.MatchString(q) {
		return types.TimeWindow{Duration: day, Label: "today", Explicit: true}
	}

	if def <= 0 {
		def = 14 * day
	}
	return types.TimeWindow{Duration: def, Label: labelFor(def), Explicit: false}
}

func window(d time.Duration, n int, unit string, explicit bool) types.TimeWindow {
	if d > maxWindow {
		d = maxWindow
	}
	label := "past " + unit
	if n > 1 {
		label = fmt.Sprintf("past %d %ss", n, unit)
	}
	return types.TimeWindow{Duration: d, Label: label, Explicit: explicit}
}

func unitLabel(u string) string {
	switch u {
	case "wk":
		return "week"
	case "yr":
		return "year"
	}
	return u
}

func labelFor(d time.Duration) string {
	days := int(d / day)
	switch {
	case days%7 == 0 && days/7 > 1:
		return fmt.Sprintf("past %d weeks", days/7)
	case days == 7:
		return "past week"
	case days == 1:
		return "past day"
	default:
		return fmt.Sprintf("past %d days", days)
	}
}
