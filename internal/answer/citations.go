package answer

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"fin-query-agent/internal/types"
)

var refRe = regexp.MustCompile(`\[(\d+)\]`)

// CitedRefs returns the distinct [n] references present in text.
func CitedRefs(text string) map[int]bool {
	out := map[int]bool{}
	for _, m := range refRe.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			out[n] = true
		}
	}
	return out
}

// EnsureCitations appends a "[n] title - url" line for every evidence ref
// that supports a metric but is missing from the citations section. Only
// well-formed answers are touched.
func EnsureCitations(a *types.StructuredAnswer, metrics []types.Metric, evidence []types.EvidenceItem) {
	if a == nil || a.State != types.WellFormed {
		return
	}

	byRef := make(map[int]types.EvidenceItem, len(evidence))
	for _, e := range evidence {
		byRef[e.Ref] = e
	}

	cited := CitedRefs(a.Citations)
	var missing []int
	queued := map[int]bool{}
	for _, m := range metrics {
		for _, ref := range m.Evidence {
			if cited[ref] || queued[ref] {
				continue
			}
			if _, ok := byRef[ref]; !ok {
				continue
			}
			queued[ref] = true
			missing = append(missing, ref)
		}
	}
	if len(missing) == 0 {
		return
	}
	sort.Ints(missing)

	lines := make([]string, 0, len(missing))
	for _, ref := range missing {
		lines = append(lines, CitationLine(byRef[ref]))
	}
	a.Citations = strings.TrimRight(a.Citations, "\n ") + "\n" + strings.Join(lines, "\n")
	a.Notes = append(a.Notes, fmt.Sprintf("appended %d missing metric citations", len(missing)))
}

// CitationLine renders one evidence item the way citations list it.
func CitationLine(e types.EvidenceItem) string {
	title := e.Title
	if title == "" {
		title = e.Source
	}
	if title == "" {
		return fmt.Sprintf("[%d] %s", e.Ref, e.URL)
	}
	return fmt.Sprintf("[%d] %s - %s", e.Ref, title, e.URL)
}
