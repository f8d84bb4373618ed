// Package answer turns raw model text into a StructuredAnswer.
//
// The wire contract is four sections, each introduced by a header, with every
// header and body separated by the literal Delimiter:
//
//	**Direct Answer**\n\n**...**\n\n**Reasoning**\n\n**...**\n\n**Citations**\n\n**...**\n\n**Confidence**\n\n**...**
//
// The four headers are section markers and must appear in that order. Bodies
// are the segments between consecutive markers, so a body that itself contains
// the delimiter (a bolded paragraph break) stays in its own section. Output
// whose markers cannot be aligned, or that leaves a body empty, is Malformed:
// the raw text becomes the direct answer and the remaining sections are
// NotAvailable.
package answer

import (
	"fmt"
	"strings"

	"fin-query-agent/internal/types"
)

// Delimiter separates every header and body in the model output.
const Delimiter = "**\n\n**"

type Section int

const (
	DirectAnswer Section = iota
	Reasoning
	Citations
	Confidence
	sectionCount
)

var sectionNames = [sectionCount]string{"Direct Answer", "Reasoning", "Citations", "Confidence"}

func (s Section) String() string {
	if s < 0 || s >= sectionCount {
		return fmt.Sprintf("Section(%d)", int(s))
	}
	return sectionNames[s]
}

// SectionNames returns the headers in contract order.
func SectionNames() []string {
	return append([]string(nil), sectionNames[:]...)
}

// minSegments is header+body for each section.
const minSegments = 2 * int(sectionCount)

// Parse splits raw into the four sections. It never fails; output that does
// not match the contract resolves to the Malformed state.
func Parse(raw string) types.StructuredAnswer {
	segments := strings.Split(raw, Delimiter)
	if len(segments) < minSegments {
		return malformed(raw, fmt.Sprintf("expected %d segments, got %d", minSegments, len(segments)))
	}

	markers, err := locateMarkers(segments)
	if err != nil {
		return malformed(raw, err.Error())
	}

	var bodies [sectionCount]string
	for s := Section(0); s < sectionCount; s++ {
		end := len(segments)
		if s+1 < sectionCount {
			end = markers[s+1]
		}
		bodies[s] = clean(strings.Join(segments[markers[s]+1:end], "\n\n"))
		if bodies[s] == "" {
			return malformed(raw, fmt.Sprintf("section %q is empty", s))
		}
	}

	a := types.StructuredAnswer{
		DirectAnswer: bodies[DirectAnswer],
		Reasoning:    bodies[Reasoning],
		Citations:    bodies[Citations],
		Raw:          raw,
		State:        types.WellFormed,
	}
	if markers[DirectAnswer] > 0 {
		a.Notes = append(a.Notes, fmt.Sprintf("ignored %d leading segments", markers[DirectAnswer]))
	}

	level, ok := NormalizeConfidence(bodies[Confidence])
	a.Confidence = string(level)
	if !ok {
		a.Notes = append(a.Notes, fmt.Sprintf("confidence %q outside scale, set to %s", bodies[Confidence], level))
	}
	return a
}

// locateMarkers returns the segment index of each section header. Headers are
// matched in contract order, each after the previous one.
func locateMarkers(segments []string) ([sectionCount]int, error) {
	var markers [sectionCount]int
	next := 0
	for s := Section(0); s < sectionCount; s++ {
		found := -1
		for i := next; i < len(segments); i++ {
			if h, ok := lookupSection(clean(segments[i])); ok && h == s {
				found = i
				break
			}
		}
		if found < 0 {
			return markers, fmt.Errorf("section header %q not found in order", s)
		}
		markers[s] = found
		next = found + 1
	}
	return markers, nil
}

func lookupSection(header string) (Section, bool) {
	h := strings.ToLower(strings.TrimRight(strings.TrimSpace(header), ":"))
	h = strings.TrimLeft(h, "# ")
	for i, name := range sectionNames {
		if h == strings.ToLower(name) {
			return Section(i), true
		}
	}
	return 0, false
}

// clean removes every bold marker and the surrounding whitespace.
func clean(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "**", ""))
}

func malformed(raw, why string) types.StructuredAnswer {
	return types.StructuredAnswer{
		DirectAnswer: raw,
		Reasoning:    types.NotAvailable,
		Citations:    types.NotAvailable,
		Confidence:   types.NotAvailable,
		Raw:          raw,
		State:        types.Malformed,
		Notes:        []string{why},
	}
}

// Format renders sections in wire form. Parse(Format(...)) round-trips.
func Format(direct, reasoning, citations, confidence string) string {
	parts := []string{
		"**" + sectionNames[DirectAnswer], direct,
		sectionNames[Reasoning], reasoning,
		sectionNames[Citations], citations,
		sectionNames[Confidence], confidence + "**",
	}
	return strings.Join(parts, Delimiter)
}
