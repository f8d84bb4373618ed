package auditlog

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"fin-query-agent/internal/types"
)

const unresolvedTicker = "UNRESOLVED"

type aggRow struct {
	Ticker     string
	Queries    int
	WellFormed int
	Malformed  int
	Failed     int
	Low        int
	Medium     int
	High       int
}

func (r *aggRow) add(e Entry) {
	r.Queries++
	switch {
	case e.Result == string(types.ResultFailure):
		r.Failed++
	case e.State == string(types.Malformed):
		r.Malformed++
	case e.State == string(types.WellFormed):
		r.WellFormed++
	}
	switch types.ConfidenceLevel(e.Confidence) {
	case types.ConfidenceLow:
		r.Low++
	case types.ConfidenceMedium:
		r.Medium++
	case types.ConfidenceHigh:
		r.High++
	}
}

func (r *aggRow) record() []string {
	return []string{
		r.Ticker,
		strconv.Itoa(r.Queries),
		strconv.Itoa(r.WellFormed),
		strconv.Itoa(r.Malformed),
		strconv.Itoa(r.Failed),
		strconv.Itoa(r.Low),
		strconv.Itoa(r.Medium),
		strconv.Itoa(r.High),
	}
}

// SummarizeDay writes a per-ticker CSV of the given day's entries and returns
// its path. A day with no log file or no entries yields "" and no error.
// Lines that do not decode are skipped.
func (l *Log) SummarizeDay(t time.Time) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.dailyFilepath(t))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	aggs := map[string]*aggRow{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		ticker := e.Ticker
		if ticker == "" {
			ticker = unresolvedTicker
		}
		row := aggs[ticker]
		if row == nil {
			row = &aggRow{Ticker: ticker}
			aggs[ticker] = row
		}
		row.add(e)
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := l.summaryFilepath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	headers := []string{"ticker", "queries", "well_formed", "malformed", "failed", "low", "medium", "high"}
	if err := w.Write(headers); err != nil {
		return "", err
	}
	total := aggRow{Ticker: "TOTAL"}
	for _, k := range keys {
		r := aggs[k]
		if err := w.Write(r.record()); err != nil {
			return "", err
		}
		total.Queries += r.Queries
		total.WellFormed += r.WellFormed
		total.Malformed += r.Malformed
		total.Failed += r.Failed
		total.Low += r.Low
		total.Medium += r.Medium
		total.High += r.High
	}
	if err := w.Write(total.record()); err != nil {
		return "", err
	}
	w.Flush()
	return outPath, w.Error()
}
