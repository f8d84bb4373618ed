// Package auditlog keeps an append-only JSONL record of finished queries,
// one file per UTC day, with gzip retention and a daily CSV summary.
package auditlog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fin-query-agent/internal/types"
)

const dayLayout = "2006-01-02"

type Entry struct {
	Time         string `json:"time"`
	InvocationID string `json:"invocation_id"`
	Query        string `json:"query"`
	Company      string `json:"company,omitempty"`
	Ticker       string `json:"ticker,omitempty"`
	Intent       string `json:"intent,omitempty"`
	Window       string `json:"window,omitempty"`
	Result       string `json:"result"`
	State        string `json:"state,omitempty"`
	Confidence   string `json:"confidence,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	Error        string `json:"error,omitempty"`
	Evidence     int    `json:"evidence"`
	Metrics      int    `json:"metrics"`
	DurationMS   int64  `json:"duration_ms"`
}

// FromResult builds the entry for one finished invocation.
func FromResult(query string, r types.Result, window string, took time.Duration) Entry {
	e := Entry{
		InvocationID: r.InvocationID,
		Query:        query,
		Intent:       string(r.Intent),
		Window:       window,
		Result:       string(r.Kind),
		Evidence:     len(r.Evidence),
		Metrics:      len(r.Metrics),
		DurationMS:   took.Milliseconds(),
	}
	if r.Entity != nil {
		e.Company, e.Ticker = r.Entity.Name, r.Entity.Ticker
	}
	if r.Answer != nil {
		e.State, e.Confidence = string(r.Answer.State), r.Answer.Confidence
	}
	if r.Failure != nil {
		e.ErrorKind, e.Error = string(r.Failure.Kind), r.Failure.Message
	}
	return e
}

// Log writes under one directory. It is safe for concurrent use.
type Log struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func New(dir string) *Log {
	if dir == "" {
		dir = "logs/audit"
	}
	return &Log{dir: dir, now: func() time.Time { return time.Now().UTC() }}
}

func (l *Log) Dir() string { return l.dir }

func (l *Log) dailyFilepath(t time.Time) string {
	return filepath.Join(l.dir, t.UTC().Format(dayLayout)+".jsonl")
}

func (l *Log) summaryFilepath(t time.Time) string {
	return filepath.Join(l.dir, "summary", t.UTC().Format(dayLayout)+".csv")
}

// Append stamps e with the current time and writes it as one line.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e.Time = now.Format(time.RFC3339)
	p := l.dailyFilepath(now)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips day files last modified more than retentionDays ago
// and removes the originals. It returns the number of files compressed.
func (l *Log) CompressOlder(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().AddDate(0, 0, -retentionDays)
	compressed := 0
	err := filepath.WalkDir(l.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || filepath.Ext(p) != ".jsonl" {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}

		gz := p + ".gz"
		if _, err := os.Stat(gz); err == nil {
			return os.Remove(p)
		}
		if err := gzipFile(p, gz); err != nil {
			return fmt.Errorf("compress %s: %w", p, err)
		}
		compressed++
		return os.Remove(p)
	})
	return compressed, err
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
