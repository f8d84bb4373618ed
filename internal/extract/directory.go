package extract

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed companies.yaml
var embeddedCompanies []byte

// Company is one entry of the known-company reference set.
type Company struct {
	Name     string   `yaml:"name"`
	Ticker   string   `yaml:"ticker"`
	Exchange string   `yaml:"exchange"`
	Aliases  []string `yaml:"aliases"`
	Priority int      `yaml:"priority"`
}

// Directory is immutable after load and safe to share across invocations.
type Directory struct {
	companies []Company
	byTicker  map[string]int
	patterns  []namePattern
}

type namePattern struct {
	re      *regexp.Regexp
	company int
	full    bool // matches the registered name rather than an alias
	length  int
}

// Match is a lexical hit with a 0-1 confidence.
type Match struct {
	Company    Company
	Confidence float64
	Via        string
}

// LoadDirectory reads a YAML company file, or the embedded set when path is empty.
func LoadDirectory(path string) (*Directory, error) {
	if path == "" {
		return ParseDirectory(embeddedCompanies)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read companies file: %w", err)
	}
	return ParseDirectory(b)
}

func ParseDirectory(b []byte) (*Directory, error) {
	var doc struct {
		Companies []Company `yaml:"companies"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse companies: %w", err)
	}
	d := &Directory{byTicker: make(map[string]int, len(doc.Companies))}
	for _, c := range doc.Companies {
		c.Ticker = strings.ToUpper(strings.TrimSpace(c.Ticker))
		if c.Ticker == "" || c.Name == "" {
			return nil, fmt.Errorf("company entry needs name and ticker: %+v", c)
		}
		if _, dup := d.byTicker[c.Ticker]; dup {
			return nil, fmt.Errorf("duplicate ticker %s", c.Ticker)
		}
		idx := len(d.companies)
		d.companies = append(d.companies, c)
		d.byTicker[c.Ticker] = idx

		d.patterns = append(d.patterns, compileName(shortName(c.Name), idx, true))
		for _, a := range c.Aliases {
			d.patterns = append(d.patterns, compileName(a, idx, false))
		}
	}
	return d, nil
}

func compileName(name string, idx int, full bool) namePattern {
	name = strings.ToLower(strings.TrimSpace(name))
	return namePattern{
		re:      regexp.MustCompile(`(^|[^a-z0-9])` + regexp.QuoteMeta(name) + `($|[^a-z0-9])`),
		company: idx,
		full:    full,
		length:  len(name),
	}
}

var corpSuffix = regexp.MustCompile(`(?i)[,\s]+(inc\.?|corporation|corp\.?|co\.?|company|holdings|group|plc|ltd\.?)$`)

// shortName drops corporate suffixes: "Amazon.com Inc." -> "amazon.com".
func shortName(name string) string {
	n := strings.TrimSpace(name)
	for {
		t := strings.TrimRight(corpSuffix.ReplaceAllString(n, ""), " &,")
		if t == n {
			break
		}
		n = t
	}
	return strings.TrimPrefix(strings.ToLower(n), "the ")
}

func (d *Directory) Len() int { return len(d.companies) }

func (d *Directory) ByTicker(ticker string) (Company, bool) {
	i, ok := d.byTicker[strings.ToUpper(strings.TrimSpace(ticker))]
	if !ok {
		return Company{}, false
	}
	return d.companies[i], true
}

var contextWords = []string{"stock", "shares", "share price", "ticker", "market cap", "earnings", "trading"}

// MatchNames scores every company whose name or alias occurs in text, best first.
func (d *Directory) MatchNames(text string) []Match {
	lower := strings.ToLower(text)
	context := 0
	for _, w := range contextWords {
		if strings.Contains(lower, w) {
			context++
		}
	}

	best := map[int]Match{}
	for _, p := range d.patterns {
		if !p.re.MatchString(lower) {
			continue
		}
		conf := 0.55 + 0.03*float64(p.length)
		via := "alias"
		if p.full {
			conf += 0.2
			via = "name"
		}
		if context > 0 {
			conf += 0.1
		}
		if conf > 0.95 {
			conf = 0.95
		}
		if cur, ok := best[p.company]; !ok || conf > cur.Confidence {
			best[p.company] = Match{Company: d.companies[p.company], Confidence: conf, Via: via}
		}
	}

	out := make([]Match, 0, len(best))
	for _, m := range best {
		out = append(out, m)
	}
	sortMatches(out)
	return out
}

func sortMatches(ms []Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Confidence != ms[j].Confidence {
			return ms[i].Confidence > ms[j].Confidence
		}
		if ms[i].Company.Priority != ms[j].Company.Priority {
			return ms[i].Company.Priority > ms[j].Company.Priority
		}
		return ms[i].Company.Ticker < ms[j].Company.Ticker
	})
}
