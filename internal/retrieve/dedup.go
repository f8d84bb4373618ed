package retrieve

import (
	"net/url"
	"sort"
	"strings"
)

// NormalizeURL returns the dedup key for a source URL: scheme-less,
// lowercase host without "www.", no fragment, no tracking parameters,
// sorted query and no trailing slash. Unparseable input is lowercased and
// trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(strings.ToLower(raw), "/")
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if p := u.Port(); p != "" && p != "80" && p != "443" {
		host += ":" + p
	}

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || lk == "fbclid" || lk == "gclid" || lk == "ref" || lk == "guccounter" {
			q.Del(k)
		}
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		vals := q[k]
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}

	path := strings.TrimRight(u.EscapedPath(), "/")
	key := host + path
	if len(parts) > 0 {
		key += "?" + strings.Join(parts, "&")
	}
	return key
}
