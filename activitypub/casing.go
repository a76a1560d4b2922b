package activitypub

import (
	"regexp"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

var (
	acronymBoundary = regexp.MustCompile(`([A-Z\d]+)([A-Z][a-z])`)
	wordBoundary    = regexp.MustCompile(`([a-z\d])([A-Z])`)
)

// Caser turns snake_case and CamelCase identifiers into lowerCamelCase.
// Results are memoized per input string.
type Caser struct {
	cache *xsync.MapOf[string, string]
}

// NewCaser returns a Caser backed by cache, or by a fresh map when nil
func NewCaser(cache *xsync.MapOf[string, string]) *Caser {
	if cache == nil {
		cache = xsync.NewMapOf[string, string]()
	}
	return &Caser{cache: cache}
}

var defaultCaser = NewCaser(nil)

// CamelLower applies the process-wide Caser to a JSON value
func CamelLower(v any) any {
	return defaultCaser.CamelLower(v)
}

// CamelLower transforms a decoded JSON value. Object keys are transformed
// at every depth while string values inside objects are kept. Top level
// strings and lists of strings are transformed themselves.
func (c *Caser) CamelLower(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return c.transformKeys(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = c.CamelLower(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, item := range t {
			out[i] = c.String(item)
		}
		return out
	case string:
		return c.String(t)
	default:
		return v
	}
}

func (c *Caser) transformKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[c.String(k)] = c.transformNested(v)
	}
	return out
}

func (c *Caser) transformNested(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return c.transformKeys(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = c.transformNested(item)
		}
		return out
	default:
		return v
	}
}

// String transforms a single identifier. Blank node ids keep their "_:"
// prefix and URLs are left alone.
func (c *Caser) String(s string) string {
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	if cached, ok := c.cache.Load(s); ok {
		return cached
	}
	var out string
	switch {
	case strings.HasPrefix(s, "_:"):
		out = "_:" + lowerCamelize(underscore(strings.TrimPrefix(s, "_:")))
	default:
		out = lowerCamelize(underscore(s))
	}
	c.cache.Store(s, out)
	return out
}

func underscore(s string) string {
	s = acronymBoundary.ReplaceAllString(s, "${1}_${2}")
	s = wordBoundary.ReplaceAllString(s, "${1}_${2}")
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ToLower(s)
}

func lowerCamelize(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
