// Package parser pulls loosely structured signals out of the text bodies returned by the
// export job APIs. Nothing in here fails on malformed input: a field that cannot be found is
// reported as absent and the caller decides whether that matters.
package parser

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Kind is the expected shape of a field value.
type Kind int

const (
	// Text is any scalar, returned as a string.
	Text Kind = iota
	// Integer is a whole number; a leading integer is taken from strings such as "45%".
	Integer
)

// Field names a value to extract and the shape it should have.
type Field struct {
	Name string
	Kind Kind
}

// Value is the outcome of an extraction. Found is false when the field is absent or does not
// have the expected shape.
type Value struct {
	Raw   string
	Int   int
	Found bool
}

var leadingInt = regexp.MustCompile(`^\s*(-?\d+)`)

// Extract looks for f in body. A JSON object body is consulted first, then the raw text is
// scanned for a `"name": value` pair so fields embedded in arbitrary text are still found.
func Extract(body string, f Field) Value {
	raw, ok := lookupJSON(body, f.Name)
	if !ok {
		raw, ok = scan(body, f.Name)
	}
	if !ok {
		return Value{}
	}
	switch f.Kind {
	case Integer:
		n, ok := toInt(raw)
		if !ok {
			return Value{}
		}
		return Value{Raw: raw, Int: n, Found: true}
	default:
		return Value{Raw: raw, Found: true}
	}
}

// String returns the text value of name.
func String(body, name string) (string, bool) {
	v := Extract(body, Field{Name: name, Kind: Text})
	return v.Raw, v.Found
}

// Int returns the integer value of name.
func Int(body, name string) (int, bool) {
	v := Extract(body, Field{Name: name, Kind: Integer})
	return v.Int, v.Found
}

// Percent returns the first of names that carries an integer, clamped to 0..100.
func Percent(body string, names ...string) (int, bool) {
	for _, name := range names {
		if n, ok := Int(body, name); ok {
			return clampPercent(n), true
		}
	}
	return 0, false
}

// After returns the text following marker up to the next double quote or end of line.
func After(body, marker string) (string, bool) {
	i := strings.Index(body, marker)
	if i < 0 {
		return "", false
	}
	rest := body[i+len(marker):]
	if j := strings.IndexAny(rest, "\"\n"); j >= 0 {
		rest = rest[:j]
	}
	return rest, true
}

// PercentAfter parses the integer that follows marker, e.g. "Estimated progress: 45".
func PercentAfter(body, marker string) (int, bool) {
	raw, ok := After(body, marker)
	if !ok {
		return 0, false
	}
	n, ok := toInt(raw)
	if !ok {
		return 0, false
	}
	return clampPercent(n), true
}

// HasError reports whether the token "error" appears anywhere in body, ignoring case.
func HasError(body string) bool {
	return strings.Contains(strings.ToLower(body), "error")
}

func lookupJSON(body, name string) (string, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return "", false
	}
	v, ok := obj[name]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		// objects and arrays are not scalar signals
		return "", false
	}
}

func scan(body, name string) (string, bool) {
	loc := fieldPattern(name).FindStringSubmatchIndex(body)
	if loc == nil {
		return "", false
	}
	if loc[2] >= 0 {
		return unescape(body[loc[2]:loc[3]]), true
	}
	return body[loc[4]:loc[5]], true
}

// patterns caches compiled field patterns by field name.
var patterns sync.Map

// fieldPattern matches "name": "quoted" or "name": bare where bare is a number or literal.
func fieldPattern(name string) *regexp.Regexp {
	if re, ok := patterns.Load(name); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`"` + regexp.QuoteMeta(name) +
		`"\s*:\s*(?:"((?:[^"\\]|\\.)*)"|(-?\d+(?:\.\d+)?|true|false))`)
	actual, _ := patterns.LoadOrStore(name, re)
	return actual.(*regexp.Regexp)
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}

func toInt(raw string) (int, bool) {
	m := leadingInt.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func clampPercent(n int) int {
	switch {
	case n < 0:
		return 0
	case n > 100:
		return 100
	default:
		return n
	}
}
