package integration

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const defaultJoinSeparator = ", "

// dateLayouts are tried in order by the date_iso transform.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	time.RFC1123Z,
	time.RFC1123,
}

// ApplyTransform renders a resolved value as a single sheet cell.
func ApplyTransform(col Column, v any) string {
	fallback := ""
	if col.Fallback != nil {
		fallback = *col.Fallback
	}

	switch col.Transform {
	case TransformJSON:
		if v == nil {
			return fallback
		}
		return stringifyJSON(v)
	case TransformJoin:
		arr, ok := v.([]any)
		if !ok {
			return fallback
		}
		sep := defaultJoinSeparator
		if col.Separator != nil {
			sep = *col.Separator
		}
		parts := make([]string, 0, len(arr))
		for _, el := range arr {
			parts = append(parts, stringify(el))
		}
		return strings.Join(parts, sep)
	case TransformDateISO:
		t, ok := parseDate(v)
		if !ok {
			return fallback
		}
		return t.UTC().Format("2006-01-02T15:04:05.000Z")
	default:
		if v == nil {
			return fallback
		}
		return stringify(v)
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		return stringifyJSON(v)
	}
}

func stringifyJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func parseDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	case float64:
		// Epoch milliseconds.
		return time.UnixMilli(int64(t)), true
	}
	return time.Time{}, false
}

type segmentKind int

const (
	segKey segmentKind = iota
	segIndex
	segAll
)

type segment struct {
	kind  segmentKind
	key   string
	index int
}

// ResolvePath looks up a dotted path in a decoded JSON value. Segments may
// carry an index ("items[0]") or a projection ("items[]" or "items.*"); a
// key applied to an array is projected over its elements.
func ResolvePath(v any, path string) any {
	path = strings.TrimSpace(path)
	if path == "" {
		return v
	}
	return resolve(v, parsePath(path))
}

func parsePath(path string) []segment {
	var segs []segment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		if part == "*" {
			segs = append(segs, segment{kind: segAll})
			continue
		}
		name := part
		var suffix string
		if i := strings.IndexByte(part, '['); i >= 0 {
			name, suffix = part[:i], part[i:]
		}
		if name != "" {
			segs = append(segs, segment{kind: segKey, key: name})
		}
		for strings.HasPrefix(suffix, "[") {
			end := strings.IndexByte(suffix, ']')
			if end < 0 {
				break
			}
			inner := strings.TrimSpace(suffix[1:end])
			suffix = suffix[end+1:]
			if inner == "" || inner == "*" {
				segs = append(segs, segment{kind: segAll})
				continue
			}
			if n, err := strconv.Atoi(inner); err == nil {
				segs = append(segs, segment{kind: segIndex, index: n})
			}
		}
	}
	return segs
}

func resolve(v any, segs []segment) any {
	if len(segs) == 0 {
		return v
	}
	seg, rest := segs[0], segs[1:]

	switch seg.kind {
	case segAll:
		arr, ok := v.([]any)
		if !ok {
			return nil
		}
		out := make([]any, 0, len(arr))
		for _, el := range arr {
			out = append(out, resolve(el, rest))
		}
		return out
	case segIndex:
		return resolve(index(v, seg.index), rest)
	}

	switch t := v.(type) {
	case map[string]any:
		return resolve(t[seg.key], rest)
	case []any:
		if n, err := strconv.Atoi(seg.key); err == nil {
			return resolve(index(t, n), rest)
		}
		out := make([]any, 0, len(t))
		for _, el := range t {
			out = append(out, resolve(el, segs))
		}
		return out
	}
	return nil
}

func index(v any, n int) any {
	arr, ok := v.([]any)
	if !ok || n < 0 || n >= len(arr) {
		return nil
	}
	return arr[n]
}

// MergeHeaders keeps the existing header order and appends any required
// column missing from it. changed is false when existing already covers
// required.
func MergeHeaders(existing, required []string) (merged []string, changed bool) {
	seen := make(map[string]bool, len(existing))
	merged = make([]string, 0, len(existing)+len(required))
	for _, h := range existing {
		merged = append(merged, h)
		seen[strings.TrimSpace(h)] = true
	}
	for _, h := range required {
		if seen[h] {
			continue
		}
		seen[h] = true
		merged = append(merged, h)
	}
	return merged, len(existing) == 0 || len(merged) != len(existing)
}

// BuildRow renders one row aligned to header. Header cells without a
// column mapping are left empty.
func BuildRow(header []string, columns []Column, data any) []string {
	byHeader := make(map[string]Column, len(columns))
	for _, c := range columns {
		byHeader[c.Header] = c
	}
	row := make([]string, len(header))
	for i, h := range header {
		col, ok := byHeader[strings.TrimSpace(h)]
		if !ok {
			continue
		}
		row[i] = ApplyTransform(col, ResolvePath(data, col.SourcePath))
	}
	return row
}
