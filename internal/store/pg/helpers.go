package pg

import (
	"fmt"
	"strings"
)

// --- Nullable helpers ---

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// --- PostgreSQL array helpers ---

// pqStringArray converts a Go string slice to a PostgreSQL text[]
// literal. Elements are always double-quoted so commas, braces, and
// quotes inside a tag survive the round trip.
func pqStringArray(arr []string) interface{} {
	if len(arr) == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, s := range arr {
		if i > 0 {
			b.WriteByte(',')
		}
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, `"`, `\"`)
		b.WriteByte('"')
		b.WriteString(s)
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

// scanStringArray parses a PostgreSQL text[] column (scanned as
// []byte) into a Go string slice, handling quoted and unquoted
// elements.
func scanStringArray(data []byte, dest *[]string) {
	s := string(data)
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return
	}
	s = s[1 : len(s)-1]
	if s == "" {
		return
	}

	var out []string
	var cur strings.Builder
	inQuotes := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
		case c == '"':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	out = append(out, cur.String())
	*dest = out
}

// vectorToString renders a float32 slice as a pgvector literal.
func vectorToString(v []float32) string {
	if len(v) == 0 {
		return ""
	}
	buf := make([]byte, 0, len(v)*10)
	buf = append(buf, '[')
	for i, f := range v {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, []byte(fmt.Sprintf("%g", f))...)
	}
	buf = append(buf, ']')
	return string(buf)
}
