package naming

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Separator joins the segments of a nested document path inside a single
// GraphQL identifier, e.g. author___email.
const Separator = "___"

// escapeUnit matches one escaped rune, e.g. _x0024_ for "$".
var escapeUnit = regexp.MustCompile(`^_x([0-9A-F]{4,6})_`)

var literalNames = map[string]bool{"true": true, "false": true, "null": true}

// EscapeName turns an arbitrary column name into a valid GraphQL name.
// Names that are already valid and unambiguous are returned unchanged.
// The transformation is reversible with UnescapeName, and escaped names
// never contain Separator, so they can be joined into flattened paths.
func EscapeName(name string) string {
	if name == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); {
		r, size := utf8.DecodeRuneInString(name[i:])
		rest := name[i+size:]
		switch {
		case isLetter(r):
			b.WriteRune(r)
		case isDigit(r) && i > 0:
			b.WriteRune(r)
		case r == '_' && !mustEscapeUnderscore(rest):
			b.WriteRune(r)
		default:
			writeUnit(&b, r)
		}
		i += size
	}

	out := b.String()
	if literalNames[out] {
		var prefixed strings.Builder
		writeUnit(&prefixed, rune(out[0]))
		prefixed.WriteString(out[1:])
		out = prefixed.String()
	}
	return out
}

// mustEscapeUnderscore reports whether an underscore would be ambiguous if
// written raw. A raw underscore is only kept when it is followed by a letter
// other than x, or by a digit, so "_x" and "___" only ever appear in output as
// an escape unit or a separator.
func mustEscapeUnderscore(rest string) bool {
	if rest == "" {
		return true
	}
	next, _ := utf8.DecodeRuneInString(rest)
	if next == 'x' {
		return true
	}
	return !isLetter(next) && !isDigit(next)
}

func writeUnit(b *strings.Builder, r rune) {
	fmt.Fprintf(b, "_x%04X_", r)
}

// UnescapeName reverses EscapeName.
func UnescapeName(name string) string {
	segments := scan(name, false)
	return segments[0]
}

// JoinPath escapes each segment and joins them with Separator.
func JoinPath(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, segment := range segments {
		escaped[i] = EscapeName(segment)
	}
	return strings.Join(escaped, Separator)
}

// SplitPath splits a flattened identifier on Separator and unescapes each
// segment. Escape units are consumed before separators so that an escaped
// rune adjacent to a separator is never split.
func SplitPath(name string) []string {
	return scan(name, true)
}

func scan(name string, splitSeparator bool) []string {
	var segments []string
	var current strings.Builder
	for i := 0; i < len(name); {
		if name[i] == '_' {
			if m := escapeUnit.FindStringSubmatch(name[i:]); m != nil {
				if code, err := strconv.ParseUint(m[1], 16, 32); err == nil && utf8.ValidRune(rune(code)) {
					current.WriteRune(rune(code))
					i += len(m[0])
					continue
				}
			}
			if splitSeparator && strings.HasPrefix(name[i:], Separator) {
				segments = append(segments, current.String())
				current.Reset()
				i += len(Separator)
				continue
			}
		}
		r, size := utf8.DecodeRuneInString(name[i:])
		current.WriteRune(r)
		i += size
	}
	return append(segments, current.String())
}

// IsValidName reports whether s is a legal GraphQL name that is not reserved
// for introspection.
func IsValidName(s string) bool {
	if s == "" || strings.HasPrefix(s, "__") {
		return false
	}
	for i, r := range s {
		switch {
		case isLetter(r), r == '_':
		case isDigit(r) && i > 0:
		default:
			return false
		}
	}
	return true
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
