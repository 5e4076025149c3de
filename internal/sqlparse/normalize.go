package sqlparse

import (
	"regexp"
	"strings"
)

// Literal-substitution patterns. These run on any statement text, including
// SQL the grammar rejects, so the normalizer never fails.
// Go regexp (RE2) has no backreferences, hence one alternation per quote kind.
var (
	stringLiteral = regexp.MustCompile(`'(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*"`)
	numberLiteral = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	whitespace    = regexp.MustCompile(`\s+`)
	inList        = regexp.MustCompile(`IN\s*\(\s*\?(?:\s*,\s*\?)*\s*\)`)
)

// Normalize canonicalizes a SQL string: every string and numeric literal
// becomes ?, IN lists collapse to IN (?), whitespace runs collapse to one
// space, and the whole text is uppercased. Two statements differing only in
// literal values normalize identically, and a second pass is a no-op.
func Normalize(sql string) string {
	s := stringLiteral.ReplaceAllString(sql, "?")
	s = numberLiteral.ReplaceAllString(s, "?")
	s = strings.ToUpper(s)
	s = whitespace.ReplaceAllString(s, " ")
	s = inList.ReplaceAllString(s, "IN (?)")
	return strings.TrimSpace(s)
}
