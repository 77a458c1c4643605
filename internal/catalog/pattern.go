package catalog

import (
	"strings"

	"github.com/pharmalytics/pharmalytics/internal/shared"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike neutralises LIKE metacharacters in user input.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// ParseCodePattern turns the wildcard syntax of code searches into a LIKE
// pattern. A leading * matches a suffix, * on both ends a substring, and no
// leading * a prefix. A trailing * alone is the same as none.
func ParseCodePattern(q string) (string, error) {
	q = strings.TrimSpace(q)
	leading := strings.HasPrefix(q, "*")
	trailing := strings.HasSuffix(q, "*")
	core := strings.TrimSuffix(strings.TrimPrefix(q, "*"), "*")
	if core == "" || strings.Contains(core, "*") {
		return "", shared.Invalid("q", "malformed wildcard pattern")
	}
	escaped := EscapeLike(core)
	switch {
	case leading && trailing:
		return "%" + escaped + "%", nil
	case leading:
		return "%" + escaped, nil
	default:
		return escaped + "%", nil
	}
}

// NamePattern matches names containing q anywhere.
func NamePattern(q string) string {
	return "%" + EscapeLike(q) + "%"
}
