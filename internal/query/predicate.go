// Package query composes the parameterised aggregate statements run against
// the sell-in, sell-out and stock materialized views.
package query

import (
	"fmt"
	"regexp"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// Operator is the comparison a Predicate applies.
type Operator string

// Supported operators.
const (
	OpEq      Operator = "="
	OpLTE     Operator = "<="
	OpAny     Operator = "ANY"
	OpBetween Operator = "BETWEEN"
	OpLike    Operator = "LIKE"
	OpILike   Operator = "ILIKE"
)

// LinearMonth is the year/month pair flattened to a single comparable integer.
const LinearMonth = "(year * 12 + month)"

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)

// Predicate is a typed WHERE condition. Values are always bound as parameters.
type Predicate struct {
	Column   string
	Operator Operator
	Value    any
	// Cast is appended to the placeholder, e.g. "uuid[]".
	Cast string
}

// Neutral reports whether the predicate restricts nothing and should be skipped.
func (p Predicate) Neutral() bool {
	if p.Operator != OpAny {
		return false
	}
	if p.Value == nil {
		return true
	}
	switch v := p.Value.(type) {
	case []string:
		return len(v) == 0
	case []int:
		return len(v) == 0
	case []uuid.UUID:
		return len(v) == 0
	default:
		return false
	}
}

// ToSql implements squirrel.Sqlizer.
func (p Predicate) ToSql() (string, []any, error) {
	if p.Column != LinearMonth && !identifier.MatchString(p.Column) {
		return "", nil, fmt.Errorf("query: column %q is not an identifier", p.Column)
	}
	placeholder := "?"
	if p.Cast != "" {
		if !identifier.MatchString(trimArray(p.Cast)) {
			return "", nil, fmt.Errorf("query: cast %q is not a type name", p.Cast)
		}
		placeholder = "?::" + p.Cast
	}
	switch p.Operator {
	case OpEq, OpLTE, OpLike, OpILike:
		return fmt.Sprintf("%s %s %s", p.Column, p.Operator, placeholder), []any{p.Value}, nil
	case OpAny:
		return fmt.Sprintf("%s = ANY(%s)", p.Column, placeholder), []any{p.Value}, nil
	case OpBetween:
		bounds, ok := p.Value.([2]int)
		if !ok {
			return "", nil, fmt.Errorf("query: BETWEEN on %s needs [2]int bounds", p.Column)
		}
		return fmt.Sprintf("%s BETWEEN ? AND ?", p.Column), []any{bounds[0], bounds[1]}, nil
	default:
		return "", nil, fmt.Errorf("query: unsupported operator %q", p.Operator)
	}
}

// Eq matches column = value.
func Eq(column string, value any) Predicate {
	return Predicate{Column: column, Operator: OpEq, Value: value}
}

// AnyOf matches column against a set. An empty or nil set means no restriction.
func AnyOf[T any](column string, values []T, cast string) Predicate {
	p := Predicate{Column: column, Operator: OpAny, Cast: cast}
	if len(values) > 0 {
		p.Value = values
	}
	return p
}

// MonthSpan bounds rows to the months between from and to, both linearised.
func MonthSpan(from, to int) Predicate {
	return Predicate{Column: LinearMonth, Operator: OpBetween, Value: [2]int{from, to}}
}

// Apply adds every non-neutral predicate to b.
func Apply(b sq.SelectBuilder, preds ...Predicate) sq.SelectBuilder {
	for _, p := range preds {
		if p.Neutral() {
			continue
		}
		b = b.Where(p)
	}
	return b
}

func trimArray(t string) string {
	if len(t) > 2 && t[len(t)-2:] == "[]" {
		return t[:len(t)-2]
	}
	return t
}
