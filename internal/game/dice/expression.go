package dice

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidExpression indicates a dice expression could not be parsed.
var ErrInvalidExpression = errors.New("invalid dice expression")

// Expression is a parsed dice expression such as "8d6" or "2d6+3".
//
// An expression is one or more dice groups plus a flat modifier. Terms are
// joined with + or -; a negative dice group (e.g. "-1d4") is rejected, only
// the flat modifier may be negative.
type Expression struct {
	Groups   []Spec
	Modifier int
}

// ParseExpression parses a dice expression. Accepted terms are NdM dice
// groups ("2d6", "d8" meaning 1d8) and integer modifiers, joined by + or -.
func ParseExpression(raw string) (Expression, error) {
	compact := strings.ToLower(strings.ReplaceAll(raw, " ", ""))
	if compact == "" {
		return Expression{}, fmt.Errorf("%w: empty", ErrInvalidExpression)
	}

	var expr Expression
	for len(compact) > 0 {
		term := compact
		next := ""
		if idx := strings.IndexAny(compact[1:], "+-"); idx >= 0 {
			term = compact[:idx+1]
			next = compact[idx+1:]
		}

		sign := 1
		switch {
		case strings.HasPrefix(term, "-"):
			sign = -1
			term = term[1:]
		case strings.HasPrefix(term, "+"):
			term = term[1:]
		}
		if term == "" {
			return Expression{}, fmt.Errorf("%w: dangling operator in %q", ErrInvalidExpression, raw)
		}

		if dIdx := strings.IndexByte(term, 'd'); dIdx >= 0 {
			if sign < 0 {
				return Expression{}, fmt.Errorf("%w: negative dice group in %q", ErrInvalidExpression, raw)
			}
			count := 1
			if dIdx > 0 {
				parsed, err := strconv.Atoi(term[:dIdx])
				if err != nil {
					return Expression{}, fmt.Errorf("%w: bad dice count in %q", ErrInvalidExpression, raw)
				}
				count = parsed
			}
			sides, err := strconv.Atoi(term[dIdx+1:])
			if err != nil {
				return Expression{}, fmt.Errorf("%w: bad dice sides in %q", ErrInvalidExpression, raw)
			}
			if count <= 0 || sides <= 0 {
				return Expression{}, fmt.Errorf("%w: non-positive dice in %q", ErrInvalidExpression, raw)
			}
			expr.Groups = append(expr.Groups, Spec{Sides: sides, Count: count})
		} else {
			value, err := strconv.Atoi(term)
			if err != nil {
				return Expression{}, fmt.Errorf("%w: bad modifier in %q", ErrInvalidExpression, raw)
			}
			expr.Modifier += sign * value
		}

		compact = next
	}

	if len(expr.Groups) == 0 {
		return Expression{}, fmt.Errorf("%w: no dice groups in %q", ErrInvalidExpression, raw)
	}
	return expr, nil
}

// Doubled returns a copy with every dice group's count doubled. The flat
// modifier is unchanged: critical hits double dice, not modifiers.
func (e Expression) Doubled() Expression {
	doubled := Expression{
		Groups:   make([]Spec, len(e.Groups)),
		Modifier: e.Modifier,
	}
	for i, group := range e.Groups {
		doubled.Groups[i] = Spec{Sides: group.Sides, Count: group.Count * 2}
	}
	return doubled
}

// Specs returns the dice groups of the expression.
func (e Expression) Specs() []Spec {
	specs := make([]Spec, len(e.Groups))
	copy(specs, e.Groups)
	return specs
}

// String renders the canonical form of the expression ("2d6+3").
func (e Expression) String() string {
	var b strings.Builder
	for i, group := range e.Groups {
		if i > 0 {
			b.WriteByte('+')
		}
		fmt.Fprintf(&b, "%dd%d", group.Count, group.Sides)
	}
	switch {
	case e.Modifier > 0:
		fmt.Fprintf(&b, "+%d", e.Modifier)
	case e.Modifier < 0:
		fmt.Fprintf(&b, "%d", e.Modifier)
	}
	return b.String()
}

// ExpressionResult captures one rolled expression.
type ExpressionResult struct {
	Rolls     []Roll
	DiceTotal int
	Modifier  int
	Total     int
}

// RollExpression rolls a parsed expression with a deterministic seed.
func RollExpression(expr Expression, seed int64) (ExpressionResult, error) {
	rolled, err := RollDice(Request{Dice: expr.Groups, Seed: seed})
	if err != nil {
		return ExpressionResult{}, err
	}
	return ExpressionResult{
		Rolls:     rolled.Rolls,
		DiceTotal: rolled.Total,
		Modifier:  expr.Modifier,
		Total:     rolled.Total + expr.Modifier,
	}, nil
}
