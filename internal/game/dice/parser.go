package dice

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Expression is a parsed dice expression ready to be rolled.
// Count == 0 denotes a constant; the value is then carried entirely by Modifier.
type Expression struct {
	Raw      string
	Negated  bool
	Count    int
	Sides    int
	Modifier int
}

// Constant reports whether e rolls no dice.
func (e Expression) Constant() bool {
	return e.Count == 0
}

// Bounds on a single dice term. Larger pools are rejected at parse time.
const (
	MaxDice  = 100
	MaxSides = 1000
)

var (
	constantPattern = regexp.MustCompile(`^[+-]?\d+$`)
	dicePattern     = regexp.MustCompile(`^([+-])?(\d*)d(\d+)([+-]\d+)?$`)
)

// Parse parses a dice expression.
// Supported forms: "5", "-3", "d20", "2d6", "-1d4", "2d6+3", "+4d8-2".
//
// Postcondition: Returns a valid Expression with Count <= MaxDice and
// Sides <= MaxSides, or a descriptive error.
func Parse(expr string) (Expression, error) {
	s := strings.ToLower(strings.TrimSpace(expr))
	if s == "" {
		return Expression{}, fmt.Errorf("dice: empty expression")
	}

	if constantPattern.MatchString(s) {
		v, err := strconv.Atoi(s)
		if err != nil {
			return Expression{}, fmt.Errorf("dice: invalid constant %q: %w", expr, err)
		}
		return Expression{Raw: expr, Modifier: v}, nil
	}

	m := dicePattern.FindStringSubmatch(s)
	if m == nil {
		return Expression{}, fmt.Errorf("dice: malformed expression %q", expr)
	}

	count := 1
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil || n < 1 || n > MaxDice {
			return Expression{}, fmt.Errorf("dice: invalid die count in %q: must be between 1 and %d", expr, MaxDice)
		}
		count = n
	}
	sides, err := strconv.Atoi(m[3])
	if err != nil || sides < 2 || sides > MaxSides {
		return Expression{}, fmt.Errorf("dice: invalid die sides in %q: must be between 2 and %d", expr, MaxSides)
	}
	modifier := 0
	if m[4] != "" {
		if modifier, err = strconv.Atoi(m[4]); err != nil {
			return Expression{}, fmt.Errorf("dice: invalid modifier in %q: %w", expr, err)
		}
	}

	return Expression{
		Raw:      expr,
		Negated:  m[1] == "-",
		Count:    count,
		Sides:    sides,
		Modifier: modifier,
	}, nil
}

// MustParse parses expr and panics on error.
//
// Precondition: expr must be a valid dice expression.
func MustParse(expr string) Expression {
	e, err := Parse(expr)
	if err != nil {
		panic("dice: MustParse failed for expression " + expr + ": " + err.Error())
	}
	return e
}
