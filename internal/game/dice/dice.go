// Package dice rolls the dice expressions used as status-effect magnitudes.
package dice

import (
	"fmt"
	"strings"
)

// RollResult holds the audit trail of one evaluated expression.
//
// Postcondition: Total() == ±sum(Dice) + Modifier, negative when Negated.
type RollResult struct {
	Expression string // source text, e.g. "-1d4"
	Dice       []int  // individual die results
	Negated    bool   // dice sum is subtracted rather than added
	Modifier   int    // flat modifier (may be negative)
}

// Total returns the signed dice sum plus the modifier.
func (r RollResult) Total() int {
	sum := 0
	for _, d := range r.Dice {
		sum += d
	}
	if r.Negated {
		sum = -sum
	}
	return sum + r.Modifier
}

// String returns a human-readable audit string such as
//
//	"-1d4+1 → -[3] +1 = -2"
//
// Precondition: r.Expression is non-empty.
func (r RollResult) String() string {
	if r.Expression == "" {
		panic("dice: RollResult.String() precondition violated: Expression must be non-empty")
	}
	var b strings.Builder
	b.WriteString(r.Expression)
	b.WriteString(" → ")
	if r.Negated {
		b.WriteByte('-')
	}
	fmt.Fprintf(&b, "%v %+d = %d", r.Dice, r.Modifier, r.Total())
	return b.String()
}

// Source is the randomness provider for dice rolls.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}
