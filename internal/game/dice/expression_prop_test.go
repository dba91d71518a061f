package dice

import (
	"testing"

	"pgregory.net/rapid"
)

// TestExpressionRoundTripProperty checks that String/ParseExpression round-trip
// for arbitrary well-formed expressions.
func TestExpressionRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		groupCount := rapid.IntRange(1, 4).Draw(t, "groups")
		expr := Expression{Modifier: rapid.IntRange(-10, 10).Draw(t, "modifier")}
		for i := 0; i < groupCount; i++ {
			expr.Groups = append(expr.Groups, Spec{
				Sides: rapid.SampledFrom([]int{4, 6, 8, 10, 12, 20, 100}).Draw(t, "sides"),
				Count: rapid.IntRange(1, 12).Draw(t, "count"),
			})
		}

		parsed, err := ParseExpression(expr.String())
		if err != nil {
			t.Fatalf("ParseExpression(%q) error: %v", expr.String(), err)
		}
		if parsed.String() != expr.String() {
			t.Fatalf("round trip %q != %q", parsed.String(), expr.String())
		}
	})
}

// TestDoubledProperty checks doubling invariants for arbitrary expressions.
func TestDoubledProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		expr := Expression{Modifier: rapid.IntRange(-5, 15).Draw(t, "modifier")}
		groupCount := rapid.IntRange(1, 3).Draw(t, "groups")
		for i := 0; i < groupCount; i++ {
			expr.Groups = append(expr.Groups, Spec{
				Sides: rapid.SampledFrom([]int{4, 6, 8, 10, 12}).Draw(t, "sides"),
				Count: rapid.IntRange(1, 10).Draw(t, "count"),
			})
		}

		doubled := expr.Doubled()
		if doubled.Modifier != expr.Modifier {
			t.Fatalf("modifier changed: %d -> %d", expr.Modifier, doubled.Modifier)
		}
		for i := range expr.Groups {
			if doubled.Groups[i].Count != expr.Groups[i].Count*2 {
				t.Fatalf("group %d count %d, want %d", i, doubled.Groups[i].Count, expr.Groups[i].Count*2)
			}
			if doubled.Groups[i].Sides != expr.Groups[i].Sides {
				t.Fatalf("group %d sides changed", i)
			}
		}
	})
}
