// Package roll contains the roll aggregation engine: student eligibility,
// category classification and decimal-safe accumulation into the summary
// tables of a roll return.
//
// Everything here is a pure function of the period, the rule set and the
// student list. There is no I/O and no shared state, so both passes can be
// run (and re-run) before a version number is ever assigned:
//
//	agg := roll.NewAggregator(roll.DefaultRuleSet())
//	categories, err := agg.Categories(period, students)
//	if err != nil {
//	    return err
//	}
//	maori, err := agg.Maori(period, students)
//
// FTE values use github.com/shopspring/decimal and are rounded to one
// decimal place before accumulation, so 0.8 + 0.3 reads 1.1 exactly.
package roll

import "github.com/moe-roll/rollreturn/internal/domain/shared"

func newUnknownMaoriLevel(index int, code string) error {
	return shared.Validation("roll", "Maori", "student %d: unknown Māori language level %q", index, code)
}
