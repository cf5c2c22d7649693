package roll

import (
	"github.com/shopspring/decimal"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATEGORY TABLE
// ══════════════════════════════════════════════════════════════════════════════

// CellKey addresses one cell of the category table.
type CellKey struct {
	Category  Category
	Gender    Gender
	YearLevel int
}

// CategoryTable holds per-category FTE (or headcount) by gender and year
// level, plus the grand total. Every valid cell exists, zero when unused.
type CategoryTable struct {
	Cells map[CellKey]decimal.Decimal
	Total decimal.Decimal

	// Headcount is true when the table counts students instead of FTE.
	Headcount bool
}

// NewCategoryTable returns a zero-filled table.
func NewCategoryTable() *CategoryTable {
	t := &CategoryTable{
		Cells: make(map[CellKey]decimal.Decimal, len(Categories())*2*MaxYearLevel),
		Total: decimal.Zero,
	}
	for _, c := range Categories() {
		for _, g := range Genders() {
			for yl := MinYearLevel; yl <= MaxYearLevel; yl++ {
				t.Cells[CellKey{c, g, yl}] = decimal.Zero
			}
		}
	}
	return t
}

// Add accumulates amount into a cell and the total.
func (t *CategoryTable) Add(key CellKey, amount decimal.Decimal) {
	t.Cells[key] = t.Cells[key].Add(amount)
	t.Total = t.Total.Add(amount)
}

// Cell returns the value of a cell, zero when the key is outside the table.
func (t *CategoryTable) Cell(c Category, g Gender, yearLevel int) decimal.Decimal {
	v, ok := t.Cells[CellKey{c, g, yearLevel}]
	if !ok {
		return decimal.Zero
	}
	return v
}

// CellSum returns the sum over every cell. It always equals Total.
func (t *CategoryTable) CellSum() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range t.Cells {
		sum = sum.Add(v)
	}
	return sum
}

// FormatAmount renders a count or FTE at one decimal place with a trailing
// ".0" trimmed: 1.1 -> "1.1", 1.0 -> "1", 0 -> "0".
func FormatAmount(d decimal.Decimal) string {
	return d.Round(1).String()
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATION
// ══════════════════════════════════════════════════════════════════════════════

// Aggregator runs the two aggregation passes for one rule revision. It holds
// no state between calls.
type Aggregator struct {
	rules RuleSet
}

// NewAggregator creates an Aggregator for the given rules.
func NewAggregator(rules RuleSet) *Aggregator {
	return &Aggregator{rules: rules}
}

// Rules returns the rule set in use.
func (a *Aggregator) Rules() RuleSet {
	return a.rules
}

// Categories builds the category table for the period. Any invalid field on
// a student that reaches classification aborts the pass.
func (a *Aggregator) Categories(period Period, students []Student) (*CategoryTable, error) {
	collectionDate, err := period.CollectionDate()
	if err != nil {
		return nil, err
	}

	table := NewCategoryTable()
	table.Headcount = a.rules.IsHeadcountMonth(period.Month)
	one := decimal.NewFromInt(1)

	for i, s := range students {
		if err := checkFilterFields(i, s); err != nil {
			return nil, err
		}
		if !IsCategoryEligible(a.rules, collectionDate, s) {
			continue
		}
		if err := checkAxisFields(i, s); err != nil {
			return nil, err
		}

		category, err := Classify(a.rules, period, i, s)
		if err != nil {
			return nil, err
		}

		amount := one
		if !table.Headcount {
			if err := checkFTE(i, s); err != nil {
				return nil, err
			}
			amount = s.FTE.Round(1)
		}
		table.Add(CellKey{category, s.Gender, s.FundingYearLevel}, amount)
	}

	return table, nil
}
