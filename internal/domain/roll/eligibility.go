package roll

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/moe-roll/rollreturn/pkg/timeutil"
)

// Category is a mutually exclusive roll-count classification.
type Category string

const (
	CategoryFullTimeRegular Category = "FR"
	CategoryPartTimeRegular Category = "PR"
	CategoryFullTimeAdult   Category = "FA"
	CategoryPartTimeAdult   Category = "PA"
	CategorySTP             Category = "ST"
	CategoryAltEducation    Category = "AE"
	CategoryInternational   Category = "FF"
)

// Categories returns every category in reporting order.
func Categories() []Category {
	return []Category{
		CategoryFullTimeRegular,
		CategoryPartTimeRegular,
		CategoryFullTimeAdult,
		CategoryPartTimeAdult,
		CategorySTP,
		CategoryAltEducation,
		CategoryInternational,
	}
}

// ReportedYearLevels returns the year levels a category's summary line
// carries. Adult, STP and alternative education students are secondary only.
func (c Category) ReportedYearLevels() []int {
	first := MinYearLevel
	switch c {
	case CategoryFullTimeAdult, CategoryPartTimeAdult, CategorySTP, CategoryAltEducation:
		first = 9
	}
	levels := make([]int, 0, MaxYearLevel-first+1)
	for yl := first; yl <= MaxYearLevel; yl++ {
		levels = append(levels, yl)
	}
	return levels
}

var fullTime = decimal.NewFromInt(1)

// IsAttending reports whether the student is on roll at the collection date:
// started on or before it and not finished before it.
func IsAttending(collectionDate time.Time, s Student) bool {
	if s.StartDate.After(collectionDate) {
		return false
	}
	return s.EndDate == nil || !s.EndDate.Before(collectionDate)
}

// IsCategoryEligible is the gate for the category table.
func IsCategoryEligible(rules RuleSet, collectionDate time.Time, s Student) bool {
	return rules.CategoryTypes.Has(s.Type) && IsAttending(collectionDate, s)
}

// IsMaoriEligible is the gate for the Māori language table.
func IsMaoriEligible(rules RuleSet, collectionDate time.Time, s Student) bool {
	if !rules.MaoriTypes.Has(s.Type) || s.MaoriLanguageLevel == "" {
		return false
	}
	if rules.ExcludeSTPFromMaori && rules.STPCodes.Has(s.STP) {
		return false
	}
	return IsAttending(collectionDate, s)
}

// AgeAtJan1 returns the student's age in whole years on 1 January of year.
func AgeAtJan1(s Student, year int) int {
	return timeutil.YearsBetween(s.DateOfBirth, timeutil.StartOfYear(year))
}

// IsFullTime compares FTE to 1 at one-decimal precision.
func IsFullTime(fte decimal.Decimal) bool {
	return fte.Round(1).Equal(fullTime)
}

// Classify assigns an eligible student to exactly one category. index is
// the student's position in the batch, used only in error messages.
func Classify(rules RuleSet, period Period, index int, s Student) (Category, error) {
	switch {
	case s.Type == TypeInternationalFee:
		return CategoryInternational, nil
	case s.Type == TypeAlternativeEducation:
		return CategoryAltEducation, nil
	case rules.STPCodes.Has(s.STP):
		return CategorySTP, nil
	}

	if err := checkDateOfBirth(index, s); err != nil {
		return "", err
	}
	if err := checkFTE(index, s); err != nil {
		return "", err
	}

	adult := AgeAtJan1(s, period.Year) >= rules.AdultAge
	full := IsFullTime(s.FTE)
	switch {
	case !adult && full:
		return CategoryFullTimeRegular, nil
	case !adult:
		return CategoryPartTimeRegular, nil
	case full:
		return CategoryFullTimeAdult, nil
	default:
		return CategoryPartTimeAdult, nil
	}
}
