package roll

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/moe-roll/rollreturn/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Gender is the binary gender code used as a table axis.
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// Genders returns the table axis in column order (male first).
func Genders() []Gender {
	return []Gender{GenderMale, GenderFemale}
}

// IsValid reports whether g is M or F.
func (g Gender) IsValid() bool {
	return g == GenderMale || g == GenderFemale
}

// Year level bounds for funding year levels.
const (
	MinYearLevel = 1
	MaxYearLevel = 15
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Student is one enrolled student for the period. Only the typed fields take
// part in aggregation; Fields carries every other column verbatim.
type Student struct {
	// Type is the enrolment type code (RE, FF, AE, EX, RA, ...).
	Type string

	// StartDate is the first day of attendance.
	StartDate time.Time

	// EndDate is the last day of attendance, nil while still enrolled.
	EndDate *time.Time

	DateOfBirth time.Time

	Gender Gender

	// FundingYearLevel is 1-15.
	FundingYearLevel int

	// FTE is the enrolment load in [0, 1], exact to one decimal place.
	FTE decimal.Decimal

	// STP is the secondary-tertiary programme code, empty when absent.
	STP string

	// MaoriLanguageLevel is the raw Māori language learning code, empty when absent.
	MaoriLanguageLevel string

	// Ethnicity holds up to three ethnicity codes.
	Ethnicity [3]string

	// Fields holds pass-through column values keyed by column name.
	Fields map[string]string
}

// Field returns a pass-through column value, or "" when absent.
func (s Student) Field(name string) string {
	if s.Fields == nil {
		return ""
	}
	return s.Fields[name]
}

// HasEthnicity reports whether any of the three ethnicity codes equals code.
func (s Student) HasEthnicity(code string) bool {
	for _, e := range s.Ethnicity {
		if e != "" && e == code {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// FIELD CHECKS
// Each check covers one field used by classification. Failures abort the
// whole aggregation pass.
// ══════════════════════════════════════════════════════════════════════════════

var fteMax = decimal.NewFromInt(1)

func checkFilterFields(index int, s Student) error {
	if s.Type == "" {
		return shared.Validation("roll", "Classify", "student %d: missing type", index)
	}
	if s.StartDate.IsZero() {
		return shared.Validation("roll", "Classify", "student %d: missing start date", index)
	}
	if s.EndDate != nil && s.EndDate.IsZero() {
		return shared.Validation("roll", "Classify", "student %d: malformed end date", index)
	}
	return nil
}

func checkAxisFields(index int, s Student) error {
	if !s.Gender.IsValid() {
		return shared.Validation("roll", "Classify", "student %d: gender %q is not M or F", index, string(s.Gender))
	}
	if s.FundingYearLevel < MinYearLevel || s.FundingYearLevel > MaxYearLevel {
		return shared.Validation("roll", "Classify", "student %d: funding year level %d out of range", index, s.FundingYearLevel)
	}
	return nil
}

func checkFTE(index int, s Student) error {
	if s.FTE.IsNegative() || s.FTE.GreaterThan(fteMax) {
		return shared.Validation("roll", "Classify", "student %d: fte %s outside [0,1]", index, s.FTE.String())
	}
	return nil
}

func checkDateOfBirth(index int, s Student) error {
	if s.DateOfBirth.IsZero() {
		return shared.Validation("roll", "Classify", "student %d: missing date of birth", index)
	}
	return nil
}
