// Package cli is the command-line entry surface: it decodes generation
// requests, maps them to application commands and presents the results.
package cli

import (
	"github.com/shopspring/decimal"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DTOs
// ══════════════════════════════════════════════════════════════════════════════

// RequestDTO is the JSON document a student management system hands over
// for one generation.
type RequestDTO struct {
	Meta     MetaDTO      `json:"meta"`
	Students []StudentDTO `json:"students"`
}

// MetaDTO carries school and submission metadata.
type MetaDTO struct {
	SchoolNumber string `json:"school_number"`
	SMSName      string `json:"sms_name"`
	SMSVersion   string `json:"sms_version"`

	// Month is the collection code (M, E, J, S).
	Month string `json:"month"`
	Year  int    `json:"year"`

	EnrolmentScheme     bool   `json:"enrolment_scheme"`
	EnrolmentSchemeDate string `json:"enrolment_scheme_date,omitempty"`

	Draft    bool   `json:"draft"`
	Approver string `json:"approver"`
}

// StudentDTO is one student row. Dates are YYYY-MM-DD or YYYYMMDD.
type StudentDTO struct {
	Type             string `json:"type"`
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date,omitempty"`
	DateOfBirth      string `json:"dob"`
	Gender           string `json:"gender"`
	FundingYearLevel int    `json:"funding_year_level"`

	// FTE accepts either a JSON number or a quoted decimal string. It is
	// required; an absent or null value is rejected.
	FTE decimal.NullDecimal `json:"fte"`

	STP       string    `json:"stp,omitempty"`
	Maori     string    `json:"maori,omitempty"`
	Ethnicity [3]string `json:"ethnicity"`

	// Fields holds every other column by name (NSN, SURNAME, SUBJECT1, ...).
	Fields map[string]string `json:"fields,omitempty"`
}
