package roll

import (
	"fmt"
	"sort"
)

// CodeSet is a closed set of string codes.
type CodeSet map[string]struct{}

// NewCodeSet builds a CodeSet from the given codes.
func NewCodeSet(codes ...string) CodeSet {
	s := make(CodeSet, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether code is in the set. The empty code is never a member.
func (s CodeSet) Has(code string) bool {
	if code == "" {
		return false
	}
	_, ok := s[code]
	return ok
}

// Sorted returns the members in lexical order.
func (s CodeSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// MaoriLevel is an output bucket of the Māori language learning table.
type MaoriLevel int

const (
	MLL1 MaoriLevel = iota + 1
	MLL2
	MLL3
	MLL4
	MLL5
	MLL6
)

// MaoriLevels returns the buckets in reporting order.
func MaoriLevels() []MaoriLevel {
	return []MaoriLevel{MLL1, MLL2, MLL3, MLL4, MLL5, MLL6}
}

// String returns the bucket label, e.g. "MLL3".
func (l MaoriLevel) String() string {
	return fmt.Sprintf("MLL%d", int(l))
}

// RuleSet holds every closed code set and toggle the aggregation passes use.
// It is passed explicitly so rule revisions can differ per call.
type RuleSet struct {
	// CategoryTypes are the enrolment types counted in the category table.
	CategoryTypes CodeSet

	// MaoriTypes are the enrolment types counted in the Māori language table.
	MaoriTypes CodeSet

	// STPCodes are the secondary-tertiary programme codes that route a
	// student to category ST.
	STPCodes CodeSet

	// MaoriLevelCodes maps raw level codes to buckets. A code mapped to 0 is
	// recognised but not reported (e.g. "not learning te reo Māori").
	MaoriLevelCodes map[string]MaoriLevel

	// MaoriEthnicityCode flags Māori ethnicity for the secondary counter.
	MaoriEthnicityCode string

	// HeadcountMonths are collections that count students instead of FTE.
	HeadcountMonths map[MonthCode]bool

	// ExcludeSTPFromMaori drops STP students from the Māori language pass.
	// Historical rule revisions disagree on this, so it is explicit.
	ExcludeSTPFromMaori bool

	// AdultAge is the age at 1 January from which students count as adults.
	AdultAge int
}

// Enrolment type codes referenced directly by classification.
const (
	TypeRegular               = "RE"
	TypeAdult                 = "RA"
	TypeAdultNonFunded        = "AD"
	TypeAlternativeEducation  = "AE"
	TypeInternationalFee      = "FF"
	TypeExchange              = "EX"
	TypeRegularSpecial        = "RS"
	TypeTeKuraRegularDual     = "TPREOM"
	TypeTeKuraAdultDual       = "TPRAOM"
	DefaultMaoriEthnicityCode = "211"
)

// DefaultSTPCodes are the ministry-issued secondary-tertiary programme codes.
var DefaultSTPCodes = []string{
	"STP01", "STP02", "STP03", "STP04", "STP05", "STP06", "STP07", "STP08",
	"STP09", "STP10", "STP11", "STP12", "STP13", "STP14", "STP15", "STP16",
	"STP17", "STP18", "STP19", "STP20", "STP21", "STP22",
}

// DefaultRuleSet returns the current rule revision.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		CategoryTypes: NewCodeSet(
			TypeRegular, TypeAdult, TypeAdultNonFunded, TypeAlternativeEducation,
			TypeInternationalFee, TypeRegularSpecial, TypeTeKuraRegularDual, TypeTeKuraAdultDual,
		),
		MaoriTypes: NewCodeSet(
			TypeRegular, TypeAdult, TypeAdultNonFunded, TypeRegularSpecial,
			TypeTeKuraRegularDual, TypeTeKuraAdultDual,
		),
		STPCodes: NewCodeSet(DefaultSTPCodes...),
		MaoriLevelCodes: map[string]MaoriLevel{
			"H": MLL1,
			"G": MLL2,
			"F": MLL3,
			"E": MLL4,
			"D": MLL5,
			"C": MLL6,
			"B": MLL6,
			"A": 0,
		},
		MaoriEthnicityCode:  DefaultMaoriEthnicityCode,
		HeadcountMonths:     map[MonthCode]bool{MonthJuly: true},
		ExcludeSTPFromMaori: true,
		AdultAge:            19,
	}
}

// IsHeadcountMonth reports whether the period counts students instead of FTE.
func (r RuleSet) IsHeadcountMonth(m MonthCode) bool {
	return r.HeadcountMonths[m]
}
