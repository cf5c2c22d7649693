package roll

import (
	"fmt"
	"strings"
	"time"

	"github.com/moe-roll/rollreturn/internal/domain/shared"
	"github.com/moe-roll/rollreturn/pkg/timeutil"
)

// MonthCode identifies one of the four roll return collections in a year.
type MonthCode string

const (
	MonthMarch     MonthCode = "M"
	MonthMay       MonthCode = "E"
	MonthJuly      MonthCode = "J"
	MonthSeptember MonthCode = "S"
)

// collectionDays holds the fixed cut-off date of each collection.
var collectionDays = map[MonthCode]struct {
	month time.Month
	day   int
}{
	MonthMarch:     {time.March, 1},
	MonthMay:       {time.May, 28},
	MonthJuly:      {time.July, 1},
	MonthSeptember: {time.September, 2},
}

// MonthCodes returns the valid month codes in collection order.
func MonthCodes() []MonthCode {
	return []MonthCode{MonthMarch, MonthMay, MonthJuly, MonthSeptember}
}

// IsValid reports whether m is one of M, E, J, S.
func (m MonthCode) IsValid() bool {
	_, ok := collectionDays[m]
	return ok
}

// String returns the single-letter code.
func (m MonthCode) String() string {
	return string(m)
}

// ParseMonthCode parses a month code. Unknown codes are a configuration
// error, never a silent default.
func ParseMonthCode(s string) (MonthCode, error) {
	m := MonthCode(strings.ToUpper(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", shared.Configuration("roll", "ParseMonthCode", "unknown collection month code %q", s)
	}
	return m, nil
}

// Collection years are limited to one century because file tags carry only
// the last two digits of the year.
const (
	MinYear = 2000
	MaxYear = 2099
)

// Period is one roll return collection: a month code within a year.
type Period struct {
	Month MonthCode
	Year  int
}

// NewPeriod validates and builds a Period.
func NewPeriod(month string, year int) (Period, error) {
	m, err := ParseMonthCode(month)
	if err != nil {
		return Period{}, err
	}
	if !YearInRange(year) {
		return Period{}, shared.Configuration("roll", "NewPeriod", "collection year %d outside %d-%d", year, MinYear, MaxYear)
	}
	return Period{Month: m, Year: year}, nil
}

// YearInRange reports whether year can be written as a two-digit file tag
// without colliding with another century.
func YearInRange(year int) bool {
	return year >= MinYear && year <= MaxYear
}

// CollectionDate returns the eligibility cut-off for the period: midnight of
// the fixed collection day in the reporting zone.
func (p Period) CollectionDate() (time.Time, error) {
	d, ok := collectionDays[p.Month]
	if !ok {
		return time.Time{}, shared.Configuration("roll", "CollectionDate", "unknown collection month code %q", string(p.Month))
	}
	return timeutil.Date(p.Year, d.month, d.day), nil
}

// ShortYear returns the two-digit year used in file tags (2015 -> "15").
func (p Period) ShortYear() string {
	return fmt.Sprintf("%02d", p.Year%100)
}

// TableName returns the summary table label for the period (M3, E3, J3, S3).
func (p Period) TableName() string {
	return string(p.Month) + "3"
}

// String returns e.g. "M2015".
func (p Period) String() string {
	return fmt.Sprintf("%s%d", p.Month, p.Year)
}
