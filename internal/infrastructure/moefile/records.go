package moefile

import (
	"strconv"
	"time"

	"github.com/moe-roll/rollreturn/internal/domain/roll"
	"github.com/moe-roll/rollreturn/pkg/timeutil"
)

// NoDate fills a date column that has no value.
const NoDate = "00000000"

// FooterLabel opens the footer record.
const FooterLabel = "Footer"

// Header is the first record of a file.
type Header struct {
	SMSName             string
	SMSVersion          string
	Period              roll.Period
	SchoolNumber        string
	RollTotal           string
	EnrolmentScheme     bool
	EnrolmentSchemeDate *time.Time
}

// Cells renders the header in file order.
func (h Header) Cells() []string {
	scheme, schemeDate := "N", NoDate
	if h.EnrolmentScheme {
		scheme = "Y"
	}
	if h.EnrolmentSchemeDate != nil && !h.EnrolmentSchemeDate.IsZero() {
		schemeDate = timeutil.CompactDate(*h.EnrolmentSchemeDate)
	}
	return []string{
		h.SMSName,
		h.SMSVersion,
		string(h.Period.Month),
		strconv.Itoa(h.Period.Year),
		h.SchoolNumber,
		h.RollTotal,
		scheme,
		schemeDate,
	}
}

// Footer closes the student section.
func Footer(studentCount int, approver string, at time.Time) []string {
	date, clock := timeutil.CompactDate(at), timeutil.CompactTime(at)
	return []string{FooterLabel, strconv.Itoa(studentCount), date, clock, approver, date, clock}
}

// CategoryLines renders the seven category summary records: a label such as
// "M3FR" followed by the male then female cell for each reported year level.
func CategoryLines(period roll.Period, table *roll.CategoryTable) [][]string {
	lines := make([][]string, 0, len(roll.Categories()))
	for _, c := range roll.Categories() {
		levels := c.ReportedYearLevels()
		cells := make([]string, 0, 1+2*len(levels))
		cells = append(cells, period.TableName()+string(c))
		for _, yl := range levels {
			for _, g := range roll.Genders() {
				cells = append(cells, roll.FormatAmount(table.Cell(c, g, yl)))
			}
		}
		lines = append(lines, cells)
	}
	return lines
}

// MaoriLines renders the six Māori language learning records: the bucket
// label followed by the Total counter for year levels 1-15.
func MaoriLines(table *roll.MaoriTable) [][]string {
	lines := make([][]string, 0, len(roll.MaoriLevels()))
	for _, level := range roll.MaoriLevels() {
		cells := make([]string, 0, 1+roll.MaxYearLevel)
		cells = append(cells, level.String())
		for yl := roll.MinYearLevel; yl <= roll.MaxYearLevel; yl++ {
			cells = append(cells, strconv.Itoa(table.Get(level, yl).Total))
		}
		lines = append(lines, cells)
	}
	return lines
}
