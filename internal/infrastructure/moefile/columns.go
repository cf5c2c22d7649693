package moefile

import (
	"fmt"
	"strconv"
	"time"

	"github.com/moe-roll/rollreturn/internal/domain/roll"
	"github.com/moe-roll/rollreturn/pkg/timeutil"
)

// Column is one field of a student line.
type Column struct {
	Name  string
	value func(s roll.Student) string
}

// Value renders the column for a student.
func (c Column) Value(s roll.Student) string {
	return c.value(s)
}

// SubjectSlots is the number of subject code/hours pairs on a student line.
const SubjectSlots = 50

// StudentColumnCount is the fixed width of a student line.
const StudentColumnCount = 32 + 2*SubjectSlots

func passThrough(name string) Column {
	return Column{Name: name, value: func(s roll.Student) string { return s.Field(name) }}
}

func typed(name string, fn func(s roll.Student) string) Column {
	return Column{Name: name, value: fn}
}

func ethnicity(i int) Column {
	return typed(fmt.Sprintf("ETHNIC%d", i+1), func(s roll.Student) string { return s.Ethnicity[i] })
}

// StudentColumns returns the student line layout in file order. Typed
// columns are rendered from the parsed record; the rest are copied from
// Student.Fields by column name.
func StudentColumns() []Column {
	cols := []Column{
		passThrough("NSN"),
		passThrough("SURNAME"),
		passThrough("FIRSTNAME"),
		passThrough("PREFERRED_SURNAME"),
		passThrough("PREFERRED_FIRSTNAME"),
		typed("GENDER", func(s roll.Student) string { return string(s.Gender) }),
		typed("DOB", func(s roll.Student) string { return compactDate(s.DateOfBirth) }),
		ethnicity(0),
		ethnicity(1),
		ethnicity(2),
		passThrough("IWI1"),
		passThrough("IWI2"),
		passThrough("IWI3"),
		typed("TYPE", func(s roll.Student) string { return s.Type }),
		passThrough("FIRST_ATTENDANCE"),
		passThrough("FIRST_SCHOOLING"),
		typed("START_DATE", func(s roll.Student) string { return compactDate(s.StartDate) }),
		typed("END_DATE", func(s roll.Student) string {
			if s.EndDate == nil {
				return ""
			}
			return compactDate(*s.EndDate)
		}),
		typed("FUNDING_YEAR_LEVEL", func(s roll.Student) string { return strconv.Itoa(s.FundingYearLevel) }),
		typed("FTE", func(s roll.Student) string { return roll.FormatAmount(s.FTE) }),
		typed("STP", func(s roll.Student) string { return s.STP }),
		typed("MAORI", func(s roll.Student) string { return s.MaoriLanguageLevel }),
		passThrough("PACIFIC_MEDIUM"),
		passThrough("PACIFIC_LANGUAGE"),
		passThrough("ORS"),
		passThrough("ECE"),
		passThrough("LAST_SCHOOL"),
		passThrough("ADDRESS1"),
		passThrough("ADDRESS2"),
		passThrough("ADDRESS3"),
		passThrough("TOWN"),
		passThrough("POSTCODE"),
	}
	for i := 1; i <= SubjectSlots; i++ {
		cols = append(cols,
			passThrough(fmt.Sprintf("SUBJECT%d", i)),
			passThrough(fmt.Sprintf("HOURS%d", i)),
		)
	}
	return cols
}

// StudentLine renders a student in StudentColumns order.
func StudentLine(columns []Column, s roll.Student) []string {
	cells := make([]string, len(columns))
	for i, c := range columns {
		cells[i] = c.Value(s)
	}
	return cells
}

func compactDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return timeutil.CompactDate(t)
}
