// Package timeutil provides civil-time helpers for the New Zealand reporting
// jurisdiction. All roll return dates are naive calendar dates anchored to
// Pacific/Auckland midnight.
package timeutil

import (
	"time"
	_ "time/tzdata" // zone data must not depend on the host
)

// ReportingZoneName is the IANA name of the reporting jurisdiction's zone.
const ReportingZoneName = "Pacific/Auckland"

// reportingTZ is set once at package init and never reassigned.
var reportingTZ = mustLoad(ReportingZoneName)

// Location returns the reporting jurisdiction's civil time zone.
func Location() *time.Location {
	return reportingTZ
}

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// tzdata is embedded, so this only triggers on a corrupt build.
		panic("timeutil: load " + name + ": " + err.Error())
	}
	return loc
}

// Now returns the current time in the reporting zone.
func Now() time.Time {
	return time.Now().In(reportingTZ)
}

// ToReporting converts a time to the reporting zone.
func ToReporting(t time.Time) time.Time {
	return t.In(reportingTZ)
}

// Date creates midnight of the given calendar date in the reporting zone.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, reportingTZ)
}

// StartOfDay returns midnight of t's calendar day in the reporting zone.
func StartOfDay(t time.Time) time.Time {
	r := ToReporting(t)
	return time.Date(r.Year(), r.Month(), r.Day(), 0, 0, 0, 0, reportingTZ)
}

// StartOfYear returns 1 January of the given year in the reporting zone.
func StartOfYear(year int) time.Time {
	return Date(year, time.January, 1)
}

// YearsBetween returns the number of whole years elapsed from `from` to `to`
// (an age calculation). It is negative when `to` precedes `from`.
func YearsBetween(from, to time.Time) int {
	f, t := ToReporting(from), ToReporting(to)
	if t.Before(f) {
		return -YearsBetween(to, from)
	}
	years := t.Year() - f.Year()
	if t.Month() < f.Month() || (t.Month() == f.Month() && t.Day() < f.Day()) {
		years--
	}
	return years
}

// Roll return formats.
const (
	// FormatCompactDate is the file's date format (YYYYMMDD).
	FormatCompactDate = "20060102"
	// FormatCompactTime is the file's time format (HHmm).
	FormatCompactTime = "1504"
	// FormatDate is the ISO calendar date used in JSON input.
	FormatDate = "2006-01-02"
)

// CompactDate formats t as YYYYMMDD in the reporting zone.
func CompactDate(t time.Time) string {
	return ToReporting(t).Format(FormatCompactDate)
}

// CompactTime formats t as HHmm in the reporting zone.
func CompactTime(t time.Time) string {
	return ToReporting(t).Format(FormatCompactTime)
}

// ParseDate parses an ISO (YYYY-MM-DD) or compact (YYYYMMDD) date as midnight
// in the reporting zone.
func ParseDate(value string) (time.Time, error) {
	layout := FormatDate
	if len(value) == len(FormatCompactDate) {
		layout = FormatCompactDate
	}
	return time.ParseInLocation(layout, value, reportingTZ)
}
