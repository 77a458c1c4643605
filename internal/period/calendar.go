// Package period resolves analysis and comparison windows and picks the
// bucketing granularity used by the aggregate queries.
package period

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

// CalendarDate is a day on the calendar with no clock or zone attached.
type CalendarDate struct {
	Year  int
	Month int
	Day   int
}

// NewDate builds a CalendarDate, normalising overflow the way time.Date does.
func NewDate(year, month, day int) CalendarDate {
	return fromTime(time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC))
}

// Today returns the calendar date of t in its own location.
func Today(t time.Time) CalendarDate {
	return CalendarDate{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// ParseDate reads a YYYY-MM-DD string component by component.
func ParseDate(raw string) (CalendarDate, error) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 3 || len(parts[0]) != 4 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return CalendarDate{}, fmt.Errorf("period: %q is not a YYYY-MM-DD date", raw)
	}
	values := make([]int, 3)
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil {
			return CalendarDate{}, fmt.Errorf("period: %q is not a YYYY-MM-DD date", raw)
		}
		values[i] = v
	}
	d := CalendarDate{Year: values[0], Month: values[1], Day: values[2]}
	if d.Month < 1 || d.Month > 12 || d.Day < 1 || d.Day > daysIn(d.Year, d.Month) {
		return CalendarDate{}, fmt.Errorf("period: %q does not exist", raw)
	}
	return d, nil
}

// String formats the date as YYYY-MM-DD.
func (d CalendarDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Display formats the date as DD/MM/YYYY.
func (d CalendarDate) Display() string {
	return fmt.Sprintf("%02d/%02d/%04d", d.Day, d.Month, d.Year)
}

// Time converts to midnight UTC for drivers that want a time.Time.
func (d CalendarDate) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays moves the date by n days.
func (d CalendarDate) AddDays(n int) CalendarDate {
	return fromTime(d.Time().AddDate(0, 0, n))
}

// AddYears moves the date by n years, clamping Feb 29 to Feb 28.
func (d CalendarDate) AddYears(n int) CalendarDate {
	year := d.Year + n
	day := d.Day
	if last := daysIn(year, d.Month); day > last {
		day = last
	}
	return CalendarDate{Year: year, Month: d.Month, Day: day}
}

// Compare returns -1, 0 or 1.
func (d CalendarDate) Compare(o CalendarDate) int {
	switch {
	case d.ordinal() < o.ordinal():
		return -1
	case d.ordinal() > o.ordinal():
		return 1
	default:
		return 0
	}
}

// After reports whether d is strictly later than o.
func (d CalendarDate) After(o CalendarDate) bool { return d.Compare(o) > 0 }

// DaysUntil counts whole days from d to o.
func (d CalendarDate) DaysUntil(o CalendarDate) int {
	return int(o.Time().Sub(d.Time()).Hours() / 24)
}

// MonthIndex linearises year and month as year*12+month.
func (d CalendarDate) MonthIndex() int {
	return d.Year*12 + d.Month
}

// FirstOfMonth returns day one of d's month.
func (d CalendarDate) FirstOfMonth() CalendarDate {
	return CalendarDate{Year: d.Year, Month: d.Month, Day: 1}
}

// EndOfMonth returns the last day of d's month.
func (d CalendarDate) EndOfMonth() CalendarDate {
	return CalendarDate{Year: d.Year, Month: d.Month, Day: daysIn(d.Year, d.Month)}
}

// AddMonths moves to day one of the month n months away.
func (d CalendarDate) AddMonths(n int) CalendarDate {
	return NewDate(d.Year, d.Month+n, 1)
}

func (d CalendarDate) ordinal() int {
	return d.Year*10000 + d.Month*100 + d.Day
}

func fromTime(t time.Time) CalendarDate {
	return CalendarDate{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DateRange is an inclusive span of calendar days.
type DateRange struct {
	Start CalendarDate `json:"start"`
	End   CalendarDate `json:"end"`
}

// Validate checks start <= end.
func (r DateRange) Validate() error {
	if r.Start.After(r.End) {
		return fmt.Errorf("period: start %s is after end %s", r.Start, r.End)
	}
	return nil
}

// Days is the number of whole days between start and end.
func (r DateRange) Days() int {
	return r.Start.DaysUntil(r.End)
}

// Label renders the range for display.
func (r DateRange) Label() string {
	return r.Start.Display() + " - " + r.End.Display()
}

// MarshalText keeps JSON output as YYYY-MM-DD.
func (d CalendarDate) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses YYYY-MM-DD.
func (d *CalendarDate) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
