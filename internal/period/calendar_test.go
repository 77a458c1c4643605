package period

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateKeepsCalendarComponents(t *testing.T) {
	d, err := ParseDate("2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, CalendarDate{Year: 2025, Month: 3, Day: 1}, d)
	assert.Equal(t, "2025-03-01", d.String())
	assert.Equal(t, "01/03/2025", d.Display())
}

func TestParseDateRejectsMalformedInput(t *testing.T) {
	for _, raw := range []string{"", "2025-3-01", "2025/03/01", "2025-02-30", "2025-13-01", "abcd-ef-gh", "2025-03-01T00:00:00Z"} {
		_, err := ParseDate(raw)
		assert.Error(t, err, raw)
	}
}

func TestAddYearsClampsLeapDay(t *testing.T) {
	d := CalendarDate{Year: 2024, Month: 2, Day: 29}
	assert.Equal(t, CalendarDate{Year: 2023, Month: 2, Day: 28}, d.AddYears(-1))
}

func TestDaysAcrossMonthBoundary(t *testing.T) {
	r := DateRange{Start: CalendarDate{Year: 2025, Month: 1, Day: 31}, End: CalendarDate{Year: 2025, Month: 3, Day: 1}}
	assert.Equal(t, 29, r.Days())
	assert.Equal(t, CalendarDate{Year: 2025, Month: 2, Day: 28}, r.End.AddDays(-1))
}

func TestMonthHelpers(t *testing.T) {
	d := CalendarDate{Year: 2025, Month: 1, Day: 15}
	assert.Equal(t, CalendarDate{Year: 2024, Month: 11, Day: 1}, d.AddMonths(-2))
	assert.Equal(t, CalendarDate{Year: 2025, Month: 1, Day: 31}, d.EndOfMonth())
	assert.Equal(t, 2025*12+1, d.MonthIndex())
}
