package period

import "fmt"

// Granularity is the calendar bucket size of a chart series.
type Granularity string

// Supported bucket sizes.
const (
	Monthly   Granularity = "monthly"
	Quarterly Granularity = "quarterly"
)

// quarterlyThreshold is the number of months above which series switch to quarters.
const quarterlyThreshold = 12

var monthLabels = [...]string{"Janv", "Févr", "Mars", "Avr", "Mai", "Juin", "Juil", "Août", "Sept", "Oct", "Nov", "Déc"}

// MonthsDiff counts calendar months touched by r, both ends included.
func MonthsDiff(r DateRange) int {
	return (r.End.Year-r.Start.Year)*12 + (r.End.Month - r.Start.Month) + 1
}

// SelectGranularity picks quarterly buckets for analysis windows longer than a year.
func SelectGranularity(r DateRange) Granularity {
	if MonthsDiff(r) > quarterlyThreshold {
		return Quarterly
	}
	return Monthly
}

// QuarterOf maps a month (1-12) to its quarter (1-4).
func QuarterOf(month int) int {
	return (month + 2) / 3
}

// Bucket is one calendar slot of a series.
type Bucket struct {
	Year  int
	Index int
	Label string
}

// Key identifies the bucket independently of its label.
func (b Bucket) Key() string {
	return fmt.Sprintf("%04d-%02d", b.Year, b.Index)
}

// Buckets enumerates every bucket of r in chronological order. Monthly labels
// carry a two digit year only when r crosses a calendar year; quarterly labels
// always do.
func Buckets(r DateRange, g Granularity) []Bucket {
	if r.Start.After(r.End) {
		return nil
	}
	multiYear := r.Start.Year != r.End.Year
	var out []Bucket
	seen := make(map[string]struct{})
	for cur := r.Start.FirstOfMonth(); !cur.After(r.End); cur = cur.AddMonths(1) {
		b := Bucket{Year: cur.Year, Index: cur.Month}
		if g == Quarterly {
			b.Index = QuarterOf(cur.Month)
		}
		if _, ok := seen[b.Key()]; ok {
			continue
		}
		seen[b.Key()] = struct{}{}
		b.Label = bucketLabel(b, g, multiYear)
		out = append(out, b)
	}
	return out
}

func bucketLabel(b Bucket, g Granularity, multiYear bool) string {
	yy := fmt.Sprintf("%02d", b.Year%100)
	if g == Quarterly {
		return fmt.Sprintf("Q%d %s", b.Index, yy)
	}
	label := monthLabels[b.Index-1]
	if multiYear {
		label += " " + yy
	}
	return label
}
