package period

import (
	"fmt"
	"strings"
	"time"

	"github.com/pharmalytics/pharmalytics/internal/shared"
)

// Years covered by the materialized views. Explicit dates outside them are
// rejected.
const (
	MinYear = 2020
	MaxYear = 2030
)

// AnalysisType selects how the analysis window is chosen.
type AnalysisType string

// Analysis window selectors.
const (
	AnalysisCurrentMonth AnalysisType = "current_month"
	AnalysisLastMonth    AnalysisType = "last_month"
	AnalysisLast12Months AnalysisType = "last_12_months"
	AnalysisCustom       AnalysisType = "custom"
	AnalysisCalendarYear AnalysisType = "calendar_year"
)

// ComparisonType selects how the comparison window is derived.
type ComparisonType string

// Comparison window selectors.
const (
	ComparisonPreviousPeriod     ComparisonType = "previous_period"
	ComparisonSamePeriodLastYear ComparisonType = "same_period_last_year"
	ComparisonCustom             ComparisonType = "custom"
)

// AnalysisPeriod is the resolved window being analysed.
type AnalysisPeriod struct {
	Type  AnalysisType `json:"type"`
	Range DateRange    `json:"range"`
	Label string       `json:"label"`
}

// ComparisonPeriod is the resolved window the analysis is compared against.
type ComparisonPeriod struct {
	Type  ComparisonType `json:"type"`
	Range DateRange      `json:"range"`
	Label string         `json:"label"`
}

// Request carries the raw period parameters of an HTTP call.
type Request struct {
	AnalysisType    string
	ComparisonType  string
	AnalysisStart   string
	AnalysisEnd     string
	ComparisonStart string
	ComparisonEnd   string
	Year            int
}

// Resolution pairs the two windows.
type Resolution struct {
	Analysis   AnalysisPeriod   `json:"analysisPeriod"`
	Comparison ComparisonPeriod `json:"comparisonPeriod"`
}

// Resolver turns a Request into concrete windows.
type Resolver struct {
	DefaultYear int
	Now         func() time.Time
}

// NewResolver builds a Resolver using the wall clock.
func NewResolver(defaultYear int) Resolver {
	return Resolver{DefaultYear: defaultYear, Now: time.Now}
}

// Resolve validates the request and returns both windows. All problems are
// reported together in a *shared.ValidationError.
func (r Resolver) Resolve(req Request) (Resolution, error) {
	verr := &shared.ValidationError{}

	analysisRange, hasAnalysis := parsePair(verr, "analysisPeriodStart", "analysisPeriodEnd", req.AnalysisStart, req.AnalysisEnd)
	comparisonRange, hasComparison := parsePair(verr, "comparisonPeriodStart", "comparisonPeriodEnd", req.ComparisonStart, req.ComparisonEnd)

	analysisType := AnalysisType(strings.TrimSpace(req.AnalysisType))
	switch analysisType {
	case "", AnalysisCurrentMonth, AnalysisLastMonth, AnalysisLast12Months, AnalysisCustom, AnalysisCalendarYear:
	default:
		verr.Add("analysisPeriod", fmt.Sprintf("unknown analysis period type %q", req.AnalysisType))
	}
	comparisonType := ComparisonType(strings.TrimSpace(req.ComparisonType))
	switch comparisonType {
	case "":
		comparisonType = ComparisonPreviousPeriod
	case ComparisonPreviousPeriod, ComparisonSamePeriodLastYear, ComparisonCustom:
	default:
		verr.Add("comparisonPeriod", fmt.Sprintf("unknown comparison period type %q", req.ComparisonType))
	}
	if analysisType == AnalysisCustom && !hasAnalysis && len(verr.Details) == 0 {
		verr.Add("analysisPeriodStart", "custom analysis period requires analysisPeriodStart and analysisPeriodEnd")
	}
	if comparisonType == ComparisonCustom && !hasComparison && len(verr.Details) == 0 {
		verr.Add("comparisonPeriodStart", "custom comparison period requires comparisonPeriodStart and comparisonPeriodEnd")
	}
	if err := verr.Err(); err != nil {
		return Resolution{}, err
	}

	var res Resolution
	switch {
	case hasAnalysis:
		res.Analysis = AnalysisPeriod{Type: AnalysisCustom, Range: analysisRange, Label: analysisRange.Label()}
	case analysisType != "" && analysisType != AnalysisCalendarYear && analysisType != AnalysisCustom:
		res.Analysis = r.named(analysisType)
	default:
		year := req.Year
		if year == 0 {
			year = r.DefaultYear
		}
		res.Analysis = calendarYear(year)
		if !hasComparison && comparisonType == ComparisonPreviousPeriod {
			prior := calendarYear(year - 1)
			res.Comparison = ComparisonPeriod{Type: ComparisonSamePeriodLastYear, Range: prior.Range, Label: prior.Label}
			return res, nil
		}
	}

	switch {
	case hasComparison:
		res.Comparison = ComparisonPeriod{Type: ComparisonCustom, Range: comparisonRange, Label: comparisonRange.Label()}
	case comparisonType == ComparisonSamePeriodLastYear:
		rng := SamePeriodLastYear(res.Analysis.Range)
		res.Comparison = ComparisonPeriod{Type: comparisonType, Range: rng, Label: rng.Label()}
	default:
		rng := PreviousPeriod(res.Analysis.Range)
		res.Comparison = ComparisonPeriod{Type: ComparisonPreviousPeriod, Range: rng, Label: rng.Label()}
	}
	return res, nil
}

// PreviousPeriod returns the adjacent window of equal length that ends the day
// before r starts.
func PreviousPeriod(r DateRange) DateRange {
	end := r.Start.AddDays(-1)
	return DateRange{Start: end.AddDays(-r.Days()), End: end}
}

// SamePeriodLastYear shifts r back by one calendar year.
func SamePeriodLastYear(r DateRange) DateRange {
	return DateRange{Start: r.Start.AddYears(-1), End: r.End.AddYears(-1)}
}

func (r Resolver) named(kind AnalysisType) AnalysisPeriod {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	today := Today(now())
	switch kind {
	case AnalysisCurrentMonth:
		rng := DateRange{Start: today.FirstOfMonth(), End: today.EndOfMonth()}
		return AnalysisPeriod{Type: kind, Range: rng, Label: "Mois en cours"}
	case AnalysisLastMonth:
		start := today.AddMonths(-1)
		rng := DateRange{Start: start, End: start.EndOfMonth()}
		return AnalysisPeriod{Type: kind, Range: rng, Label: "Mois dernier"}
	default:
		rng := DateRange{Start: today.AddMonths(-11), End: today.EndOfMonth()}
		return AnalysisPeriod{Type: AnalysisLast12Months, Range: rng, Label: "12 derniers mois"}
	}
}

func calendarYear(year int) AnalysisPeriod {
	return AnalysisPeriod{
		Type:  AnalysisCalendarYear,
		Range: DateRange{Start: CalendarDate{Year: year, Month: 1, Day: 1}, End: CalendarDate{Year: year, Month: 12, Day: 31}},
		Label: fmt.Sprintf("Année %d", year),
	}
}

func parsePair(verr *shared.ValidationError, startField, endField, rawStart, rawEnd string) (DateRange, bool) {
	rawStart, rawEnd = strings.TrimSpace(rawStart), strings.TrimSpace(rawEnd)
	if rawStart == "" && rawEnd == "" {
		return DateRange{}, false
	}
	if rawStart == "" {
		verr.Add(startField, "required when "+endField+" is set")
		return DateRange{}, false
	}
	if rawEnd == "" {
		verr.Add(endField, "required when "+startField+" is set")
		return DateRange{}, false
	}
	start, errStart := ParseDate(rawStart)
	if errStart != nil {
		verr.Add(startField, "must be a valid YYYY-MM-DD date")
	}
	end, errEnd := ParseDate(rawEnd)
	if errEnd != nil {
		verr.Add(endField, "must be a valid YYYY-MM-DD date")
	}
	if errStart != nil || errEnd != nil {
		return DateRange{}, false
	}
	inStart, inEnd := checkYear(verr, startField, start), checkYear(verr, endField, end)
	if !inStart || !inEnd {
		return DateRange{}, false
	}
	rng := DateRange{Start: start, End: end}
	if err := rng.Validate(); err != nil {
		verr.Add(startField, "must not be after "+endField)
		return DateRange{}, false
	}
	return rng, true
}

func checkYear(verr *shared.ValidationError, field string, d CalendarDate) bool {
	if d.Year < MinYear || d.Year > MaxYear {
		verr.Add(field, fmt.Sprintf("year must be between %d and %d", MinYear, MaxYear))
		return false
	}
	return true
}
