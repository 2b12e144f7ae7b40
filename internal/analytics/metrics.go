package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aescanero/dago-message-router/internal/router"
	"gonum.org/v1/gonum/stat"
)

// ErrInvalidTimeRange is returned for an unsupported time range
var ErrInvalidTimeRange = errors.New("invalid time range")

// TimeRange is the window a report covers
type TimeRange string

const (
	RangeHour  TimeRange = "1h"
	RangeDay   TimeRange = "24h"
	RangeWeek  TimeRange = "7d"
	RangeMonth TimeRange = "30d"
)

type bucketing struct {
	window time.Duration
	width  time.Duration
	count  int
}

var rangeBuckets = map[TimeRange]bucketing{
	RangeHour:  {window: time.Hour, width: 5 * time.Minute, count: 12},
	RangeDay:   {window: 24 * time.Hour, width: time.Hour, count: 24},
	RangeWeek:  {window: 7 * 24 * time.Hour, width: 6 * time.Hour, count: 28},
	RangeMonth: {window: 30 * 24 * time.Hour, width: 24 * time.Hour, count: 30},
}

// ParseTimeRange validates a time range. An empty value means 24h.
func ParseTimeRange(s string) (TimeRange, error) {
	if s == "" {
		return RangeDay, nil
	}
	tr := TimeRange(s)
	if _, ok := rangeBuckets[tr]; !ok {
		return "", fmt.Errorf("%w: %q (expected 1h, 24h, 7d or 30d)", ErrInvalidTimeRange, s)
	}
	return tr, nil
}

// Filters narrows a report
type Filters struct {
	TimeRange   TimeRange
	CandidateID string
	RoutingType string
}

// UndecidedRoute labels records abandoned before a routing decision
const UndecidedRoute = "undecided"

// Summary holds the headline counts of a performance report. Escalations
// counts messages handed to a human; FailedEscalations counts escalation
// decisions that errored, fell back or were abandoned.
type Summary struct {
	TotalRequests         int     `json:"totalRequests"`
	SuccessfulRoutes      int     `json:"successfulRoutes"`
	Escalations           int     `json:"escalations"`
	FailedEscalations     int     `json:"failedEscalations"`
	Incomplete            int     `json:"incomplete"`
	AverageResponseTimeMs float64 `json:"averageResponseTimeMs"`
	ErrorRate             float64 `json:"errorRate"`
}

// TypeBreakdown holds per-route counts
type TypeBreakdown struct {
	Count                 int     `json:"count"`
	Percentage            float64 `json:"percentage"`
	AverageResponseTimeMs float64 `json:"averageResponseTimeMs"`
}

// HistogramBucket counts responses faster than UpperBoundMs. The last bucket
// has no upper bound and reports 0.
type HistogramBucket struct {
	Label        string `json:"label"`
	UpperBoundMs int64  `json:"upperBoundMs"`
	Count        int    `json:"count"`
}

// TrendPoint aggregates one time bucket
type TrendPoint struct {
	Start                 time.Time `json:"start"`
	Requests              int       `json:"requests"`
	Escalations           int       `json:"escalations"`
	Errors                int       `json:"errors"`
	AverageResponseTimeMs float64   `json:"averageResponseTimeMs"`
}

// PerformanceMetrics is the routing performance report
type PerformanceMetrics struct {
	TimeRange             TimeRange                `json:"timeRange"`
	From                  time.Time                `json:"from"`
	To                    time.Time                `json:"to"`
	Summary               Summary                  `json:"summary"`
	ByType                map[string]TypeBreakdown `json:"byType"`
	ResponseTimeHistogram []HistogramBucket        `json:"responseTimeHistogram"`
	Trend                 []TrendPoint             `json:"trend"`
}

var histogramBounds = []struct {
	label string
	upper int64
}{
	{"<100ms", 100},
	{"100-500ms", 500},
	{"500ms-1s", 1000},
	{"1-5s", 5000},
	{">5s", 0},
}

// PerformanceMetrics aggregates stored routing records
func (t *Tracker) PerformanceMetrics(ctx context.Context, f Filters) (*PerformanceMetrics, error) {
	to := t.now().UTC()
	from, err := windowStart(f.TimeRange, to)
	if err != nil {
		return nil, err
	}

	records, err := t.store.List(ctx, Query{Since: from, Until: to, CandidateID: f.CandidateID, Kind: KindRouting})
	if err != nil {
		return nil, fmt.Errorf("failed to list tracking records: %w", err)
	}

	return AggregatePerformance(records, f, to)
}

// AggregatePerformance computes a report over records ending at to
func AggregatePerformance(records []Record, f Filters, to time.Time) (*PerformanceMetrics, error) {
	tr, err := ParseTimeRange(string(f.TimeRange))
	if err != nil {
		return nil, err
	}
	b := rangeBuckets[tr]
	from := to.Add(-b.window)

	report := &PerformanceMetrics{
		TimeRange:             tr,
		From:                  from,
		To:                    to,
		ByType:                make(map[string]TypeBreakdown),
		ResponseTimeHistogram: make([]HistogramBucket, len(histogramBounds)),
		Trend:                 make([]TrendPoint, b.count),
	}
	for i, hb := range histogramBounds {
		report.ResponseTimeHistogram[i] = HistogramBucket{Label: hb.label, UpperBoundMs: hb.upper}
	}
	for i := range report.Trend {
		report.Trend[i].Start = from.Add(time.Duration(i) * b.width)
	}

	var (
		allTimes    []float64
		typeTimes   = make(map[string][]float64)
		bucketTimes = make([][]float64, b.count)
		errorsSeen  int
	)

	for i := range records {
		r := &records[i]
		if !inWindow(r, f, from, to) {
			continue
		}

		report.Summary.TotalRequests++
		route := r.RoutingDecisionType
		if route == "" {
			route = UndecidedRoute
		}
		tb := report.ByType[route]
		tb.Count++
		report.ByType[route] = tb

		idx := int(r.Timestamp.Sub(from) / b.width)
		if idx >= b.count {
			idx = b.count - 1
		}
		point := &report.Trend[idx]
		point.Requests++

		switch {
		case r.Escalated():
			report.Summary.Escalations++
			point.Escalations++
		case route == string(router.RouteEscalation):
			report.Summary.FailedEscalations++
		}
		if r.Incomplete {
			report.Summary.Incomplete++
		}
		if r.Error != "" {
			errorsSeen++
			point.Errors++
		}
		if !r.Succeeded() {
			continue
		}

		report.Summary.SuccessfulRoutes++
		ms := float64(r.Result.ProcessingTimeMs)
		allTimes = append(allTimes, ms)
		if string(r.Result.ResponseType) == route {
			typeTimes[route] = append(typeTimes[route], ms)
		}
		bucketTimes[idx] = append(bucketTimes[idx], ms)
		report.ResponseTimeHistogram[histogramIndex(r.Result.ProcessingTimeMs)].Count++
	}

	report.Summary.AverageResponseTimeMs = mean(allTimes)
	if report.Summary.TotalRequests > 0 {
		report.Summary.ErrorRate = round2(float64(errorsSeen) / float64(report.Summary.TotalRequests))
	}
	for route, tb := range report.ByType {
		tb.Percentage = round2(float64(tb.Count) / float64(report.Summary.TotalRequests) * 100)
		tb.AverageResponseTimeMs = mean(typeTimes[route])
		report.ByType[route] = tb
	}
	for i := range report.Trend {
		report.Trend[i].AverageResponseTimeMs = mean(bucketTimes[i])
	}

	return report, nil
}

// ReasonCount is one entry of the escalation reasons histogram
type ReasonCount struct {
	Reason     string  `json:"reason"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// DayPoint is one day of the escalation trend
type DayPoint struct {
	Date        string `json:"date"`
	Escalations int    `json:"escalations"`
	Resolved    int    `json:"resolved"`
}

// EscalationStats summarises escalations over a time range
type EscalationStats struct {
	TimeRange                TimeRange     `json:"timeRange"`
	TotalEscalations         int           `json:"totalEscalations"`
	FailedAttempts           int           `json:"failedAttempts"`
	EscalationRate           float64       `json:"escalationRate"`
	Resolved                 int           `json:"resolved"`
	AverageResolutionMinutes float64       `json:"averageResolutionMinutes"`
	Reasons                  []ReasonCount `json:"reasons"`
	Trend                    []DayPoint    `json:"trend"`
}

// EscalationStats aggregates stored escalation and resolution records
func (t *Tracker) EscalationStats(ctx context.Context, f Filters) (*EscalationStats, error) {
	to := t.now().UTC()
	from, err := windowStart(f.TimeRange, to)
	if err != nil {
		return nil, err
	}

	records, err := t.store.List(ctx, Query{Since: from, Until: to, CandidateID: f.CandidateID})
	if err != nil {
		return nil, fmt.Errorf("failed to list tracking records: %w", err)
	}

	return AggregateEscalations(records, f, to)
}

// AggregateEscalations computes escalation statistics over records ending at to
func AggregateEscalations(records []Record, f Filters, to time.Time) (*EscalationStats, error) {
	tr, err := ParseTimeRange(string(f.TimeRange))
	if err != nil {
		return nil, err
	}
	to = to.UTC()
	from := to.Add(-rangeBuckets[tr].window)

	stats := &EscalationStats{TimeRange: tr, Reasons: []ReasonCount{}}

	days := make(map[string]*DayPoint)
	for d := truncateDay(from); !d.After(to); d = d.Add(24 * time.Hour) {
		key := d.Format(time.DateOnly)
		stats.Trend = append(stats.Trend, DayPoint{Date: key})
	}
	for i := range stats.Trend {
		days[stats.Trend[i].Date] = &stats.Trend[i]
	}

	var (
		total    int
		reasons  = make(map[string]int)
		tickets  = make(map[string]time.Time)
		resolved []Record
	)

	for i := range records {
		r := &records[i]
		if r.Kind == KindResolution {
			if f.CandidateID != "" && r.CandidateID != f.CandidateID {
				continue
			}
			if !r.Timestamp.Before(from) && !r.Timestamp.After(to) {
				resolved = append(resolved, *r)
			}
			continue
		}
		if !inWindow(r, Filters{CandidateID: f.CandidateID}, from, to) {
			continue
		}
		total++
		if !r.Escalated() {
			if r.RoutingDecisionType == string(router.RouteEscalation) {
				stats.FailedAttempts++
			}
			continue
		}

		stats.TotalEscalations++
		reason := "unknown"
		if r.Decision != nil && r.Decision.Reason != "" {
			reason = r.Decision.Reason
		}
		reasons[reason]++
		if r.TicketID != "" {
			tickets[r.TicketID] = r.Timestamp
		}
		if p, ok := days[r.Timestamp.Format(time.DateOnly)]; ok {
			p.Escalations++
		}
	}

	var minutes []float64
	for _, r := range resolved {
		opened, ok := tickets[r.TicketID]
		if !ok {
			continue
		}
		stats.Resolved++
		minutes = append(minutes, r.Timestamp.Sub(opened).Minutes())
		if p, ok := days[r.Timestamp.Format(time.DateOnly)]; ok {
			p.Resolved++
		}
	}
	stats.AverageResolutionMinutes = mean(minutes)

	if total > 0 {
		stats.EscalationRate = round2(float64(stats.TotalEscalations) / float64(total))
	}
	for reason, count := range reasons {
		stats.Reasons = append(stats.Reasons, ReasonCount{
			Reason:     reason,
			Count:      count,
			Percentage: round2(float64(count) / float64(stats.TotalEscalations) * 100),
		})
	}
	sort.Slice(stats.Reasons, func(i, j int) bool {
		if stats.Reasons[i].Count != stats.Reasons[j].Count {
			return stats.Reasons[i].Count > stats.Reasons[j].Count
		}
		return stats.Reasons[i].Reason < stats.Reasons[j].Reason
	})

	return stats, nil
}

func windowStart(tr TimeRange, to time.Time) (time.Time, error) {
	parsed, err := ParseTimeRange(string(tr))
	if err != nil {
		return time.Time{}, err
	}
	return to.Add(-rangeBuckets[parsed].window), nil
}

func inWindow(r *Record, f Filters, from, to time.Time) bool {
	if r.Kind != KindRouting {
		return false
	}
	if r.Timestamp.Before(from) || r.Timestamp.After(to) {
		return false
	}
	if f.CandidateID != "" && r.CandidateID != f.CandidateID {
		return false
	}
	if f.RoutingType != "" && r.RoutingDecisionType != f.RoutingType {
		return false
	}
	return true
}

func histogramIndex(ms int64) int {
	for i, hb := range histogramBounds {
		if hb.upper > 0 && ms < hb.upper {
			return i
		}
	}
	return len(histogramBounds) - 1
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return round2(stat.Mean(values, nil))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
