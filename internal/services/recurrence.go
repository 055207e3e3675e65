package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/bensuskins/office-hub/internal/models"
)

// DefaultGenerationBound caps every expansion, including rules with neither
// an end date nor an occurrence limit.
const DefaultGenerationBound = 200

// lastDate is the final day generation may reach.
var lastDate = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// GenerateOccurrences expands rule from anchor into ascending dates. The
// result never holds more than min(MaxOccurrences, bound) dates, never starts
// before anchor and never passes the rule's end date. A nil or unrecognized
// rule yields the anchor alone.
func GenerateOccurrences(rule models.RecurrenceRule, anchor time.Time, bound int) ([]time.Time, error) {
	anchor = models.DateOnly(anchor)
	if bound <= 0 {
		bound = DefaultGenerationBound
	}

	if !models.IsRecurring(rule) {
		return []time.Time{anchor}, nil
	}
	if err := validateRule(rule); err != nil {
		return nil, err
	}

	limits := rule.Limits()
	collector := newDateCollector(anchor, limits, bound)
	if collector.full() {
		return collector.dates, nil
	}

	switch typed := rule.(type) {
	case models.DailyRule:
		generateStepped(collector, func(k int) time.Time {
			return anchor.AddDate(0, 0, k*limits.Interval)
		})
	case models.WeeklyRule:
		if len(typed.Weekdays) == 0 {
			generateStepped(collector, func(k int) time.Time {
				return anchor.AddDate(0, 0, 7*k*limits.Interval)
			})
		} else {
			generateWeekdays(collector, anchor, limits.Interval, typed.Weekdays)
		}
	case models.MonthlyRule:
		if len(typed.MonthDays) == 0 {
			generateStepped(collector, func(k int) time.Time {
				return addMonthsClamped(anchor, k*limits.Interval, anchor.Day())
			})
		} else {
			generateMonthDays(collector, anchor, limits.Interval, typed.MonthDays)
		}
	case models.YearlyRule:
		generateStepped(collector, func(k int) time.Time {
			return addMonthsClamped(anchor, 12*k*limits.Interval, anchor.Day())
		})
	default:
		return []time.Time{anchor}, nil
	}

	return collector.dates, nil
}

func validateRule(rule models.RecurrenceRule) error {
	limits := rule.Limits()
	if limits.Interval <= 0 {
		return &models.ValidationError{Field: "interval", Reason: fmt.Sprintf("must be positive, got %d", limits.Interval)}
	}
	if limits.Interval > models.MaxInterval {
		return &models.ValidationError{Field: "interval", Reason: fmt.Sprintf("must not exceed %d, got %d", models.MaxInterval, limits.Interval)}
	}
	if limits.MaxOccurrences != nil && *limits.MaxOccurrences < 0 {
		return &models.ValidationError{Field: "max_occurrences", Reason: "must not be negative"}
	}

	switch typed := rule.(type) {
	case models.WeeklyRule:
		for _, weekday := range typed.Weekdays {
			if weekday < time.Sunday || weekday > time.Saturday {
				return &models.ValidationError{Field: "days", Reason: fmt.Sprintf("unknown weekday %d", weekday)}
			}
		}
	case models.MonthlyRule:
		for _, day := range typed.MonthDays {
			if day < 1 || day > 31 {
				return &models.ValidationError{Field: "month_days", Reason: fmt.Sprintf("day %d outside 1-31", day)}
			}
		}
	}
	return nil
}

// dateCollector accumulates dates until the limit or the end date is hit.
type dateCollector struct {
	anchor  time.Time
	endDate *time.Time
	limit   int
	dates   []time.Time
	stopped bool
}

func newDateCollector(anchor time.Time, limits models.RuleLimits, bound int) *dateCollector {
	limit := bound
	if limits.MaxOccurrences != nil && *limits.MaxOccurrences < limit {
		limit = *limits.MaxOccurrences
	}

	var endDate *time.Time
	if limits.EndDate != nil {
		end := models.DateOnly(*limits.EndDate)
		endDate = &end
	}

	return &dateCollector{
		anchor:  anchor,
		endDate: endDate,
		limit:   limit,
		dates:   make([]time.Time, 0, min(limit, 64)),
		stopped: endDate != nil && endDate.Before(anchor),
	}
}

func (collector *dateCollector) full() bool {
	return collector.stopped || len(collector.dates) >= collector.limit
}

// offer records date when it falls on or after the anchor. Dates must be
// offered in ascending order; the first one past the end date or past year
// 9999 stops collection.
func (collector *dateCollector) offer(date time.Time) {
	if collector.full() || date.Before(collector.anchor) {
		return
	}
	if date.After(lastDate) || (collector.endDate != nil && date.After(*collector.endDate)) {
		collector.stopped = true
		return
	}
	if n := len(collector.dates); n > 0 && !date.After(collector.dates[n-1]) {
		return
	}
	collector.dates = append(collector.dates, date)
}

// advance stops collection when next does not move past previous, which only
// happens once step arithmetic has overflowed.
func (collector *dateCollector) advance(previous, next time.Time) bool {
	if !next.After(previous) {
		collector.stopped = true
		return false
	}
	return true
}

func generateStepped(collector *dateCollector, step func(k int) time.Time) {
	previous := step(0)
	collector.offer(previous)
	for k := 1; !collector.full(); k++ {
		next := step(k)
		if !collector.advance(previous, next) {
			return
		}
		collector.offer(next)
		previous = next
	}
}

// generateWeekdays walks windows of interval weeks starting at the Monday of
// the anchor's week and emits the chosen weekdays of the first week of each
// window.
func generateWeekdays(collector *dateCollector, anchor time.Time, interval int, weekdays []time.Weekday) {
	offsets := weekdayOffsets(weekdays)
	weekStart := anchor.AddDate(0, 0, -mondayOffset(anchor.Weekday()))

	for !collector.full() {
		for _, offset := range offsets {
			collector.offer(weekStart.AddDate(0, 0, offset))
		}
		next := weekStart.AddDate(0, 0, 7*interval)
		if !collector.advance(weekStart, next) || next.After(lastDate) {
			collector.stopped = true
			return
		}
		weekStart = next
	}
}

// generateMonthDays walks every interval-th month from the anchor's month and
// emits the listed days, clamping days the month does not have to its last day.
func generateMonthDays(collector *dateCollector, anchor time.Time, interval int, monthDays []int) {
	days := sortedUnique(monthDays)
	monthStart := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !collector.full() {
		for _, day := range days {
			collector.offer(models.ClampedDate(monthStart.Year(), monthStart.Month(), day))
		}
		next := monthStart.AddDate(0, interval, 0)
		if !collector.advance(monthStart, next) || next.After(lastDate) {
			collector.stopped = true
			return
		}
		monthStart = next
	}
}

func addMonthsClamped(anchor time.Time, months int, day int) time.Time {
	monthStart := time.Date(anchor.Year(), anchor.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	return models.ClampedDate(monthStart.Year(), monthStart.Month(), day)
}

func mondayOffset(weekday time.Weekday) int {
	return (int(weekday) + 6) % 7
}

func weekdayOffsets(weekdays []time.Weekday) []int {
	offsets := make([]int, 0, len(weekdays))
	for _, weekday := range weekdays {
		offsets = append(offsets, mondayOffset(weekday))
	}
	return sortedUnique(offsets)
}

func sortedUnique(values []int) []int {
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	unique := sorted[:0]
	for i, value := range sorted {
		if i == 0 || value != sorted[i-1] {
			unique = append(unique, value)
		}
	}
	return unique
}
