package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

type Frequency string

const (
	FrequencyNone    Frequency = "NONE"
	FrequencyDaily   Frequency = "DAILY"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
	FrequencyYearly  Frequency = "YEARLY"
)

// MaxInterval is the largest interval a rule may carry. Larger steps would
// leave the calendar after a handful of occurrences.
const MaxInterval = 1000

// ValidationError reports malformed input, naming the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (err *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", err.Field, err.Reason)
}

// RuleLimits holds the parts every frequency shares.
type RuleLimits struct {
	Interval       int
	EndDate        *time.Time
	MaxOccurrences *int
}

func (limits RuleLimits) Limits() RuleLimits {
	return limits
}

// RecurrenceRule is one of DailyRule, WeeklyRule, MonthlyRule, YearlyRule or
// UnknownRule. Only WeeklyRule carries weekdays and only MonthlyRule carries
// month days.
type RecurrenceRule interface {
	Frequency() Frequency
	Limits() RuleLimits
}

type DailyRule struct {
	RuleLimits
}

func (DailyRule) Frequency() Frequency { return FrequencyDaily }

type WeeklyRule struct {
	RuleLimits
	Weekdays []time.Weekday
}

func (WeeklyRule) Frequency() Frequency { return FrequencyWeekly }

type MonthlyRule struct {
	RuleLimits
	MonthDays []int
}

func (MonthlyRule) Frequency() Frequency { return FrequencyMonthly }

type YearlyRule struct {
	RuleLimits
}

func (YearlyRule) Frequency() Frequency { return FrequencyYearly }

// UnknownRule is a stored frequency code this version does not understand.
// It expands to the anchor date alone.
type UnknownRule struct {
	RuleLimits
	Code Frequency
}

func (rule UnknownRule) Frequency() Frequency { return rule.Code }

// IsRecurring reports whether rule expands to more than its anchor.
func IsRecurring(rule RecurrenceRule) bool {
	if rule == nil {
		return false
	}
	_, unknown := rule.(UnknownRule)
	return !unknown
}

// WithEndDate returns a copy of rule whose inclusive end is endDate.
func WithEndDate(rule RecurrenceRule, endDate time.Time) RecurrenceRule {
	end := DateOnly(endDate)
	switch typed := rule.(type) {
	case DailyRule:
		typed.EndDate = &end
		return typed
	case WeeklyRule:
		typed.EndDate = &end
		return typed
	case MonthlyRule:
		typed.EndDate = &end
		return typed
	case YearlyRule:
		typed.EndDate = &end
		return typed
	case UnknownRule:
		typed.EndDate = &end
		return typed
	default:
		return rule
	}
}

// RecurrenceConfig is the JSON stored in tasks.recurrence_value.
type RecurrenceConfig struct {
	Interval       *int     `json:"interval,omitempty"`
	Days           []string `json:"days,omitempty"`
	MonthDays      []int    `json:"month_days,omitempty"`
	EndDate        string   `json:"end_date,omitempty"`
	MaxOccurrences *int     `json:"max_occurrences,omitempty"`
}

var weekdayCodes = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sun":       time.Sunday,
	"mon":       time.Monday,
	"tue":       time.Tuesday,
	"wed":       time.Wednesday,
	"thu":       time.Thursday,
	"fri":       time.Friday,
	"sat":       time.Saturday,
	"su":        time.Sunday,
	"mo":        time.Monday,
	"tu":        time.Tuesday,
	"we":        time.Wednesday,
	"th":        time.Thursday,
	"fr":        time.Friday,
	"sa":        time.Saturday,
}

// DecodeRecurrence turns the stored (type, value) pair into a rule. A nil rule
// with a nil error means the task does not recur. Unrecognized frequency codes
// decode to UnknownRule rather than failing, since stored rows may predate a
// frequency this build knows about.
func DecodeRecurrence(frequency Frequency, value string) (RecurrenceRule, error) {
	code := Frequency(strings.ToUpper(strings.TrimSpace(string(frequency))))
	if code == "" || code == FrequencyNone {
		return nil, nil
	}

	var config RecurrenceConfig
	if strings.TrimSpace(value) != "" {
		if err := json.Unmarshal([]byte(value), &config); err != nil {
			return nil, &ValidationError{Field: "recurrence_value", Reason: err.Error()}
		}
	}

	limits := RuleLimits{Interval: 1}
	if config.Interval != nil {
		if *config.Interval <= 0 {
			return nil, &ValidationError{Field: "interval", Reason: "must be a positive integer"}
		}
		if *config.Interval > MaxInterval {
			return nil, &ValidationError{Field: "interval", Reason: fmt.Sprintf("must not exceed %d", MaxInterval)}
		}
		limits.Interval = *config.Interval
	}
	if config.EndDate != "" {
		endDate, err := ParseDate(config.EndDate)
		if err != nil {
			return nil, &ValidationError{Field: "end_date", Reason: err.Error()}
		}
		limits.EndDate = &endDate
	}
	if config.MaxOccurrences != nil {
		if *config.MaxOccurrences < 0 {
			return nil, &ValidationError{Field: "max_occurrences", Reason: "must not be negative"}
		}
		maxOccurrences := *config.MaxOccurrences
		limits.MaxOccurrences = &maxOccurrences
	}

	switch code {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
	default:
		return UnknownRule{RuleLimits: limits, Code: code}, nil
	}

	if len(config.Days) > 0 && code != FrequencyWeekly {
		return nil, &ValidationError{Field: "days", Reason: fmt.Sprintf("not allowed for %s rules", code)}
	}
	if len(config.MonthDays) > 0 && code != FrequencyMonthly {
		return nil, &ValidationError{Field: "month_days", Reason: fmt.Sprintf("not allowed for %s rules", code)}
	}

	switch code {
	case FrequencyDaily:
		return DailyRule{RuleLimits: limits}, nil
	case FrequencyWeekly:
		weekdays := make([]time.Weekday, 0, len(config.Days))
		for _, day := range config.Days {
			weekday, ok := weekdayCodes[strings.ToLower(strings.TrimSpace(day))]
			if !ok {
				return nil, &ValidationError{Field: "days", Reason: fmt.Sprintf("unknown weekday %q", day)}
			}
			weekdays = append(weekdays, weekday)
		}
		return WeeklyRule{RuleLimits: limits, Weekdays: weekdays}, nil
	case FrequencyMonthly:
		for _, day := range config.MonthDays {
			if day < 1 || day > 31 {
				return nil, &ValidationError{Field: "month_days", Reason: fmt.Sprintf("day %d outside 1-31", day)}
			}
		}
		return MonthlyRule{RuleLimits: limits, MonthDays: append([]int(nil), config.MonthDays...)}, nil
	default:
		return YearlyRule{RuleLimits: limits}, nil
	}
}

// EncodeRecurrence is the inverse of DecodeRecurrence.
func EncodeRecurrence(rule RecurrenceRule) (Frequency, string, error) {
	if rule == nil {
		return FrequencyNone, "", nil
	}

	limits := rule.Limits()
	config := RecurrenceConfig{MaxOccurrences: limits.MaxOccurrences}
	if limits.Interval > 1 {
		interval := limits.Interval
		config.Interval = &interval
	}
	if limits.EndDate != nil {
		config.EndDate = FormatDate(*limits.EndDate)
	}

	switch typed := rule.(type) {
	case WeeklyRule:
		days := append([]time.Weekday(nil), typed.Weekdays...)
		sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
		for _, day := range days {
			config.Days = append(config.Days, strings.ToLower(day.String()))
		}
	case MonthlyRule:
		config.MonthDays = append([]int(nil), typed.MonthDays...)
	}

	encoded, err := json.Marshal(config)
	if err != nil {
		return "", "", fmt.Errorf("encoding recurrence config: %w", err)
	}
	return rule.Frequency(), string(encoded), nil
}
