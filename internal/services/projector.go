package services

import (
	"log/slog"
	"sort"
	"time"

	"github.com/bensuskins/office-hub/internal/models"
)

// Projector merges generated occurrence dates with stored overrides into the
// rows shown to users. It does no I/O and is safe for concurrent use.
type Projector struct {
	bound int
}

func NewProjector(bound int) *Projector {
	if bound <= 0 {
		bound = DefaultGenerationBound
	}
	return &Projector{bound: bound}
}

// ProjectDisplayRows returns the rows for every assignment ordered by date.
// Rows without a date sort last; ties keep input order. Cancelled
// occurrences never produce a row.
func (projector *Projector) ProjectDisplayRows(assignments []models.Assignment) []models.DisplayRow {
	var rows []models.DisplayRow
	for _, assignment := range assignments {
		rows = append(rows, projector.project(assignment)...)
	}
	sortRows(rows)
	return rows
}

// Dates returns the generated dates of assignment. An assignment whose rule
// cannot be decoded or expanded has none.
func (projector *Projector) Dates(assignment models.Assignment) ([]time.Time, error) {
	rule, err := models.DecodeRecurrence(assignment.Task.RecurrenceType, assignment.Task.RecurrenceValue)
	if err != nil {
		return nil, err
	}
	return GenerateOccurrences(rule, assignment.AnchorDate, projector.bound)
}

func (projector *Projector) project(assignment models.Assignment) []models.DisplayRow {
	recurring := isRecurringTask(assignment.Task)

	dates, err := projector.Dates(assignment)
	if err != nil {
		slog.Warn("expanding recurrence", "assignment_id", assignment.ID, "task_id", assignment.TaskID, "error", err)
		dates = nil
	}

	pending := make(map[string]models.OccurrenceOverride, len(assignment.Overrides))
	for _, override := range assignment.Overrides {
		pending[models.FormatDate(override.OriginalDate)] = override
	}

	var rows []models.DisplayRow

	for _, date := range dates {
		key := models.FormatDate(date)
		override, found := pending[key]
		if !found {
			rows = append(rows, virtualRow(assignment, date, recurring))
			continue
		}
		delete(pending, key)
		if override.State == models.OccurrenceCancelled {
			continue
		}
		rows = append(rows, overrideRow(assignment, override, recurring, false))
	}

	// Orphans: overrides whose original date the current rule no longer
	// produces, e.g. after the rule was edited.
	for _, override := range assignment.Overrides {
		if _, orphan := pending[models.FormatDate(override.OriginalDate)]; !orphan {
			continue
		}
		if override.State == models.OccurrenceCancelled {
			continue
		}
		rows = append(rows, overrideRow(assignment, override, recurring, true))
	}

	if len(dates) == 0 && len(assignment.Overrides) == 0 {
		return []models.DisplayRow{fallbackRow(assignment, recurring)}
	}
	return rows
}

func isRecurringTask(task models.Task) bool {
	rule, err := models.DecodeRecurrence(task.RecurrenceType, task.RecurrenceValue)
	if err != nil {
		return task.RecurrenceType != "" && task.RecurrenceType != models.FrequencyNone
	}
	return models.IsRecurring(rule)
}

func baseRow(assignment models.Assignment, recurring bool) models.DisplayRow {
	return models.DisplayRow{
		AssignmentID:     assignment.ID,
		TaskID:           assignment.TaskID,
		AssigneeID:       assignment.AssigneeID,
		Title:            assignment.Task.Title,
		Description:      assignment.Task.Description,
		Color:            assignment.Task.Color,
		Priority:         assignment.Task.Priority,
		AssignmentStatus: assignment.Status,
		Recurring:        recurring,
	}
}

func virtualRow(assignment models.Assignment, date time.Time, recurring bool) models.DisplayRow {
	row := baseRow(assignment, recurring)
	original := date
	resolved := date
	row.OriginalDate = &original
	row.Date = &resolved
	row.State = models.OccurrencePending
	return row
}

func overrideRow(assignment models.Assignment, override models.OccurrenceOverride, recurring bool, orphan bool) models.DisplayRow {
	row := baseRow(assignment, recurring)
	row.OverrideID = override.ID
	row.State = override.State
	row.CompletedAt = override.CompletedAt
	row.Orphan = orphan

	original := override.OriginalDate
	row.OriginalDate = &original
	if resolved := override.ResolvedDate(); !resolved.IsZero() {
		row.Date = &resolved
	}

	if override.Title != nil {
		row.Title = *override.Title
	}
	if override.Description != nil {
		row.Description = *override.Description
	}
	if override.Color != nil {
		row.Color = *override.Color
	}
	if override.Priority != nil {
		row.Priority = *override.Priority
	}
	return row
}

// fallbackRow keeps an assignment visible when its rule expands to nothing.
// The row mirrors the assignment's aggregate status.
func fallbackRow(assignment models.Assignment, recurring bool) models.DisplayRow {
	row := baseRow(assignment, recurring)
	row.Fallback = true
	if !assignment.AnchorDate.IsZero() {
		anchor := models.DateOnly(assignment.AnchorDate)
		row.Date = &anchor
	}

	switch assignment.Status {
	case models.AssignmentStatusCompleted:
		row.State = models.OccurrenceCompleted
	case models.AssignmentStatusFinalized:
		row.State = models.OccurrenceOverdue
	default:
		row.State = models.OccurrencePending
	}
	return row
}

func sortRows(rows []models.DisplayRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		left, right := rows[i].Date, rows[j].Date
		switch {
		case left == nil:
			return false
		case right == nil:
			return true
		default:
			return left.Before(*right)
		}
	})
}
