package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bensuskins/office-hub/internal/metrics"
	"github.com/bensuskins/office-hub/internal/models"
	"github.com/bensuskins/office-hub/internal/repository"
)

type CutoffResult struct {
	CancelledCount int       `json:"cancelled_count"`
	NewEndDate     time.Time `json:"new_end_date"`
}

type LifecycleOption func(*LifecycleEvaluator)

// WithClock replaces time.Now as the source of "today".
func WithClock(now func() time.Time) LifecycleOption {
	return func(evaluator *LifecycleEvaluator) {
		evaluator.now = now
	}
}

// WithLocation sets the zone whose calendar date counts as "today".
func WithLocation(location *time.Location) LifecycleOption {
	return func(evaluator *LifecycleEvaluator) {
		if location != nil {
			evaluator.location = location
		}
	}
}

func WithRecorder(recorder metrics.Recorder) LifecycleOption {
	return func(evaluator *LifecycleEvaluator) {
		if recorder != nil {
			evaluator.recorder = recorder
		}
	}
}

// LifecycleEvaluator owns every write to occurrence state: overdue promotion,
// user outcomes and cutoffs, each followed by aggregate recomputation.
// Concurrent callers converge through the store's (assignment, date)
// uniqueness rather than through locks.
type LifecycleEvaluator struct {
	taskRepo       repository.TaskRepository
	assignmentRepo repository.AssignmentRepository
	overrideRepo   repository.OccurrenceOverrideRepository
	projector      *Projector
	recorder       metrics.Recorder
	now            func() time.Time
	location       *time.Location
}

func NewLifecycleEvaluator(
	taskRepo repository.TaskRepository,
	assignmentRepo repository.AssignmentRepository,
	overrideRepo repository.OccurrenceOverrideRepository,
	projector *Projector,
	options ...LifecycleOption,
) *LifecycleEvaluator {
	evaluator := &LifecycleEvaluator{
		taskRepo:       taskRepo,
		assignmentRepo: assignmentRepo,
		overrideRepo:   overrideRepo,
		projector:      projector,
		recorder:       metrics.NewNop(),
		now:            time.Now,
		location:       time.UTC,
	}
	for _, option := range options {
		option(evaluator)
	}
	return evaluator
}

func (evaluator *LifecycleEvaluator) Today() time.Time {
	return models.DateOnly(evaluator.now().In(evaluator.location))
}

// PromoteOverdue marks every pending occurrence dated before today as overdue.
// Virtual occurrences of active assignments are materialized, pending
// overrides are flipped, and everything else is left alone, so repeated
// passes change nothing. It returns the number of occurrences promoted.
func (evaluator *LifecycleEvaluator) PromoteOverdue(ctx context.Context, assignments []models.Assignment) (int, error) {
	var candidates []models.Assignment
	var ids []string
	for _, assignment := range assignments {
		if assignment.Status == models.AssignmentStatusRevoked {
			continue
		}
		candidates = append(candidates, assignment)
		ids = append(ids, assignment.ID)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	overrides, err := evaluator.overrideRepo.FindByAssignments(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("loading overrides: %w", err)
	}

	today := evaluator.Today()
	var seeds []repository.OverrideSeed
	var pendingIDs []string
	touched := map[string]bool{}

	for _, assignment := range candidates {
		existing := make(map[string]bool, len(overrides[assignment.ID]))
		for _, override := range overrides[assignment.ID] {
			existing[models.FormatDate(override.OriginalDate)] = true
			if override.State == models.OccurrencePending && override.ResolvedDate().Before(today) {
				pendingIDs = append(pendingIDs, override.ID)
				touched[assignment.ID] = true
			}
		}

		if assignment.Status != models.AssignmentStatusActive {
			continue
		}

		dates, err := evaluator.projector.Dates(assignment)
		if err != nil {
			slog.Warn("skipping promotion of virtual occurrences", "assignment_id", assignment.ID, "error", err)
			continue
		}
		for _, date := range dates {
			if !date.Before(today) {
				break
			}
			if existing[models.FormatDate(date)] {
				continue
			}
			seeds = append(seeds, repository.OverrideSeed{
				AssignmentID: assignment.ID,
				OriginalDate: date,
				State:        models.OccurrenceOverdue,
			})
			touched[assignment.ID] = true
		}
	}

	if len(touched) == 0 {
		return 0, nil
	}

	inserted, err := evaluator.overrideRepo.InsertMissing(ctx, seeds)
	if err != nil {
		return 0, fmt.Errorf("materializing overdue occurrences: %w", err)
	}
	flipped, err := evaluator.overrideRepo.BatchSetState(ctx, pendingIDs, models.OccurrenceOverdue, models.OccurrencePending)
	if err != nil {
		return 0, fmt.Errorf("promoting pending occurrences: %w", err)
	}

	for _, assignment := range candidates {
		if !touched[assignment.ID] {
			continue
		}
		if _, err := evaluator.recompute(ctx, assignment, false); err != nil {
			return 0, err
		}
	}

	promoted := inserted + flipped
	evaluator.recorder.RecordPromoted(promoted)
	if promoted > 0 {
		slog.Info("promoted overdue occurrences", "count", promoted, "assignments", len(touched))
	}
	return promoted, nil
}

// RecordOutcome applies a user's decision to the occurrence of assignmentID
// generated for date, optionally editing its fields, and recomputes the
// assignment's aggregate status. Recording pending on a completed occurrence
// reopens it. Overdue is only set by promotion, so recording it is accepted
// solely as a field edit of an occurrence that is already overdue.
func (evaluator *LifecycleEvaluator) RecordOutcome(ctx context.Context, assignmentID string, date time.Time, state models.OccurrenceState, fields *models.OverrideFields) (models.OccurrenceOverride, error) {
	if !state.Valid() {
		return models.OccurrenceOverride{}, &models.ValidationError{Field: "state", Reason: fmt.Sprintf("unknown state %q", state)}
	}
	assignment, err := evaluator.assignmentRepo.FindByID(ctx, assignmentID)
	if err != nil {
		return models.OccurrenceOverride{}, err
	}
	if assignment.Status == models.AssignmentStatusRevoked {
		return models.OccurrenceOverride{}, ErrAssignmentRevoked
	}

	date = models.DateOnly(date)
	current := models.OccurrencePending
	var completedAt *time.Time

	existing, err := evaluator.overrideRepo.FindByAssignmentAndDate(ctx, assignmentID, date)
	switch {
	case err == nil:
		current = existing.State
		completedAt = existing.CompletedAt
	case errors.Is(err, repository.ErrNotFound):
		if err := evaluator.requireOccurrence(assignment, date); err != nil {
			return models.OccurrenceOverride{}, err
		}
	default:
		return models.OccurrenceOverride{}, err
	}

	if !canTransition(current, state) {
		return models.OccurrenceOverride{}, fmt.Errorf("%w: %s to %s", ErrInvalidState, current, state)
	}

	change := repository.OverrideChange{State: state}
	if fields != nil {
		change.Fields = *fields
	}
	if state == models.OccurrenceCompleted {
		if completedAt == nil {
			now := evaluator.now()
			completedAt = &now
		}
		change.CompletedAt = completedAt
	}

	override, err := evaluator.overrideRepo.Upsert(ctx, assignmentID, date, change)
	if errors.Is(err, repository.ErrConflict) {
		slog.Debug("retrying override upsert after conflict", "assignment_id", assignmentID, "date", models.FormatDate(date))
		override, err = evaluator.overrideRepo.Upsert(ctx, assignmentID, date, change)
	}
	if err != nil {
		return models.OccurrenceOverride{}, err
	}

	if _, err := evaluator.recompute(ctx, assignment, true); err != nil {
		return models.OccurrenceOverride{}, err
	}

	evaluator.recorder.RecordOutcome(state)
	return override, nil
}

// CutRecurrenceFrom ends the task's recurrence the day before cutoff and
// cancels every pending override on or after cutoff for the task's
// assignments. An end date already earlier than that is kept.
func (evaluator *LifecycleEvaluator) CutRecurrenceFrom(ctx context.Context, assignmentID string, cutoff time.Time) (CutoffResult, error) {
	assignment, err := evaluator.assignmentRepo.FindByID(ctx, assignmentID)
	if err != nil {
		return CutoffResult{}, err
	}
	if assignment.Status == models.AssignmentStatusRevoked {
		return CutoffResult{}, ErrAssignmentRevoked
	}

	rule, err := models.DecodeRecurrence(assignment.Task.RecurrenceType, assignment.Task.RecurrenceValue)
	if err != nil {
		return CutoffResult{}, err
	}
	if !models.IsRecurring(rule) {
		return CutoffResult{}, ErrNotRecurring
	}

	cutoff = models.DateOnly(cutoff)
	newEnd := cutoff.AddDate(0, 0, -1)
	if end := rule.Limits().EndDate; end != nil && end.Before(newEnd) {
		newEnd = models.DateOnly(*end)
	} else if err := evaluator.taskRepo.UpdateRecurrenceEndDate(ctx, assignment.TaskID, newEnd); err != nil {
		return CutoffResult{}, fmt.Errorf("ending recurrence: %w", err)
	}

	siblings, err := evaluator.assignmentRepo.FindAll(ctx, repository.AssignmentFilter{TaskID: &assignment.TaskID})
	if err != nil {
		return CutoffResult{}, fmt.Errorf("finding assignments of task: %w", err)
	}

	var affected []models.Assignment
	var ids []string
	for _, sibling := range siblings {
		if sibling.Status == models.AssignmentStatusRevoked {
			continue
		}
		affected = append(affected, sibling)
		ids = append(ids, sibling.ID)
	}

	overrides, err := evaluator.overrideRepo.FindByAssignments(ctx, ids)
	if err != nil {
		return CutoffResult{}, fmt.Errorf("loading overrides: %w", err)
	}

	var cancelIDs []string
	for _, id := range ids {
		for _, override := range overrides[id] {
			if override.State == models.OccurrencePending && !override.OriginalDate.Before(cutoff) {
				cancelIDs = append(cancelIDs, override.ID)
			}
		}
	}

	cancelled, err := evaluator.overrideRepo.BatchSetState(ctx, cancelIDs, models.OccurrenceCancelled, models.OccurrencePending)
	if err != nil {
		return CutoffResult{}, fmt.Errorf("cancelling occurrences: %w", err)
	}

	for _, sibling := range affected {
		// The stored rule changed underneath the loaded copy.
		refreshed, err := evaluator.assignmentRepo.FindByID(ctx, sibling.ID)
		if err != nil {
			return CutoffResult{}, err
		}
		if _, err := evaluator.recompute(ctx, refreshed, false); err != nil {
			return CutoffResult{}, err
		}
	}

	evaluator.recorder.RecordCutoff(cancelled)
	slog.Info("cut recurrence",
		"assignment_id", assignmentID,
		"task_id", assignment.TaskID,
		"end_date", models.FormatDate(newEnd),
		"cancelled", cancelled,
	)
	return CutoffResult{CancelledCount: cancelled, NewEndDate: newEnd}, nil
}

// recomputeTask re-derives the status of every assignment of taskID.
func (evaluator *LifecycleEvaluator) recomputeTask(ctx context.Context, taskID string) error {
	assignments, err := evaluator.assignmentRepo.FindAll(ctx, repository.AssignmentFilter{
		TaskID:   &taskID,
		Statuses: visibleStatuses,
	})
	if err != nil {
		return fmt.Errorf("finding assignments of task: %w", err)
	}
	for _, assignment := range assignments {
		if _, err := evaluator.recompute(ctx, assignment, false); err != nil {
			return err
		}
	}
	return nil
}

func (evaluator *LifecycleEvaluator) recompute(ctx context.Context, assignment models.Assignment, reopen bool) (models.AssignmentStatus, error) {
	if assignment.Status == models.AssignmentStatusRevoked {
		return assignment.Status, nil
	}

	overrides, err := evaluator.overrideRepo.FindByAssignment(ctx, assignment.ID)
	if err != nil {
		return "", fmt.Errorf("loading overrides: %w", err)
	}
	assignment.Overrides = overrides

	next := AggregateStatus(assignment.Status, evaluator.occurrenceStates(assignment), reopen)
	if next == assignment.Status {
		return next, nil
	}

	if err := evaluator.assignmentRepo.UpdateStatus(ctx, assignment.ID, next); err != nil {
		return "", fmt.Errorf("updating assignment status: %w", err)
	}
	slog.Info("assignment status changed", "assignment_id", assignment.ID, "from", assignment.Status, "to", next)
	return next, nil
}

// occurrenceStates lists the state of every occurrence of assignment:
// generated dates default to pending, overrides contribute their own state
// whether or not the rule still generates their date.
func (evaluator *LifecycleEvaluator) occurrenceStates(assignment models.Assignment) []models.OccurrenceState {
	dates, err := evaluator.projector.Dates(assignment)
	if err != nil {
		dates = nil
	}

	byDate := make(map[string]models.OccurrenceState, len(assignment.Overrides))
	for _, override := range assignment.Overrides {
		byDate[models.FormatDate(override.OriginalDate)] = override.State
	}

	states := make([]models.OccurrenceState, 0, len(dates)+len(assignment.Overrides))
	for _, date := range dates {
		key := models.FormatDate(date)
		if state, found := byDate[key]; found {
			states = append(states, state)
			delete(byDate, key)
			continue
		}
		states = append(states, models.OccurrencePending)
	}
	for _, override := range assignment.Overrides {
		if state, orphan := byDate[models.FormatDate(override.OriginalDate)]; orphan {
			states = append(states, state)
		}
	}
	return states
}

func (evaluator *LifecycleEvaluator) requireOccurrence(assignment models.Assignment, date time.Time) error {
	dates, err := evaluator.projector.Dates(assignment)
	if err != nil {
		return err
	}
	for _, generated := range dates {
		if generated.Equal(date) {
			return nil
		}
	}
	return &models.ValidationError{Field: "date", Reason: fmt.Sprintf("no occurrence on %s", models.FormatDate(date))}
}

// AggregateStatus derives an assignment's status from its occurrence states.
// Revoked assignments never change. A pending occurrence only reverts a
// completed or finalized assignment to active when reopen is set, which
// callers do for explicit user actions.
func AggregateStatus(current models.AssignmentStatus, states []models.OccurrenceState, reopen bool) models.AssignmentStatus {
	if current == models.AssignmentStatusRevoked || len(states) == 0 {
		return current
	}

	allCompleted := true
	for _, state := range states {
		if state == models.OccurrencePending {
			if reopen && (current == models.AssignmentStatusCompleted || current == models.AssignmentStatusFinalized) {
				return models.AssignmentStatusActive
			}
			return current
		}
		if state != models.OccurrenceCompleted {
			allCompleted = false
		}
	}

	if allCompleted {
		return models.AssignmentStatusCompleted
	}
	return models.AssignmentStatusFinalized
}

func canTransition(from, to models.OccurrenceState) bool {
	switch from {
	case models.OccurrencePending, models.OccurrenceOverdue:
		return to == from || to == models.OccurrenceCompleted || to == models.OccurrenceCancelled
	case models.OccurrenceCompleted:
		return to == models.OccurrenceCompleted || to == models.OccurrencePending
	default:
		return false
	}
}
