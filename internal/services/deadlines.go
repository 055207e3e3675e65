package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bensuskins/office-hub/internal/metrics"
	"github.com/bensuskins/office-hub/internal/models"
	"github.com/bensuskins/office-hub/internal/repository"
)

var visibleStatuses = []models.AssignmentStatus{
	models.AssignmentStatusActive,
	models.AssignmentStatusCompleted,
	models.AssignmentStatusFinalized,
}

// DeadlineService is the entry point for callers outside the package: it
// creates tasks and assignments and serves display rows, promoting overdue
// occurrences before every read.
type DeadlineService struct {
	taskRepo       repository.TaskRepository
	assigneeRepo   repository.AssigneeRepository
	assignmentRepo repository.AssignmentRepository
	overrideRepo   repository.OccurrenceOverrideRepository
	lifecycle      *LifecycleEvaluator
	projector      *Projector
	recorder       metrics.Recorder
}

func NewDeadlineService(
	taskRepo repository.TaskRepository,
	assigneeRepo repository.AssigneeRepository,
	assignmentRepo repository.AssignmentRepository,
	overrideRepo repository.OccurrenceOverrideRepository,
	lifecycle *LifecycleEvaluator,
	projector *Projector,
	recorder metrics.Recorder,
) *DeadlineService {
	if recorder == nil {
		recorder = metrics.NewNop()
	}
	return &DeadlineService{
		taskRepo:       taskRepo,
		assigneeRepo:   assigneeRepo,
		assignmentRepo: assignmentRepo,
		overrideRepo:   overrideRepo,
		lifecycle:      lifecycle,
		projector:      projector,
		recorder:       recorder,
	}
}

func (service *DeadlineService) Lifecycle() *LifecycleEvaluator {
	return service.lifecycle
}

// ListDisplayRows returns the projected rows of every assignment matching
// filter. Revoked assignments are left out unless filter asks for them.
func (service *DeadlineService) ListDisplayRows(ctx context.Context, filter repository.AssignmentFilter) ([]models.DisplayRow, error) {
	if len(filter.Statuses) == 0 {
		filter.Statuses = visibleStatuses
	}

	assignments, err := service.assignmentRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("finding assignments: %w", err)
	}
	if len(assignments) == 0 {
		return []models.DisplayRow{}, nil
	}

	if _, err := service.lifecycle.PromoteOverdue(ctx, assignments); err != nil {
		return nil, fmt.Errorf("promoting overdue occurrences: %w", err)
	}

	// Promotion may have moved aggregates; read them back.
	assignments, err = service.assignmentRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("finding assignments: %w", err)
	}

	ids := make([]string, len(assignments))
	for i, assignment := range assignments {
		ids[i] = assignment.ID
	}
	overrides, err := service.overrideRepo.FindByAssignments(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading overrides: %w", err)
	}
	for i := range assignments {
		assignments[i].Overrides = overrides[assignments[i].ID]
	}

	rows := service.projector.ProjectDisplayRows(assignments)
	if rows == nil {
		rows = []models.DisplayRow{}
	}
	service.recorder.RecordProjected(len(rows))
	return rows, nil
}

// CreateTask stores task with rule, rejecting rules the generator would
// refuse to expand.
func (service *DeadlineService) CreateTask(ctx context.Context, task models.Task, rule models.RecurrenceRule) (models.Task, error) {
	task, err := prepareTask(task, rule)
	if err != nil {
		return models.Task{}, err
	}

	created, err := service.taskRepo.Create(ctx, task)
	if err != nil {
		return models.Task{}, fmt.Errorf("creating task: %w", err)
	}
	return created, nil
}

// UpdateTask replaces the fields and rule of taskID. Overrides stay keyed by
// their original dates, so ones the new rule no longer generates surface as
// orphans, and every assignment of the task has its status re-derived.
func (service *DeadlineService) UpdateTask(ctx context.Context, taskID string, task models.Task, rule models.RecurrenceRule) (models.Task, error) {
	existing, err := service.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return models.Task{}, err
	}
	task, err = prepareTask(task, rule)
	if err != nil {
		return models.Task{}, err
	}
	task.ID = existing.ID
	task.CreatedAt = existing.CreatedAt

	if err := service.taskRepo.Update(ctx, task); err != nil {
		return models.Task{}, err
	}
	if err := service.lifecycle.recomputeTask(ctx, taskID); err != nil {
		return models.Task{}, err
	}

	slog.Info("task updated", "task_id", taskID, "recurrence_type", task.RecurrenceType)
	return service.taskRepo.FindByID(ctx, taskID)
}

func prepareTask(task models.Task, rule models.RecurrenceRule) (models.Task, error) {
	task.Title = strings.TrimSpace(task.Title)
	if task.Title == "" {
		return models.Task{}, &models.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if models.IsRecurring(rule) {
		if err := validateRule(rule); err != nil {
			return models.Task{}, err
		}
	}

	frequency, value, err := models.EncodeRecurrence(rule)
	if err != nil {
		return models.Task{}, err
	}
	task.RecurrenceType = frequency
	task.RecurrenceValue = value
	return task, nil
}

func (service *DeadlineService) CreateAssignee(ctx context.Context, assignee models.Assignee) (models.Assignee, error) {
	assignee.Name = strings.TrimSpace(assignee.Name)
	if assignee.Name == "" {
		return models.Assignee{}, &models.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	return service.assigneeRepo.Create(ctx, assignee)
}

// Assign gives taskID to assigneeID with occurrences counted from anchor.
func (service *DeadlineService) Assign(ctx context.Context, taskID, assigneeID string, anchor time.Time) (models.Assignment, error) {
	if anchor.IsZero() {
		return models.Assignment{}, &models.ValidationError{Field: "anchor_date", Reason: "is required"}
	}

	task, err := service.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return models.Assignment{}, err
	}
	if _, err := service.assigneeRepo.FindByID(ctx, assigneeID); err != nil {
		return models.Assignment{}, err
	}
	if _, err := models.DecodeRecurrence(task.RecurrenceType, task.RecurrenceValue); err != nil {
		return models.Assignment{}, err
	}

	assignment, err := service.assignmentRepo.Create(ctx, models.Assignment{
		TaskID:     taskID,
		AssigneeID: assigneeID,
		AnchorDate: anchor,
		Status:     models.AssignmentStatusActive,
	})
	if err != nil {
		return models.Assignment{}, err
	}
	assignment.Task = task
	return assignment, nil
}

// Revoke withdraws an assignment. Revoked assignments keep their overrides
// but are never promoted or recomputed again.
func (service *DeadlineService) Revoke(ctx context.Context, assignmentID string) error {
	assignment, err := service.assignmentRepo.FindByID(ctx, assignmentID)
	if err != nil {
		return err
	}
	if assignment.Status == models.AssignmentStatusRevoked {
		return nil
	}
	return service.assignmentRepo.UpdateStatus(ctx, assignmentID, models.AssignmentStatusRevoked)
}
