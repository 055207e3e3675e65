package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bensuskins/office-hub/internal/models"
	"github.com/bensuskins/office-hub/internal/repository"
	"github.com/bensuskins/office-hub/internal/services"
	"github.com/bensuskins/office-hub/internal/testutil"
)

type lifecycleFixture struct {
	evaluator      *services.LifecycleEvaluator
	service        *services.DeadlineService
	taskRepo       *repository.SQLiteTaskRepository
	assignmentRepo *repository.SQLiteAssignmentRepository
	overrideRepo   *repository.SQLiteOccurrenceOverrideRepository
	assignee       models.Assignee
}

// setupLifecycle wires the services over an in-memory database whose clock
// reads mid-morning on today.
func setupLifecycle(t *testing.T, today time.Time) *lifecycleFixture {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	taskRepo := repository.NewTaskRepository(db)
	assigneeRepo := repository.NewAssigneeRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	overrideRepo := repository.NewOccurrenceOverrideRepository(db)

	projector := services.NewProjector(services.DefaultGenerationBound)
	evaluator := services.NewLifecycleEvaluator(taskRepo, assignmentRepo, overrideRepo, projector,
		services.WithClock(func() time.Time { return today.Add(10 * time.Hour) }),
	)
	service := services.NewDeadlineService(taskRepo, assigneeRepo, assignmentRepo, overrideRepo, evaluator, projector, nil)

	assignee, err := service.CreateAssignee(context.Background(), models.Assignee{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)

	return &lifecycleFixture{
		evaluator:      evaluator,
		service:        service,
		taskRepo:       taskRepo,
		assignmentRepo: assignmentRepo,
		overrideRepo:   overrideRepo,
		assignee:       assignee,
	}
}

func (fixture *lifecycleFixture) assign(t *testing.T, title string, rule models.RecurrenceRule, anchor time.Time) models.Assignment {
	t.Helper()
	ctx := context.Background()
	task, err := fixture.service.CreateTask(ctx, models.Task{Title: title}, rule)
	require.NoError(t, err)
	assignment, err := fixture.service.Assign(ctx, task.ID, fixture.assignee.ID, anchor)
	require.NoError(t, err)
	return assignment
}

func (fixture *lifecycleFixture) reload(t *testing.T, id string) models.Assignment {
	t.Helper()
	assignment, err := fixture.assignmentRepo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return assignment
}

func (fixture *lifecycleFixture) overrides(t *testing.T, id string) []models.OccurrenceOverride {
	t.Helper()
	overrides, err := fixture.overrideRepo.FindByAssignment(context.Background(), id)
	require.NoError(t, err)
	return overrides
}

func daily(maxOccurrences int) models.RecurrenceRule {
	return models.DailyRule{RuleLimits: models.RuleLimits{Interval: 1, MaxOccurrences: intPtr(maxOccurrences)}}
}

func mondays(maxOccurrences int) models.RecurrenceRule {
	return models.WeeklyRule{
		RuleLimits: models.RuleLimits{Interval: 1, MaxOccurrences: intPtr(maxOccurrences)},
		Weekdays:   []time.Weekday{time.Monday},
	}
}

func TestLifecycle_PromoteOverdueIsIdempotent(t *testing.T) {
	today := date(2024, 3, 10)
	fixture := setupLifecycle(t, today)
	ctx := context.Background()

	assignment := fixture.assign(t, "Daily bank reconciliation", daily(5), today.AddDate(0, 0, -3))

	promoted, err := fixture.evaluator.PromoteOverdue(ctx, []models.Assignment{assignment})
	require.NoError(t, err)
	assert.Equal(t, 3, promoted)

	overrides := fixture.overrides(t, assignment.ID)
	require.Len(t, overrides, 3)
	for _, override := range overrides {
		assert.Equal(t, models.OccurrenceOverdue, override.State)
		assert.True(t, override.OriginalDate.Before(today))
	}

	promoted, err = fixture.evaluator.PromoteOverdue(ctx, []models.Assignment{fixture.reload(t, assignment.ID)})
	require.NoError(t, err)
	assert.Equal(t, 0, promoted)
	assert.Len(t, fixture.overrides(t, assignment.ID), 3)

	// Today and tomorrow are still pending, so the aggregate stays active.
	assert.Equal(t, models.AssignmentStatusActive, fixture.reload(t, assignment.ID).Status)
}

func TestLifecycle_PromoteFlipsMaterializedPending(t *testing.T) {
	today := date(2024, 3, 10)
	fixture := setupLifecycle(t, today)
	ctx := context.Background()

	yesterday := today.AddDate(0, 0, -1)
	assignment := fixture.assign(t, "Payroll filing", nil, yesterday)

	description := "bring the signed forms"
	_, err := fixture.evaluator.RecordOutcome(ctx, assignment.ID, yesterday, models.OccurrencePending, &models.OverrideFields{Description: &description})
	require.NoError(t, err)

	promoted, err := fixture.evaluator.PromoteOverdue(ctx, []models.Assignment{fixture.reload(t, assignment.ID)})
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	overrides := fixture.overrides(t, assignment.ID)
	require.Len(t, overrides, 1)
	assert.Equal(t, models.OccurrenceOverdue, overrides[0].State)
	require.NotNil(t, overrides[0].Description)
	assert.Equal(t, description, *overrides[0].Description)

	assert.Equal(t, models.AssignmentStatusFinalized, fixture.reload(t, assignment.ID).Status)
}

func TestLifecycle_PromoteSkipsRevokedAndTerminal(t *testing.T) {
	today := date(2024, 3, 10)
	fixture := setupLifecycle(t, today)
	ctx := context.Background()

	revoked := fixture.assign(t, "Old engagement", daily(3), today.AddDate(0, 0, -5))
	require.NoError(t, fixture.service.Revoke(ctx, revoked.ID))

	done := fixture.assign(t, "Tax return", nil, today.AddDate(0, 0, -2))
	_, err := fixture.evaluator.RecordOutcome(ctx, done.ID, done.AnchorDate, models.OccurrenceCompleted, nil)
	require.NoError(t, err)

	promoted, err := fixture.evaluator.PromoteOverdue(ctx, []models.Assignment{
		fixture.reload(t, revoked.ID),
		fixture.reload(t, done.ID),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, promoted)
	assert.Empty(t, fixture.overrides(t, revoked.ID))
	assert.Equal(t, models.AssignmentStatusCompleted, fixture.reload(t, done.ID).Status)
}

func TestLifecycle_ConcurrentPromotionConverges(t *testing.T) {
	today := date(2024, 3, 10)
	fixture := setupLifecycle(t, today)
	ctx := context.Background()

	assignment := fixture.assign(t, "Daily bank reconciliation", daily(10), today.AddDate(0, 0, -4))

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			promoted, err := fixture.evaluator.PromoteOverdue(ctx, []models.Assignment{assignment})
			assert.NoError(t, err)
			mu.Lock()
			total += promoted
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, total)
	assert.Len(t, fixture.overrides(t, assignment.ID), 4)
}

func TestLifecycle_RecordOutcomeCompletesAndReopens(t *testing.T) {
	today := date(2024, 3, 10)
	fixture := setupLifecycle(t, today)
	ctx := context.Background()

	assignment := fixture.assign(t, "Month-end close", daily(2), today)
	tomorrow := today.AddDate(0, 0, 1)

	first, err := fixture.evaluator.RecordOutcome(ctx, assignment.ID, today, models.OccurrenceCompleted, nil)
	require.NoError(t, err)
	require.NotNil(t, first.CompletedAt)
	assert.Equal(t, models.AssignmentStatusActive, fixture.reload(t, assignment.ID).Status)

	_, err = fixture.evaluator.RecordOutcome(ctx, assignment.ID, tomorrow, models.OccurrenceCompleted, nil)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentStatusCompleted, fixture.reload(t, assignment.ID).Status)

	reopened, err := fixture.evaluator.RecordOutcome(ctx, assignment.ID, tomorrow, models.OccurrencePending, nil)
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)
	assert.Equal(t, models.AssignmentStatusActive, fixture.reload(t, assignment.ID).Status)
	assert.Len(t, fixture.overrides(t, assignment.ID), 2)
}

func TestLifecycle_RecordOutcomeMixedTerminalFinalizes(t *testing.T) {
	today := date(2024, 3, 10)
	fixture := setupLifecycle(t, today)
	ctx := context.Background()

	assignment := fixture.assign(t, "Audit prep", daily(2), today.AddDate(0, 0, -1))

	_, err := fixture.evaluator.PromoteOverdue(ctx, []models.Assignment{assignment})
	require.NoError(t, err)
	_, err = fixture.evaluator.RecordOutcome(ctx, assignment.ID, today, models.OccurrenceCompleted, nil)
	require.NoError(t, err)

	assert.Equal(t, models.AssignmentStatusFinalized, fixture.reload(t, assignment.ID).Status)
}

func TestLifecycle_LateFilingOfOverdue(t *testing.T) {
	today := date(2024, 3, 10)
	fixture := setupLifecycle(t, today)
	ctx := context.Background()

	assignment := fixture.assign(t, "VAT return", nil, today.AddDate(0, 0, -7))
	_, err := fixture.evaluator.PromoteOverdue(ctx, []models.Assignment{assignment})
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentStatusFinalized, fixture.reload(t, assignment.ID).Status)

	_, err = fixture.evaluator.RecordOutcome(ctx, assignment.ID, assignment.AnchorDate, models.OccurrenceCompleted, nil)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentStatusCompleted, fixture.reload(t, assignment.ID).Status)
}

func TestLifecycle_RecordOutcomeRejections(t *testing.T) {
	today := date(2024, 3, 10)
	fixture := setupLifecycle(t, today)
	ctx := context.Background()

	assignment := fixture.assign(t, "Payroll", mondays(4), date(2024, 3, 11))

	_, err := fixture.evaluator.RecordOutcome(ctx, assignment.ID, date(2024, 3, 11), models.OccurrenceOverdue, nil)
	assert.ErrorIs(t, err, services.ErrInvalidState)

	_, err = fixture.evaluator.RecordOutcome(ctx, assignment.ID, date(2024, 3, 12), models.OccurrenceCompleted, nil)
	var validation *models.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "date", validation.Field)

	_, err = fixture.evaluator.RecordOutcome(ctx, assignment.ID, date(2024, 3, 11), "skipped", nil)
	assert.ErrorAs(t, err, &validation)

	_, err = fixture.evaluator.RecordOutcome(ctx, "missing", date(2024, 3, 11), models.OccurrenceCompleted, nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = fixture.evaluator.RecordOutcome(ctx, assignment.ID, date(2024, 3, 18), models.OccurrenceCancelled, nil)
	require.NoError(t, err)
	_, err = fixture.evaluator.RecordOutcome(ctx, assignment.ID, date(2024, 3, 18), models.OccurrenceCompleted, nil)
	assert.ErrorIs(t, err, services.ErrInvalidState)

	require.NoError(t, fixture.service.Revoke(ctx, assignment.ID))
	_, err = fixture.evaluator.RecordOutcome(ctx, assignment.ID, date(2024, 3, 11), models.OccurrenceCompleted, nil)
	assert.ErrorIs(t, err, services.ErrAssignmentRevoked)
}

func TestLifecycle_CutRecurrenceFrom(t *testing.T) {
	today := date(2024, 1, 1)
	fixture := setupLifecycle(t, today)
	ctx := context.Background()

	assignment := fixture.assign(t, "Weekly payroll", mondays(10), today)

	_, err := fixture.evaluator.RecordOutcome(ctx, assignment.ID, date(2024, 1, 8), models.OccurrenceCompleted, nil)
	require.NoError(t, err)
	_, err = fixture.evaluator.RecordOutcome(ctx, assignment.ID, date(2024, 1, 15), models.OccurrencePending, &models.OverrideFields{Title: strPtr("Payroll + bonuses")})
	require.NoError(t, err)
	_, err = fixture.evaluator.RecordOutcome(ctx, assignment.ID, date(2024, 1, 29), models.OccurrencePending, nil)
	require.NoError(t, err)

	result, err := fixture.evaluator.CutRecurrenceFrom(ctx, assignment.ID, date(2024, 1, 15))
	require.NoError(t, err)
	assert.Equal(t, 2, result.CancelledCount)
	assert.Equal(t, date(2024, 1, 14), result.NewEndDate)

	task, err := fixture.taskRepo.FindByID(ctx, assignment.TaskID)
	require.NoError(t, err)
	rule, err := models.DecodeRecurrence(task.RecurrenceType, task.RecurrenceValue)
	require.NoError(t, err)
	require.NotNil(t, rule.Limits().EndDate)
	assert.Equal(t, date(2024, 1, 14), *rule.Limits().EndDate)
	require.NotNil(t, rule.Limits().MaxOccurrences, "the rest of the rule survives")
	assert.Equal(t, 10, *rule.Limits().MaxOccurrences)

	states := map[string]models.OccurrenceState{}
	for _, override := range fixture.overrides(t, assignment.ID) {
		states[models.FormatDate(override.OriginalDate)] = override.State
	}
	assert.Equal(t, models.OccurrenceCompleted, states["2024-01-08"])
	assert.Equal(t, models.OccurrenceCancelled, states["2024-01-15"])
	assert.Equal(t, models.OccurrenceCancelled, states["2024-01-29"])

	rows, err := fixture.service.ListDisplayRows(ctx, repository.AssignmentFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-08"}, rowDates(rows))
}

func TestLifecycle_CutRecurrenceKeepsEarlierEndDate(t *testing.T) {
	today := date(2024, 1, 1)
	fixture := setupLifecycle(t, today)
	ctx := context.Background()

	rule := models.WeeklyRule{RuleLimits: models.RuleLimits{Interval: 1, EndDate: timePtr(date(2024, 1, 10))}}
	assignment := fixture.assign(t, "Short engagement", rule, today)

	result, err := fixture.evaluator.CutRecurrenceFrom(ctx, assignment.ID, date(2024, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, date(2024, 1, 10), result.NewEndDate)
	assert.Equal(t, 0, result.CancelledCount)
}

func TestLifecycle_CutRecurrenceRejectsSingleInstance(t *testing.T) {
	today := date(2024, 1, 1)
	fixture := setupLifecycle(t, today)

	assignment := fixture.assign(t, "Annual return", nil, date(2024, 4, 30))

	_, err := fixture.evaluator.CutRecurrenceFrom(context.Background(), assignment.ID, date(2024, 4, 1))
	assert.ErrorIs(t, err, services.ErrNotRecurring)
	var validation *models.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestAggregateStatus(t *testing.T) {
	const (
		pending   = models.OccurrencePending
		completed = models.OccurrenceCompleted
		overdue   = models.OccurrenceOverdue
		cancelled = models.OccurrenceCancelled
	)

	tests := []struct {
		name    string
		current models.AssignmentStatus
		states  []models.OccurrenceState
		reopen  bool
		want    models.AssignmentStatus
	}{
		{"completed and overdue finalize", models.AssignmentStatusActive, []models.OccurrenceState{completed, overdue}, false, models.AssignmentStatusFinalized},
		{"all completed complete", models.AssignmentStatusActive, []models.OccurrenceState{completed, completed}, false, models.AssignmentStatusCompleted},
		{"cancelled counts as mixed", models.AssignmentStatusActive, []models.OccurrenceState{completed, cancelled}, false, models.AssignmentStatusFinalized},
		{"pending leaves active", models.AssignmentStatusActive, []models.OccurrenceState{completed, pending}, false, models.AssignmentStatusActive},
		{"pending does not reopen on promotion", models.AssignmentStatusCompleted, []models.OccurrenceState{completed, pending}, false, models.AssignmentStatusCompleted},
		{"pending reopens on user action", models.AssignmentStatusFinalized, []models.OccurrenceState{overdue, pending}, true, models.AssignmentStatusActive},
		{"empty leaves unchanged", models.AssignmentStatusFinalized, nil, true, models.AssignmentStatusFinalized},
		{"revoked never changes", models.AssignmentStatusRevoked, []models.OccurrenceState{completed}, true, models.AssignmentStatusRevoked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, services.AggregateStatus(tt.current, tt.states, tt.reopen))
		})
	}
}

func TestLifecycle_EditOverdueOccurrenceKeepsState(t *testing.T) {
	today := date(2024, 3, 10)
	fixture := setupLifecycle(t, today)
	ctx := context.Background()

	assignment := fixture.assign(t, "VAT return", nil, today.AddDate(0, 0, -7))
	_, err := fixture.evaluator.PromoteOverdue(ctx, []models.Assignment{assignment})
	require.NoError(t, err)

	override, err := fixture.evaluator.RecordOutcome(ctx, assignment.ID, assignment.AnchorDate, models.OccurrenceOverdue, &models.OverrideFields{
		Title: strPtr("VAT return (chased client)"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.OccurrenceOverdue, override.State)
	require.NotNil(t, override.Title)
	assert.Equal(t, "VAT return (chased client)", *override.Title)
	assert.Equal(t, models.AssignmentStatusFinalized, fixture.reload(t, assignment.ID).Status)
}
