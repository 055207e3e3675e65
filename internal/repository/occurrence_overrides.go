package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bensuskins/office-hub/internal/models"
	"github.com/google/uuid"
)

// OverrideChange is what an upsert writes for one (assignment, date) key.
type OverrideChange struct {
	State       models.OccurrenceState
	Fields      models.OverrideFields
	CompletedAt *time.Time
}

// OverrideSeed is a missing override to materialize with a given state.
type OverrideSeed struct {
	AssignmentID string
	OriginalDate time.Time
	State        models.OccurrenceState
}

// OccurrenceOverrideRepository persists per-occurrence overrides. The pair
// (assignment_id, original_date) is unique; writers rely on that constraint
// rather than on locking.
type OccurrenceOverrideRepository interface {
	FindByAssignment(ctx context.Context, assignmentID string) ([]models.OccurrenceOverride, error)
	FindByAssignments(ctx context.Context, assignmentIDs []string) (map[string][]models.OccurrenceOverride, error)
	FindByAssignmentAndDate(ctx context.Context, assignmentID string, date time.Time) (models.OccurrenceOverride, error)
	Upsert(ctx context.Context, assignmentID string, date time.Time, change OverrideChange) (models.OccurrenceOverride, error)
	InsertMissing(ctx context.Context, seeds []OverrideSeed) (int, error)
	BatchSetState(ctx context.Context, ids []string, state models.OccurrenceState, from ...models.OccurrenceState) (int, error)
}

type SQLiteOccurrenceOverrideRepository struct {
	database *sql.DB
}

func NewOccurrenceOverrideRepository(database *sql.DB) *SQLiteOccurrenceOverrideRepository {
	return &SQLiteOccurrenceOverrideRepository{database: database}
}

const overrideColumns = `id, assignment_id, original_date, state,
	title, date, color, priority, description,
	completed_at, created_at, updated_at`

func (repository *SQLiteOccurrenceOverrideRepository) FindByAssignment(ctx context.Context, assignmentID string) ([]models.OccurrenceOverride, error) {
	rows, err := repository.database.QueryContext(ctx,
		"SELECT "+overrideColumns+" FROM occurrence_overrides WHERE assignment_id = ? ORDER BY original_date ASC",
		assignmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("finding overrides by assignment: %w", err)
	}
	defer rows.Close()

	return scanOverrides(rows)
}

func (repository *SQLiteOccurrenceOverrideRepository) FindByAssignments(ctx context.Context, assignmentIDs []string) (map[string][]models.OccurrenceOverride, error) {
	byAssignment := make(map[string][]models.OccurrenceOverride, len(assignmentIDs))
	if len(assignmentIDs) == 0 {
		return byAssignment, nil
	}

	args := make([]any, len(assignmentIDs))
	for i, id := range assignmentIDs {
		args[i] = id
	}

	rows, err := repository.database.QueryContext(ctx,
		"SELECT "+overrideColumns+" FROM occurrence_overrides WHERE assignment_id IN ("+placeholders(len(assignmentIDs))+") ORDER BY assignment_id, original_date ASC",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("finding overrides by assignments: %w", err)
	}
	defer rows.Close()

	overrides, err := scanOverrides(rows)
	if err != nil {
		return nil, err
	}
	for _, override := range overrides {
		byAssignment[override.AssignmentID] = append(byAssignment[override.AssignmentID], override)
	}
	return byAssignment, nil
}

func (repository *SQLiteOccurrenceOverrideRepository) FindByAssignmentAndDate(ctx context.Context, assignmentID string, date time.Time) (models.OccurrenceOverride, error) {
	row := repository.database.QueryRowContext(ctx,
		"SELECT "+overrideColumns+" FROM occurrence_overrides WHERE assignment_id = ? AND original_date = ?",
		assignmentID, models.FormatDate(date),
	)
	override, err := scanOverride(row)
	if err != nil {
		return models.OccurrenceOverride{}, translate("finding override by date", err)
	}
	return override, nil
}

// Upsert creates the override for (assignmentID, date) or updates it in
// place. Nil fields in the change keep their stored values.
func (repository *SQLiteOccurrenceOverrideRepository) Upsert(ctx context.Context, assignmentID string, date time.Time, change OverrideChange) (models.OccurrenceOverride, error) {
	now := time.Now()
	_, err := repository.database.ExecContext(ctx,
		`INSERT INTO occurrence_overrides (id, assignment_id, original_date, state,
			title, date, color, priority, description,
			completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(assignment_id, original_date) DO UPDATE SET
			state = excluded.state,
			title = COALESCE(excluded.title, occurrence_overrides.title),
			date = COALESCE(excluded.date, occurrence_overrides.date),
			color = COALESCE(excluded.color, occurrence_overrides.color),
			priority = COALESCE(excluded.priority, occurrence_overrides.priority),
			description = COALESCE(excluded.description, occurrence_overrides.description),
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at`,
		uuid.New().String(), assignmentID, models.FormatDate(date), change.State,
		change.Fields.Title, nullableDate(change.Fields.Date), change.Fields.Color,
		change.Fields.Priority, change.Fields.Description,
		change.CompletedAt, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.OccurrenceOverride{}, fmt.Errorf("upserting override: %w", ErrConflict)
		}
		return models.OccurrenceOverride{}, translate("upserting override", err)
	}

	return repository.FindByAssignmentAndDate(ctx, assignmentID, date)
}

// InsertMissing materializes each seed whose key has no override yet and
// leaves existing rows untouched. It returns how many rows were created.
func (repository *SQLiteOccurrenceOverrideRepository) InsertMissing(ctx context.Context, seeds []OverrideSeed) (int, error) {
	if len(seeds) == 0 {
		return 0, nil
	}

	transaction, err := repository.database.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer transaction.Rollback()

	statement, err := transaction.PrepareContext(ctx,
		`INSERT INTO occurrence_overrides (id, assignment_id, original_date, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(assignment_id, original_date) DO NOTHING`,
	)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer statement.Close()

	now := time.Now()
	inserted := 0
	for _, seed := range seeds {
		result, err := statement.ExecContext(ctx,
			uuid.New().String(), seed.AssignmentID, models.FormatDate(seed.OriginalDate), seed.State, now, now,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting override for %s on %s: %w", seed.AssignmentID, models.FormatDate(seed.OriginalDate), err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("reading insert result: %w", err)
		}
		inserted += int(affected)
	}

	if err := transaction.Commit(); err != nil {
		return 0, fmt.Errorf("committing overrides: %w", err)
	}
	return inserted, nil
}

// BatchSetState moves the given overrides to state. When from is non-empty
// only rows currently in one of those states change, so a stale caller cannot
// overwrite a newer transition.
func (repository *SQLiteOccurrenceOverrideRepository) BatchSetState(ctx context.Context, ids []string, state models.OccurrenceState, from ...models.OccurrenceState) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	args := []any{state, time.Now()}
	query := "UPDATE occurrence_overrides SET state = ?, updated_at = ? WHERE id IN (" + placeholders(len(ids)) + ")"
	for _, id := range ids {
		args = append(args, id)
	}
	if len(from) > 0 {
		query += " AND state IN (" + placeholders(len(from)) + ")"
		for _, current := range from {
			args = append(args, current)
		}
	}

	result, err := repository.database.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("setting override state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading update result: %w", err)
	}
	return int(affected), nil
}

func nullableDate(date *time.Time) *string {
	if date == nil {
		return nil
	}
	formatted := models.FormatDate(*date)
	return &formatted
}

func scanOverride(scanner rowScanner) (models.OccurrenceOverride, error) {
	var override models.OccurrenceOverride
	var originalDate string
	var overriddenDate sql.NullString
	err := scanner.Scan(
		&override.ID, &override.AssignmentID, &originalDate, &override.State,
		&override.Title, &overriddenDate, &override.Color, &override.Priority, &override.Description,
		&override.CompletedAt, &override.CreatedAt, &override.UpdatedAt,
	)
	if err != nil {
		return models.OccurrenceOverride{}, err
	}

	override.OriginalDate, err = models.ParseDate(originalDate)
	if err != nil {
		return models.OccurrenceOverride{}, fmt.Errorf("override %s: %w", override.ID, err)
	}
	if overriddenDate.Valid {
		date, err := models.ParseDate(overriddenDate.String)
		if err != nil {
			return models.OccurrenceOverride{}, fmt.Errorf("override %s: %w", override.ID, err)
		}
		override.Date = &date
	}
	return override, nil
}

func scanOverrides(rows *sql.Rows) ([]models.OccurrenceOverride, error) {
	var overrides []models.OccurrenceOverride
	for rows.Next() {
		override, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning override: %w", err)
		}
		overrides = append(overrides, override)
	}
	return overrides, rows.Err()
}
