package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bensuskins/office-hub/internal/models"
	"github.com/google/uuid"
)

type AssignmentFilter struct {
	AssigneeID *string
	TaskID     *string
	Statuses   []models.AssignmentStatus
}

type AssignmentRepository interface {
	FindByID(ctx context.Context, id string) (models.Assignment, error)
	FindAll(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, error)
	Create(ctx context.Context, assignment models.Assignment) (models.Assignment, error)
	UpdateStatus(ctx context.Context, id string, status models.AssignmentStatus) error
}

type SQLiteAssignmentRepository struct {
	database *sql.DB
}

func NewAssignmentRepository(database *sql.DB) *SQLiteAssignmentRepository {
	return &SQLiteAssignmentRepository{database: database}
}

const assignmentColumns = `a.id, a.task_id, a.assignee_id, a.anchor_date, a.status, a.created_at, a.updated_at,
	t.id, t.title, t.description, t.color, t.priority,
	t.recurrence_type, t.recurrence_value, t.created_at, t.updated_at`

const assignmentFrom = ` FROM assignments a JOIN tasks t ON t.id = a.task_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(scanner rowScanner) (models.Assignment, error) {
	var assignment models.Assignment
	var anchorDate string
	err := scanner.Scan(
		&assignment.ID, &assignment.TaskID, &assignment.AssigneeID, &anchorDate,
		&assignment.Status, &assignment.CreatedAt, &assignment.UpdatedAt,
		&assignment.Task.ID, &assignment.Task.Title, &assignment.Task.Description,
		&assignment.Task.Color, &assignment.Task.Priority,
		&assignment.Task.RecurrenceType, &assignment.Task.RecurrenceValue,
		&assignment.Task.CreatedAt, &assignment.Task.UpdatedAt,
	)
	if err != nil {
		return models.Assignment{}, err
	}
	assignment.AnchorDate, err = models.ParseDate(anchorDate)
	if err != nil {
		return models.Assignment{}, fmt.Errorf("assignment %s: %w", assignment.ID, err)
	}
	return assignment, nil
}

func (repository *SQLiteAssignmentRepository) FindByID(ctx context.Context, id string) (models.Assignment, error) {
	row := repository.database.QueryRowContext(ctx,
		"SELECT "+assignmentColumns+assignmentFrom+" WHERE a.id = ?", id,
	)
	assignment, err := scanAssignment(row)
	if err != nil {
		return models.Assignment{}, translate("finding assignment by id", err)
	}
	return assignment, nil
}

func (repository *SQLiteAssignmentRepository) FindAll(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, error) {
	query := "SELECT " + assignmentColumns + assignmentFrom + " WHERE 1=1"
	var args []any

	if filter.AssigneeID != nil {
		query += " AND a.assignee_id = ?"
		args = append(args, *filter.AssigneeID)
	}
	if filter.TaskID != nil {
		query += " AND a.task_id = ?"
		args = append(args, *filter.TaskID)
	}
	if len(filter.Statuses) > 0 {
		query += " AND a.status IN (" + placeholders(len(filter.Statuses)) + ")"
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	query += " ORDER BY a.anchor_date ASC, t.title ASC, a.id ASC"

	rows, err := repository.database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding assignments: %w", err)
	}
	defer rows.Close()

	var assignments []models.Assignment
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		assignments = append(assignments, assignment)
	}
	return assignments, rows.Err()
}

func (repository *SQLiteAssignmentRepository) Create(ctx context.Context, assignment models.Assignment) (models.Assignment, error) {
	if assignment.ID == "" {
		assignment.ID = uuid.New().String()
	}
	now := time.Now()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now
	assignment.AnchorDate = models.DateOnly(assignment.AnchorDate)
	if assignment.Status == "" {
		assignment.Status = models.AssignmentStatusActive
	}

	_, err := repository.database.ExecContext(ctx,
		`INSERT INTO assignments (id, task_id, assignee_id, anchor_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		assignment.ID, assignment.TaskID, assignment.AssigneeID,
		models.FormatDate(assignment.AnchorDate), assignment.Status,
		assignment.CreatedAt, assignment.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return models.Assignment{}, fmt.Errorf("creating assignment: %w", ErrNotFound)
		}
		return models.Assignment{}, translate("creating assignment", err)
	}
	return assignment, nil
}

func (repository *SQLiteAssignmentRepository) UpdateStatus(ctx context.Context, id string, status models.AssignmentStatus) error {
	result, err := repository.database.ExecContext(ctx,
		"UPDATE assignments SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("updating assignment status: %w", err)
	}
	return requireAffected(result, "updating assignment status")
}
