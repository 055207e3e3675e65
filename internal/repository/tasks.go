package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bensuskins/office-hub/internal/models"
	"github.com/google/uuid"
)

type TaskRepository interface {
	FindByID(ctx context.Context, id string) (models.Task, error)
	Create(ctx context.Context, task models.Task) (models.Task, error)
	Update(ctx context.Context, task models.Task) error
	UpdateRecurrenceEndDate(ctx context.Context, taskID string, endDate time.Time) error
}

type SQLiteTaskRepository struct {
	database *sql.DB
}

func NewTaskRepository(database *sql.DB) *SQLiteTaskRepository {
	return &SQLiteTaskRepository{database: database}
}

func (repository *SQLiteTaskRepository) FindByID(ctx context.Context, id string) (models.Task, error) {
	var task models.Task
	err := repository.database.QueryRowContext(ctx,
		`SELECT id, title, description, color, priority,
			recurrence_type, recurrence_value, created_at, updated_at
		FROM tasks WHERE id = ?`, id,
	).Scan(
		&task.ID, &task.Title, &task.Description, &task.Color, &task.Priority,
		&task.RecurrenceType, &task.RecurrenceValue, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return models.Task{}, translate("finding task by id", err)
	}
	return task, nil
}

func (repository *SQLiteTaskRepository) Create(ctx context.Context, task models.Task) (models.Task, error) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.RecurrenceType == "" {
		task.RecurrenceType = models.FrequencyNone
	}

	_, err := repository.database.ExecContext(ctx,
		`INSERT INTO tasks (id, title, description, color, priority,
			recurrence_type, recurrence_value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.Description, task.Color, task.Priority,
		task.RecurrenceType, task.RecurrenceValue, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return models.Task{}, translate("creating task", err)
	}
	return task, nil
}

func (repository *SQLiteTaskRepository) Update(ctx context.Context, task models.Task) error {
	task.UpdatedAt = time.Now()
	result, err := repository.database.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, color = ?, priority = ?,
			recurrence_type = ?, recurrence_value = ?, updated_at = ?
		WHERE id = ?`,
		task.Title, task.Description, task.Color, task.Priority,
		task.RecurrenceType, task.RecurrenceValue, task.UpdatedAt, task.ID,
	)
	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}
	return requireAffected(result, "updating task")
}

// UpdateRecurrenceEndDate rewrites the end date of the stored rule, leaving
// every other field of the rule as it was.
func (repository *SQLiteTaskRepository) UpdateRecurrenceEndDate(ctx context.Context, taskID string, endDate time.Time) error {
	transaction, err := repository.database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer transaction.Rollback()

	var frequency models.Frequency
	var value string
	err = transaction.QueryRowContext(ctx,
		"SELECT recurrence_type, recurrence_value FROM tasks WHERE id = ?", taskID,
	).Scan(&frequency, &value)
	if err != nil {
		return translate("reading recurrence rule", err)
	}

	rule, err := models.DecodeRecurrence(frequency, value)
	if err != nil {
		return fmt.Errorf("decoding recurrence rule: %w", err)
	}
	if rule == nil {
		return &models.ValidationError{Field: "recurrence", Reason: "task does not recur"}
	}
	frequency, value, err = models.EncodeRecurrence(models.WithEndDate(rule, endDate))
	if err != nil {
		return err
	}

	if _, err := transaction.ExecContext(ctx,
		"UPDATE tasks SET recurrence_type = ?, recurrence_value = ?, updated_at = ? WHERE id = ?",
		frequency, value, time.Now(), taskID,
	); err != nil {
		return fmt.Errorf("updating recurrence end date: %w", err)
	}

	return transaction.Commit()
}

func requireAffected(result sql.Result, action string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", action, ErrNotFound)
	}
	return nil
}
