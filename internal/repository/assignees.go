package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bensuskins/office-hub/internal/models"
	"github.com/google/uuid"
)

type AssigneeRepository interface {
	FindByID(ctx context.Context, id string) (models.Assignee, error)
	FindAll(ctx context.Context) ([]models.Assignee, error)
	Create(ctx context.Context, assignee models.Assignee) (models.Assignee, error)
}

type SQLiteAssigneeRepository struct {
	database *sql.DB
}

func NewAssigneeRepository(database *sql.DB) *SQLiteAssigneeRepository {
	return &SQLiteAssigneeRepository{database: database}
}

func (repository *SQLiteAssigneeRepository) FindByID(ctx context.Context, id string) (models.Assignee, error) {
	var assignee models.Assignee
	err := repository.database.QueryRowContext(ctx,
		"SELECT id, name, email, created_at FROM assignees WHERE id = ?", id,
	).Scan(&assignee.ID, &assignee.Name, &assignee.Email, &assignee.CreatedAt)
	if err != nil {
		return models.Assignee{}, translate("finding assignee by id", err)
	}
	return assignee, nil
}

func (repository *SQLiteAssigneeRepository) FindAll(ctx context.Context) ([]models.Assignee, error) {
	rows, err := repository.database.QueryContext(ctx,
		"SELECT id, name, email, created_at FROM assignees ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("finding all assignees: %w", err)
	}
	defer rows.Close()

	var assignees []models.Assignee
	for rows.Next() {
		var assignee models.Assignee
		if err := rows.Scan(&assignee.ID, &assignee.Name, &assignee.Email, &assignee.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning assignee: %w", err)
		}
		assignees = append(assignees, assignee)
	}
	return assignees, rows.Err()
}

func (repository *SQLiteAssigneeRepository) Create(ctx context.Context, assignee models.Assignee) (models.Assignee, error) {
	if assignee.ID == "" {
		assignee.ID = uuid.New().String()
	}
	assignee.CreatedAt = time.Now()

	_, err := repository.database.ExecContext(ctx,
		"INSERT INTO assignees (id, name, email, created_at) VALUES (?, ?, ?, ?)",
		assignee.ID, assignee.Name, assignee.Email, assignee.CreatedAt,
	)
	if err != nil {
		return models.Assignee{}, translate("creating assignee", err)
	}
	return assignee, nil
}
