package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const SettingOfficeName = "office_name"

type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	GetOrDefault(ctx context.Context, key string, fallback string) (string, error)
	Set(ctx context.Context, key string, value string) error
}

type SQLiteSettingsRepository struct {
	database *sql.DB
}

func NewSettingsRepository(database *sql.DB) *SQLiteSettingsRepository {
	return &SQLiteSettingsRepository{database: database}
}

func (repository *SQLiteSettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := repository.database.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?", key,
	).Scan(&value)
	if err != nil {
		return "", translate(fmt.Sprintf("getting setting %s", key), err)
	}
	return value, nil
}

// GetOrDefault returns fallback when the key is missing or stored empty.
func (repository *SQLiteSettingsRepository) GetOrDefault(ctx context.Context, key string, fallback string) (string, error) {
	value, err := repository.Get(ctx, key)
	if errors.Is(err, ErrNotFound) || (err == nil && value == "") {
		return fallback, nil
	}
	return value, err
}

func (repository *SQLiteSettingsRepository) Set(ctx context.Context, key string, value string) error {
	_, err := repository.database.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}
