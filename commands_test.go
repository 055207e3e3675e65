package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bensuskins/office-hub/internal/models"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "office-hub.db"))
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRowsCommand_EmptyJSON(t *testing.T) {
	out, err := runCLI(t, "rows", "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestRecordCommand_RejectsBadDate(t *testing.T) {
	_, err := runCLI(t, "record", "some-id", "15/01/2024", "completed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing date")
}

func TestCutCommand_UnknownAssignment(t *testing.T) {
	_, err := runCLI(t, "cut", "missing", "2024-01-15")
	require.Error(t, err)
}

func TestPrintRows(t *testing.T) {
	due := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	rows := []models.DisplayRow{
		{AssignmentID: "a1", Title: "Payroll", State: models.OccurrenceOverdue, Date: &due, Recurring: true, Orphan: true},
		{AssignmentID: "a2", Title: "Annual return", State: models.OccurrencePending},
	}

	var out bytes.Buffer
	require.NoError(t, printRows(&out, rows))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "DATE"))
	assert.Contains(t, lines[1], "2024-01-08")
	assert.Contains(t, lines[1], "recurring,moved")
	assert.True(t, strings.HasPrefix(lines[2], "-"))
}
