package models

import "time"

type AssignmentStatus string

const (
	AssignmentStatusActive    AssignmentStatus = "active"
	AssignmentStatusCompleted AssignmentStatus = "completed"
	AssignmentStatusFinalized AssignmentStatus = "finalized"
	AssignmentStatusRevoked   AssignmentStatus = "revoked"
)

type OccurrenceState string

const (
	OccurrencePending   OccurrenceState = "pending"
	OccurrenceCompleted OccurrenceState = "completed"
	OccurrenceOverdue   OccurrenceState = "overdue"
	OccurrenceCancelled OccurrenceState = "cancelled"
)

// IsTerminal reports whether no further automatic transition applies to the state.
func (state OccurrenceState) IsTerminal() bool {
	switch state {
	case OccurrenceCompleted, OccurrenceOverdue, OccurrenceCancelled:
		return true
	default:
		return false
	}
}

func (state OccurrenceState) Valid() bool {
	switch state {
	case OccurrencePending, OccurrenceCompleted, OccurrenceOverdue, OccurrenceCancelled:
		return true
	default:
		return false
	}
}

type Assignee struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is the definition shared by every assignment of it. The recurrence
// rule is kept in its stored form and decoded with DecodeRecurrence.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
	Priority    string `json:"priority,omitempty"`

	RecurrenceType  Frequency `json:"recurrence_type"`
	RecurrenceValue string    `json:"recurrence_value,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Assignment struct {
	ID         string           `json:"id"`
	TaskID     string           `json:"task_id"`
	AssigneeID string           `json:"assignee_id"`
	AnchorDate time.Time        `json:"anchor_date"`
	Status     AssignmentStatus `json:"status"`

	Task      Task                 `json:"task"`
	Overrides []OccurrenceOverride `json:"overrides,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type OccurrenceOverride struct {
	ID           string          `json:"id"`
	AssignmentID string          `json:"assignment_id"`
	OriginalDate time.Time       `json:"original_date"`
	State        OccurrenceState `json:"state"`

	Title       *string    `json:"title,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	Color       *string    `json:"color,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	Description *string    `json:"description,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ResolvedDate is the date the occurrence is shown on: the overridden date
// when one was set, otherwise the date it was generated for.
func (override OccurrenceOverride) ResolvedDate() time.Time {
	if override.Date != nil {
		return DateOnly(*override.Date)
	}
	return override.OriginalDate
}

// OverrideFields carries the optional per-occurrence edits. Nil fields keep
// whatever is already stored.
type OverrideFields struct {
	Title       *string    `json:"title,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	Color       *string    `json:"color,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	Description *string    `json:"description,omitempty"`
}

type DisplayRow struct {
	AssignmentID     string           `json:"assignment_id"`
	TaskID           string           `json:"task_id"`
	AssigneeID       string           `json:"assignee_id"`
	OverrideID       string           `json:"override_id,omitempty"`
	OriginalDate     *time.Time       `json:"original_date,omitempty"`
	Date             *time.Time       `json:"date,omitempty"`
	Title            string           `json:"title"`
	Description      string           `json:"description,omitempty"`
	Color            string           `json:"color,omitempty"`
	Priority         string           `json:"priority,omitempty"`
	State            OccurrenceState  `json:"state"`
	AssignmentStatus AssignmentStatus `json:"assignment_status"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	Recurring        bool             `json:"recurring"`
	Orphan           bool             `json:"orphan,omitempty"`
	Fallback         bool             `json:"fallback,omitempty"`
}
