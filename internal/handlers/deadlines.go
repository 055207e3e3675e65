package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bensuskins/office-hub/internal/models"
	"github.com/bensuskins/office-hub/internal/repository"
	"github.com/bensuskins/office-hub/internal/services"
	"github.com/go-chi/chi/v5"
)

type DeadlineHandler struct {
	service *services.DeadlineService
}

func NewDeadlineHandler(service *services.DeadlineService) *DeadlineHandler {
	return &DeadlineHandler{service: service}
}

type taskRequest struct {
	Title          string                   `json:"title"`
	Description    string                   `json:"description"`
	Color          string                   `json:"color"`
	Priority       string                   `json:"priority"`
	RecurrenceType models.Frequency         `json:"recurrence_type"`
	Recurrence     *models.RecurrenceConfig `json:"recurrence"`
}

type assigneeRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type assignmentRequest struct {
	TaskID     string `json:"task_id"`
	AssigneeID string `json:"assignee_id"`
	AnchorDate string `json:"anchor_date"`
}

type outcomeRequest struct {
	State       models.OccurrenceState `json:"state"`
	Title       *string                `json:"title"`
	Date        *string                `json:"date"`
	Color       *string                `json:"color"`
	Priority    *string                `json:"priority"`
	Description *string                `json:"description"`
}

type cutoffRequest struct {
	Date string `json:"date"`
}

type cutoffResponse struct {
	CancelledCount int    `json:"cancelled_count"`
	NewEndDate     string `json:"new_end_date"`
}

// ListRows serves the projected rows. Query parameters assignee_id and
// task_id narrow the assignments; status takes a comma-separated list.
func (handler *DeadlineHandler) ListRows(w http.ResponseWriter, r *http.Request) {
	filter := repository.AssignmentFilter{}
	query := r.URL.Query()

	if assigneeID := query.Get("assignee_id"); assigneeID != "" {
		filter.AssigneeID = &assigneeID
	}
	if taskID := query.Get("task_id"); taskID != "" {
		filter.TaskID = &taskID
	}
	if statuses := query.Get("status"); statuses != "" {
		for _, status := range strings.Split(statuses, ",") {
			filter.Statuses = append(filter.Statuses, models.AssignmentStatus(strings.TrimSpace(status)))
		}
	}

	rows, err := handler.service.ListDisplayRows(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (handler *DeadlineHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	task, rule, err := decodeTask(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	created, err := handler.service.CreateTask(r.Context(), task, rule)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// UpdateTask replaces a task's fields and rule. Existing overrides keep their
// original dates.
func (handler *DeadlineHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	task, rule, err := decodeTask(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := handler.service.UpdateTask(r.Context(), chi.URLParam(r, "id"), task, rule)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func decodeTask(r *http.Request) (models.Task, models.RecurrenceRule, error) {
	var request taskRequest
	if err := decodeJSON(r, &request); err != nil {
		return models.Task{}, nil, err
	}

	var value string
	if request.Recurrence != nil {
		encoded, err := json.Marshal(request.Recurrence)
		if err != nil {
			return models.Task{}, nil, err
		}
		value = string(encoded)
	}
	rule, err := models.DecodeRecurrence(request.RecurrenceType, value)
	if err != nil {
		return models.Task{}, nil, err
	}

	return models.Task{
		Title:       request.Title,
		Description: request.Description,
		Color:       request.Color,
		Priority:    request.Priority,
	}, rule, nil
}

func (handler *DeadlineHandler) CreateAssignee(w http.ResponseWriter, r *http.Request) {
	var request assigneeRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, err)
		return
	}

	assignee, err := handler.service.CreateAssignee(r.Context(), models.Assignee{Name: request.Name, Email: request.Email})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, assignee)
}

func (handler *DeadlineHandler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var request assignmentRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, err)
		return
	}
	anchor, err := parseDate("anchor_date", request.AnchorDate)
	if err != nil {
		writeError(w, r, err)
		return
	}

	assignment, err := handler.service.Assign(r.Context(), request.TaskID, request.AssigneeID, anchor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, assignment)
}

func (handler *DeadlineHandler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate("date", chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var request outcomeRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, err)
		return
	}

	fields := &models.OverrideFields{
		Title:       request.Title,
		Color:       request.Color,
		Priority:    request.Priority,
		Description: request.Description,
	}
	if request.Date != nil {
		moved, err := parseDate("override_date", *request.Date)
		if err != nil {
			writeError(w, r, err)
			return
		}
		fields.Date = &moved
	}

	override, err := handler.service.Lifecycle().RecordOutcome(r.Context(), chi.URLParam(r, "id"), date, request.State, fields)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, override)
}

func (handler *DeadlineHandler) Cutoff(w http.ResponseWriter, r *http.Request) {
	var request cutoffRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, err)
		return
	}
	cutoff, err := parseDate("date", request.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := handler.service.Lifecycle().CutRecurrenceFrom(r.Context(), chi.URLParam(r, "id"), cutoff)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cutoffResponse{
		CancelledCount: result.CancelledCount,
		NewEndDate:     models.FormatDate(result.NewEndDate),
	})
}

func (handler *DeadlineHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := handler.service.Revoke(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
