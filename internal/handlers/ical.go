package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/bensuskins/office-hub/internal/models"
	"github.com/bensuskins/office-hub/internal/repository"
	"github.com/bensuskins/office-hub/internal/services"
)

const icalTimestampLayout = "20060102T150405Z"

type ICalHandler struct {
	service      *services.DeadlineService
	assigneeRepo repository.AssigneeRepository
	settingsRepo repository.SettingsRepository
	officeName   string
}

func NewICalHandler(
	service *services.DeadlineService,
	assigneeRepo repository.AssigneeRepository,
	settingsRepo repository.SettingsRepository,
	officeName string,
) *ICalHandler {
	return &ICalHandler{
		service:      service,
		assigneeRepo: assigneeRepo,
		settingsRepo: settingsRepo,
		officeName:   officeName,
	}
}

// Feed publishes every visible occurrence as a VTODO due on its date.
// assignee_id narrows the feed to one person.
func (handler *ICalHandler) Feed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := repository.AssignmentFilter{}
	if assigneeID := r.URL.Query().Get("assignee_id"); assigneeID != "" {
		filter.AssigneeID = &assigneeID
	}

	rows, err := handler.service.ListDisplayRows(ctx, filter)
	if err != nil {
		slog.Error("listing rows for ical", "error", err)
		http.Error(w, "Error", http.StatusInternalServerError)
		return
	}

	assignees, err := handler.assigneeRepo.FindAll(ctx)
	if err != nil {
		slog.Error("finding assignees for ical", "error", err)
	}
	names := make(map[string]string, len(assignees))
	for _, assignee := range assignees {
		names[assignee.ID] = assignee.Name
	}

	officeName, err := handler.settingsRepo.GetOrDefault(ctx, repository.SettingOfficeName, handler.officeName)
	if err != nil {
		slog.Warn("reading office name", "error", err)
		officeName = handler.officeName
	}

	calendar := ical.NewCalendar()
	calendar.SetMethod(ical.MethodPublish)
	calendar.SetProductId(fmt.Sprintf("-//%s//Office Hub//EN", officeName))
	calendar.SetXWRCalName(officeName + " deadlines")

	stamp := time.Now().UTC()
	for _, row := range rows {
		addTodo(calendar, row, names[row.AssigneeID], stamp)
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=office-hub.ics")
	w.Write([]byte(calendar.Serialize()))
}

func addTodo(calendar *ical.Calendar, row models.DisplayRow, assigneeName string, stamp time.Time) {
	uid := row.AssignmentID + "@office-hub"
	if row.OriginalDate != nil {
		uid = row.AssignmentID + "-" + models.FormatDate(*row.OriginalDate) + "@office-hub"
	}

	todo := calendar.AddTodo(uid)
	todo.SetSummary(row.Title)
	todo.SetDtStampTime(stamp)

	description := row.Description
	if assigneeName != "" {
		if description != "" {
			description += "\n"
		}
		description += "Assigned to: " + assigneeName
	}
	if description != "" {
		todo.SetDescription(description)
	}

	if row.Date != nil {
		todo.SetProperty(ical.ComponentPropertyDue, row.Date.Format("20060102"), ical.WithValue(string(ical.ValueDataTypeDate)))
	}

	switch row.State {
	case models.OccurrenceCompleted:
		todo.SetStatus(ical.ObjectStatusCompleted)
		if row.CompletedAt != nil {
			todo.SetProperty(ical.ComponentPropertyCompleted, row.CompletedAt.UTC().Format(icalTimestampLayout))
		}
	case models.OccurrenceOverdue:
		todo.SetStatus(ical.ObjectStatusNeedsAction)
		todo.SetProperty(ical.ComponentPropertyPriority, "1")
	default:
		todo.SetStatus(ical.ObjectStatusNeedsAction)
	}
}
