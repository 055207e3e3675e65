package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fetchFeed(t *testing.T, router http.Handler, path string) *ical.Calendar {
	t.Helper()
	request := httptest.NewRequest(http.MethodGet, path, nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", recorder.Header().Get("Content-Type"))

	calendar, err := ical.ParseCalendar(strings.NewReader(recorder.Body.String()))
	require.NoError(t, err)
	return calendar
}

func todosByUID(calendar *ical.Calendar) map[string]*ical.VTodo {
	todos := map[string]*ical.VTodo{}
	for _, component := range calendar.Components {
		if todo, ok := component.(*ical.VTodo); ok {
			todos[todo.Id()] = todo
		}
	}
	return todos
}

func TestICalHandler_FeedPublishesOccurrences(t *testing.T) {
	router, service := setupRouter(t)
	assignmentID := seedWeekly(t, router)

	_, err := service.Lifecycle().RecordOutcome(context.Background(), assignmentID, handlerToday, "completed", nil)
	require.NoError(t, err)

	todos := todosByUID(fetchFeed(t, router, "/ical"))
	require.Len(t, todos, 4)

	first := todos[assignmentID+"-2024-01-01@office-hub"]
	require.NotNil(t, first)
	assert.Equal(t, "Payroll", first.GetProperty(ical.ComponentPropertySummary).Value)
	assert.Equal(t, "COMPLETED", first.GetProperty(ical.ComponentPropertyStatus).Value)
	assert.Equal(t, "20240101", first.GetProperty(ical.ComponentPropertyDue).Value)
	assert.Contains(t, first.GetProperty(ical.ComponentPropertyDescription).Value, "Ann")

	second := todos[assignmentID+"-2024-01-08@office-hub"]
	require.NotNil(t, second)
	assert.Equal(t, "NEEDS-ACTION", second.GetProperty(ical.ComponentPropertyStatus).Value)
}

func TestICalHandler_FeedFiltersByAssignee(t *testing.T) {
	router, _ := setupRouter(t)
	seedWeekly(t, router)

	todos := todosByUID(fetchFeed(t, router, "/ical?assignee_id=nobody"))
	assert.Empty(t, todos)
}
