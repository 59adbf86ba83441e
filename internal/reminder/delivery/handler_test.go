package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voicelog-backend/internal/reminder/repository"
	"voicelog-backend/internal/reminder/scheduler"
	"voicelog-backend/internal/reminder/usecase"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMonitor struct {
	result scheduler.ScanResult
	err    error
}

func (m *stubMonitor) CheckNow(context.Context) (scheduler.ScanResult, error) {
	return m.result, m.err
}

var now = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func setupRouter(monitor Monitor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	uc := usecase.NewReminderUsecase(repository.NewMemoryReminderRepository(), usecase.Options{
		Location: time.UTC,
		Clock:    func() time.Time { return now },
		Logger:   zerolog.Nop(),
	})
	h := NewReminderHandler(uc, monitor)

	r := gin.New()
	api := r.Group("/api")
	api.GET("/reminders", h.GetReminders)
	api.POST("/reminders", h.CreateReminder)
	api.POST("/reminders/parse", h.ParseReminder)
	api.GET("/reminders/:id", h.GetReminderByID)
	api.PUT("/reminders/:id", h.UpdateReminder)
	api.DELETE("/reminders/:id", h.DeleteReminder)
	api.POST("/reminders/:id/dismiss", h.DismissReminder)
	api.POST("/reminders/:id/snooze", h.SnoozeReminder)
	api.POST("/monitor/check", h.CheckNow)
	return r
}

func request(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestReminderLifecycleOverHTTP(t *testing.T) {
	r := setupRouter(&stubMonitor{})

	w := request(r, http.MethodPost, "/api/reminders", `{"text":"remind me in 2 minutes to call mom","voice_enabled":true}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	id := created["id"].(string)
	assert.Equal(t, "call mom", created["text"])
	assert.Equal(t, "2024-01-01T10:02:00Z", created["due_at"])
	assert.Equal(t, "pending", created["status"])

	w = request(r, http.MethodGet, "/api/reminders/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = request(r, http.MethodPost, "/api/reminders/"+id+"/snooze", `{"minutes":15}`)
	require.Equal(t, http.StatusOK, w.Code)
	snoozed := decode(t, w)
	assert.Equal(t, "2024-01-01T10:15:00Z", snoozed["due_at"])
	assert.EqualValues(t, 1, snoozed["snooze_count"])

	w = request(r, http.MethodPost, "/api/reminders/"+id+"/dismiss", `{"method":"voice"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "voice", decode(t, w)["dismissed_by"])

	// second dismiss is a no-op success with an empty body
	w = request(r, http.MethodPost, "/api/reminders/"+id+"/dismiss", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "voice", decode(t, w)["dismissed_by"])

	w = request(r, http.MethodPost, "/api/reminders/"+id+"/snooze", `{"minutes":5}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = request(r, http.MethodGet, "/api/reminders?filter=completed", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])
	w = request(r, http.MethodGet, "/api/reminders?filter=pending", "")
	assert.EqualValues(t, 0, decode(t, w)["total"])

	w = request(r, http.MethodDelete, "/api/reminders/"+id, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = request(r, http.MethodDelete, "/api/reminders/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateReminder_NeedMoreDetail(t *testing.T) {
	r := setupRouter(&stubMonitor{})

	w := request(r, http.MethodPost, "/api/reminders", `{"text":"buy milk"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "need_more_detail", decode(t, w)["code"])

	w = request(r, http.MethodPost, "/api/reminders", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateReminder_ExplicitDueAt(t *testing.T) {
	r := setupRouter(&stubMonitor{})
	w := request(r, http.MethodPost, "/api/reminders", `{"text":"standup","due_at":"2024-01-02T09:30:00Z","repeat_count":2}`)
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "standup", body["text"])
	assert.Equal(t, "2024-01-02T09:30:00Z", body["due_at"])
	assert.EqualValues(t, 2, body["repeat_count"])
}

func TestParsePreviewAndErrors(t *testing.T) {
	r := setupRouter(&stubMonitor{})

	w := request(r, http.MethodPost, "/api/reminders/parse", `{"text":"next friday at 6pm dinner"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "dinner", body["text"])
	assert.Equal(t, "2024-01-12T18:00:00Z", body["due_at"])

	w = request(r, http.MethodGet, "/api/reminders/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = request(r, http.MethodGet, "/api/reminders?filter=overdue", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = request(r, http.MethodPut, "/api/reminders/missing", `{"text":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckNow(t *testing.T) {
	r := setupRouter(&stubMonitor{result: scheduler.ScanResult{Due: 2, Notified: 2, AutoCompleted: 1}})
	w := request(r, http.MethodPost, "/api/monitor/check", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"due":2,"notified":2,"auto_completed":1}`, w.Body.String())

	r = setupRouter(&stubMonitor{err: scheduler.ErrStopped})
	w = request(r, http.MethodPost, "/api/monitor/check", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
