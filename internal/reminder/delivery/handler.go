package delivery

import (
	"context"
	"errors"
	"net/http"
	"time"

	"voicelog-backend/internal/reminder/domain"
	"voicelog-backend/internal/reminder/scheduler"
	"voicelog-backend/internal/reminder/usecase"

	"github.com/gin-gonic/gin"
)

// Monitor is the operator-facing part of the reminder monitor
type Monitor interface {
	CheckNow(ctx context.Context) (scheduler.ScanResult, error)
}

// ReminderHandler handles reminder-related HTTP requests
type ReminderHandler struct {
	reminderUsecase usecase.ReminderUsecase
	monitor         Monitor
}

// NewReminderHandler creates a new ReminderHandler
func NewReminderHandler(reminderUsecase usecase.ReminderUsecase, monitor Monitor) *ReminderHandler {
	return &ReminderHandler{
		reminderUsecase: reminderUsecase,
		monitor:         monitor,
	}
}

// CreateReminderRequest represents the request body for creating a reminder
type CreateReminderRequest struct {
	Text         string     `json:"text" binding:"required"`
	DueAt        *time.Time `json:"due_at"`
	VoiceEnabled bool       `json:"voice_enabled"`
	RepeatCount  *int       `json:"repeat_count"`
}

// ParseRequest is the body of a parse preview
type ParseRequest struct {
	Text string `json:"text" binding:"required"`
}

// DismissRequest selects how the reminder was dismissed
type DismissRequest struct {
	Method domain.DismissMethod `json:"method"`
}

// SnoozeRequest holds the snooze length; zero uses the default
type SnoozeRequest struct {
	Minutes int `json:"minutes"`
}

// GetReminders returns reminders filtered by status
// GET /api/reminders?filter=pending|completed|all
func (h *ReminderHandler) GetReminders(c *gin.Context) {
	filter, err := domain.ParseListFilter(c.Query("filter"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reminders, err := h.reminderUsecase.ListReminders(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reminders": reminders,
		"total":     len(reminders),
	})
}

// GetReminderByID returns a specific reminder
// GET /api/reminders/:id
func (h *ReminderHandler) GetReminderByID(c *gin.Context) {
	reminder, err := h.reminderUsecase.GetReminder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reminder)
}

// CreateReminder creates a reminder from text and an optional explicit due time
// POST /api/reminders
func (h *ReminderHandler) CreateReminder(c *gin.Context) {
	var req CreateReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reminder, err := h.reminderUsecase.CreateReminder(c.Request.Context(), usecase.CreateReminderInput{
		Text:         req.Text,
		DueAt:        req.DueAt,
		VoiceEnabled: req.VoiceEnabled,
		RepeatCount:  req.RepeatCount,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reminder)
}

// ParseReminder previews how text would be scheduled
// POST /api/reminders/parse
func (h *ReminderHandler) ParseReminder(c *gin.Context) {
	var req ParseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.reminderUsecase.ParsePreview(req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"due_at":       res.DueAt,
		"text":         res.Text,
		"rule":         res.Rule,
		"repeat_count": res.RepeatCount,
	})
}

// UpdateReminder updates an existing reminder
// PUT /api/reminders/:id
func (h *ReminderHandler) UpdateReminder(c *gin.Context) {
	var patch usecase.ReminderPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reminder, err := h.reminderUsecase.UpdateReminder(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reminder)
}

// DeleteReminder deletes a reminder
// DELETE /api/reminders/:id
func (h *ReminderHandler) DeleteReminder(c *gin.Context) {
	deleted, err := h.reminderUsecase.DeleteReminder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Reminder not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reminder deleted successfully"})
}

// DismissReminder completes a reminder
// POST /api/reminders/:id/dismiss
func (h *ReminderHandler) DismissReminder(c *gin.Context) {
	var req DismissRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	reminder, err := h.reminderUsecase.DismissReminder(c.Request.Context(), c.Param("id"), req.Method)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reminder)
}

// SnoozeReminder pushes a reminder back by the given minutes
// POST /api/reminders/:id/snooze
func (h *ReminderHandler) SnoozeReminder(c *gin.Context) {
	var req SnoozeRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	reminder, err := h.reminderUsecase.SnoozeReminder(c.Request.Context(), c.Param("id"), req.Minutes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reminder)
}

// CheckNow runs a monitor scan immediately
// POST /api/monitor/check
func (h *ReminderHandler) CheckNow(c *gin.Context) {
	res, err := h.monitor.CheckNow(c.Request.Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrStopped) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// bindOptionalJSON accepts an empty body and rejects malformed JSON
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrParseFailure):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "code": "need_more_detail"})
	case errors.Is(err, usecase.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Reminder not found"})
	case errors.Is(err, usecase.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, usecase.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
