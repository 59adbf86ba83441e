package api

import (
	"net/http"
	"sync"

	"voicelog-backend/internal/reminder/usecase"

	"github.com/gin-gonic/gin"
)

// RuntimeSettings holds settings that can change without a restart
type RuntimeSettings struct {
	DefaultSnoozeMinutes int `json:"default_snooze_minutes"`
}

// SettingsStore guards the runtime settings
type SettingsStore struct {
	mu       sync.RWMutex
	settings RuntimeSettings
}

// NewSettingsStore seeds the runtime settings from static config
func NewSettingsStore(defaultSnoozeMinutes int) *SettingsStore {
	return &SettingsStore{settings: RuntimeSettings{DefaultSnoozeMinutes: defaultSnoozeMinutes}}
}

// DefaultSnoozeMinutes returns the current default snooze length
func (s *SettingsStore) DefaultSnoozeMinutes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.DefaultSnoozeMinutes
}

func (s *SettingsStore) snapshot() RuntimeSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSnoozeSettingsRequest represents the request body for updating snooze settings
type UpdateSnoozeSettingsRequest struct {
	DefaultSnoozeMinutes int `json:"default_snooze_minutes" binding:"required"`
}

// GetSnoozeSettings returns the current snooze configuration
// GET /api/settings/snooze
func (s *SettingsStore) GetSnoozeSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.snapshot())
}

// UpdateSnoozeSettings changes the default snooze length at runtime
// PUT /api/settings/snooze
func (s *SettingsStore) UpdateSnoozeSettings(c *gin.Context) {
	var req UpdateSnoozeSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DefaultSnoozeMinutes < 1 || req.DefaultSnoozeMinutes > usecase.MaxSnoozeMinutes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "default_snooze_minutes must be between 1 and 1440"})
		return
	}

	s.mu.Lock()
	s.settings.DefaultSnoozeMinutes = req.DefaultSnoozeMinutes
	s.mu.Unlock()

	c.JSON(http.StatusOK, s.snapshot())
}
