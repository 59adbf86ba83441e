package delivery

import (
	"errors"
	"net/http"

	"voicelog-backend/internal/push/domain"
	"voicelog-backend/internal/push/repository"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// PushHandler handles push subscription HTTP requests
type PushHandler struct {
	repo           repository.SubscriptionRepository
	vapidPublicKey string
	log            zerolog.Logger
}

// NewPushHandler creates a new PushHandler
func NewPushHandler(repo repository.SubscriptionRepository, vapidPublicKey string, log zerolog.Logger) *PushHandler {
	return &PushHandler{
		repo:           repo,
		vapidPublicKey: vapidPublicKey,
		log:            log.With().Str("component", "push").Logger(),
	}
}

// SubscribeRequest mirrors the browser PushSubscription JSON
type SubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// RegisterFCMRequest is the request body for registering a Firebase token
type RegisterFCMRequest struct {
	Token string `json:"token" binding:"required"`
}

// UnsubscribeRequest identifies the subscription to remove
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// GetVAPIDPublicKey returns the application server key browsers subscribe with
// GET /api/push/vapid-public-key
func (h *PushHandler) GetVAPIDPublicKey(c *gin.Context) {
	if h.vapidPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Web push is not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.vapidPublicKey})
}

// Subscribe registers a web push subscription
// POST /api/push/subscribe
func (h *PushHandler) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := domain.NewWebPushSubscription(req.Endpoint, req.Keys.P256dh, req.Keys.Auth, c.Request.UserAgent())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.save(c, sub)
}

// RegisterFCMToken registers a Firebase device token
// POST /api/push/fcm
func (h *PushHandler) RegisterFCMToken(c *gin.Context) {
	var req RegisterFCMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := domain.NewFCMSubscription(req.Token, c.Request.UserAgent())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.save(c, sub)
}

// Unsubscribe removes a subscription by endpoint
// DELETE /api/push/subscribe
func (h *PushHandler) Unsubscribe(c *gin.Context) {
	var req UnsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	removed, err := h.repo.Delete(c.Request.Context(), req.Endpoint)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to delete subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Unsubscribed"})
}

func (h *PushHandler) save(c *gin.Context, sub *domain.Subscription) {
	if err := h.repo.Save(c.Request.Context(), sub); err != nil {
		if errors.Is(err, domain.ErrInvalidSubscription) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Error().Err(err).Str("provider", string(sub.Provider)).Msg("failed to save subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.log.Info().Str("provider", string(sub.Provider)).Msg("push subscription registered")
	c.JSON(http.StatusCreated, sub)
}
