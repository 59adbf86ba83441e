package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(r *gin.Engine, deps Dependencies) {
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	{
		// Health check
		api.GET("/health", func(c *gin.Context) {
			body := gin.H{"status": "ok", "live_clients": deps.SSE.Len()}
			if deps.Store != nil {
				body["store"] = deps.Store.Health()
			}
			c.JSON(http.StatusOK, body)
		})

		// SSE endpoint
		api.GET("/events", deps.SSE.ServeHTTP)

		reminders := api.Group("/reminders")
		{
			reminders.GET("", deps.Reminders.GetReminders)
			reminders.POST("", deps.Reminders.CreateReminder)
			reminders.POST("/parse", deps.Reminders.ParseReminder)
			reminders.GET("/:id", deps.Reminders.GetReminderByID)
			reminders.PUT("/:id", deps.Reminders.UpdateReminder)
			reminders.DELETE("/:id", deps.Reminders.DeleteReminder)
			reminders.POST("/:id/dismiss", deps.Reminders.DismissReminder)
			reminders.POST("/:id/snooze", deps.Reminders.SnoozeReminder)
		}

		api.POST("/monitor/check", deps.Reminders.CheckNow)

		push := api.Group("/push")
		{
			push.GET("/vapid-public-key", deps.Push.GetVAPIDPublicKey)
			push.POST("/subscribe", deps.Push.Subscribe)
			push.DELETE("/subscribe", deps.Push.Unsubscribe)
			push.POST("/fcm", deps.Push.RegisterFCMToken)
		}

		// Settings routes - runtime configuration
		if deps.Settings != nil {
			settings := api.Group("/settings")
			{
				settings.GET("/snooze", deps.Settings.GetSnoozeSettings)
				settings.PUT("/snooze", deps.Settings.UpdateSnoozeSettings)
			}
		}
	}
}
