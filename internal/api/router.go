package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/printdesk/fleet/internal/api/handlers"
	"github.com/printdesk/fleet/internal/api/middleware"
	"github.com/printdesk/fleet/internal/config"
	"github.com/printdesk/fleet/internal/core"
)

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Config     *config.Config
	Registry   *core.Registry
	Lifecycle  *core.LifecycleManager
	Estimator  *core.Estimator
	Dispatcher *core.Dispatcher
	Monitor    *core.AlertMonitor
	Overrides  *core.OverrideController
	Hub        *handlers.EventHub
}

// SetupRouter configures the HTTP router.
func SetupRouter(d Deps) *gin.Engine {
	r := gin.Default()

	auth := middleware.NewAuthMiddleware(d.Config.Auth.JWTSecret, d.Config.Auth.TokenDuration)
	printers := handlers.NewPrinterHandler(d.Registry, d.Lifecycle, d.Estimator, d.Overrides)
	jobs := handlers.NewJobHandler(d.Dispatcher, d.Lifecycle)
	alerts := handlers.NewAlertHandler(d.Monitor)
	dashboard := handlers.NewDashboardHandler(d.Registry, d.Lifecycle, d.Estimator, d.Monitor)
	activity := handlers.NewActivityHandler()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		// Supervisor auth
		v1.POST("/supervisor/signup", auth.Signup)
		v1.POST("/supervisor/signin", auth.Signin)

		// Printer agents report results and telemetry without a
		// supervisor token.
		v1.POST("/printers/:id/telemetry", printers.Telemetry)
		v1.POST("/printers/:id/events/complete", jobs.PrintComplete)
		v1.POST("/printers/:id/events/fault", jobs.PrintFault)

		// Jobs
		v1.POST("/jobs", jobs.Create)
		v1.GET("/jobs", jobs.List)
		v1.GET("/jobs/:id", jobs.Get)

		// Fleet state, readable without auth
		v1.GET("/printers", printers.List)
		v1.GET("/printers/:id", printers.Get)
		v1.GET("/printers/:id/queue", printers.GetQueue)

		// Dashboard push channel
		v1.GET("/events/ws", d.Hub.HandleWS)

		// Supervisor operations
		sup := v1.Group("/")
		sup.Use(auth.RequireAuth())
		{
			sup.POST("printers", printers.Create)
			sup.DELETE("printers/:id", printers.Delete)
			sup.PUT("printers/:id/status", printers.UpdateStatus)
			sup.POST("printers/:id/pause", printers.Pause)
			sup.POST("printers/:id/resume", printers.Resume)
			sup.POST("printers/:id/cancel-current", printers.CancelCurrentJob)
			sup.POST("printers/:id/queue/move", printers.MoveQueue)
			sup.POST("printers/:id/test-print", printers.TestPrint)

			sup.POST("jobs/:id/cancel", jobs.Cancel)
			sup.POST("jobs/:id/binding-complete", jobs.BindingComplete)
			sup.POST("jobs/:id/deliver", jobs.Deliver)

			sup.GET("alerts", alerts.List)
			sup.GET("alerts/:id", alerts.Get)
			sup.POST("alerts/:id/ack", alerts.Acknowledge)
			sup.POST("alerts/:id/fix", alerts.Fix)
			sup.POST("alerts/:id/mute", alerts.Mute)

			sup.GET("dashboard", dashboard.Get)
			sup.GET("activity", activity.List)
		}
	}

	return r
}
