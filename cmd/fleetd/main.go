package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/printdesk/fleet/internal/api"
	"github.com/printdesk/fleet/internal/api/handlers"
	"github.com/printdesk/fleet/internal/config"
	"github.com/printdesk/fleet/internal/core"
	"github.com/printdesk/fleet/internal/db"
	"github.com/printdesk/fleet/internal/telemetry"
	"github.com/printdesk/fleet/internal/webhook"
)

const defaultConfigPath = "config.yaml"

// multiSink fans events out to every configured sink.
type multiSink []core.EventSink

func (m multiSink) JobEvent(event string, job core.Job) {
	for _, s := range m {
		s.JobEvent(event, job)
	}
}

func (m multiSink) PrinterStatusChanged(printerID string, old, new core.PrinterStatus, reason string) {
	for _, s := range m {
		s.PrinterStatusChanged(printerID, old, new, reason)
	}
}

func (m multiSink) AlertRaised(alert core.Alert) {
	for _, s := range m {
		s.AlertRaised(alert)
	}
}

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := db.Init(db.Config{Path: cfg.Database.Path}); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	store := db.NewStore()
	defer store.Close()

	hub := handlers.NewEventHub()
	sender := webhook.NewSender(cfg.Webhooks)
	sink := multiSink{sender, hub}

	registry := core.NewRegistry(sink, store)
	lifecycle := core.NewLifecycleManager(registry, sink, store, store, cfg.Scheduler.FaultRetryBudget)
	estimator := core.NewEstimator(core.ServiceTimes{
		PerPage:         cfg.Scheduler.PerPageTime,
		ColorMultiplier: cfg.Scheduler.ColorMultiplier,
		Setup:           cfg.Scheduler.JobSetupTime,
	}, lifecycle)
	lifecycle.SetEstimator(estimator)
	dispatcher := core.NewDispatcher(registry, lifecycle, estimator)
	monitor := core.NewAlertMonitor(registry, lifecycle, sink, store, core.AlertThresholds{
		LowPaperRatio:      cfg.Alerts.LowPaperRatio,
		LowInkPercent:      cfg.Alerts.LowInkPercent,
		CriticalInkPercent: cfg.Alerts.CriticalInkPct,
		SLAGrace:           cfg.Alerts.SLAGrace,
		SLACritical:        cfg.Alerts.SLACritical,
	}, cfg.Alerts.ScanInterval)
	overrides := core.NewOverrideController(registry, lifecycle, dispatcher, store)

	if err := restoreState(store, registry, lifecycle, monitor); err != nil {
		log.Fatalf("Failed to restore state: %v", err)
	}

	sender.Start()
	defer sender.Stop()

	monitor.Start()
	defer monitor.Stop()

	var subscriber *telemetry.Subscriber
	if cfg.Telemetry.Enabled {
		subscriber = telemetry.NewSubscriber(cfg.Telemetry, registry)
		if err := subscriber.Start(); err != nil {
			log.Printf("MQTT telemetry unavailable: %v", err)
			subscriber = nil
		} else {
			defer subscriber.Stop()
		}
	}

	router := api.SetupRouter(api.Deps{
		Config:     cfg,
		Registry:   registry,
		Lifecycle:  lifecycle,
		Estimator:  estimator,
		Dispatcher: dispatcher,
		Monitor:    monitor,
		Overrides:  overrides,
		Hub:        hub,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Fleet server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Printf("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
}

// restoreState loads persisted printers, jobs and alerts so the engine
// resumes where the previous process stopped.
func restoreState(store *db.Store, registry *core.Registry, lifecycle *core.LifecycleManager, monitor *core.AlertMonitor) error {
	printers, err := store.LoadPrinters()
	if err != nil {
		return fmt.Errorf("load printers: %w", err)
	}
	for _, p := range printers {
		registry.Load(p)
	}

	jobs, err := store.LoadJobs()
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}
	for _, j := range jobs {
		lifecycle.Load(j)
	}

	alerts, err := store.LoadAlerts()
	if err != nil {
		return fmt.Errorf("load alerts: %w", err)
	}
	for _, a := range alerts {
		monitor.Load(a)
	}

	log.Printf("Restored %d printers, %d jobs, %d alerts", len(printers), len(jobs), len(alerts))
	return nil
}
