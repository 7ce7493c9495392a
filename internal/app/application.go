package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"meetscribe/internal/backend"
	"meetscribe/internal/config"
	"meetscribe/internal/logger"
	"meetscribe/internal/metrics"
	"meetscribe/internal/output"
	"meetscribe/internal/performance"
	"meetscribe/internal/poller"
	"meetscribe/internal/store"
	"meetscribe/internal/transcript"
)

// PipelineHealth tracks the health status of the transcription pipeline
type PipelineHealth struct {
	mu                  sync.RWMutex
	storeActive         bool
	metricsServerActive bool
	lastCompletionTime  time.Time
	lastFailureTime     time.Time
	totalCompletions    int64
	totalFailures       int64
	totalSegments       int64
}

// Application represents the main meetscribe application orchestrator
type Application struct {
	config         *config.Configuration
	zapLogger      *zap.Logger
	registry       *prometheus.Registry
	metrics        *metrics.Metrics
	store          *store.SQLiteStore
	client         *backend.Client
	jobPoller      *poller.Poller
	writer         *output.TranscriptWriter
	perfMonitor    *performance.PerformanceMonitor
	metricsServer  *http.Server
	pipelineHealth *PipelineHealth
}

// NewApplication creates a new application instance with all components initialized
func NewApplication() (*Application, error) {
	// Load configuration from config file if CONFIG_PATH is set, otherwise use environment variables
	var cfg *config.Configuration
	var err error

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		cfg, err = config.NewConfigurationFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.NewConfigurationFromEnv()
		if err != nil {
			return nil, fmt.Errorf("failed to load config from environment: %w", err)
		}
	}

	// Create zap logger - centralized structured logging, verbose in debug mode
	zapLogger := logger.NewLoggerWithDebug(cfg.GetDebugMode())

	return NewApplicationWithConfig(cfg, zapLogger)
}

// NewApplicationWithConfig creates a new application instance from an
// already loaded configuration
func NewApplicationWithConfig(cfg *config.Configuration, zapLogger *zap.Logger) (*Application, error) {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}

	// Create metrics on a private registry so the application owns its
	// metrics endpoint
	registry := prometheus.NewRegistry()
	appMetrics := metrics.NewMetricsWith(registry)

	// Create transcript store
	transcriptStore, err := store.NewSQLiteStoreWithLogger(cfg.GetStoreDBPath(), zapLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript store: %w", err)
	}

	// Create backend client component
	client, err := backend.NewClient(backend.Config{
		BaseURL: cfg.GetBackendBaseURL(),
		APIKey:  cfg.GetBackendAPIKey(),
		Timeout: cfg.GetBackendRequestTimeout(),
	}, zapLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	// Create reconstruction pipeline with configured thresholds
	reconstructor := transcript.NewReconstructorWithSettings(
		zapLogger,
		cfg.GetMergeGapSec(),
		cfg.GetValidationMinRatio(),
		cfg.GetValidationMaxRatio(),
	)
	reconstructor.OnValidationFailure(appMetrics.RecordValidationFailure)

	// Create job poller component
	jobPoller := poller.NewPollerWithConfig(client, reconstructor, zapLogger, poller.Config{
		Interval:         cfg.GetPollInterval(),
		MaxAttempts:      cfg.GetMaxPollAttempts(),
		BackstopMinChars: cfg.GetBackstopMinChars(),
	})
	jobPoller.SetTranscriptSource(client)
	jobPoller.SetMetrics(appMetrics)

	// Track per-session wait times, with verbose logging in debug mode
	perfMonitor := performance.NewPerformanceMonitorWithBenchmark(zapLogger, cfg.GetDebugMode())
	jobPoller.SetPerformanceMonitor(perfMonitor)

	// Create transcript output writer
	outputPath := cfg.GetOutputPath()
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	outputFile, err := os.OpenFile(outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	writer := output.NewTranscriptWriter(outputFile, zapLogger)

	app := &Application{
		config:         cfg,
		zapLogger:      zapLogger,
		registry:       registry,
		metrics:        appMetrics,
		store:          transcriptStore,
		client:         client,
		jobPoller:      jobPoller,
		writer:         writer,
		perfMonitor:    perfMonitor,
		pipelineHealth: &PipelineHealth{},
	}
	app.updateStoreHealth(true)

	jobPoller.OnComplete(app.handleCompletion)
	jobPoller.OnError(app.handleFailure)

	return app, nil
}

// OverrideJobIDs replaces the configured job ids, typically from
// command line flags. Must be called before Run.
func (app *Application) OverrideJobIDs(ids []string) {
	app.config.SetJobIDs(ids)
}

// Run starts the application: the metrics endpoint, the heartbeat and
// one poll loop per configured job. It returns when the context is
// cancelled or, when jobs were configured, once all of them finished.
func (app *Application) Run(ctx context.Context) error {
	app.zapLogger.Info("starting meetscribe application")

	// Check if context is already cancelled
	select {
	case <-ctx.Done():
		app.zapLogger.Info("context cancelled before startup, shutting down immediately")
		return nil
	default:
	}

	if err := app.startPipeline(ctx); err != nil {
		app.zapLogger.Error("failed to start pipeline", zap.Error(err))
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	jobIDs := app.config.GetJobIDs()
	if len(jobIDs) == 0 {
		app.zapLogger.Warn("no jobs configured, waiting for shutdown signal")
		<-ctx.Done()
		app.zapLogger.Info("shutdown signal received, stopping application")
		return nil
	}

	allDone := make(chan struct{})
	go func() {
		app.jobPoller.Wait()
		close(allDone)
	}()

	select {
	case <-ctx.Done():
		app.zapLogger.Info("shutdown signal received, stopping application")
	case <-allDone:
		app.zapLogger.Info("all jobs finished, stopping application",
			zap.Int("jobs", len(jobIDs)))
	}

	return nil
}

// startPipeline starts the metrics server, registers meetings for all
// configured jobs and begins polling them.
func (app *Application) startPipeline(ctx context.Context) error {
	app.zapLogger.Info("starting transcription pipeline",
		zap.Bool("debug_mode", app.config.GetDebugMode()),
		zap.String("backend_base_url", app.config.GetBackendBaseURL()),
		zap.Strings("job_ids", app.config.GetJobIDs()))

	app.startMetricsServer()

	for _, jobID := range app.config.GetJobIDs() {
		if _, err := app.store.CreateMeeting(ctx, jobID, jobID); err != nil {
			app.zapLogger.Error("failed to register meeting",
				zap.String("job_id", jobID),
				zap.Error(err))
		}
	}

	app.jobPoller.Track(ctx, app.config.GetJobIDs()...)

	// Start heartbeat monitoring
	go app.startHeartbeat(ctx)

	app.zapLogger.Info("transcription pipeline started successfully",
		zap.Bool("debug_mode", app.config.GetDebugMode()))
	return nil
}

// startMetricsServer exposes the application's registry on /metrics.
func (app *Application) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}))

	app.metricsServer = &http.Server{
		Addr:    app.config.GetMetricsListenAddr(),
		Handler: mux,
	}
	app.updateMetricsServerHealth(true)

	go func() {
		if err := app.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.updateMetricsServerHealth(false)
			app.zapLogger.Error("metrics server failed", zap.Error(err))
		}
	}()

	app.zapLogger.Info("metrics server listening",
		zap.String("addr", app.config.GetMetricsListenAddr()))
}

// handleCompletion persists and exports one finished job.
func (app *Application) handleCompletion(jobID string, result poller.Completion) {
	ctx := context.Background()

	if err := app.store.SaveTranscript(ctx, jobID, result.Transcript, result.Segments); err != nil {
		app.zapLogger.Error("failed to persist transcript",
			zap.String("job_id", jobID),
			zap.Error(err))
	} else {
		app.metrics.RecordTranscriptSaved()
	}

	if err := app.writer.WriteRecord(output.Record{
		JobID:      jobID,
		Transcript: result.Transcript,
		Segments:   result.Segments,
	}); err != nil {
		app.zapLogger.Error("failed to write transcript record",
			zap.String("job_id", jobID),
			zap.Error(err))
	}

	app.updateCompletionHealth(len(result.Segments))

	if app.config.GetDebugMode() {
		app.zapLogger.Info("📄 TRANSCRIPT READY",
			zap.String("job_id", jobID),
			zap.Int("segments", len(result.Segments)),
			zap.Int("transcript_chars", len(result.Transcript)),
			zap.Int("speaker_matches", len(result.SpeakerMatches)))
	}
}

// handleFailure records one failed or timed out job.
func (app *Application) handleFailure(jobID string, err error) {
	app.updateFailureHealth()

	if app.config.GetDebugMode() {
		app.zapLogger.Info("❌ JOB FAILED",
			zap.String("job_id", jobID),
			zap.Error(err))
	}
}

// updateStoreHealth updates the transcript store health status
func (app *Application) updateStoreHealth(active bool) {
	app.pipelineHealth.mu.Lock()
	defer app.pipelineHealth.mu.Unlock()
	app.pipelineHealth.storeActive = active
}

// updateMetricsServerHealth updates the metrics server health status
func (app *Application) updateMetricsServerHealth(active bool) {
	app.pipelineHealth.mu.Lock()
	defer app.pipelineHealth.mu.Unlock()
	app.pipelineHealth.metricsServerActive = active
}

// updateCompletionHealth records a finished job and its segment count
func (app *Application) updateCompletionHealth(segments int) {
	app.pipelineHealth.mu.Lock()
	defer app.pipelineHealth.mu.Unlock()
	app.pipelineHealth.lastCompletionTime = time.Now()
	app.pipelineHealth.totalCompletions++
	app.pipelineHealth.totalSegments += int64(segments)
}

// updateFailureHealth records a failed job
func (app *Application) updateFailureHealth() {
	app.pipelineHealth.mu.Lock()
	defer app.pipelineHealth.mu.Unlock()
	app.pipelineHealth.lastFailureTime = time.Now()
	app.pipelineHealth.totalFailures++
}

// getPipelineHealthStatus returns current pipeline health status
func (app *Application) getPipelineHealthStatus() map[string]interface{} {
	app.pipelineHealth.mu.RLock()
	defer app.pipelineHealth.mu.RUnlock()

	now := time.Now()
	timeSinceLastCompletion := now.Sub(app.pipelineHealth.lastCompletionTime)
	timeSinceLastFailure := now.Sub(app.pipelineHealth.lastFailureTime)

	return map[string]interface{}{
		"store_active":               app.pipelineHealth.storeActive,
		"metrics_server_active":      app.pipelineHealth.metricsServerActive,
		"active_jobs":                app.jobPoller.ActiveJobs(),
		"last_completion_time":       app.pipelineHealth.lastCompletionTime.Format(time.RFC3339),
		"last_failure_time":          app.pipelineHealth.lastFailureTime.Format(time.RFC3339),
		"time_since_last_completion": timeSinceLastCompletion.String(),
		"time_since_last_failure":    timeSinceLastFailure.String(),
		"total_completions":          app.pipelineHealth.totalCompletions,
		"total_failures":             app.pipelineHealth.totalFailures,
		"total_segments":             app.pipelineHealth.totalSegments,
	}
}

// writeHealthStatusFile writes the current health status to a file for Docker health checks
func (app *Application) writeHealthStatusFile() error {
	healthStatus := app.getPipelineHealthStatus()

	// Add timestamp for health check validation
	healthStatus["health_check_timestamp"] = time.Now().Format(time.RFC3339)
	healthStatus["healthy"] = app.isSystemHealthy(healthStatus)

	// Write to health status file
	healthFile := "/tmp/meetscribe-health.json"

	// Create directory if it doesn't exist
	dir := filepath.Dir(healthFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create health file directory: %w", err)
	}

	// Marshal health status to JSON
	data, err := json.MarshalIndent(healthStatus, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal health status: %w", err)
	}

	// Write health status file atomically
	tempFile := healthFile + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write health file: %w", err)
	}

	if err := os.Rename(tempFile, healthFile); err != nil {
		return fmt.Errorf("failed to rename health file: %w", err)
	}

	return nil
}

// isSystemHealthy determines overall system health based on pipeline status
func (app *Application) isSystemHealthy(healthStatus map[string]interface{}) bool {
	// System is healthy if:
	// 1. The transcript store is open
	// 2. When every configured job has finished, at least one produced a transcript

	storeActive := healthStatus["store_active"].(bool)
	if !storeActive {
		return false
	}

	activeJobs := healthStatus["active_jobs"].(int)
	totalCompletions := healthStatus["total_completions"].(int64)
	totalFailures := healthStatus["total_failures"].(int64)

	if activeJobs == 0 && totalFailures > 0 && totalCompletions == 0 {
		return false
	}

	// Overall system is healthy
	return true
}

// startHeartbeat provides periodic status logging for monitoring with health checks
func (app *Application) startHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			healthStatus := app.getPipelineHealthStatus()

			// Write health status file for Docker health checks
			if err := app.writeHealthStatusFile(); err != nil {
				app.zapLogger.Error("failed to write health status file", zap.Error(err))
			}

			if app.config.GetDebugMode() {
				app.zapLogger.Info("poller heartbeat with health status",
					zap.String("timestamp", time.Now().Format(time.RFC3339)),
					zap.Any("health_status", healthStatus))
				app.perfMonitor.LogCurrentMetrics()
			}

			// Log warnings for potential issues
			if !healthStatus["store_active"].(bool) {
				app.zapLogger.Warn("transcript store inactive")
			}

			if !healthStatus["metrics_server_active"].(bool) {
				app.zapLogger.Warn("metrics server inactive")
			}

			totalFailures := healthStatus["total_failures"].(int64)
			totalCompletions := healthStatus["total_completions"].(int64)
			if healthStatus["active_jobs"].(int) == 0 && totalFailures > 0 && totalCompletions == 0 {
				app.zapLogger.Warn("⚠️ ALL JOBS FAILED: no transcript produced",
					zap.Int64("total_failures", totalFailures))
			}
		}
	}
}

// Shutdown gracefully stops all components in reverse order
func (app *Application) Shutdown() error {
	app.zapLogger.Info("shutting down application components")

	// Stop polling and wait for the loops to exit
	app.jobPoller.StopAll()
	app.jobPoller.Wait()

	// Stop the metrics server
	if app.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.metricsServer.Shutdown(shutdownCtx); err != nil {
			app.zapLogger.Error("error shutting down metrics server", zap.Error(err))
		}
		app.updateMetricsServerHealth(false)
	}

	// Close transcript writer
	if err := app.writer.Close(); err != nil {
		app.zapLogger.Error("error closing transcript writer", zap.Error(err))
	}

	// Close transcript store
	if err := app.store.Close(); err != nil {
		app.zapLogger.Error("error closing transcript store", zap.Error(err))
	}
	app.updateStoreHealth(false)

	app.zapLogger.Info("application shutdown completed",
		zap.String("session_summary", app.perfMonitor.GetPerformanceSummary()))
	return nil
}
