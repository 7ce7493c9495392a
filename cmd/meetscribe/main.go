package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"meetscribe/internal/app"
	"meetscribe/internal/backend"
	"meetscribe/internal/transcript"
)

const appVersion = "1.0.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "meetscribe",
	Short: "Meeting transcription polling and speaker attribution",
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		reconstructCmd(),
		healthCmd(),
		versionCmd(),
	)
}

func serveCmd() *cobra.Command {
	var jobs []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll transcription jobs until they finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(jobs)
		},
	}

	cmd.Flags().StringSliceVar(&jobs, "jobs", nil, "job ids to poll, overriding JOB_IDS")

	return cmd
}

// runServe contains the core application logic that can be tested
func runServe(jobs []string) error {
	// Create structured logger for main
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("meetscribe starting up",
		zap.String("component", "main"),
		zap.String("version", appVersion))

	// Create application instance using orchestrator
	application, err := app.NewApplication()
	if err != nil {
		logger.Error("failed to create application",
			zap.Error(err),
			zap.String("component", "main"))
		return fmt.Errorf("failed to create application: %w", err)
	}

	if len(jobs) > 0 {
		application.OverrideJobIDs(jobs)
	}

	// Set up context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal",
			zap.String("signal", sig.String()),
			zap.String("component", "main"))
		cancel()
	}()

	if err := application.Run(ctx); err != nil {
		logger.Error("application runtime error",
			zap.Error(err),
			zap.String("component", "main"))
		return fmt.Errorf("application runtime error: %w", err)
	}

	if err := application.Shutdown(); err != nil {
		logger.Error("error during application shutdown",
			zap.Error(err),
			zap.String("component", "main"))
		return fmt.Errorf("application shutdown error: %w", err)
	}

	logger.Info("meetscribe stopped successfully",
		zap.String("component", "main"))
	return nil
}

func reconstructCmd() *cobra.Command {
	var mergeGap float64

	cmd := &cobra.Command{
		Use:   "reconstruct <payload.json>",
		Short: "Rebuild speaker segments from a saved job payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconstruct(cmd, args[0], mergeGap)
		},
	}

	cmd.Flags().Float64Var(&mergeGap, "merge-gap", transcript.DefaultMergeGap,
		"largest pause in seconds merged into one speaker turn")

	return cmd
}

func runReconstruct(cmd *cobra.Command, path string, mergeGap float64) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read payload file: %w", err)
	}

	var payload backend.StatusPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to parse payload file: %w", err)
	}
	result := payload.Normalize()

	reconstructor := transcript.NewReconstructorWithSettings(zap.NewNop(), mergeGap,
		transcript.DefaultMinRatio, transcript.DefaultMaxRatio)
	segments := reconstructor.Reconstruct(transcript.ReconstructionInput{
		Tokens:     result.Tokens,
		Timelines:  result.Timelines,
		Names:      result.Names,
		Transcript: result.Transcript,
	})
	if len(segments) == 0 {
		return fmt.Errorf("payload carries no attribution data")
	}

	out := cmd.OutOrStdout()
	for _, seg := range segments {
		fmt.Fprintf(out, "[%s - %s] %s: %s\n",
			formatClock(seg.Start), formatClock(seg.End), seg.SpeakerName, seg.Text)
	}
	return nil
}

// formatClock renders a position in seconds as m:ss.s for transcript output
func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	mins := int(seconds) / 60
	return fmt.Sprintf("%d:%04.1f", mins, seconds-float64(mins*60))
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check application health status",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(checkHealth())
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "meetscribe")
			fmt.Fprintf(out, "Version: %s\n", appVersion)
			fmt.Fprintln(out, "Architecture: Go 1.24 + SQLite + Prometheus")
		},
	}
}

// checkHealth checks the application health status by reading the health file
func checkHealth() int {
	return checkHealthWithFile("/tmp/meetscribe-health.json")
}

// checkHealthWithFile checks the application health status by reading the specified health file
func checkHealthWithFile(healthFile string) int {
	// Check if health file exists
	if _, err := os.Stat(healthFile); os.IsNotExist(err) {
		fmt.Printf("UNHEALTHY: Health status file not found (%s)\n", healthFile)
		return 1
	}

	// Read health file
	data, err := os.ReadFile(healthFile)
	if err != nil {
		fmt.Printf("UNHEALTHY: Failed to read health file: %v\n", err)
		return 1
	}

	// Parse health status
	var healthStatus map[string]interface{}
	if err := json.Unmarshal(data, &healthStatus); err != nil {
		fmt.Printf("UNHEALTHY: Failed to parse health file: %v\n", err)
		return 1
	}

	// Check if health check timestamp is recent (within last 90 seconds)
	timestampStr, ok := healthStatus["health_check_timestamp"].(string)
	if !ok {
		fmt.Println("UNHEALTHY: Health file missing timestamp")
		return 1
	}

	timestamp, err := time.Parse(time.RFC3339, timestampStr)
	if err != nil {
		fmt.Printf("UNHEALTHY: Invalid timestamp format: %v\n", err)
		return 1
	}

	timeSinceUpdate := time.Since(timestamp)
	if timeSinceUpdate > 90*time.Second {
		fmt.Printf("UNHEALTHY: Health file is stale (last update: %v ago)\n", timeSinceUpdate)
		return 1
	}

	// Check overall health status
	healthy, ok := healthStatus["healthy"].(bool)
	if !ok {
		fmt.Println("UNHEALTHY: Health status missing healthy field")
		return 1
	}

	if !healthy {
		fmt.Println("UNHEALTHY: Application reported unhealthy status")
		fmt.Printf("Health details: %s\n", string(data))
		return 1
	}

	// System is healthy
	fmt.Printf("HEALTHY: Application is functioning normally (last check: %v ago)\n", timeSinceUpdate)
	return 0
}
