package performance

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionMetrics tracks polling session performance metrics
type SessionMetrics struct {
	TotalSessions     int64
	CompletedSessions int64
	FailedSessions    int64
	TotalAttempts     int64
	TotalWaitTime     time.Duration
	AvgWaitTime       time.Duration
	MinWaitTime       time.Duration
	MaxWaitTime       time.Duration
	TotalSegments     int64
	LastJobID         string
	LastStrategy      string
	LastAttempts      int
	LastWaitTime      time.Duration
	LastCompleted     bool
	LastTimestamp     time.Time
}

// SessionTimer tracks timing for an individual polling session
type SessionTimer struct {
	StartTime time.Time
	JobID     string
	Attempts  int
	Completed bool
	Strategy  string
	Segments  int
	WaitTime  time.Duration
}

// PerformanceMonitor handles performance tracking and reporting
type PerformanceMonitor struct {
	logger     *zap.Logger
	metrics    SessionMetrics
	strategies map[string]int64
	mu         sync.RWMutex
	benchmark  bool
}

// NewPerformanceMonitor creates a new performance monitor
func NewPerformanceMonitor(logger *zap.Logger) *PerformanceMonitor {
	return &PerformanceMonitor{
		logger: logger,
		metrics: SessionMetrics{
			MinWaitTime:   time.Hour, // Initialize to large value
			LastTimestamp: time.Now(),
		},
		strategies: make(map[string]int64),
	}
}

// NewPerformanceMonitorWithBenchmark creates a performance monitor with benchmarking enabled
func NewPerformanceMonitorWithBenchmark(logger *zap.Logger, benchmark bool) *PerformanceMonitor {
	return &PerformanceMonitor{
		logger: logger,
		metrics: SessionMetrics{
			MinWaitTime:   time.Hour,
			LastTimestamp: time.Now(),
		},
		strategies: make(map[string]int64),
		benchmark:  benchmark,
	}
}

// StartSession begins timing a polling session for one job
func (pm *PerformanceMonitor) StartSession(jobID string) *SessionTimer {
	return &SessionTimer{
		StartTime: time.Now(),
		JobID:     jobID,
	}
}

// EndSession completes timing and updates metrics. The caller fills in
// the attempt count, outcome, strategy and segment count first.
func (pm *PerformanceMonitor) EndSession(timer *SessionTimer) {
	timer.WaitTime = time.Since(timer.StartTime)

	pm.mu.Lock()
	defer pm.mu.Unlock()

	// Update basic metrics
	pm.metrics.TotalSessions++
	pm.metrics.TotalAttempts += int64(timer.Attempts)
	pm.metrics.TotalWaitTime += timer.WaitTime
	pm.metrics.LastJobID = timer.JobID
	pm.metrics.LastStrategy = timer.Strategy
	pm.metrics.LastAttempts = timer.Attempts
	pm.metrics.LastWaitTime = timer.WaitTime
	pm.metrics.LastCompleted = timer.Completed
	pm.metrics.LastTimestamp = time.Now()

	// Update outcome counters
	if timer.Completed {
		pm.metrics.CompletedSessions++
		pm.metrics.TotalSegments += int64(timer.Segments)
		if timer.Strategy != "" {
			pm.strategies[timer.Strategy]++
		}
	} else {
		pm.metrics.FailedSessions++
	}

	// Update timing statistics
	if timer.WaitTime < pm.metrics.MinWaitTime {
		pm.metrics.MinWaitTime = timer.WaitTime
	}
	if timer.WaitTime > pm.metrics.MaxWaitTime {
		pm.metrics.MaxWaitTime = timer.WaitTime
	}

	// Calculate average
	pm.metrics.AvgWaitTime = time.Duration(
		int64(pm.metrics.TotalWaitTime) / pm.metrics.TotalSessions,
	)

	// Log if benchmarking is enabled
	if pm.benchmark {
		pm.logger.Info("polling session performance",
			zap.String("job_id", timer.JobID),
			zap.Bool("completed", timer.Completed),
			zap.String("strategy", timer.Strategy),
			zap.Int("attempts", timer.Attempts),
			zap.Int("segments", timer.Segments),
			zap.Duration("wait_time", timer.WaitTime),
		)
	}
}

// GetMetrics returns a copy of current metrics
func (pm *PerformanceMonitor) GetMetrics() SessionMetrics {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return pm.metrics
}

// GetPerformanceSummary returns a formatted summary of session metrics
func (pm *PerformanceMonitor) GetPerformanceSummary() string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if pm.metrics.TotalSessions == 0 {
		return "No polling session metrics available"
	}

	completionPercent := float64(pm.metrics.CompletedSessions) / float64(pm.metrics.TotalSessions) * 100
	avgAttempts := float64(pm.metrics.TotalAttempts) / float64(pm.metrics.TotalSessions)

	summary := fmt.Sprintf(
		"Polling Session Summary:\n"+
			"  Total Sessions: %d\n"+
			"  Completion Rate: %.1f%% (%d completed, %d failed)\n"+
			"  Avg Wait Time: %v\n"+
			"  Min/Max Wait Time: %v / %v\n"+
			"  Avg Attempts per Session: %.1f\n"+
			"  Total Segments Reconstructed: %d\n",
		pm.metrics.TotalSessions,
		completionPercent,
		pm.metrics.CompletedSessions,
		pm.metrics.FailedSessions,
		pm.metrics.AvgWaitTime,
		pm.metrics.MinWaitTime,
		pm.metrics.MaxWaitTime,
		avgAttempts,
		pm.metrics.TotalSegments,
	)

	return summary
}

// StrategyBreakdown returns how often each reconstruction strategy produced
// the final transcript segments
func (pm *PerformanceMonitor) StrategyBreakdown() string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if pm.metrics.CompletedSessions == 0 || len(pm.strategies) == 0 {
		return "Insufficient data for strategy breakdown"
	}

	names := make([]string, 0, len(pm.strategies))
	for name := range pm.strategies {
		names = append(names, name)
	}
	sort.Strings(names)

	breakdown := "Reconstruction Strategy Breakdown:\n"
	for _, name := range names {
		count := pm.strategies[name]
		percent := float64(count) / float64(pm.metrics.CompletedSessions) * 100
		breakdown += fmt.Sprintf("  %s: %d (%.1f%% of completed)\n", name, count, percent)
	}

	return breakdown
}

// ResetMetrics clears all accumulated metrics
func (pm *PerformanceMonitor) ResetMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.metrics = SessionMetrics{
		MinWaitTime:   time.Hour,
		LastTimestamp: time.Now(),
	}
	pm.strategies = make(map[string]int64)

	pm.logger.Info("performance metrics reset")
}

// BenchmarkMode enables or disables detailed benchmark logging
func (pm *PerformanceMonitor) BenchmarkMode(enabled bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.benchmark = enabled
	pm.logger.Info("benchmark mode", zap.Bool("enabled", enabled))
}

// LogCurrentMetrics logs the current session metrics
func (pm *PerformanceMonitor) LogCurrentMetrics() {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	pm.logger.Info("current session metrics",
		zap.Int64("total_sessions", pm.metrics.TotalSessions),
		zap.Int64("completed_sessions", pm.metrics.CompletedSessions),
		zap.Int64("failed_sessions", pm.metrics.FailedSessions),
		zap.Duration("avg_wait_time", pm.metrics.AvgWaitTime),
		zap.Duration("last_wait_time", pm.metrics.LastWaitTime),
		zap.String("last_job_id", pm.metrics.LastJobID),
		zap.String("last_strategy", pm.metrics.LastStrategy),
		zap.Int("last_attempts", pm.metrics.LastAttempts),
	)
}
