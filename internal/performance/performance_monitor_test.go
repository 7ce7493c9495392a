package performance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPerformanceMonitorCreation(t *testing.T) {
	logger := zap.NewNop()
	monitor := NewPerformanceMonitor(logger)

	assert.NotNil(t, monitor)
	assert.NotNil(t, monitor.logger)
	assert.False(t, monitor.benchmark)
}

func TestPerformanceMonitorWithBenchmark(t *testing.T) {
	logger := zap.NewNop()
	monitor := NewPerformanceMonitorWithBenchmark(logger, true)

	assert.NotNil(t, monitor)
	assert.True(t, monitor.benchmark)
}

func TestStartSession(t *testing.T) {
	logger := zap.NewNop()
	monitor := NewPerformanceMonitor(logger)

	timer := monitor.StartSession("job-42")
	assert.NotNil(t, timer)
	assert.Equal(t, "job-42", timer.JobID)
	assert.False(t, timer.StartTime.IsZero())
	assert.False(t, timer.Completed)
	assert.Equal(t, 0, timer.Attempts)
}

func TestEndSessionUpdatesMetrics(t *testing.T) {
	logger := zap.NewNop()
	monitor := NewPerformanceMonitor(logger)

	// Start and end a completed session
	timer := monitor.StartSession("job-1")
	time.Sleep(10 * time.Millisecond) // Small delay to measure
	timer.Attempts = 3
	timer.Completed = true
	timer.Strategy = "word_level"
	timer.Segments = 4
	monitor.EndSession(timer)

	// Check metrics were updated
	metrics := monitor.GetMetrics()
	assert.Equal(t, int64(1), metrics.TotalSessions)
	assert.Equal(t, int64(1), metrics.CompletedSessions)
	assert.Equal(t, int64(0), metrics.FailedSessions)
	assert.Equal(t, int64(3), metrics.TotalAttempts)
	assert.Equal(t, int64(4), metrics.TotalSegments)
	assert.True(t, metrics.TotalWaitTime > 0)
	assert.Equal(t, "job-1", metrics.LastJobID)
	assert.Equal(t, "word_level", metrics.LastStrategy)
	assert.True(t, metrics.LastCompleted)
}

func TestEndSessionWithFailure(t *testing.T) {
	logger := zap.NewNop()
	monitor := NewPerformanceMonitor(logger)

	// Start and end a failed session
	timer := monitor.StartSession("job-2")
	time.Sleep(10 * time.Millisecond)
	timer.Attempts = 360
	timer.Completed = false
	monitor.EndSession(timer)

	metrics := monitor.GetMetrics()
	assert.Equal(t, int64(1), metrics.TotalSessions)
	assert.Equal(t, int64(0), metrics.CompletedSessions)
	assert.Equal(t, int64(1), metrics.FailedSessions)
	assert.Equal(t, int64(0), metrics.TotalSegments)
	assert.False(t, metrics.LastCompleted)
	assert.Equal(t, 360, metrics.LastAttempts)
}

func TestMultipleSessions(t *testing.T) {
	logger := zap.NewNop()
	monitor := NewPerformanceMonitor(logger)

	// Simulate multiple sessions with alternating outcomes
	for i := 0; i < 5; i++ {
		timer := monitor.StartSession("job")
		time.Sleep(time.Duration(i+1) * time.Millisecond)
		timer.Attempts = i + 1
		timer.Completed = i%2 == 0
		if timer.Completed {
			timer.Strategy = "token_tags"
			timer.Segments = 2
		}
		monitor.EndSession(timer)
	}

	metrics := monitor.GetMetrics()
	assert.Equal(t, int64(5), metrics.TotalSessions)
	assert.Equal(t, int64(3), metrics.CompletedSessions) // 0, 2, 4
	assert.Equal(t, int64(2), metrics.FailedSessions)    // 1, 3
	assert.Equal(t, int64(15), metrics.TotalAttempts)
	assert.True(t, metrics.AvgWaitTime > 0)
	assert.True(t, metrics.MaxWaitTime >= metrics.MinWaitTime)
}

func TestGetPerformanceSummary(t *testing.T) {
	logger := zap.NewNop()
	monitor := NewPerformanceMonitor(logger)

	// Empty metrics
	summary := monitor.GetPerformanceSummary()
	assert.Contains(t, summary, "No polling session metrics available")

	// Add a completed session
	timer := monitor.StartSession("job-1")
	time.Sleep(1 * time.Millisecond)
	timer.Attempts = 2
	timer.Completed = true
	timer.Strategy = "word_level"
	timer.Segments = 3
	monitor.EndSession(timer)

	summary = monitor.GetPerformanceSummary()
	assert.Contains(t, summary, "Polling Session Summary")
	assert.Contains(t, summary, "Total Sessions: 1")
	assert.Contains(t, summary, "Completion Rate:")
	assert.Contains(t, summary, "Total Segments Reconstructed: 3")
}

func TestStrategyBreakdown(t *testing.T) {
	logger := zap.NewNop()
	monitor := NewPerformanceMonitor(logger)

	// Empty breakdown
	breakdown := monitor.StrategyBreakdown()
	assert.Contains(t, breakdown, "Insufficient data")

	// Add sessions using different strategies
	timer1 := monitor.StartSession("job-1")
	time.Sleep(1 * time.Millisecond)
	timer1.Attempts = 1
	timer1.Completed = true
	timer1.Strategy = "word_level"
	timer1.Segments = 2
	monitor.EndSession(timer1)

	timer2 := monitor.StartSession("job-2")
	time.Sleep(1 * time.Millisecond)
	timer2.Attempts = 1
	timer2.Completed = true
	timer2.Strategy = "proportional"
	timer2.Segments = 1
	monitor.EndSession(timer2)

	breakdown = monitor.StrategyBreakdown()
	assert.Contains(t, breakdown, "Reconstruction Strategy Breakdown")
	assert.Contains(t, breakdown, "word_level: 1")
	assert.Contains(t, breakdown, "proportional: 1")
	assert.Contains(t, breakdown, "50.0% of completed")
}

func TestResetMetrics(t *testing.T) {
	logger := zap.NewNop()
	monitor := NewPerformanceMonitor(logger)

	// Add a session
	timer := monitor.StartSession("job-1")
	time.Sleep(1 * time.Millisecond)
	timer.Attempts = 1
	timer.Completed = true
	timer.Strategy = "word_level"
	monitor.EndSession(timer)

	// Verify metrics exist
	metrics := monitor.GetMetrics()
	assert.Equal(t, int64(1), metrics.TotalSessions)

	// Reset metrics
	monitor.ResetMetrics()

	// Verify metrics are reset
	metrics = monitor.GetMetrics()
	assert.Equal(t, int64(0), metrics.TotalSessions)
	assert.Equal(t, int64(0), metrics.TotalAttempts)
	assert.Equal(t, time.Hour, metrics.MinWaitTime)
	assert.Contains(t, monitor.StrategyBreakdown(), "Insufficient data")
}

func TestBenchmarkMode(t *testing.T) {
	logger := zap.NewNop()
	monitor := NewPerformanceMonitor(logger)

	assert.False(t, monitor.benchmark)

	monitor.BenchmarkMode(true)
	assert.True(t, monitor.benchmark)

	monitor.BenchmarkMode(false)
	assert.False(t, monitor.benchmark)
}

func TestLogCurrentMetrics(t *testing.T) {
	logger := zap.NewNop()
	monitor := NewPerformanceMonitor(logger)

	// This should not panic
	monitor.LogCurrentMetrics()

	// Add some metrics and log again
	timer := monitor.StartSession("job-1")
	time.Sleep(1 * time.Millisecond)
	timer.Attempts = 1
	timer.Completed = true
	monitor.EndSession(timer)

	// This should also not panic
	monitor.LogCurrentMetrics()
}
