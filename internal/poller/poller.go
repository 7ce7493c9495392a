package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"meetscribe/internal/backend"
	"meetscribe/internal/metrics"
	"meetscribe/internal/performance"
	"meetscribe/internal/transcript"
)

// job is the owned state machine for one tracked job id. Only its own
// poll goroutine mutates the state; everyone else reads snapshots
// through the poller mutex.
type job struct {
	id         string
	cancel     context.CancelFunc
	cancelled  atomic.Bool
	state      PollState
	lastResult backend.JobResult
	timer      *performance.SessionTimer
}

// Poller drives status queries for registered jobs, one goroutine per
// job id, and hands terminal results to the reconstruction pipeline.
// Sources, handlers and metrics must be configured before Track.
type Poller struct {
	querier       StatusQuerier
	transcripts   TranscriptSource
	reconstructor *transcript.Reconstructor
	logger        *zap.Logger
	config        Config
	metrics       *metrics.Metrics
	perf          *performance.PerformanceMonitor

	onComplete CompletionHandler
	onError    ErrorHandler

	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

// NewPoller creates a poller with the default poll budget.
func NewPoller(querier StatusQuerier, reconstructor *transcript.Reconstructor, logger *zap.Logger) *Poller {
	return NewPollerWithConfig(querier, reconstructor, logger, DefaultConfig())
}

// NewPollerWithConfig creates a new Poller with a custom poll budget
func NewPollerWithConfig(querier StatusQuerier, reconstructor *transcript.Reconstructor, logger *zap.Logger, config Config) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reconstructor == nil {
		reconstructor = transcript.NewReconstructor(logger)
	}
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 360
	}
	if config.BackstopMinChars < 0 {
		config.BackstopMinChars = 50
	}

	return &Poller{
		querier:       querier,
		reconstructor: reconstructor,
		logger:        logger,
		config:        config,
		jobs:          make(map[string]*job),
	}
}

// SetTranscriptSource wires the backstop transcript read.
func (p *Poller) SetTranscriptSource(source TranscriptSource) {
	p.transcripts = source
}

// SetMetrics wires poll metrics.
func (p *Poller) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// SetPerformanceMonitor wires per-session wait time tracking.
func (p *Poller) SetPerformanceMonitor(pm *performance.PerformanceMonitor) {
	p.perf = pm
}

// OnComplete registers the completion handler.
func (p *Poller) OnComplete(handler CompletionHandler) {
	p.onComplete = handler
}

// OnError registers the failure handler.
func (p *Poller) OnError(handler ErrorHandler) {
	p.onError = handler
}

// Track registers job ids and starts polling each one. Ids already
// being polled are left alone; ids whose previous run reached a
// terminal state are registered fresh.
func (p *Poller) Track(ctx context.Context, jobIDs ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range jobIDs {
		if id == "" {
			continue
		}
		if existing, ok := p.jobs[id]; ok && !existing.state.Status.Terminal() {
			p.logger.Debug("job already tracked",
				zap.String("component", "poller"),
				zap.String("job_id", id))
			continue
		}

		jobCtx, cancel := context.WithCancel(ctx)
		j := &job{
			id:     id,
			cancel: cancel,
			state: PollState{
				Status:   StatusUploading,
				Stage:    StageUploading,
				Progress: 10,
			},
		}
		if p.perf != nil {
			j.timer = p.perf.StartSession(id)
		}
		p.jobs[id] = j
		p.wg.Add(1)
		go p.pollJob(jobCtx, j)

		p.logger.Info("tracking job",
			zap.String("component", "poller"),
			zap.String("job_id", id))
	}

	if p.metrics != nil {
		p.metrics.SetActiveJobs(p.activeJobsLocked())
	}
}

// StopTracking cancels polling for one job id and discards its state.
func (p *Poller) StopTracking(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	j, ok := p.jobs[jobID]
	if !ok {
		return
	}
	j.cancelled.Store(true)
	j.cancel()
	delete(p.jobs, jobID)

	p.logger.Info("stopped tracking job",
		zap.String("component", "poller"),
		zap.String("job_id", jobID))

	if p.metrics != nil {
		p.metrics.SetActiveJobs(p.activeJobsLocked())
	}
}

// StopAll cancels polling for every tracked job and discards all state.
func (p *Poller) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, j := range p.jobs {
		j.cancelled.Store(true)
		j.cancel()
		delete(p.jobs, id)
	}

	p.logger.Info("stopped tracking all jobs",
		zap.String("component", "poller"))

	if p.metrics != nil {
		p.metrics.SetActiveJobs(0)
	}
}

// ActiveJobs returns how many registered jobs are still being polled.
func (p *Poller) ActiveJobs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeJobsLocked()
}

// IsTracking reports whether a job id is currently being polled.
func (p *Poller) IsTracking(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	j, ok := p.jobs[jobID]
	return ok && !j.state.Status.Terminal()
}

// State returns a snapshot of a job's poll state.
func (p *Poller) State(jobID string) (PollState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	j, ok := p.jobs[jobID]
	if !ok {
		return PollState{Status: StatusIdle}, false
	}
	return j.state.clone(), true
}

// Wait blocks until every poll goroutine has exited.
func (p *Poller) Wait() {
	p.wg.Wait()
}

// pollJob is the per-job loop. One status query per iteration; the
// cancellation flag is checked at the top of each iteration and again
// after every query resolves, so a cancelled job never mutates state
// even when an in-flight query returns late.
func (p *Poller) pollJob(ctx context.Context, j *job) {
	defer p.wg.Done()
	defer j.cancel()

	for attempt := 1; ; attempt++ {
		if j.cancelled.Load() || ctx.Err() != nil {
			return
		}

		if attempt > p.config.MaxAttempts {
			p.failJob(j, fmt.Errorf("%w after %d attempts", ErrPollTimeout, p.config.MaxAttempts), true)
			return
		}

		p.mu.Lock()
		j.state.AttemptCount = attempt
		p.mu.Unlock()

		start := time.Now()
		result, err := p.querier.JobStatus(ctx, j.id)
		if p.metrics != nil {
			p.metrics.RecordPollAttempt(time.Since(start).Seconds())
		}

		if j.cancelled.Load() {
			return
		}

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if p.metrics != nil {
				p.metrics.RecordPollTransientError()
			}
			p.logger.Debug("poll attempt failed",
				zap.String("component", "poller"),
				zap.String("job_id", j.id),
				zap.Int("attempt", attempt),
				zap.Error(err))
		} else if p.handleResult(j, result) {
			return
		}

		if p.backstopComplete(ctx, j) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.config.Interval):
		}
	}
}

// handleResult applies one successful status query. Returns true when
// the job reached a terminal state and polling should stop.
func (p *Poller) handleResult(j *job, result backend.JobResult) bool {
	switch {
	case result.Status.Completed() && strings.TrimSpace(result.Transcript) != "":
		p.completeJob(j, result)
		return true

	case result.Status.Failed():
		msg := result.Err
		if msg == "" {
			msg = defaultFailureMessage
		}
		p.failJob(j, errors.New(msg), false)
		return true

	default:
		p.mu.Lock()
		j.lastResult = result
		j.state.Status = StatusProcessing
		if result.Stage != "" {
			j.state.Stage = result.Stage
		} else if j.state.Stage == StageUploading {
			j.state.Stage = StageTranscribing
		}

		// Progress only moves forward: the larger of the current
		// value, the backend's figure and a per-attempt estimate,
		// capped at 90 until the job is terminal.
		estimate := 10 + j.state.AttemptCount*80/p.config.MaxAttempts
		progress := j.state.Progress
		if result.Progress > progress {
			progress = result.Progress
		}
		if estimate > progress {
			progress = estimate
		}
		if progress > 90 {
			progress = 90
		}
		j.state.Progress = progress
		p.mu.Unlock()
		return false
	}
}

// completeJob reconstructs segments and finishes the job.
func (p *Poller) completeJob(j *job, result backend.JobResult) {
	input := transcript.ReconstructionInput{
		Tokens:     result.Tokens,
		Timelines:  result.Timelines,
		Names:      result.Names,
		Transcript: result.Transcript,
	}
	strategy := transcript.SelectStrategy(input)
	segments := p.reconstructor.Reconstruct(input)

	p.mu.Lock()
	if j.cancelled.Load() {
		p.mu.Unlock()
		return
	}
	j.state.Status = StatusDone
	j.state.Stage = StageComplete
	j.state.Progress = 100
	j.state.Transcript = result.Transcript
	j.state.Segments = segments
	attempts := j.state.AttemptCount
	active := p.activeJobsLocked()
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordJobCompleted()
		p.metrics.RecordReconstruction(string(strategy), len(segments))
		p.metrics.SetActiveJobs(active)
	}

	if p.perf != nil && j.timer != nil {
		j.timer.Attempts = attempts
		j.timer.Completed = true
		j.timer.Strategy = string(strategy)
		j.timer.Segments = len(segments)
		p.perf.EndSession(j.timer)
	}

	p.logger.Info("job completed",
		zap.String("component", "poller"),
		zap.String("job_id", j.id),
		zap.String("strategy", string(strategy)),
		zap.Int("segments", len(segments)),
		zap.Int("attempts", attempts))

	if p.onComplete == nil || j.cancelled.Load() {
		return
	}
	p.onComplete(j.id, Completion{
		Transcript:      result.Transcript,
		Segments:        segments,
		Timelines:       result.Timelines,
		Names:           result.Names,
		SpeakerMatches:  result.SpeakerMatches,
		BestMatch:       result.BestMatch,
		LearningEntries: result.LearningEntries,
	})
}

// failJob finishes the job with an error.
func (p *Poller) failJob(j *job, jobErr error, timedOut bool) {
	p.mu.Lock()
	if j.cancelled.Load() {
		p.mu.Unlock()
		return
	}
	j.state.Status = StatusFailed
	j.state.Err = jobErr.Error()
	attempts := j.state.AttemptCount
	active := p.activeJobsLocked()
	p.mu.Unlock()

	if p.metrics != nil {
		if timedOut {
			p.metrics.RecordJobTimedOut()
		} else {
			p.metrics.RecordJobFailed()
		}
		p.metrics.SetActiveJobs(active)
	}

	if p.perf != nil && j.timer != nil {
		j.timer.Attempts = attempts
		j.timer.Completed = false
		p.perf.EndSession(j.timer)
	}

	p.logger.Warn("job failed",
		zap.String("component", "poller"),
		zap.String("job_id", j.id),
		zap.Bool("timed_out", timedOut),
		zap.Error(jobErr))

	if p.onError == nil || j.cancelled.Load() {
		return
	}
	p.onError(j.id, jobErr)
}

// backstopComplete checks whether the meeting record already holds a
// transcript long enough to count as finished, even when the status
// endpoint has not caught up. Returns true when it completed the job.
func (p *Poller) backstopComplete(ctx context.Context, j *job) bool {
	if p.transcripts == nil {
		return false
	}

	text, err := p.transcripts.GetTranscript(ctx, j.id)
	if err != nil {
		p.logger.Debug("backstop transcript read failed",
			zap.String("component", "poller"),
			zap.String("job_id", j.id),
			zap.Error(err))
		return false
	}
	if len(strings.TrimSpace(text)) <= p.config.BackstopMinChars {
		return false
	}
	if j.cancelled.Load() {
		return true
	}

	p.logger.Debug("backstop found finished transcript",
		zap.String("component", "poller"),
		zap.String("job_id", j.id),
		zap.Int("chars", len(text)))

	p.mu.Lock()
	result := j.lastResult
	p.mu.Unlock()
	result.Status = backend.StatusCompleted
	result.Transcript = text

	p.completeJob(j, result)
	return true
}

func (p *Poller) activeJobsLocked() int {
	active := 0
	for _, j := range p.jobs {
		if !j.state.Status.Terminal() {
			active++
		}
	}
	return active
}
