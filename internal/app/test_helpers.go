package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"meetscribe/internal/transcript"
)

// TestConfig represents configuration for testing scenarios
type TestConfig struct {
	MockBackendURL   string
	DataDir          string
	JobIDs           []string
	DebugMode        bool
	PollIntervalMS   int
	BackstopMinChars int
}

// DefaultTestConfig returns a default test configuration
func DefaultTestConfig() *TestConfig {
	return &TestConfig{
		MockBackendURL:   "", // Will be set by mock server
		JobIDs:           []string{"meeting-100", "meeting-200", "meeting-300"},
		DebugMode:        true,
		PollIntervalMS:   500,
		BackstopMinChars: 50,
	}
}

// MockBackendServer provides an HTTP mock of the transcription backend. Each
// job id is scripted with a sequence of status bodies; consecutive status
// queries walk the sequence and then stick on the last entry, which lets a
// test model a job that progresses from queued to completed.
type MockBackendServer struct {
	server *httptest.Server

	mu          sync.Mutex
	scripts     map[string][]string
	transcripts map[string]string
	calls       map[string]int
}

// NewMockBackendServer creates a new mock backend server with no jobs scripted
func NewMockBackendServer() *MockBackendServer {
	mock := &MockBackendServer{
		scripts:     make(map[string][]string),
		transcripts: make(map[string]string),
		calls:       make(map[string]int),
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.handleRequest(w, r)
	})

	mock.server = httptest.NewServer(handler)
	return mock
}

// URL returns the mock server URL
func (m *MockBackendServer) URL() string {
	return m.server.URL
}

// Close shuts down the mock server
func (m *MockBackendServer) Close() {
	m.server.Close()
}

// ScriptJob registers the status bodies served for a job id, in order
func (m *MockBackendServer) ScriptJob(jobID string, bodies ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[jobID] = bodies
}

// SetTranscript registers the plain transcript served for a job id
func (m *MockBackendServer) SetTranscript(jobID, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcripts[jobID] = text
}

// StatusCalls returns how many status queries a job id has received
func (m *MockBackendServer) StatusCalls(jobID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[jobID]
}

// handleRequest routes status and transcript queries the way the real
// backend does: /v1/jobs/{id} and /v1/jobs/{id}/transcript
func (m *MockBackendServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	if path == r.URL.Path || path == "" {
		http.NotFound(w, r)
		return
	}

	if jobID, ok := strings.CutSuffix(path, "/transcript"); ok {
		m.handleTranscript(w, jobID)
		return
	}
	m.handleStatus(w, path)
}

func (m *MockBackendServer) handleStatus(w http.ResponseWriter, jobID string) {
	m.mu.Lock()
	bodies, ok := m.scripts[jobID]
	call := m.calls[jobID]
	m.calls[jobID] = call + 1
	m.mu.Unlock()

	if !ok || len(bodies) == 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "job not found"}`))
		return
	}

	if call >= len(bodies) {
		call = len(bodies) - 1
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(bodies[call]))
}

func (m *MockBackendServer) handleTranscript(w http.ResponseWriter, jobID string) {
	m.mu.Lock()
	text, ok := m.transcripts[jobID]
	m.mu.Unlock()

	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "transcript not found"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"transcript": text})
}

// TestJobFixture represents a known job payload with expected outcomes
type TestJobFixture struct {
	Name               string
	JobID              string
	StatusBody         string
	ExpectedTranscript string
	ExpectedStrategy   transcript.Strategy
	ExpectedSpeakers   int
	HasWordTiming      bool
}

// LoadTestJobFixtures returns the canonical job fixtures, one per
// reconstruction strategy, covering both backend field schemes
func LoadTestJobFixtures() []*TestJobFixture {
	return []*TestJobFixture{
		{
			Name:  "word_timing",
			JobID: "fixture-word-timing",
			StatusBody: `{
				"status": "completed",
				"transcript": "good morning everyone thanks for joining",
				"words": [
					{"word": "good", "start": 0.0, "end": 0.4, "speaker_id": "A"},
					{"word": "morning", "start": 0.45, "end": 0.9, "speaker_id": "A"},
					{"word": "everyone", "start": 0.95, "end": 1.4, "speaker_id": "A"},
					{"word": "thanks", "start": 2.0, "end": 2.3, "speaker_id": "B"},
					{"word": "for", "start": 2.35, "end": 2.5, "speaker_id": "B"},
					{"word": "joining", "start": 2.6, "end": 3.1, "speaker_id": "B"}
				],
				"speaker_timelines": [
					{"label": "A", "ranges": [{"start": 0.0, "end": 1.5}]},
					{"label": "B", "ranges": [{"start": 1.9, "end": 3.2}]}
				],
				"speaker_names": {"A": "Alice Chen"}
			}`,
			ExpectedTranscript: "good morning everyone thanks for joining",
			ExpectedStrategy:   transcript.StrategyWordLevel,
			ExpectedSpeakers:   2,
			HasWordTiming:      true,
		},
		{
			Name:  "tagged_tokens",
			JobID: "fixture-tagged-tokens",
			StatusBody: `{
				"status": "done",
				"text": "let us start with the roadmap agreed",
				"words": [
					{"text": "let", "start": 0.0, "end": 0.2, "speaker": "S1"},
					{"text": "us", "start": 0.25, "end": 0.4, "speaker": "S1"},
					{"text": "start", "start": 0.45, "end": 0.8, "speaker": "S1"},
					{"text": "with", "start": 0.85, "end": 1.0, "speaker": "S1"},
					{"text": "the", "start": 1.05, "end": 1.15, "speaker": "S1"},
					{"text": "roadmap", "start": 1.2, "end": 1.8, "speaker": "S1"},
					{"text": "agreed", "start": 2.4, "end": 2.9, "speaker": "S2"}
				],
				"identified_speakers": {"S1": "Priya", "S2": "Marcus"}
			}`,
			ExpectedTranscript: "let us start with the roadmap agreed",
			ExpectedStrategy:   transcript.StrategyTokenTags,
			ExpectedSpeakers:   2,
			HasWordTiming:      true,
		},
		{
			Name:  "diarized_only",
			JobID: "fixture-diarized-only",
			StatusBody: `{
				"status": "completed",
				"text": "the budget looks fine to me shall we approve it yes approved",
				"speaker_segments": [
					{"speaker": "SPEAKER_00", "segments": [{"start": 0.0, "end": 4.0}]},
					{"speaker": "SPEAKER_01", "segments": [{"start": 4.5, "end": 5.5}]}
				]
			}`,
			ExpectedTranscript: "the budget looks fine to me shall we approve it yes approved",
			ExpectedStrategy:   transcript.StrategyProportional,
			ExpectedSpeakers:   2,
			HasWordTiming:      false,
		},
		{
			Name:  "failed_job",
			JobID: "fixture-failed-job",
			StatusBody: `{
				"status": "error",
				"error": "audio track unreadable"
			}`,
			ExpectedStrategy: transcript.StrategyNone,
		},
	}
}

// CreateTestStatusPayload generates a synthetic completed status payload with
// the given number of speakers, each speaking wordsPerSpeaker words in turn
func CreateTestStatusPayload(speakers, wordsPerSpeaker int) []byte {
	if speakers < 1 {
		speakers = 1
	}
	if wordsPerSpeaker < 1 {
		wordsPerSpeaker = 1
	}

	var words []map[string]interface{}
	var timelines []map[string]interface{}
	var allText []string
	names := make(map[string]string, speakers)

	cursor := 0.0
	for s := 0; s < speakers; s++ {
		label := fmt.Sprintf("S%d", s)
		names[label] = fmt.Sprintf("Speaker %d", s+1)
		turnStart := cursor

		for w := 0; w < wordsPerSpeaker; w++ {
			text := fmt.Sprintf("word%d-%d", s, w)
			words = append(words, map[string]interface{}{
				"word":       text,
				"start":      cursor,
				"end":        cursor + 0.3,
				"speaker_id": label,
			})
			allText = append(allText, text)
			cursor += 0.4
		}

		timelines = append(timelines, map[string]interface{}{
			"label":  label,
			"ranges": []map[string]interface{}{{"start": turnStart, "end": cursor}},
		})
		cursor += 1.5 // Pause between speakers
	}

	payload := map[string]interface{}{
		"status":            "completed",
		"transcript":        strings.Join(allText, " "),
		"words":             words,
		"speaker_timelines": timelines,
		"speaker_names":     names,
	}

	data, _ := json.Marshal(payload)
	return data
}

// TestApplication creates an application configured for testing
type TestApplication struct {
	*Application
	TestConfig  *TestConfig
	MockBackend *MockBackendServer
	TestLogger  *zap.Logger

	tempDir string
}

// NewTestApplication creates a new application instance for testing. The
// store and output land in the configured data directory, or a temporary
// one removed on Shutdown.
func NewTestApplication(testConfig *TestConfig) (*TestApplication, error) {
	dataDir := testConfig.DataDir
	tempDir := ""
	if dataDir == "" {
		var err error
		dataDir, err = os.MkdirTemp("", "meetscribe-test-")
		if err != nil {
			return nil, fmt.Errorf("failed to create test data directory: %w", err)
		}
		tempDir = dataDir
	}

	// Snapshot the environment the configuration reads and restore it on exit
	envKeys := []string{
		"CONFIG_PATH", "BACKEND_BASE_URL", "JOB_IDS", "DEBUG_MODE",
		"POLL_INTERVAL_MS", "POLL_BACKSTOP_MIN_CHARS",
		"STORE_DB_PATH", "OUTPUT_PATH", "METRICS_LISTEN_ADDR",
	}
	saved := make(map[string]*string, len(envKeys))
	for _, key := range envKeys {
		if value, ok := os.LookupEnv(key); ok {
			v := value
			saved[key] = &v
		} else {
			saved[key] = nil
		}
	}
	defer func() {
		for key, value := range saved {
			if value == nil {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, *value)
			}
		}
	}()

	// Set test environment
	os.Unsetenv("CONFIG_PATH")
	if testConfig.MockBackendURL != "" {
		os.Setenv("BACKEND_BASE_URL", testConfig.MockBackendURL)
	}
	os.Setenv("JOB_IDS", strings.Join(testConfig.JobIDs, ","))
	if testConfig.DebugMode {
		os.Setenv("DEBUG_MODE", "true")
	} else {
		os.Setenv("DEBUG_MODE", "false")
	}
	os.Setenv("POLL_INTERVAL_MS", strconv.Itoa(testConfig.PollIntervalMS))
	os.Setenv("POLL_BACKSTOP_MIN_CHARS", strconv.Itoa(testConfig.BackstopMinChars))
	os.Setenv("STORE_DB_PATH", filepath.Join(dataDir, "meetscribe.db"))
	os.Setenv("OUTPUT_PATH", filepath.Join(dataDir, "transcripts.jsonl"))
	os.Setenv("METRICS_LISTEN_ADDR", "127.0.0.1:0")

	// Create application
	app, err := NewApplication()
	if err != nil {
		if tempDir != "" {
			os.RemoveAll(tempDir)
		}
		return nil, fmt.Errorf("failed to create test application: %w", err)
	}

	// Create test logger for verification
	testLogger := zap.NewNop() // Use no-op logger for tests to reduce noise

	return &TestApplication{
		Application: app,
		TestConfig:  testConfig,
		TestLogger:  testLogger,
		tempDir:     tempDir,
	}, nil
}

// RunWithTimeout runs the test application with a timeout
func (ta *TestApplication) RunWithTimeout(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return ta.Application.Run(ctx)
}

// Shutdown stops the application and removes the temporary data directory
func (ta *TestApplication) Shutdown() error {
	err := ta.Application.Shutdown()
	if ta.tempDir != "" {
		os.RemoveAll(ta.tempDir)
	}
	return err
}

// OutputPath returns the JSON lines file the test application writes to
func (ta *TestApplication) OutputPath() string {
	return ta.Application.config.GetOutputPath()
}

// PipelineTestResult captures results from pipeline testing
type PipelineTestResult struct {
	Segments    []transcript.Segment
	Completions int
	Failures    int
	PollLatency time.Duration
	MemoryUsage uint64
	Errors      []error
}

// MemoryProfiler provides memory usage monitoring for tests
type MemoryProfiler struct {
	mu            sync.Mutex
	initialMemory uint64
	peakMemory    uint64
	samples       []uint64

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewMemoryProfiler creates a new memory profiler
func NewMemoryProfiler() *MemoryProfiler {
	return &MemoryProfiler{
		samples: make([]uint64, 0),
	}
}

// Start begins sampling heap usage in the background
func (mp *MemoryProfiler) Start() error {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	mp.mu.Lock()
	mp.initialMemory = stats.Alloc
	mp.peakMemory = stats.Alloc
	mp.stopCh = make(chan struct{})
	mp.doneCh = make(chan struct{})
	mp.mu.Unlock()

	go func() {
		defer close(mp.doneCh)
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-mp.stopCh:
				return
			case <-ticker.C:
				mp.sample()
			}
		}
	}()

	return nil
}

func (mp *MemoryProfiler) sample() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.samples = append(mp.samples, stats.Alloc)
	if stats.Alloc > mp.peakMemory {
		mp.peakMemory = stats.Alloc
	}
}

// GetPeakMemory returns the peak heap usage observed so far
func (mp *MemoryProfiler) GetPeakMemory() uint64 {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.peakMemory
}

// Stop ends memory monitoring
func (mp *MemoryProfiler) Stop() {
	mp.mu.Lock()
	stopCh := mp.stopCh
	doneCh := mp.doneCh
	mp.stopCh = nil
	mp.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}
}
