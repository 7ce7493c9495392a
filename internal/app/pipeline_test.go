package app

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetscribe/internal/backend"
	"meetscribe/internal/output"
	"meetscribe/internal/poller"
	"meetscribe/internal/transcript"
)

// Pipeline integration tests that verify the complete status poll → reconstruction → export flow

func TestPipeline_CompleteIntegration(t *testing.T) {
	if os.Getenv("CI") == "true" {
		t.Skip("Skipping pipeline integration test in CI environment - this test involves full pipeline setup")
	}
	t.Run("should process complete pipeline from scripted backend to exported transcript", func(t *testing.T) {
		// The mock backend walks the job through one processing poll before
		// serving the completed payload with word timing and diarization
		fixture := findFixtureByName(LoadTestJobFixtures(), "word_timing")
		require.NotNil(t, fixture)

		mockServer := NewMockBackendServer()
		defer mockServer.Close()
		mockServer.ScriptJob(fixture.JobID,
			`{"status": "processing", "stage": "transcribing", "progress": 55}`,
			fixture.StatusBody,
		)

		testConfig := DefaultTestConfig()
		testConfig.MockBackendURL = mockServer.URL()
		testConfig.JobIDs = []string{fixture.JobID}

		app, err := NewTestApplication(testConfig)
		require.NoError(t, err)
		defer app.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		// Run application and capture results
		done := make(chan error, 1)
		go func() {
			done <- app.RunWithTimeout(ctx, 10*time.Second)
		}()

		// Wait for processing or timeout
		select {
		case err := <-done:
			require.NoError(t, err, "Pipeline execution failed")
		case <-time.After(12 * time.Second):
			t.Fatal("Pipeline did not complete within expected time")
		}

		// The job needed at least the processing poll and the completed poll
		assert.GreaterOrEqual(t, mockServer.StatusCalls(fixture.JobID), 2)

		state, tracked := app.jobPoller.State(fixture.JobID)
		require.True(t, tracked)
		assert.Equal(t, poller.StatusDone, state.Status)
		assert.Equal(t, poller.StageComplete, state.Stage)
		assert.Equal(t, 100, state.Progress)
		assert.Equal(t, fixture.ExpectedTranscript, state.Transcript)

		// Transcript and segments were persisted
		stored, err := app.store.GetTranscript(ctx, fixture.JobID)
		require.NoError(t, err)
		assert.Equal(t, fixture.ExpectedTranscript, stored.Text)
		require.Len(t, stored.Segments, fixture.ExpectedSpeakers)
		assert.Equal(t, "Alice Chen", stored.Segments[0].SpeakerName)

		// Transcript record was exported as JSON lines
		data, err := os.ReadFile(app.OutputPath())
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 1)

		var record output.Record
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
		assert.Equal(t, fixture.JobID, record.JobID)
		assert.Equal(t, fixture.ExpectedTranscript, record.Transcript)
		require.Len(t, record.Segments, fixture.ExpectedSpeakers)
		assert.Equal(t, "good morning everyone", record.Segments[0].Text)
		assert.Equal(t, "thanks for joining", record.Segments[1].Text)

		health := app.getPipelineHealthStatus()
		assert.Equal(t, int64(1), health["total_completions"])
		assert.Equal(t, int64(0), health["total_failures"])
	})
}

func TestPipeline_StatusProgression(t *testing.T) {
	if os.Getenv("CI") == "true" {
		t.Skip("Skipping pipeline integration test in CI environment - this test depends on poll loop timing")
	}
	t.Run("should walk a job from queued through processing to done", func(t *testing.T) {
		fixture := findFixtureByName(LoadTestJobFixtures(), "tagged_tokens")
		require.NotNil(t, fixture)

		mockServer := NewMockBackendServer()
		defer mockServer.Close()
		mockServer.ScriptJob(fixture.JobID,
			`{"status": "queued", "progress": 10}`,
			`{"status": "processing", "stage": "transcribing", "progress": 55}`,
			fixture.StatusBody,
		)

		testConfig := DefaultTestConfig()
		testConfig.MockBackendURL = mockServer.URL()
		testConfig.JobIDs = []string{fixture.JobID}

		app, err := NewTestApplication(testConfig)
		require.NoError(t, err)
		defer app.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- app.RunWithTimeout(ctx, 10*time.Second)
		}()

		// Sample the poll state while the job advances through the script
		seenStatuses := make(map[poller.Status]bool)
		seenStages := make(map[string]bool)
		sampling := time.After(8 * time.Second)

	SampleLoop:
		for {
			if state, ok := app.jobPoller.State(fixture.JobID); ok {
				seenStatuses[state.Status] = true
				if state.Stage != "" {
					seenStages[state.Stage] = true
				}
				if state.Status.Terminal() {
					break SampleLoop
				}
			}
			select {
			case <-sampling:
				break SampleLoop
			case <-time.After(20 * time.Millisecond):
			}
		}

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(12 * time.Second):
			t.Fatal("Pipeline did not complete within expected time")
		}

		// Three scripted bodies means at least three status queries
		assert.GreaterOrEqual(t, mockServer.StatusCalls(fixture.JobID), 3)

		assert.True(t, seenStatuses[poller.StatusProcessing], "Should pass through the processing status")
		assert.True(t, seenStatuses[poller.StatusDone], "Should reach the done status")
		assert.True(t, seenStages[poller.StageTranscribing], "Should report the transcribing stage")

		state, tracked := app.jobPoller.State(fixture.JobID)
		require.True(t, tracked)
		assert.Equal(t, poller.StatusDone, state.Status)
		assert.Equal(t, poller.StageComplete, state.Stage)
		assert.Equal(t, 100, state.Progress)
		assert.GreaterOrEqual(t, state.AttemptCount, 3)
	})
}

func TestPipeline_BackstopCompletion(t *testing.T) {
	if os.Getenv("CI") == "true" {
		t.Skip("Skipping pipeline integration test in CI environment - this test involves full pipeline setup")
	}
	t.Run("should finish a stalled job once the transcript endpoint has enough text", func(t *testing.T) {
		// The status endpoint never reports completion, but the transcript
		// endpoint already serves text longer than the backstop minimum
		jobID := "meeting-stalled"
		backstopText := "we reviewed the quarterly numbers and agreed to move the launch date to early november"

		mockServer := NewMockBackendServer()
		defer mockServer.Close()
		mockServer.ScriptJob(jobID, `{"status": "processing", "stage": "transcribing", "progress": 40}`)
		mockServer.SetTranscript(jobID, backstopText)

		testConfig := DefaultTestConfig()
		testConfig.MockBackendURL = mockServer.URL()
		testConfig.JobIDs = []string{jobID}

		app, err := NewTestApplication(testConfig)
		require.NoError(t, err)
		defer app.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- app.RunWithTimeout(ctx, 10*time.Second)
		}()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(12 * time.Second):
			t.Fatal("Backstop did not finish the job within expected time")
		}

		state, tracked := app.jobPoller.State(jobID)
		require.True(t, tracked)
		assert.Equal(t, poller.StatusDone, state.Status)
		assert.Equal(t, 100, state.Progress)
		assert.Equal(t, backstopText, state.Transcript)

		// No timing data was ever reported, so the transcript lands unattributed
		stored, err := app.store.GetTranscript(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, backstopText, stored.Text)
		assert.Empty(t, stored.Segments)
	})

	t.Run("should serve transcript payloads as JSON", func(t *testing.T) {
		mockServer := NewMockBackendServer()
		defer mockServer.Close()
		mockServer.SetTranscript("meeting-json", "short text")

		resp, err := http.Get(mockServer.URL() + "/v1/jobs/meeting-json/transcript")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "short text", body["transcript"])
	})
}

func TestPipeline_TranscriptValidation(t *testing.T) {
	t.Run("should apply reconstruction ratio thresholds appropriately", func(t *testing.T) {
		canonical := "the budget looks fine to me shall we approve it yes approved"

		testCases := []struct {
			name        string
			segments    []transcript.Segment
			canonical   string
			minRatio    float64
			maxRatio    float64
			consistent  bool
			description string
		}{
			{
				name: "faithful reconstruction",
				segments: []transcript.Segment{
					{Speaker: "A", Text: "the budget looks fine to me"},
					{Speaker: "B", Text: "shall we approve it yes approved"},
				},
				canonical:   canonical,
				minRatio:    transcript.DefaultMinRatio,
				maxRatio:    transcript.DefaultMaxRatio,
				consistent:  true,
				description: "All words accounted for should pass",
			},
			{
				name: "punctuation and speaker prefixes ignored",
				segments: []transcript.Segment{
					{Speaker: "A", Text: "The budget looks FINE, to me!"},
					{Speaker: "B", Text: "Shall we approve it? Yes... approved."},
				},
				canonical:   "Speaker 1: " + canonical,
				minRatio:    transcript.DefaultMinRatio,
				maxRatio:    transcript.DefaultMaxRatio,
				consistent:  true,
				description: "Normalization should hide formatting differences",
			},
			{
				name: "reconstruction dropped most of the text",
				segments: []transcript.Segment{
					{Speaker: "A", Text: "the budget"},
				},
				canonical:   canonical,
				minRatio:    transcript.DefaultMinRatio,
				maxRatio:    transcript.DefaultMaxRatio,
				consistent:  false,
				description: "Losing ten of twelve words should fail",
			},
			{
				name: "reconstruction duplicated the text",
				segments: []transcript.Segment{
					{Speaker: "A", Text: canonical},
					{Speaker: "B", Text: canonical},
				},
				canonical:   canonical,
				minRatio:    transcript.DefaultMinRatio,
				maxRatio:    transcript.DefaultMaxRatio,
				consistent:  false,
				description: "Doubling the text should fail",
			},
			{
				name: "wider bounds accept a short reconstruction",
				segments: []transcript.Segment{
					{Speaker: "A", Text: "the budget looks fine"},
				},
				canonical:   canonical,
				minRatio:    0.2,
				maxRatio:    3.0,
				consistent:  true,
				description: "Configured bounds should be honored",
			},
			{
				name: "empty canonical text accepts anything",
				segments: []transcript.Segment{
					{Speaker: "A", Text: "whatever was reconstructed"},
				},
				canonical:   "",
				minRatio:    transcript.DefaultMinRatio,
				maxRatio:    transcript.DefaultMaxRatio,
				consistent:  true,
				description: "Nothing to compare against should not fail the job",
			},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				validator := transcript.NewValidatorWithBounds(nil, tc.minRatio, tc.maxRatio)
				assert.Equal(t, tc.consistent, validator.IsConsistent(tc.segments, tc.canonical), tc.description)
			})
		}
	})
}

func TestPipeline_StrategySelection(t *testing.T) {
	t.Run("should reconstruct known payload shapes with the right strategy", func(t *testing.T) {
		testCases := []struct {
			fixtureName      string
			expectedSegments []transcript.Segment
		}{
			{
				fixtureName: "word_timing",
				expectedSegments: []transcript.Segment{
					{Speaker: "A", SpeakerName: "Alice Chen", Start: 0.0, End: 1.4, Text: "good morning everyone"},
					{Speaker: "B", SpeakerName: "Speaker B", Start: 2.0, End: 3.1, Text: "thanks for joining"},
				},
			},
			{
				fixtureName: "tagged_tokens",
				expectedSegments: []transcript.Segment{
					{Speaker: "S1", SpeakerName: "Priya", Start: 0.0, End: 1.8, Text: "let us start with the roadmap"},
					{Speaker: "S2", SpeakerName: "Marcus", Start: 2.4, End: 2.9, Text: "agreed"},
				},
			},
			{
				fixtureName: "diarized_only",
				expectedSegments: []transcript.Segment{
					{Speaker: "SPEAKER_00", SpeakerName: "Speaker 1", Start: 0.0, End: 4.0, Text: "the budget looks fine to me shall we approve"},
					{Speaker: "SPEAKER_01", SpeakerName: "Speaker 2", Start: 4.5, End: 5.5, Text: "it yes approved"},
				},
			},
			{
				fixtureName:      "failed_job",
				expectedSegments: nil,
			},
		}

		fixtures := LoadTestJobFixtures()
		reconstructor := transcript.NewReconstructor(nil)

		for _, tc := range testCases {
			t.Run(tc.fixtureName, func(t *testing.T) {
				fixture := findFixtureByName(fixtures, tc.fixtureName)
				require.NotNil(t, fixture)

				var payload backend.StatusPayload
				require.NoError(t, json.Unmarshal([]byte(fixture.StatusBody), &payload))
				result := payload.Normalize()

				input := transcript.ReconstructionInput{
					Tokens:     result.Tokens,
					Timelines:  result.Timelines,
					Names:      result.Names,
					Transcript: result.Transcript,
				}
				assert.Equal(t, fixture.ExpectedStrategy, transcript.SelectStrategy(input))

				segments := reconstructor.Reconstruct(input)
				require.Len(t, segments, len(tc.expectedSegments))

				for i, expected := range tc.expectedSegments {
					assert.Equal(t, expected.Speaker, segments[i].Speaker)
					assert.Equal(t, expected.SpeakerName, segments[i].SpeakerName)
					assert.Equal(t, expected.Text, segments[i].Text)
					assert.InDelta(t, expected.Start, segments[i].Start, 0.001)
					assert.InDelta(t, expected.End, segments[i].End, 0.001)

					require.NoError(t, segments[i].Validate())
				}
			})
		}
	})
}
