package poller

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"meetscribe/internal/transcript"
)

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusIdle.Terminal())
	assert.False(t, StatusUploading.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestPollState_Clone(t *testing.T) {
	// Arrange
	original := PollState{
		Status:   StatusDone,
		Progress: 100,
		Segments: []transcript.Segment{
			{Speaker: "A", Start: 0, End: 1, Text: "hello"},
		},
	}

	// Act
	snapshot := original.clone()
	snapshot.Segments[0].Text = "mutated"

	// Assert
	assert.Equal(t, "hello", original.Segments[0].Text)
}

func TestDefaultConfig(t *testing.T) {
	// Act
	config := DefaultConfig()

	// Assert
	assert.Equal(t, 360, config.MaxAttempts)
	assert.Equal(t, 50, config.BackstopMinChars)
	assert.Equal(t, "5s", config.Interval.String())
}
