package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"meetscribe/internal/transcript"
)

func TestTranscriptWriter_WriteRecord(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	writer := NewTranscriptWriter(&buf, zaptest.NewLogger(t))

	record := Record{
		JobID:      "job-1",
		Transcript: "hello there",
		Segments: []transcript.Segment{
			{Speaker: "A", SpeakerName: "Speaker 1", Start: 0.0, End: 1.2, Text: "hello there"},
		},
	}

	// Act
	err := writer.WriteRecord(record)

	// Assert
	require.NoError(t, err)

	line := buf.String()
	assert.True(t, strings.HasSuffix(line, "\n"))

	var decoded Record
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	assert.Equal(t, "job-1", decoded.JobID)
	assert.Equal(t, "hello there", decoded.Transcript)
	require.Len(t, decoded.Segments, 1)
	assert.Equal(t, "A", decoded.Segments[0].Speaker)
	assert.False(t, decoded.CompletedAt.IsZero())
}

func TestTranscriptWriter_WritesOneLinePerRecord(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	writer := NewTranscriptWriter(&buf, zaptest.NewLogger(t))

	// Act
	require.NoError(t, writer.WriteRecord(Record{JobID: "job-1", Transcript: "first"}))
	require.NoError(t, writer.WriteRecord(Record{JobID: "job-2", Transcript: "second"}))

	// Assert
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 2)

	var first, second Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "job-1", first.JobID)
	assert.Equal(t, "job-2", second.JobID)
}

func TestTranscriptWriter_RejectsInvalidRecords(t *testing.T) {
	t.Run("should reject empty job id", func(t *testing.T) {
		// Arrange
		var buf bytes.Buffer
		writer := NewTranscriptWriter(&buf, zaptest.NewLogger(t))

		// Act
		err := writer.WriteRecord(Record{Transcript: "orphaned"})

		// Assert
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "job id cannot be empty")
		assert.Zero(t, buf.Len())
	})

	t.Run("should reject records with invalid segments", func(t *testing.T) {
		// Arrange
		var buf bytes.Buffer
		writer := NewTranscriptWriter(&buf, zaptest.NewLogger(t))

		record := Record{
			JobID: "job-1",
			Segments: []transcript.Segment{
				{Speaker: "", Start: 0, End: 1, Text: "no speaker"},
			},
		}

		// Act
		err := writer.WriteRecord(record)

		// Assert
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid segment")
		assert.Zero(t, buf.Len())
	})
}

type closableBuffer struct {
	bytes.Buffer
	closed bool
}

func (c *closableBuffer) Close() error {
	c.closed = true
	return nil
}

func TestTranscriptWriter_Close(t *testing.T) {
	t.Run("should close an underlying closer", func(t *testing.T) {
		// Arrange
		buf := &closableBuffer{}
		writer := NewTranscriptWriter(buf, zaptest.NewLogger(t))

		// Act
		err := writer.Close()

		// Assert
		assert.NoError(t, err)
		assert.True(t, buf.closed)
	})

	t.Run("should be a no-op for plain writers", func(t *testing.T) {
		// Arrange
		var buf bytes.Buffer
		writer := NewTranscriptWriter(&buf, zaptest.NewLogger(t))

		// Act & Assert
		assert.NoError(t, writer.Close())
	})
}
