package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"meetscribe/internal/transcript"
)

// Record is one finished job serialized as a JSON line.
type Record struct {
	JobID       string               `json:"job_id"`
	CompletedAt time.Time            `json:"completed_at"`
	Transcript  string               `json:"transcript"`
	Segments    []transcript.Segment `json:"segments"`
}

// TranscriptWriter appends finished transcripts as JSON lines to a writer
type TranscriptWriter struct {
	writer io.Writer
	logger *zap.Logger
}

// NewTranscriptWriter creates a new TranscriptWriter instance
func NewTranscriptWriter(writer io.Writer, logger *zap.Logger) *TranscriptWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptWriter{
		writer: writer,
		logger: logger,
	}
}

// WriteRecord writes a finished job as one JSON line
func (tw *TranscriptWriter) WriteRecord(record Record) error {
	if record.JobID == "" {
		return fmt.Errorf("invalid record: job id cannot be empty")
	}
	for _, segment := range record.Segments {
		if err := segment.Validate(); err != nil {
			tw.logger.Error("invalid segment", zap.Error(err))
			return fmt.Errorf("invalid segment: %w", err)
		}
	}

	if record.CompletedAt.IsZero() {
		record.CompletedAt = time.Now().UTC()
	}

	jsonBytes, err := json.Marshal(record)
	if err != nil {
		tw.logger.Error("failed to marshal record to JSON", zap.Error(err))
		return fmt.Errorf("failed to marshal record to JSON: %w", err)
	}

	if _, err := fmt.Fprintf(tw.writer, "%s\n", jsonBytes); err != nil {
		tw.logger.Error("failed to write JSON output", zap.Error(err))
		return fmt.Errorf("failed to write JSON output: %w", err)
	}

	tw.logger.Debug("output transcript record",
		zap.String("job_id", record.JobID),
		zap.Int("segments", len(record.Segments)),
		zap.Int("transcript_chars", len(record.Transcript)))

	return nil
}

// Close closes the transcript writer (no-op for basic writers, but required for interface consistency)
func (tw *TranscriptWriter) Close() error {
	tw.logger.Debug("closing transcript writer")
	if closer, ok := tw.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
