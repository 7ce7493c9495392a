package transcript

import "fmt"

// UnknownSpeaker is the sentinel label used when no diarization interval or
// token tag attributes a stretch of speech to anyone.
const UnknownSpeaker = "unknown"

// Token represents a single recognized word with its timing as reported by the
// transcription backend. SpeakerID is only set when the backend tagged the
// token with a speaker directly.
type Token struct {
	Text      string  `json:"text"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	SpeakerID string  `json:"speaker_id,omitempty"`
}

// TimeRange is one span of seconds during which a single speaker was judged to
// be talking.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the length of the range in seconds, never negative.
func (tr TimeRange) Duration() float64 {
	if tr.End < tr.Start {
		return 0
	}
	return tr.End - tr.Start
}

// SpeakerTimeline holds the set of time ranges diarization attributed to one
// speaker. Label is the stable diarization identifier (for example
// "SPEAKER_00"), which is not necessarily human-readable.
type SpeakerTimeline struct {
	Label       string      `json:"label"`
	Ranges      []TimeRange `json:"ranges"`
	DisplayName string      `json:"display_name,omitempty"`
}

// SpeakerNameMap maps diarization labels to human display names supplied
// out-of-band, for example by voice-sample identification. May be empty.
type SpeakerNameMap map[string]string

// Segment is one contiguous turn by one speaker in the reconstructed
// transcript. Output segments are ordered by start time and consecutive
// segments never share a speaker.
type Segment struct {
	Speaker     string  `json:"speaker"`
	SpeakerName string  `json:"speaker_name"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Text        string  `json:"text"`
}

// Validate checks if the Segment has valid values
func (s *Segment) Validate() error {
	if s.Speaker == "" {
		return fmt.Errorf("speaker cannot be empty")
	}

	if s.Start < 0 {
		return fmt.Errorf("start cannot be negative")
	}

	if s.End < s.Start {
		return fmt.Errorf("end cannot precede start")
	}

	return nil
}
