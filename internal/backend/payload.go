package backend

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"meetscribe/internal/transcript"
)

// Status is a job lifecycle state reported by the transcription backend.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusDone       Status = "done"
	StatusError      Status = "error"
	StatusFailed     Status = "failed"
)

// ParseStatus normalizes a raw status string from the backend.
func ParseStatus(s string) Status {
	return Status(strings.ToLower(strings.TrimSpace(s)))
}

// Completed reports whether the job finished with a transcript.
func (s Status) Completed() bool {
	return s == StatusCompleted || s == StatusDone
}

// Failed reports whether the job finished without a transcript.
func (s Status) Failed() bool {
	return s == StatusError || s == StatusFailed
}

// Terminal reports whether polling for the job should stop.
func (s Status) Terminal() bool {
	return s.Completed() || s.Failed()
}

// Seconds is a timestamp offset in seconds. Backends disagree on the
// encoding: some send JSON numbers, older ones send decimal strings,
// and missing values arrive as null or "".
type Seconds float64

func (s *Seconds) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*s = 0
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	f, _ := d.Float64()
	*s = Seconds(f)
	return nil
}

// WordPayload is a single recognized word. The current backend emits
// word/speaker_id, earlier deployments used text/speaker.
type WordPayload struct {
	Word      string  `json:"word"`
	Text      string  `json:"text"`
	Start     Seconds `json:"start"`
	End       Seconds `json:"end"`
	SpeakerID string  `json:"speaker_id"`
	Speaker   string  `json:"speaker"`
}

// RangePayload is one diarized time interval.
type RangePayload struct {
	Start Seconds `json:"start"`
	End   Seconds `json:"end"`
}

// TimelinePayload groups the intervals attributed to one speaker. The
// current backend emits label/ranges, earlier deployments used
// speaker/segments.
type TimelinePayload struct {
	Label       string         `json:"label"`
	Speaker     string         `json:"speaker"`
	DisplayName string         `json:"display_name"`
	Ranges      []RangePayload `json:"ranges"`
	Segments    []RangePayload `json:"segments"`
}

// SpeakerMatch pairs a diarization label with a recognized participant.
type SpeakerMatch struct {
	Label      string  `json:"label"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// LearningEntry records a voice profile update made while matching speakers.
type LearningEntry struct {
	Label     string `json:"label"`
	Name      string `json:"name"`
	ProfileID string `json:"profile_id"`
	Action    string `json:"action"`
}

// StatusPayload is the raw wire shape of a job status response. It
// carries both the current field names and the ones used by earlier
// backend deployments so that either decodes without a version probe.
type StatusPayload struct {
	Status     string `json:"status"`
	Transcript string `json:"transcript"`
	Text       string `json:"text"`

	Words []WordPayload `json:"words"`

	SpeakerTimelines []TimelinePayload `json:"speaker_timelines"`
	SpeakerSegments  []TimelinePayload `json:"speaker_segments"`

	SpeakerNames       map[string]string `json:"speaker_names"`
	IdentifiedSpeakers map[string]string `json:"identified_speakers"`

	SpeakerMatches  []SpeakerMatch  `json:"speaker_matches"`
	BestMatch       *SpeakerMatch   `json:"best_match"`
	LearningEntries []LearningEntry `json:"learning_entries"`

	Stage    string  `json:"stage"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error"`
}

// JobResult is a status payload normalized onto the current field
// scheme, ready for reconstruction.
type JobResult struct {
	Status          Status
	Transcript      string
	Tokens          []transcript.Token
	Timelines       []transcript.SpeakerTimeline
	Names           transcript.SpeakerNameMap
	SpeakerMatches  []SpeakerMatch
	BestMatch       *SpeakerMatch
	LearningEntries []LearningEntry
	Stage           string
	Progress        int
	Err             string
}

// Normalize folds both historical field schemes into a JobResult. For
// every field the current scheme wins when present; display names found
// on timelines are merged into the name map for labels it lacks.
func (p *StatusPayload) Normalize() JobResult {
	result := JobResult{
		Status:          ParseStatus(p.Status),
		Transcript:      p.Transcript,
		SpeakerMatches:  p.SpeakerMatches,
		BestMatch:       p.BestMatch,
		LearningEntries: p.LearningEntries,
		Stage:           p.Stage,
		Progress:        clampProgress(p.Progress),
		Err:             p.Error,
	}
	if result.Transcript == "" {
		result.Transcript = p.Text
	}

	for _, w := range p.Words {
		text := w.Word
		if text == "" {
			text = w.Text
		}
		speaker := w.SpeakerID
		if speaker == "" {
			speaker = w.Speaker
		}
		result.Tokens = append(result.Tokens, transcript.Token{
			Text:      text,
			Start:     float64(w.Start),
			End:       float64(w.End),
			SpeakerID: speaker,
		})
	}

	rawTimelines := p.SpeakerTimelines
	if len(rawTimelines) == 0 {
		rawTimelines = p.SpeakerSegments
	}
	for _, tl := range rawTimelines {
		label := tl.Label
		if label == "" {
			label = tl.Speaker
		}
		if label == "" {
			label = transcript.UnknownSpeaker
		}
		ranges := tl.Ranges
		if len(ranges) == 0 {
			ranges = tl.Segments
		}
		timeline := transcript.SpeakerTimeline{
			Label:       label,
			DisplayName: tl.DisplayName,
		}
		for _, r := range ranges {
			timeline.Ranges = append(timeline.Ranges, transcript.TimeRange{
				Start: float64(r.Start),
				End:   float64(r.End),
			})
		}
		result.Timelines = append(result.Timelines, timeline)
	}

	names := p.SpeakerNames
	if len(names) == 0 {
		names = p.IdentifiedSpeakers
	}
	if len(names) > 0 {
		result.Names = make(transcript.SpeakerNameMap, len(names))
		for label, name := range names {
			result.Names[label] = name
		}
	}
	for _, tl := range result.Timelines {
		if tl.DisplayName == "" {
			continue
		}
		if _, ok := result.Names[tl.Label]; ok {
			continue
		}
		if result.Names == nil {
			result.Names = make(transcript.SpeakerNameMap)
		}
		result.Names[tl.Label] = tl.DisplayName
	}

	return result
}

func clampProgress(p float64) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return int(p)
}
