package transcript

import (
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Strategy identifies which reconstruction path produced a set of segments.
type Strategy string

const (
	// StrategyWordLevel attributes each timed token to a speaker by interval
	// lookup against the diarization timelines.
	StrategyWordLevel Strategy = "word_level"
	// StrategyTokenTags groups tokens by the speaker tag the backend attached
	// to each token.
	StrategyTokenTags Strategy = "token_tags"
	// StrategyProportional splits the canonical transcript across diarization
	// turns in proportion to turn duration when no per-word timing exists.
	StrategyProportional Strategy = "proportional"
	// StrategyNone means the input carried no usable attribution data.
	StrategyNone Strategy = "none"
)

// DefaultMergeGap is the largest silence, in seconds, across which two
// same-speaker diarization ranges are still treated as one turn.
const DefaultMergeGap = 1.0

// ReconstructionInput bundles everything a finished transcription job carries
// that is relevant to speaker attribution.
type ReconstructionInput struct {
	Tokens     []Token
	Timelines  []SpeakerTimeline
	Names      SpeakerNameMap
	Transcript string
}

// SelectStrategy reports which reconstruction strategy applies to the given
// input. Tokens with timing take precedence over interval-free fallbacks.
func SelectStrategy(in ReconstructionInput) Strategy {
	switch {
	case len(in.Tokens) > 0 && len(in.Timelines) > 0:
		return StrategyWordLevel
	case len(in.Tokens) > 0:
		return StrategyTokenTags
	case len(in.Timelines) > 0 && strings.TrimSpace(in.Transcript) != "":
		return StrategyProportional
	default:
		return StrategyNone
	}
}

// Reconstructor builds speaker-attributed segments from whatever combination
// of token timing, diarization timelines and canonical text a job returned.
type Reconstructor struct {
	logger    *zap.Logger
	validator *Validator
	mergeGap  float64

	onValidationFailure func()
}

// NewReconstructor creates a Reconstructor with the default merge gap and
// validation bounds.
func NewReconstructor(logger *zap.Logger) *Reconstructor {
	return NewReconstructorWithSettings(logger, DefaultMergeGap, DefaultMinRatio, DefaultMaxRatio)
}

// NewReconstructorWithSettings creates a Reconstructor with an explicit merge
// gap in seconds and validation ratio bounds.
func NewReconstructorWithSettings(logger *zap.Logger, mergeGap, minRatio, maxRatio float64) *Reconstructor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mergeGap < 0 {
		mergeGap = DefaultMergeGap
	}
	return &Reconstructor{
		logger:    logger,
		validator: NewValidatorWithBounds(logger, minRatio, maxRatio),
		mergeGap:  mergeGap,
	}
}

// OnValidationFailure registers a hook invoked whenever validation flags a
// reconstruction as inconsistent with the canonical transcript.
func (r *Reconstructor) OnValidationFailure(fn func()) {
	r.onValidationFailure = fn
}

// Reconstruct produces ordered speaker-attributed segments for the given
// input, or nil when no strategy applies. Validation against the canonical
// transcript is advisory: a flagged result is logged and counted but still
// returned, because an imperfect attribution beats an unattributed wall of
// text.
func (r *Reconstructor) Reconstruct(in ReconstructionInput) []Segment {
	strategy := SelectStrategy(in)
	resolver := NewNameResolver(in.Names)

	var segments []Segment
	switch strategy {
	case StrategyWordLevel:
		segments = r.reconstructWordLevel(in.Tokens, in.Timelines, resolver)
	case StrategyTokenTags:
		segments = r.reconstructTokenTags(in.Tokens, resolver)
	case StrategyProportional:
		segments = r.reconstructProportional(in.Timelines, in.Transcript, resolver)
	case StrategyNone:
		r.logger.Debug("no reconstruction strategy applicable",
			zap.Int("token_count", len(in.Tokens)),
			zap.Int("timeline_count", len(in.Timelines)),
			zap.Int("transcript_chars", len(in.Transcript)))
		return nil
	}

	r.logger.Debug("reconstructed speaker segments",
		zap.String("strategy", string(strategy)),
		zap.Int("segment_count", len(segments)))

	if len(segments) > 0 && strings.TrimSpace(in.Transcript) != "" {
		if !r.validator.IsConsistent(segments, in.Transcript) {
			if r.onValidationFailure != nil {
				r.onValidationFailure()
			}
		}
	}

	return segments
}

// reconstructWordLevel walks the tokens in time order, attributes each one to
// the speaker whose diarization range contains its start time, and folds
// consecutive same-speaker tokens into turns.
func (r *Reconstructor) reconstructWordLevel(tokens []Token, timelines []SpeakerTimeline, resolver *NameResolver) []Segment {
	ordered := sortTokens(tokens)

	var segments []Segment
	for _, tok := range ordered {
		text := strings.TrimSpace(tok.Text)
		if text == "" {
			continue
		}
		label := FindLabelAt(tok.Start, timelines)
		segments = appendToken(segments, label, text, tok, resolver)
	}
	return MergeAdjacent(segments)
}

// reconstructTokenTags groups tokens by the speaker tag the backend attached
// to each one. Tokens without a tag fall into the unknown bucket.
func (r *Reconstructor) reconstructTokenTags(tokens []Token, resolver *NameResolver) []Segment {
	ordered := sortTokens(tokens)

	var segments []Segment
	for _, tok := range ordered {
		text := strings.TrimSpace(tok.Text)
		if text == "" {
			continue
		}
		label := tok.SpeakerID
		if label == "" {
			label = UnknownSpeaker
		}
		segments = appendToken(segments, label, text, tok, resolver)
	}
	return MergeAdjacent(segments)
}

// reconstructProportional flattens the diarization timelines into time-ordered
// turns, merges same-speaker turns separated by short pauses, and then deals
// the canonical transcript's words out across the turns in proportion to turn
// duration. The final turn absorbs any words left over by integer division so
// that every word of the transcript lands in exactly one segment.
func (r *Reconstructor) reconstructProportional(timelines []SpeakerTimeline, canonicalText string, resolver *NameResolver) []Segment {
	var turns []Segment
	for _, tl := range timelines {
		for _, rg := range tl.Ranges {
			turns = append(turns, Segment{Speaker: tl.Label, Start: rg.Start, End: rg.End})
		}
	}
	if len(turns) == 0 {
		return nil
	}
	sort.SliceStable(turns, func(i, j int) bool { return turns[i].Start < turns[j].Start })
	turns = MergeByGap(turns, r.mergeGap)

	words := strings.Fields(StripSpeakerPrefixes(canonicalText))
	if len(words) == 0 {
		return nil
	}

	total := 0.0
	for _, t := range turns {
		total += turnDuration(t)
	}

	segments := make([]Segment, 0, len(turns))
	assigned := 0
	for i, t := range turns {
		var count int
		if i == len(turns)-1 {
			count = len(words) - assigned
		} else if total > 0 {
			count = int(float64(len(words)) * turnDuration(t) / total)
		}
		if count <= 0 {
			continue
		}

		t.Text = strings.Join(words[assigned:assigned+count], " ")
		t.SpeakerName = resolver.DisplayName(t.Speaker)
		assigned += count
		segments = append(segments, t)
	}
	return MergeAdjacent(segments)
}

func appendToken(segments []Segment, label, text string, tok Token, resolver *NameResolver) []Segment {
	if n := len(segments); n > 0 && segments[n-1].Speaker == label {
		last := &segments[n-1]
		last.Text = joinTexts(last.Text, text)
		if tok.End > last.End {
			last.End = tok.End
		}
		return segments
	}
	return append(segments, Segment{
		Speaker:     label,
		SpeakerName: resolver.DisplayName(label),
		Start:       tok.Start,
		End:         tok.End,
		Text:        text,
	})
}

func sortTokens(tokens []Token) []Token {
	ordered := make([]Token, len(tokens))
	copy(ordered, tokens)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })
	return ordered
}

func turnDuration(s Segment) float64 {
	if s.End < s.Start {
		return 0
	}
	return s.End - s.Start
}
