package transcript

import (
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// Default acceptance bounds for the ratio between reconstructed and canonical
// text. Reconstruction rearranges words but never invents or drops large
// amounts of text, so the ratios should stay near 1.0.
const (
	DefaultMinRatio = 0.6
	DefaultMaxRatio = 1.4
)

// speakerPrefixPattern matches leading speaker labels such as "Speaker 1:",
// "SPEAKER_00:", "spk2:" or "A:" at the start of a line so they can be
// stripped before text comparison or word distribution.
var speakerPrefixPattern = regexp.MustCompile(`(?im)^\s*(?:speaker[ _-]*\w{0,12}|spk[ _-]*\d+|[a-z])\s*:\s*`)

// Validator sanity-checks reconstructed segments against the canonical
// transcript text the backend returned for the same job.
type Validator struct {
	logger   *zap.Logger
	minRatio float64
	maxRatio float64
}

// NewValidator creates a Validator with the default acceptance bounds.
func NewValidator(logger *zap.Logger) *Validator {
	return NewValidatorWithBounds(logger, DefaultMinRatio, DefaultMaxRatio)
}

// NewValidatorWithBounds creates a Validator that accepts character and word
// count ratios within [minRatio, maxRatio].
func NewValidatorWithBounds(logger *zap.Logger, minRatio, maxRatio float64) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		logger:   logger,
		minRatio: minRatio,
		maxRatio: maxRatio,
	}
}

// IsConsistent reports whether the joined segment text is plausibly the same
// text as the canonical transcript. Both sides are normalized (speaker
// prefixes stripped, lowercased, punctuation removed, whitespace collapsed)
// and compared by character count and word count ratios. Both ratios must fall
// within the configured bounds.
func (v *Validator) IsConsistent(segments []Segment, canonicalText string) bool {
	normCanonical := NormalizeForComparison(canonicalText)
	if normCanonical == "" {
		return true
	}

	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Text != "" {
			parts = append(parts, seg.Text)
		}
	}
	normSegments := NormalizeForComparison(strings.Join(parts, " "))

	canonicalChars := len([]rune(normCanonical))
	segmentChars := len([]rune(normSegments))
	canonicalWords := len(strings.Fields(normCanonical))
	segmentWords := len(strings.Fields(normSegments))

	charRatio := float64(segmentChars) / float64(canonicalChars)
	wordRatio := float64(segmentWords) / float64(canonicalWords)

	ok := charRatio >= v.minRatio && charRatio <= v.maxRatio &&
		wordRatio >= v.minRatio && wordRatio <= v.maxRatio

	if !ok {
		v.logger.Warn("reconstructed segments diverge from canonical transcript",
			zap.Float64("char_ratio", charRatio),
			zap.Float64("word_ratio", wordRatio),
			zap.Int("segment_chars", segmentChars),
			zap.Int("canonical_chars", canonicalChars),
			zap.Int("segment_words", segmentWords),
			zap.Int("canonical_words", canonicalWords))
	}

	return ok
}

// StripSpeakerPrefixes removes line-leading speaker labels ("Speaker 1:",
// "A:") from text that already carries inline attribution.
func StripSpeakerPrefixes(text string) string {
	return speakerPrefixPattern.ReplaceAllString(text, "")
}

// NormalizeForComparison reduces text to a canonical comparable form: speaker
// prefixes stripped, lowercased, punctuation dropped, whitespace collapsed to
// single spaces.
func NormalizeForComparison(text string) string {
	stripped := StripSpeakerPrefixes(text)
	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
