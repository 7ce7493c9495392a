package transcript

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// trailingDigitsPattern extracts a numeric speaker index from labels such as
// "SPEAKER_00", "spk2" or plain "1".
var trailingDigitsPattern = regexp.MustCompile(`(\d+)$`)

// NameResolver turns diarization labels into human display names. Resolution
// order: the supplied name map, a numeric index embedded in the label
// (rendered one-based), a single-letter label, and finally the label's
// first-seen position. A resolver is scoped to one reconstruction run because
// positional fallback depends on the order labels are first encountered.
type NameResolver struct {
	names SpeakerNameMap
	seen  map[string]int
}

// NewNameResolver creates a resolver backed by the given name map, which may
// be nil or empty.
func NewNameResolver(names SpeakerNameMap) *NameResolver {
	return &NameResolver{
		names: names,
		seen:  make(map[string]int),
	}
}

// DisplayName returns a non-empty display name for the given label.
func (nr *NameResolver) DisplayName(label string) string {
	if _, ok := nr.seen[label]; !ok {
		nr.seen[label] = len(nr.seen)
	}

	if name, ok := nr.names[label]; ok && strings.TrimSpace(name) != "" {
		return name
	}

	if m := trailingDigitsPattern.FindString(label); m != "" {
		if idx, err := strconv.Atoi(m); err == nil {
			return fmt.Sprintf("Speaker %d", idx+1)
		}
	}

	if isSingleLetter(label) {
		return fmt.Sprintf("Speaker %s", strings.ToUpper(label))
	}

	return fmt.Sprintf("Speaker %d", nr.seen[label]+1)
}

func isSingleLetter(label string) bool {
	runes := []rune(label)
	return len(runes) == 1 && unicode.IsLetter(runes[0])
}
