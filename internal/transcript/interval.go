package transcript

// intervalEpsilon widens every diarization range by 50ms on both ends when a
// token timestamp is matched against it, absorbing the clock skew between the
// word-level and diarization passes of the upstream model.
const intervalEpsilon = 0.05

// FindLabelAt returns the label of the first speaker whose timeline contains
// the given time, scanning timelines and their ranges in the order provided.
// A range [start, end] matches when t falls within [start-0.05, end+0.05].
// Returns UnknownSpeaker when no range contains t.
func FindLabelAt(t float64, timelines []SpeakerTimeline) string {
	for _, tl := range timelines {
		for _, r := range tl.Ranges {
			if t >= r.Start-intervalEpsilon && t <= r.End+intervalEpsilon {
				return tl.Label
			}
		}
	}
	return UnknownSpeaker
}
