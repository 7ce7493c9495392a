package transcript

// MergeAdjacent collapses runs of consecutive segments that share a speaker
// label into single turns. Texts are joined with a single space, the merged
// turn spans from the first segment's start to the last segment's end, and the
// original slice is left untouched.
func MergeAdjacent(segments []Segment) []Segment {
	if len(segments) == 0 {
		return nil
	}

	merged := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		if n := len(merged); n > 0 && merged[n-1].Speaker == seg.Speaker {
			last := &merged[n-1]
			last.Text = joinTexts(last.Text, seg.Text)
			if seg.End > last.End {
				last.End = seg.End
			}
			continue
		}
		merged = append(merged, seg)
	}
	return merged
}

// MergeByGap collapses consecutive same-speaker segments only when the silence
// between them is at most gap seconds. Same-speaker segments separated by a
// longer pause stay distinct turns, which matters when text is later
// apportioned by turn duration.
func MergeByGap(segments []Segment, gap float64) []Segment {
	if len(segments) == 0 {
		return nil
	}

	merged := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		if n := len(merged); n > 0 && merged[n-1].Speaker == seg.Speaker && seg.Start-merged[n-1].End <= gap {
			last := &merged[n-1]
			last.Text = joinTexts(last.Text, seg.Text)
			if seg.End > last.End {
				last.End = seg.End
			}
			continue
		}
		merged = append(merged, seg)
	}
	return merged
}

func joinTexts(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
