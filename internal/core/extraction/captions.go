package extraction

import (
	"strings"

	"github.com/markdave123-py/Studya/internal/core"
)

// MergeCaptions de-duplicates "rolling" caption segments, where a line is
// re-emitted several times as it grows before finalizing.
//
// Walking in timestamp order: a later segment that textually contains the
// last kept one replaces it; a segment already contained in the last kept
// one is dropped; anything else is appended.
func MergeCaptions(segments []core.CaptionSegment) []core.CaptionSegment {
	var kept []core.CaptionSegment
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		seg.Text = text

		if len(kept) == 0 {
			kept = append(kept, seg)
			continue
		}

		last := &kept[len(kept)-1]
		switch {
		case strings.Contains(text, last.Text):
			// Grown version of the line we already have; keep the earlier
			// start time.
			seg.StartSec = last.StartSec
			*last = seg
		case strings.Contains(last.Text, text):
			// Shorter echo of a line we already kept.
		default:
			kept = append(kept, seg)
		}
	}
	return kept
}

// JoinCaptions flattens merged segments into plain text.
func JoinCaptions(segments []core.CaptionSegment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, "\n")
}
