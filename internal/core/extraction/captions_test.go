package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Studya/internal/core"
)

func seg(start float64, text string) core.CaptionSegment {
	return core.CaptionSegment{StartSec: start, Text: text}
}

func TestMergeCaptionsRollingGrowth(t *testing.T) {
	in := []core.CaptionSegment{
		seg(0, "welcome to"),
		seg(1, "welcome to the lecture"),
		seg(2, "welcome to the lecture on graphs"),
		seg(5, "today we cover traversal"),
	}

	out := MergeCaptions(in)
	require.Len(t, out, 2)
	assert.Equal(t, "welcome to the lecture on graphs", out[0].Text)
	assert.Equal(t, 0.0, out[0].StartSec, "grown line keeps the earliest start")
	assert.Equal(t, "today we cover traversal", out[1].Text)
}

func TestMergeCaptionsDropsContainedEcho(t *testing.T) {
	in := []core.CaptionSegment{
		seg(0, "binary search trees are ordered"),
		seg(1, "search trees"),
		seg(2, "next topic"),
	}

	out := MergeCaptions(in)
	require.Len(t, out, 2)
	assert.Equal(t, "binary search trees are ordered", out[0].Text)
	assert.Equal(t, "next topic", out[1].Text)
}

func TestMergeCaptionsSkipsBlankSegments(t *testing.T) {
	in := []core.CaptionSegment{
		seg(0, "  "),
		seg(1, "hello"),
		seg(2, ""),
	}
	out := MergeCaptions(in)
	require.Len(t, out, 1)
	assert.Equal(t, "hello", out[0].Text)
}

func TestJoinCaptions(t *testing.T) {
	out := JoinCaptions([]core.CaptionSegment{seg(0, "a"), seg(1, "b")})
	assert.Equal(t, "a\nb", out)
	assert.Equal(t, "", JoinCaptions(nil))
}
