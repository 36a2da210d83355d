package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkerBreaksOnSentenceEnd(t *testing.T) {
	c := &Chunker{Window: 20}
	out := c.Push("First sentence. Second one goes on")
	require.Len(t, out, 1)
	assert.Equal(t, "First sentence. ", out[0])
	assert.Equal(t, []string{"Second one goes on"}, c.Flush())
	assert.False(t, c.Truncated())
}

func TestChunkerPrefersParagraphBreak(t *testing.T) {
	c := &Chunker{Window: 24}
	out := c.Push("Intro line. More.\n\nNext paragraph here")
	require.NotEmpty(t, out)
	assert.Equal(t, "Intro line. More.\n\n", out[0])
}

func TestChunkerIgnoresBoundaryInFrontHalf(t *testing.T) {
	c := &Chunker{Window: 20}
	out := c.Push("Hi.\n\nabcdefghij klmnopqrstuvwxyz")
	require.NotEmpty(t, out)
	assert.Equal(t, "Hi.\n\nabcdefghij ", out[0])
}

func TestChunkerHardCutWithoutBoundary(t *testing.T) {
	c := &Chunker{Window: 5}
	out := c.Push("abcdefghijkl")
	assert.Equal(t, []string{"abcde", "fghij"}, out)
	assert.Equal(t, []string{"kl"}, c.Flush())
}

func TestChunkerAccumulatesSmallDeltas(t *testing.T) {
	c := &Chunker{Window: 12}
	var out []string
	for _, d := range []string{"Hel", "lo ", "there", ". How", " are you?"} {
		out = append(out, c.Push(d)...)
	}
	out = append(out, c.Flush()...)
	assert.Equal(t, "Hello there. How are you?", strings.Join(out, ""))
	assert.Equal(t, "Hello there.", out[0])
}

func TestChunkerCountsRunes(t *testing.T) {
	c := &Chunker{Window: 4}
	out := c.Push("ééééé")
	assert.Equal(t, []string{"éééé"}, out)
	assert.Equal(t, 4, c.Chars())
}

func TestChunkerStopsAtMaxChunks(t *testing.T) {
	c := &Chunker{Window: 3, MaxChunks: 2}
	out := c.Push("aaabbbccc")
	assert.Equal(t, []string{"aaa", "bbb"}, out)
	assert.True(t, c.Truncated())
	assert.Equal(t, ReasonMaxChunks, c.Reason())
	assert.Nil(t, c.Push("more"))
	assert.Nil(t, c.Flush())
}

func TestChunkerExactlyMaxChunksIsNotTruncated(t *testing.T) {
	c := &Chunker{Window: 3, MaxChunks: 2}
	out := append(c.Push("aaabb"), c.Flush()...)
	assert.Equal(t, []string{"aaa", "bb"}, out)
	assert.False(t, c.Truncated())
}

func TestChunkerStopsAtMaxChars(t *testing.T) {
	c := &Chunker{Window: 4, MaxChars: 6}
	out := c.Push("abcdefghij")
	assert.Equal(t, []string{"abcd", "ef"}, out)
	assert.True(t, c.Truncated())
	assert.Equal(t, ReasonMaxChars, c.Reason())
	assert.Equal(t, 6, c.Chars())
}
