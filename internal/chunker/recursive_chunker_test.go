package chunker

import (
	"fmt"
	"slices"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func collect(c *RecursiveChunker, text string) []string {
	return slices.Collect(c.Segment(text))
}

func TestSegment_ShortDocumentIsOneChunk(t *testing.T) {
	c := NewRecursiveChunker(600, 150, nil)
	text := "  [Archive Type: Daily Slice]\n\nAya practised her self-introduction again.\n"

	chunks := collect(c, text)

	require.Equal(t, []string{strings.TrimSpace(text)}, chunks)
}

func TestSegment_ExactlyAtBoundIsOneChunk(t *testing.T) {
	c := NewRecursiveChunker(50, 10, nil)
	text := strings.Repeat("彩", 50)

	require.Equal(t, []string{text}, collect(c, text))
}

func TestSegment_ParagraphsRespectBound(t *testing.T) {
	c := NewRecursiveChunker(600, 150, nil)
	para := strings.Repeat("x", 300)
	text := para + "\n\n" + para + "\n\n" + para

	chunks := collect(c, text)

	require.Len(t, chunks, 3)
	for _, ch := range chunks {
		require.LessOrEqual(t, utf8.RuneCountInString(ch), 600)
		require.Equal(t, para, ch)
	}
}

func TestSegment_LinesOverlapWithPreviousChunk(t *testing.T) {
	c := NewRecursiveChunker(100, 30, nil)
	var lines []string
	for i := 0; i < 30; i++ {
		lines = append(lines, fmt.Sprintf("line %02d is short", i))
	}
	text := strings.Join(lines, "\n")

	chunks := collect(c, text)

	require.Greater(t, len(chunks), 1)
	for i, ch := range chunks {
		require.LessOrEqual(t, utf8.RuneCountInString(ch), 100)
		if i == 0 {
			continue
		}
		first := strings.SplitN(ch, "\n", 2)[0]
		require.Contains(t, chunks[i-1], first, "chunk %d should start with the tail of chunk %d", i, i-1)
	}
	require.True(t, strings.HasPrefix(chunks[0], "line 00"))
	require.True(t, strings.HasSuffix(chunks[len(chunks)-1], "line 29 is short"))
}

func TestSegment_NoSeparatorFallsBackToHardSlicing(t *testing.T) {
	c := NewRecursiveChunker(600, 150, nil)
	text := strings.Repeat("abcdefghij", 100)

	chunks := collect(c, text)

	require.Equal(t, []string{text[:600], text[450:]}, chunks)
}

func TestSegment_OversizedSentenceRecursesToNextSeparator(t *testing.T) {
	c := NewRecursiveChunker(40, 0, nil)
	text := "短い文。" + strings.Repeat("長", 30) + "！" + strings.Repeat("続", 30)

	chunks := collect(c, text)

	for _, ch := range chunks {
		require.LessOrEqual(t, utf8.RuneCountInString(ch), 40)
	}
	require.Equal(t, text, strings.Join(chunks, ""))
}

func TestSegment_StopsWhenConsumerStops(t *testing.T) {
	c := NewRecursiveChunker(10, 0, nil)
	text := strings.Repeat("abcdefghij\n", 20)

	n := 0
	for range c.Segment(text) {
		n++
		if n == 2 {
			break
		}
	}
	require.Equal(t, 2, n)
}

func TestSplitKeepSeparator(t *testing.T) {
	tests := []struct {
		name string
		text string
		sep  string
		want []string
	}{
		{name: "leading text", text: "a\nb\nc", sep: "\n", want: []string{"a", "\nb", "\nc"}},
		{name: "leading separator", text: "【a】【b", sep: "【", want: []string{"【a】", "【b"}},
		{name: "runes", text: "彩ab", sep: "", want: []string{"彩", "a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, splitKeepSeparator(tt.text, tt.sep))
		})
	}
}
