package chunker

import (
	"iter"
	"strings"
	"unicode/utf8"
)

// DefaultSeparators is the split hierarchy used for narrative archives:
// paragraph break, line break, the scene marker, then sentence endings.
var DefaultSeparators = []string{"\n\n", "\n", "【", "。", "！", "？", ".", "!", "?"}

// RecursiveChunker splits text on the earliest separator present, recursing
// into oversized pieces with the remaining separators and falling back to
// hard rune slicing when none apply. Sizes are measured in runes.
type RecursiveChunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

// NewRecursiveChunker creates a separator-hierarchy chunker.
func NewRecursiveChunker(chunkSize, overlap int, separators []string) *RecursiveChunker {
	if chunkSize <= 0 {
		chunkSize = 600
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	return &RecursiveChunker{chunkSize: chunkSize, overlap: overlap, separators: separators}
}

// Segment returns the chunk texts of content, produced on demand.
// Whitespace-only results are left for the caller to drop.
func (c *RecursiveChunker) Segment(content string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if utf8.RuneCountInString(content) <= c.chunkSize {
			yield(strings.TrimSpace(content))
			return
		}
		c.split(content, c.separators, yield)
	}
}

func (c *RecursiveChunker) split(text string, separators []string, yield func(string) bool) bool {
	sep := ""
	var rest []string
	for i, s := range separators {
		if s == "" {
			break
		}
		if strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	var good []string
	for _, piece := range splitKeepSeparator(text, sep) {
		if utf8.RuneCountInString(piece) < c.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			if !c.merge(good, yield) {
				return false
			}
			good = nil
		}
		if sep == "" {
			if !yield(piece) {
				return false
			}
			continue
		}
		if !c.split(piece, rest, yield) {
			return false
		}
	}
	if len(good) > 0 {
		return c.merge(good, yield)
	}
	return true
}

// merge greedily packs pieces up to chunkSize, carrying the tail of each
// emitted chunk (at most overlap runes) into the next one.
func (c *RecursiveChunker) merge(pieces []string, yield func(string) bool) bool {
	var current []string
	total := 0
	for _, p := range pieces {
		l := utf8.RuneCountInString(p)
		if total+l > c.chunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				if !yield(doc) {
					return false
				}
			}
			for total > c.overlap || (total+l > c.chunkSize && total > 0) {
				total -= utf8.RuneCountInString(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += l
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		return yield(doc)
	}
	return true
}

// splitKeepSeparator splits text on sep, keeping each separator at the start
// of the piece that follows it. An empty sep splits into single runes.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, sep+p)
	}
	return out
}
