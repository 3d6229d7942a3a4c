package summarizer

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	// GlossarySummary describes the alias dictionary archive.
	GlossarySummary = "world-entity dictionary / alias table"
	// FallbackSummary is used for archives without recognised head tags.
	FallbackSummary = "story archive"
	// UnreadableSummary is used when the archive cannot be read at all.
	UnreadableSummary = "unknown archive"

	tagJoiner = " / "
	ellipsis  = "..."
)

// tagKind controls how a tag value is rendered into the summary.
type tagKind int

const (
	tagVerbatim tagKind = iota
	tagTruncated
)

// tagPrefixes lists recognised head-of-file tags, in English and in the
// corpus' original language.
var tagPrefixes = []struct {
	prefix string
	kind   tagKind
}{
	{"[Archive Type:", tagVerbatim},
	{"[Story Stage:", tagVerbatim},
	{"[Key Characters:", tagTruncated},
	{"[Core Event:", tagTruncated},
	{"[档案类型:", tagVerbatim},
	{"[剧情阶段:", tagVerbatim},
	{"[关键人物:", tagTruncated},
	{"[核心事件:", tagTruncated},
}

// TagSummarizer extracts a one-line summary from bracketed head tags.
type TagSummarizer struct {
	headLines int
	maxTagLen int
}

// NewTagSummarizer creates a summarizer scanning the first headLines lines
// and truncating character/event tags to maxTagLen runes.
func NewTagSummarizer(headLines, maxTagLen int) *TagSummarizer {
	if headLines <= 0 {
		headLines = 10
	}
	if maxTagLen <= 0 {
		maxTagLen = 20
	}
	return &TagSummarizer{headLines: headLines, maxTagLen: maxTagLen}
}

// Summarize reads the head of the archive at path. It never fails: read
// errors produce UnreadableSummary.
func (s *TagSummarizer) Summarize(path string) string {
	lines, err := s.readHead(path)
	if err != nil {
		return UnreadableSummary
	}
	return s.SummarizeLines(filepath.Base(path), lines)
}

// SummarizeLines builds the summary from already-read head lines.
func (s *TagSummarizer) SummarizeLines(filename string, lines []string) string {
	var tags []string
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		for _, tp := range tagPrefixes {
			if !strings.HasPrefix(line, tp.prefix) {
				continue
			}
			value := tagValue(line)
			if tp.kind == tagTruncated {
				value = truncateRunes(value, s.maxTagLen)
			}
			tags = append(tags, value)
			break
		}
	}
	if len(tags) > 0 {
		return strings.Join(tags, tagJoiner)
	}
	if IsGlossaryFile(filename) {
		return GlossarySummary
	}
	return FallbackSummary
}

// IsGlossaryFile reports whether filename follows the glossary naming convention.
func IsGlossaryFile(filename string) bool {
	return strings.Contains(strings.ToLower(filename), "glossary")
}

func (s *TagSummarizer) readHead(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines := make([]string, 0, s.headLines)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for len(lines) < s.headLines && sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// tagValue returns the text after the first colon with surrounding spaces
// and closing brackets removed.
func tagValue(line string) string {
	_, after, _ := strings.Cut(line, ":")
	return strings.Trim(after, " ]")
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + ellipsis
}
