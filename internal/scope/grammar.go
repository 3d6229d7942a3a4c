// Package scope narrows retrieval to the archives most relevant to a query.
package scope

import (
	"regexp"
	"strings"
)

// None is the router sentinel meaning "no archive applies".
const None = "NONE"

// Extension is the only archive extension the router may emit.
const Extension = ".txt"

var (
	// ASCII only, so names embedded in CJK prose are still split out.
	fileToken   = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_\-]*\.txt$`)
	filePattern = regexp.MustCompile(`[A-Za-z0-9_][A-Za-z0-9_\-]*\.txt`)
)

// Scope is a parsed router decision: either NONE (no files) or an ordered,
// de-duplicated list of archive filenames.
type Scope struct {
	Files []string
	// Extracted is set when Files were recovered from malformed output.
	Extracted bool
}

// IsNone reports whether retrieval should be skipped.
func (s Scope) IsNone() bool { return len(s.Files) == 0 }

// String renders the scope in router grammar form.
func (s Scope) String() string {
	if s.IsNone() {
		return None
	}
	return strings.Join(s.Files, ",")
}

// Parse reads router output. The grammar is
//
//	NONE | file ("," file)*    where file matches [A-Za-z0-9_][A-Za-z0-9_\-]*\.txt
//
// Output that does not fully match is scanned for filename-shaped tokens;
// when none are found the result is NONE. At most maxFiles files are kept
// (maxFiles <= 0 keeps all).
func Parse(raw string, maxFiles int) Scope {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == None {
		return Scope{}
	}
	if files, ok := parseStrict(raw); ok {
		return Scope{Files: limit(files, maxFiles)}
	}
	files := dedupe(filePattern.FindAllString(raw, -1))
	if len(files) == 0 {
		return Scope{}
	}
	return Scope{Files: limit(files, maxFiles), Extracted: true}
}

func parseStrict(raw string) ([]string, bool) {
	parts := strings.Split(raw, ",")
	files := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if !fileToken.MatchString(p) {
			return nil, false
		}
		files = append(files, p)
	}
	return dedupe(files), true
}

func dedupe(files []string) []string {
	seen := make(map[string]struct{}, len(files))
	out := files[:0]
	for _, f := range files {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func limit(files []string, n int) []string {
	if n > 0 && len(files) > n {
		return files[:n]
	}
	return files
}
