package kb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"persona-rag/internal/domain"
)

// RenderRoutingTable returns the persisted form of the routing table: one
// "- filename: summary" line per archive, sorted lexicographically.
func RenderRoutingTable(entries []domain.RoutingEntry) string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Line()
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

// WriteRoutingTable renders entries and writes them to path atomically.
func WriteRoutingTable(path string, entries []domain.RoutingEntry) error {
	return writeFileAtomic(path, []byte(RenderRoutingTable(entries)))
}

// LoadRoutingTable reads the routing table. A missing file yields an empty
// table and no error; serving continues without scope narrowing.
func LoadRoutingTable(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read routing table: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp_"+filepath.Base(path)+"_*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
