package kb

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"persona-rag/internal/embedding"
)

// SaveEmbedderState persists a fitted embedder next to the chunk store.
func SaveEmbedderState(path string, s embedding.Stateful) error {
	var buf bytes.Buffer
	if err := s.SaveState(&buf); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

// LoadEmbedderState restores embedder state written by a previous build.
// A missing file is reported as an error wrapping fs.ErrNotExist.
func LoadEmbedderState(path string, s embedding.Stateful) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("embedder state %s: %w", path, err)
		}
		return err
	}
	defer f.Close()
	return s.LoadState(f)
}
