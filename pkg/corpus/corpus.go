// Package corpus reads and writes the line-delimited chunk corpus.
package corpus

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/xhad/printdesk/internal/models"
)

var ErrEmptyCorpus = errors.New("corpus: no records could be loaded")

// maxLineSize bounds a single record; chunks are a few hundred characters
// but titles and tags come along with them.
const maxLineSize = 1 << 20

// Load parses one JSON chunk record per line, in file order. Malformed or
// empty-text records are skipped with a warning.
func Load(path string, logger *zap.Logger) ([]models.Chunk, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var chunks []models.Chunk
	lineNo := 0
	skipped := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk models.Chunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			skipped++
			logger.Warn("skipping malformed corpus record",
				zap.String("path", path), zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		if strings.TrimSpace(chunk.Text) == "" {
			skipped++
			logger.Warn("skipping corpus record without content",
				zap.String("path", path), zap.Int("line", lineNo), zap.String("id", chunk.ID))
			continue
		}
		chunks = append(chunks, chunk)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("corpus: reading %s: %w", path, err)
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCorpus, path)
	}

	logger.Info("corpus loaded", zap.String("path", path),
		zap.Int("chunks", len(chunks)), zap.Int("skipped", skipped))
	return chunks, nil
}

// Write stores chunks one per line. The file is written next to path and
// renamed over it once complete.
func Write(path string, chunks []models.Chunk) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, chunk := range chunks {
		if chunk.Tags == nil {
			chunk.Tags = []string{}
		}
		if err := enc.Encode(chunk); err != nil {
			file.Close()
			os.Remove(tmp)
			return fmt.Errorf("corpus: encoding %s: %w", chunk.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, path)
}
