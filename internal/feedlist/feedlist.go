package feedlist

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"kindle_digest/internal/domain"
)

// File loads feed sources from a text file with one URL per line. Blank lines
// and lines starting with '#' are ignored, as are repeated URLs.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string {
	return f.path
}

// Load reads the file from disk on every call; nothing is cached.
func (f *File) Load(_ context.Context) ([]domain.FeedSource, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open feed list: %w", err)
	}
	defer file.Close()

	var sources []domain.FeedSource
	seen := make(map[domain.FeedSource]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		src := domain.FeedSource(line)
		if seen[src] {
			continue
		}
		seen[src] = true
		sources = append(sources, src)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read feed list: %w", err)
	}

	return sources, nil
}
