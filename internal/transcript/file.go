package transcript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Separator closes every record in the text transcript.
var Separator = strings.Repeat("=", 50)

// FileSink appends human-readable records to a text file.
type FileSink struct {
	path string
	mu   sync.Mutex
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (f *FileSink) Path() string { return f.path }

func (f *FileSink) Append(_ context.Context, rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}
	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(Format(rec)); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// Format renders one record as it appears in the text transcript.
func Format(rec Record) string {
	var sb strings.Builder
	sb.WriteString("\nUser: ")
	sb.WriteString(rec.Input)
	sb.WriteString("\nBest Model: ")
	sb.WriteString(rec.Winner)
	sb.WriteString("\nAI Response:\n")
	sb.WriteString(rec.Reply)
	sb.WriteString("\n")
	sb.WriteString(Separator)
	sb.WriteString("\n")
	return sb.String()
}
