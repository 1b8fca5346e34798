package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// SummaryTemplate folds the latest exchange into the running summary.
const SummaryTemplate = "{summary}\n{new_lines}"

// ErrEmptySummary is returned when the summarizer produces no text.
var ErrEmptySummary = errors.New("summarizer returned an empty summary")

// Summarizer produces the next summary from a rendered template.
type Summarizer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Conversation keeps a running summary of completed turns.
type Conversation struct {
	mu         sync.RWMutex
	summarizer Summarizer
	template   string
	summary    string
	newLines   string
	turns      int
}

func NewConversation(s Summarizer) *Conversation {
	return &Conversation{summarizer: s, template: SummaryTemplate}
}

// Restore seeds the summary, e.g. from a stored snapshot.
func (c *Conversation) Restore(summary string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary = summary
}

func (c *Conversation) Summary() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.summary
}

// NewLines is the most recently recorded exchange.
func (c *Conversation) NewLines() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.newLines
}

// Turns counts successful Record calls.
func (c *Conversation) Turns() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.turns
}

// Record folds one exchange into the summary. On any summarizer failure the
// previous state is kept and the error is returned.
func (c *Conversation) Record(ctx context.Context, input, dietTag, output string) error {
	lines := FormatExchange(input, dietTag, output)

	c.mu.RLock()
	prompt := Render(c.template, c.summary, lines)
	c.mu.RUnlock()

	next, err := c.summarizer.Generate(ctx, prompt)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	next = strings.TrimSpace(next)
	if next == "" {
		return ErrEmptySummary
	}

	c.mu.Lock()
	c.summary = next
	c.newLines = lines
	c.turns++
	c.mu.Unlock()
	return nil
}

// FormatExchange renders one exchange. A non-empty dietTag annotates the input.
func FormatExchange(input, dietTag, output string) string {
	if dietTag != "" {
		input = fmt.Sprintf("%s (Diet: %s)", input, dietTag)
	}
	return "Human: " + input + "\nAI: " + output
}

// Render fills the summary and new_lines slots of template.
func Render(template, summary, newLines string) string {
	return strings.NewReplacer("{summary}", summary, "{new_lines}", newLines).Replace(template)
}
