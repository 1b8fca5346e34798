package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeSummarizer struct {
	prompts []string
	reply   func(prompt string) (string, error)
}

func (f *fakeSummarizer) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply(prompt)
}

// echoSummarizer returns the rendered prompt, which makes the fold a plain concatenation.
func echoSummarizer() *fakeSummarizer {
	return &fakeSummarizer{reply: func(p string) (string, error) { return p, nil }}
}

func TestFormatExchange(t *testing.T) {
	got := FormatExchange("plan my week", "vegan", "Here is a plan")
	want := "Human: plan my week (Diet: vegan)\nAI: Here is a plan"
	if got != want {
		t.Errorf("FormatExchange = %q, want %q", got, want)
	}

	got = FormatExchange("plan my week", "", "ok")
	if got != "Human: plan my week\nAI: ok" {
		t.Errorf("FormatExchange without diet = %q", got)
	}
}

func TestRender(t *testing.T) {
	got := Render(SummaryTemplate, "prior", "Human: a\nAI: b")
	if got != "prior\nHuman: a\nAI: b" {
		t.Errorf("Render = %q", got)
	}

	// slot markers inside the values are not expanded again
	got = Render(SummaryTemplate, "{new_lines}", "x")
	if got != "{new_lines}\nx" {
		t.Errorf("Render with marker in summary = %q", got)
	}
}

func TestConversation_Record(t *testing.T) {
	s := echoSummarizer()
	c := NewConversation(s)

	if c.Summary() != "" || c.NewLines() != "" || c.Turns() != 0 {
		t.Fatal("new conversation should be empty")
	}

	if err := c.Record(context.Background(), "hi", "", "hello"); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if c.Summary() != "Human: hi\nAI: hello" {
		t.Errorf("summary = %q", c.Summary())
	}
	if c.NewLines() != "Human: hi\nAI: hello" {
		t.Errorf("newLines = %q", c.NewLines())
	}

	if err := c.Record(context.Background(), "keto lunch?", "keto", "eggs"); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	wantPrompt := "Human: hi\nAI: hello\nHuman: keto lunch? (Diet: keto)\nAI: eggs"
	if s.prompts[1] != wantPrompt {
		t.Errorf("prompt = %q, want %q", s.prompts[1], wantPrompt)
	}
	if c.Summary() != wantPrompt {
		t.Errorf("summary = %q", c.Summary())
	}
	if c.Turns() != 2 {
		t.Errorf("turns = %d, want 2", c.Turns())
	}
}

func TestConversation_RecordFailureKeepsState(t *testing.T) {
	fail := false
	s := &fakeSummarizer{reply: func(p string) (string, error) {
		if fail {
			return "", errors.New("rate limited")
		}
		return "summary: " + p, nil
	}}
	c := NewConversation(s)
	if err := c.Record(context.Background(), "a", "", "b"); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	beforeSummary, beforeLines, beforeTurns := c.Summary(), c.NewLines(), c.Turns()

	fail = true
	err := c.Record(context.Background(), "c", "vegan", "d")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("err = %v, want summarizer error", err)
	}
	if c.Summary() != beforeSummary {
		t.Errorf("summary changed after failure: %q", c.Summary())
	}
	if c.NewLines() != beforeLines {
		t.Errorf("newLines changed after failure: %q", c.NewLines())
	}
	if c.Turns() != beforeTurns {
		t.Errorf("turns changed after failure: %d", c.Turns())
	}
}

func TestConversation_EmptySummaryRejected(t *testing.T) {
	s := &fakeSummarizer{reply: func(string) (string, error) { return "  \n", nil }}
	c := NewConversation(s)
	c.Restore("kept")

	err := c.Record(context.Background(), "a", "", "b")
	if !errors.Is(err, ErrEmptySummary) {
		t.Fatalf("err = %v, want ErrEmptySummary", err)
	}
	if c.Summary() != "kept" {
		t.Errorf("summary = %q, want kept", c.Summary())
	}
}

func TestConversation_Restore(t *testing.T) {
	s := echoSummarizer()
	c := NewConversation(s)
	c.Restore("User prefers vegan meals.")

	if err := c.Record(context.Background(), "snack?", "", "almonds"); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if !strings.HasPrefix(s.prompts[0], "User prefers vegan meals.\nHuman: snack?") {
		t.Errorf("prompt = %q", s.prompts[0])
	}
}
