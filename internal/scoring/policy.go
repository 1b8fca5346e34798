// Package scoring rates candidate replies with a small heuristic rubric and
// picks the better of two.
package scoring

import (
	"fmt"
	"strings"
)

const (
	PolicyContent = "content"
	PolicyFormat  = "format"
)

// Criterion is one named sub-score.
type Criterion struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// Breakdown holds the sub-scores of one reply in a stable order.
type Breakdown []Criterion

// Total is the sum of all criteria.
func (b Breakdown) Total() int {
	total := 0
	for _, c := range b {
		total += c.Points
	}
	return total
}

// Get returns the points for name, or 0 if the criterion is absent.
func (b Breakdown) Get(name string) int {
	for _, c := range b {
		if c.Name == name {
			return c.Points
		}
	}
	return 0
}

func (b Breakdown) String() string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%s: %d", c.Name, c.Points)
	}
	return strings.Join(parts, ", ")
}

// Result is the outcome of scoring one reply.
type Result struct {
	Total     int       `json:"total"`
	Max       int       `json:"max,omitempty"`
	Breakdown Breakdown `json:"breakdown"`
}

// Policy scores a reply. dietTag is ignored by policies that do not use it.
type Policy interface {
	Name() string
	Score(text, dietTag string) Result
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PolicyContent, "a":
		return ContentPolicy{}, nil
	case PolicyFormat, "b":
		return FormatPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown scoring policy %q (want %q or %q)", name, PolicyContent, PolicyFormat)
}

func result(b Breakdown, max int) Result {
	return Result{Total: b.Total(), Max: max, Breakdown: b}
}
