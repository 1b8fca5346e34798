// Package transcript persists completed turns.
package transcript

import (
	"context"
	"errors"
	"time"

	"github.com/stellarlinkco/mealmatch/internal/scoring"
)

// Record is one completed turn.
type Record struct {
	ID         string
	Time       time.Time
	Input      string
	Diet       string
	Policy     string
	Winner     string
	Reply      string
	Candidates []Candidate
}

// Candidate is the score one backend earned in a turn.
type Candidate struct {
	Backend string         `json:"backend"`
	Result  scoring.Result `json:"result"`
}

// Sink receives every completed turn. Append-only.
type Sink interface {
	Append(ctx context.Context, rec Record) error
}

// MultiSink appends to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
