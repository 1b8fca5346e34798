// Package coach runs one conversational turn: ask both backends, score the
// replies, keep the better one and remember the exchange.
package coach

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/stellarlinkco/mealmatch/internal/backend"
	"github.com/stellarlinkco/mealmatch/internal/diet"
	"github.com/stellarlinkco/mealmatch/internal/memory"
	"github.com/stellarlinkco/mealmatch/internal/scoring"
	"github.com/stellarlinkco/mealmatch/internal/transcript"
)

// ErrResponseUnavailable wraps every backend failure that aborts a turn.
var ErrResponseUnavailable = errors.New("response unavailable")

// Options wires a Coach. Backends are listed in tie-break order.
type Options struct {
	Backends [2]backend.Backend
	Policy   scoring.Policy
	Memory   *memory.Conversation
	Sink     transcript.Sink
	Timeout  time.Duration
}

// Reply is the outcome of a completed turn.
type Reply struct {
	Input      string
	Diet       string
	Policy     string
	Candidates []scoring.Scored
	Winner     scoring.Scored
}

// Answer is the text shown to the user.
func (r *Reply) Answer() string {
	return fmt.Sprintf("AI Coach (Diet: %s):\n%s", diet.Label(r.Diet), r.Winner.Text)
}

type Coach struct {
	mu       sync.Mutex
	backends [2]backend.Backend
	policy   scoring.Policy
	memory   *memory.Conversation
	sink     transcript.Sink
	timeout  time.Duration
}

func New(opts Options) (*Coach, error) {
	for i, b := range opts.Backends {
		if b == nil {
			return nil, fmt.Errorf("backend %d is nil", i)
		}
	}
	if opts.Policy == nil {
		return nil, errors.New("scoring policy is nil")
	}
	if opts.Memory == nil {
		return nil, errors.New("conversation memory is nil")
	}
	return &Coach{
		backends: opts.Backends,
		policy:   opts.Policy,
		memory:   opts.Memory,
		sink:     opts.Sink,
		timeout:  opts.Timeout,
	}, nil
}

func (c *Coach) Policy() scoring.Policy { return c.policy }

func (c *Coach) Memory() *memory.Conversation { return c.memory }

// Turn handles one user message. Turns are serialized.
func (c *Coach) Turn(ctx context.Context, input string) (*Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tag := diet.Detect(input)

	texts, err := c.fetch(ctx, input)
	if err != nil {
		log.Printf("[coach] turn aborted: %v", err)
		return nil, fmt.Errorf("%w: %w", ErrResponseUnavailable, err)
	}

	reply := &Reply{
		Input:      input,
		Diet:       tag,
		Policy:     c.policy.Name(),
		Candidates: make([]scoring.Scored, len(texts)),
	}
	for i, text := range texts {
		reply.Candidates[i] = scoring.Scored{
			Backend: c.backends[i].Name(),
			Text:    text,
			Result:  c.policy.Score(text, tag),
		}
	}
	reply.Winner = scoring.Select(reply.Candidates[0], reply.Candidates[1])

	memoryTag := ""
	if usesDiet(c.policy) {
		memoryTag = tag
	}
	if err := c.memory.Record(ctx, input, memoryTag, reply.Winner.Text); err != nil {
		log.Printf("[memory] summary not updated: %v", err)
	}

	if c.sink != nil {
		if err := c.sink.Append(ctx, record(reply)); err != nil {
			log.Printf("[transcript] append failed: %v", err)
		}
	}

	return reply, nil
}

type fetchResult struct {
	index int
	text  string
	err   error
}

// fetch asks both backends in parallel and waits for both, or for the
// turn deadline.
func (c *Coach) fetch(ctx context.Context, input string) ([2]string, error) {
	var texts [2]string

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	results := make(chan fetchResult, len(c.backends))
	for i, b := range c.backends {
		go func(i int, b backend.Backend) {
			text, err := b.Generate(ctx, input)
			if err == nil && strings.TrimSpace(text) == "" {
				err = backend.ErrEmptyResponse
			}
			if err != nil {
				var be *backend.Error
				if !errors.As(err, &be) {
					err = &backend.Error{Backend: b.Name(), Err: err}
				}
			}
			results <- fetchResult{index: i, text: text, err: err}
		}(i, b)
	}

	var errs []error
	for range c.backends {
		select {
		case r := <-results:
			if r.err != nil {
				errs = append(errs, r.err)
				continue
			}
			texts[r.index] = r.text
		case <-ctx.Done():
			return texts, fmt.Errorf("waiting for backends: %w", ctx.Err())
		}
	}
	return texts, errors.Join(errs...)
}

type dietAware interface {
	UsesDiet() bool
}

func usesDiet(p scoring.Policy) bool {
	d, ok := p.(dietAware)
	return ok && d.UsesDiet()
}

func record(r *Reply) transcript.Record {
	rec := transcript.Record{
		Input:  r.Input,
		Diet:   r.Diet,
		Policy: r.Policy,
		Winner: r.Winner.Backend,
		Reply:  r.Winner.Text,
	}
	for _, c := range r.Candidates {
		rec.Candidates = append(rec.Candidates, transcript.Candidate{Backend: c.Backend, Result: c.Result})
	}
	return rec
}
