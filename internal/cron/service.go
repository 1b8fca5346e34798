// Package cron periodically snapshots the conversation summary so a later
// session can resume from it.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
	"unicode/utf8"

	rcron "github.com/robfig/cron/v3"
)

// SummarySource exposes the current running summary.
type SummarySource interface {
	Summary() string
}

// SummaryStore persists a summary snapshot.
type SummaryStore interface {
	SaveSummary(ctx context.Context, summary string) error
}

// State describes the most recent snapshot run.
type State struct {
	LastRunAt  time.Time
	LastStatus string
	LastError  string
	Saved      int
}

type Service struct {
	schedule string
	source   SummarySource
	store    SummaryStore

	// runMu serializes snapshots; mu guards state and is never held across I/O
	runMu     sync.Mutex
	mu        sync.Mutex
	cron      *rcron.Cron
	entryID   rcron.EntryID
	lastSaved string
	state     State
	ctx       context.Context
	cancel    context.CancelFunc
	stopCh    chan struct{}
}

func NewService(schedule string, source SummarySource, store SummaryStore) *Service {
	return &Service{schedule: schedule, source: source, store: store}
}

// Start registers the snapshot job and starts the scheduler. The service
// stops on its own when ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	if s.source == nil || s.store == nil {
		return errors.New("snapshot service needs a summary source and store")
	}

	c := rcron.New(rcron.WithSeconds())
	id, err := c.AddFunc(s.schedule, func() {
		s.mu.Lock()
		runCtx := s.ctx
		s.mu.Unlock()
		if runCtx == nil {
			return
		}
		if _, err := s.Snapshot(runCtx); err != nil {
			log.Printf("[cron] snapshot error: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("register snapshot job (%s): %w", s.schedule, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	stopCh := make(chan struct{})
	s.mu.Lock()
	s.cron = c
	s.entryID = id
	s.ctx = runCtx
	s.cancel = cancel
	s.stopCh = stopCh
	s.mu.Unlock()

	c.Start()
	log.Printf("[cron] summary snapshots scheduled (%s)", s.schedule)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopCh:
		}
	}()
	return nil
}

// Snapshot saves the current summary when it is non-empty and differs from
// the last one saved. It reports whether anything was written.
func (s *Service) Snapshot(ctx context.Context) (bool, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	summary := s.source.Summary()

	s.mu.Lock()
	s.state.LastRunAt = time.Now()
	if summary == "" || summary == s.lastSaved {
		s.state.LastStatus = "skipped"
		s.state.LastError = ""
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()

	err := s.store.SaveSummary(ctx, summary)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state.LastStatus = "error"
		s.state.LastError = err.Error()
		return false, fmt.Errorf("save summary: %w", err)
	}
	s.lastSaved = summary
	s.state.LastStatus = "ok"
	s.state.LastError = ""
	s.state.Saved++
	log.Printf("[cron] summary saved: %s", truncate(summary, 100))
	return true, nil
}

// Seed marks summary as already persisted, e.g. after restoring it at startup.
func (s *Service) Seed(summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSaved = summary
}

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Next reports when the snapshot job runs next, or the zero time when the
// service is not running.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	stopCh := s.stopCh
	c := s.cron
	s.cancel = nil
	s.stopCh = nil
	s.cron = nil
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if c != nil {
		stopCtx := c.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			log.Printf("[cron] stop timeout waiting for running jobs")
		}
	}
	if cancel != nil {
		cancel()
	}
	log.Printf("[cron] stopped")
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
