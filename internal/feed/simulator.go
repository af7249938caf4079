// Package feed drives the simulated live trickle of queued cases into the
// visible list. There is no real push channel; a timer promotes one queued
// record per tick while the feed is enabled and the queue is non-empty.
package feed

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/caseops/intake-console/internal/model"
	"github.com/caseops/intake-console/internal/state"
)

// Options configures the Simulator.
type Options struct {
	// Interval overrides the state's configured feed period when > 0.
	Interval time.Duration

	// Logger for operational logs (optional).
	Logger *log.Logger
}

// Simulator is a two-state machine: idle (no timer) and armed (timer
// running). It arms when the feed is enabled and cases are queued, and
// disarms when either condition drops. Every edit to the queue or the enable
// flag tears the timer down and recreates it, so no stale timer fires with
// an old period or against an old queue snapshot. The promotion guard is
// re-evaluated inside the store transition, atomically with the single
// writer, which closes the fired-after-cancel race for condition changes.
type Simulator struct {
	store  *state.Store
	logger *log.Logger

	mu              sync.Mutex
	armed           bool
	interval        time.Duration
	runningInterval time.Duration
	lastSeq         uint64
	lastEnabled     bool
	lastQueued      int
	cancel          chan struct{}
	stopped         bool
}

// NewSimulator constructs a Simulator bound to the given store.
func NewSimulator(st *state.Store, opts Options) *Simulator {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Simulator{
		store:    st,
		logger:   logger,
		interval: opts.Interval,
	}
}

// Start subscribes to store changes and arms the timer if the current state
// calls for it.
func (s *Simulator) Start() {
	s.store.Subscribe(func(change state.Change) {
		s.refresh(change.Seq, change.State)
	})
	snapshot, seq := s.store.Current()
	s.refresh(seq, snapshot)
}

// Run starts the simulator and blocks until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

// Stop disarms the timer and prevents re-arming.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.disarmLocked()
}

// Armed reports whether the promotion timer is currently running.
func (s *Simulator) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// refresh re-evaluates the idle/armed condition against the given snapshot.
// Deliveries carry the commit sequence: listeners run outside the store lock,
// so two concurrent transitions can arrive here out of commit order, and a
// stale snapshot must not override the condition derived from a newer one.
func (s *Simulator) refresh(seq uint64, snapshot model.DashboardState) {
	interval := s.interval
	if interval <= 0 {
		interval = snapshot.LiveFeed.Interval()
	}
	if interval <= 0 {
		interval = model.DefaultFeedIntervalMs * time.Millisecond
	}

	enabled := snapshot.LiveFeed.Enabled
	queued := len(snapshot.QueuedCases)
	shouldArm := enabled && queued > 0

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if seq < s.lastSeq {
		return
	}
	s.lastSeq = seq

	// Any edit to the enable flag, the period, or the queue tears the timer
	// down; it is recreated below when the armed condition still holds.
	edited := enabled != s.lastEnabled || queued != s.lastQueued || interval != s.runningInterval
	s.lastEnabled = enabled
	s.lastQueued = queued

	if s.armed && (!shouldArm || edited) {
		s.disarmLocked()
	}
	if shouldArm && !s.armed {
		s.armLocked(interval)
	}
}

func (s *Simulator) armLocked(interval time.Duration) {
	cancel := make(chan struct{})
	s.cancel = cancel
	s.armed = true
	s.runningInterval = interval
	s.logger.Printf("armed: promoting one queued case every %s", interval)

	go func() {
		timer := time.NewTimer(interval)
		defer timer.Stop()
		for {
			select {
			case <-cancel:
				return
			case <-timer.C:
				// The store re-checks {enabled, non-empty queue}; a tick that
				// raced a condition change promotes nothing.
				if _, ok := s.store.Tick(); !ok {
					s.mu.Lock()
					if s.cancel == cancel {
						s.disarmLocked()
					}
					s.mu.Unlock()
					return
				}
				timer.Reset(interval)
			}
		}
	}()
}

func (s *Simulator) disarmLocked() {
	if !s.armed {
		return
	}
	close(s.cancel)
	s.cancel = nil
	s.armed = false
	s.logger.Printf("disarmed")
}
