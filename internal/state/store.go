package state

import (
	"io"
	"log"
	"sync"

	"github.com/caseops/intake-console/internal/model"
)

// Change describes one applied transition. Listeners receive a
// post-transition snapshot that is theirs to keep. Seq is assigned under the
// store lock and increases by one per committed transition, so listeners can
// detect deliveries that arrive out of commit order.
type Change struct {
	Seq        uint64
	Action     string // "import", "select", "dismiss", "preferences", "tick", "enqueue", "profile", "feed", "reset"
	IncidentID string // set for transitions tied to one incident
	State      model.DashboardState
}

// Options configures a Store.
type Options struct {
	// Initial state. Zero value means model.InitialState().
	Initial *model.DashboardState

	// Logger for transition logs (optional).
	Logger *log.Logger
}

// Store owns the dashboard aggregate. It is the single writer: transitions
// are serialized under one mutex and each runs to completion before the next
// is applied. Readers get deep-copied snapshots.
type Store struct {
	mu        sync.Mutex
	state     model.DashboardState
	seq       uint64
	listeners []func(Change)
	logger    *log.Logger
}

// NewStore initializes a Store.
func NewStore(opts Options) *Store {
	initial := model.InitialState()
	if opts.Initial != nil {
		initial = cloneState(*opts.Initial)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Store{
		state:  initial,
		logger: logger,
	}
}

// Subscribe registers a listener invoked after every applied transition.
// Listeners run outside the store lock, in registration order. Deliveries
// from concurrent transitions can interleave; listeners that care about
// commit order must compare Change.Seq. Register before concurrent use;
// there is no unsubscribe.
func (s *Store) Subscribe(fn func(Change)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() model.DashboardState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneState(s.state)
}

// Current returns a deep copy of the state together with the sequence number
// of the last committed transition, for listeners that order deliveries by
// Change.Seq.
func (s *Store) Current() (model.DashboardState, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneState(s.state), s.seq
}

func (s *Store) commit(action, incidentID string, next model.DashboardState) Change {
	s.state = next
	s.seq++
	change := Change{Seq: s.seq, Action: action, IncidentID: incidentID, State: cloneState(next)}
	return change
}

func (s *Store) notify(change Change) {
	for _, fn := range s.listeners {
		fn(change)
	}
}

// ApplyImport runs the import-completed transition. On validation failure
// the previous state remains current and no listeners fire.
func (s *Store) ApplyImport(imp Import) (model.DashboardState, error) {
	s.mu.Lock()
	next, err := applyImport(s.state, imp)
	if err != nil {
		s.mu.Unlock()
		return model.DashboardState{}, err
	}
	change := s.commit("import", "", next)
	s.mu.Unlock()

	s.logger.Printf("imported %d visible / %d queued cases from sheet %s",
		len(next.Cases), len(next.QueuedCases), next.Sheet.SheetID)
	s.notify(change)
	return change.State, nil
}

// SelectCase sets the active case id unconditionally.
func (s *Store) SelectCase(incidentID string) model.DashboardState {
	s.mu.Lock()
	change := s.commit("select", incidentID, applySelectCase(s.state, incidentID))
	s.mu.Unlock()

	s.notify(change)
	return change.State
}

// DismissNotification acknowledges and removes the matching entry. Unknown
// ids report false and leave state untouched.
func (s *Store) DismissNotification(notificationID string) (model.DashboardState, bool) {
	s.mu.Lock()
	next, found := applyDismissNotification(s.state, notificationID)
	if !found {
		snapshot := cloneState(s.state)
		s.mu.Unlock()
		return snapshot, false
	}
	change := s.commit("dismiss", "", next)
	s.mu.Unlock()

	s.notify(change)
	return change.State, true
}

// SavePreferences replaces the profile's triage preferences wholesale.
func (s *Store) SavePreferences(prefs model.TriagePreferences) model.DashboardState {
	s.mu.Lock()
	change := s.commit("preferences", "", applySavePreferences(s.state, clonePreferences(prefs)))
	s.mu.Unlock()

	s.notify(change)
	return change.State
}

// Tick promotes the queued head case into the visible list. It reports false
// when the armed condition no longer holds, making stale timer fires no-ops.
func (s *Store) Tick() (model.CaseRecord, bool) {
	s.mu.Lock()
	next, promoted, ok := applyTick(s.state)
	if !ok {
		s.mu.Unlock()
		return model.CaseRecord{}, false
	}
	change := s.commit("tick", promoted.IncidentID, next)
	s.mu.Unlock()

	s.logger.Printf("live feed promoted case %s (%d queued)", promoted.IncidentID, len(next.QueuedCases))
	s.notify(change)
	return promoted, true
}

// Enqueue appends locally delivered records to the feed queue, skipping
// duplicates, and reports how many were added.
func (s *Store) Enqueue(records []model.CaseRecord) int {
	s.mu.Lock()
	next, added := applyEnqueue(s.state, records)
	if added == 0 {
		s.mu.Unlock()
		return 0
	}
	change := s.commit("enqueue", "", next)
	s.mu.Unlock()

	s.notify(change)
	return added
}

// SetProfile replaces the cached profile from a collaborator fetch.
func (s *Store) SetProfile(profile model.LawyerProfile) model.DashboardState {
	s.mu.Lock()
	profile.TriagePreferences = clonePreferences(profile.TriagePreferences)
	change := s.commit("profile", "", applySetProfile(s.state, profile))
	s.mu.Unlock()

	s.notify(change)
	return change.State
}

// SetFeedEnabled toggles the live feed flag.
func (s *Store) SetFeedEnabled(enabled bool) model.DashboardState {
	s.mu.Lock()
	change := s.commit("feed", "", applySetFeedEnabled(s.state, enabled))
	s.mu.Unlock()

	s.notify(change)
	return change.State
}

// Reset drops everything and returns to the initial state.
func (s *Store) Reset() model.DashboardState {
	s.mu.Lock()
	change := s.commit("reset", "", model.InitialState())
	s.mu.Unlock()

	s.notify(change)
	return change.State
}
