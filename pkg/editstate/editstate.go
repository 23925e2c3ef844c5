// Package editstate holds the edit records of a document editing session.
// The store is the sole mutable source of truth for what the user has
// changed; every other layer consumes read-only copies of its records.
package editstate

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/WyRainBow/overtype/pkg/textrun"
)

// CollisionTolerance is the distance in device pixels within which two
// record corners on the same page count as the same spot. It guards against
// re-triggering an edit on a run that is already being edited.
const CollisionTolerance = 5

// State of a live record. Removal from the store is the terminal state;
// finished-without-change, cancelled and deleted records simply leave.
type State int

// Record states.
const (
	Editing   State = iota // receiving keystrokes
	Committed              // finished with changed text, covered on screen
)

func (s State) String() string {
	switch s {
	case Editing:
		return "editing"
	case Committed:
		return "committed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Record is one tracked replacement. Pos is the device-space snapshot taken
// when the edit started; the exporter paints from it, so it is never updated
// afterwards.
type Record struct {
	ID           string
	Page         int // 1-based
	OriginalText string
	NewText      string
	Pos          textrun.Position
	FontName     string
	State        State
}

// Changed reports whether the record would alter the document.
func (r Record) Changed() bool {
	return r.NewText != r.OriginalText
}

// Store is an insertion-ordered arena of records keyed by id. All methods
// are total: operations referencing an unknown id are silent no-ops, which
// lets UI events race with state teardown without faulting. Safe for
// concurrent use.
type Store struct {
	mu      sync.Mutex
	records map[string]*Record
	order   []string
	active  string
	seq     int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]*Record)}
}

// Start begins an edit over a run and returns the record id, marking it
// active. When a record on the page already sits within CollisionTolerance
// of pos that record is returned instead of inserting a duplicate, so a
// rapid double-click yields exactly one record. Any other active record is
// finished first.
func (s *Store) Start(page int, originalText string, pos textrun.Position, fontName string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		r := s.records[id]
		if r.Page == page && r.Pos.CornerWithin(pos, CollisionTolerance) {
			if id != s.active {
				s.finishLocked(s.active)
				r.State = Editing
				s.active = id
			}
			return id
		}
	}

	s.finishLocked(s.active)

	id := s.newID()
	s.records[id] = &Record{
		ID:           id,
		Page:         page,
		OriginalText: originalText,
		NewText:      originalText,
		Pos:          pos,
		FontName:     fontName,
		State:        Editing,
	}
	s.order = append(s.order, id)
	s.active = id
	return id
}

// Update replaces the record's replacement text. State is untouched.
func (s *Store) Update(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[id]; ok {
		r.NewText = text
	}
}

// Finish leaves edit mode. A record whose text is unchanged is removed —
// a no-op edit is never persisted — otherwise it transitions to Committed.
func (s *Store) Finish(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked(id)
}

// Cancel removes the record unconditionally.
func (s *Store) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

// Delete removes the record unconditionally.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

// Reactivate returns a committed record to edit mode and marks it active.
func (s *Store) Reactivate(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return
	}
	if s.active != id {
		s.finishLocked(s.active)
	}
	r.State = Editing
	s.active = id
}

// Active returns a copy of the record currently receiving keystrokes.
func (s *Store) Active() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[s.active]; ok {
		return *r, true
	}
	return Record{}, false
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[id]; ok {
		return *r, true
	}
	return Record{}, false
}

// ByPage returns copies of the page's records in insertion order, the only
// order the store defines.
func (s *Store) ByPage(page int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, id := range s.order {
		if r := s.records[id]; r.Page == page {
			out = append(out, *r)
		}
	}
	return out
}

// Snapshot returns copies of all records in insertion order.
func (s *Store) Snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.records[id])
	}
	return out
}

// Len returns the number of live records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Clear removes every record. Called when the underlying document changes
// identity.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*Record)
	s.order = nil
	s.active = ""
}

func (s *Store) finishLocked(id string) {
	r, ok := s.records[id]
	if !ok {
		return
	}
	if r.NewText == r.OriginalText {
		s.removeLocked(id)
		return
	}
	r.State = Committed
	if s.active == id {
		s.active = ""
	}
}

func (s *Store) removeLocked(id string) {
	if _, ok := s.records[id]; !ok {
		return
	}
	delete(s.records, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.active == id {
		s.active = ""
	}
}

// newID must stay unique under rapid double-click: a per-store monotonic
// counter combined with the wall clock and a random suffix. Callers hold
// s.mu.
func (s *Store) newID() string {
	s.seq++
	return fmt.Sprintf("edit-%d-%d-%04d", time.Now().UnixMilli(), s.seq, rand.Intn(10000))
}
