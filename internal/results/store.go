package results

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zulandar/padtest/internal/phase"
)

// ErrDuplicate is returned when a record key is already stored.
var ErrDuplicate = errors.New("results: duplicate record")

// Store is an append-only record store safe for concurrent readers.
type Store struct {
	mu      sync.RWMutex
	records []Record
	keys    map[Key]bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{keys: make(map[Key]bool)}
}

// Add appends records. Either all records are added or none.
func (s *Store) Add(recs ...Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make(map[Key]bool, len(recs))
	for _, r := range recs {
		k := r.Key()
		if s.keys[k] || batch[k] {
			return fmt.Errorf("%w: %s/%s/%s/%d", ErrDuplicate, k.Test, k.Phase, k.Location, k.Step)
		}
		batch[k] = true
	}
	for k := range batch {
		s.keys[k] = true
	}
	s.records = append(s.records, recs...)
	return nil
}

// DeletePhases removes every record of the named phases and returns how
// many were removed.
func (s *Store) DeletePhases(names ...string) int {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	return s.deleteWhere(func(r Record) bool { return drop[r.Phase] })
}

// DeleteTest removes every record of a test.
func (s *Store) DeleteTest(test string) int {
	return s.deleteWhere(func(r Record) bool { return r.Test == test })
}

func (s *Store) deleteWhere(match func(Record) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]Record, 0, len(s.records))
	n := 0
	for _, r := range s.records {
		if match(r) {
			delete(s.keys, r.Key())
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return n
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Snapshot returns an immutable copy of the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := make([]Record, len(s.records))
	copy(recs, s.records)
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Seq != recs[j].Seq {
			return recs[i].Seq < recs[j].Seq
		}
		return recs[i].Step < recs[j].Step
	})
	return Snapshot{records: recs}
}

// Snapshot is a read-only view of the records ordered by phase sequence
// then step.
type Snapshot struct {
	records []Record
}

// Filter selects snapshot rows. Empty fields match everything.
type Filter struct {
	Test     string
	Phase    string
	Location string
	Kinds    []phase.Kind
}

func (f Filter) match(r Record) bool {
	if f.Test != "" && r.Test != f.Test {
		return false
	}
	if f.Phase != "" && r.Phase != f.Phase {
		return false
	}
	if f.Location != "" && r.Location != f.Location {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if r.Kind == k {
			return true
		}
	}
	return false
}

// Len returns the number of rows.
func (s Snapshot) Len() int { return len(s.records) }

// Table returns a copy of the rows matching f.
func (s Snapshot) Table(f Filter) []Record {
	var out []Record
	for _, r := range s.records {
		if f.match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Tests returns the test ids in order of first record.
func (s Snapshot) Tests() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range s.records {
		if !seen[r.Test] {
			seen[r.Test] = true
			out = append(out, r.Test)
		}
	}
	return out
}

// Point is one point of a load-displacement curve.
type Point struct {
	Phase        string  `json:"phase"`
	Load         float64 `json:"load"`
	Displacement float64 `json:"displacement"`
}

// Curve returns the terminal point of each phase of a test at a location,
// starting from the origin.
func (s Snapshot) Curve(test, location string) []Point {
	last := map[string]Record{}
	var order []string
	for _, r := range s.records {
		if r.Test != test || r.Location != location {
			continue
		}
		if _, ok := last[r.Phase]; !ok {
			order = append(order, r.Phase)
		}
		last[r.Phase] = r
	}
	if len(order) == 0 {
		return nil
	}
	out := []Point{{}}
	for _, p := range order {
		r := last[p]
		out = append(out, Point{Phase: p, Load: r.Force, Displacement: r.Displacement})
	}
	return out
}
