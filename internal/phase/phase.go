// Package phase keeps the forward-only chain of calculation phases.
package phase

import (
	"errors"
	"fmt"
	"sort"

	"github.com/zulandar/padtest/internal/solver"
)

var (
	ErrNotFound  = errors.New("phase: not found")
	ErrDuplicate = errors.New("phase: duplicate name")
)

// Kind is what a phase does in the test sequence.
type Kind string

const (
	Initial      Kind = "initial"
	Excavation   Kind = "excavation"
	Construction Kind = "construction"
	Load         Kind = "load"
	Failure      Kind = "failure"
	Safety       Kind = "safety"
	Dynamic      Kind = "dynamic"
	Shake        Kind = "shake"
)

// Status is the calculation state of a phase.
type Status string

const (
	Pending   Status = "pending"
	Converged Status = "converged"
	Failed    Status = "failed"
)

// validTransitions maps each status to the statuses it may move to.
var validTransitions = map[Status][]Status{
	Pending: {Converged, Failed},
}

// Phase is one calculation phase.
type Phase struct {
	Name     string `json:"name"`
	Test     string `json:"test"`
	Previous string `json:"previous,omitempty"`
	Kind     Kind   `json:"kind"`
	// Target is the load, multiplier or duration the phase aims at.
	Target      float64   `json:"target"`
	Status      Status    `json:"status"`
	Message     string    `json:"message,omitempty"`
	SolverID    solver.ID `json:"solver_id"`
	Seq         int       `json:"seq"`
	Ratchetting bool      `json:"ratchetting,omitempty"`
}

// Chain holds phases in creation order. A phase may only follow a phase
// that already exists, so the graph is acyclic by construction.
type Chain struct {
	phases map[string]*Phase
	order  []string
	seq    int
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{phases: make(map[string]*Phase)}
}

// Add appends a phase. Only the first phase may have no predecessor.
func (c *Chain) Add(p Phase) (*Phase, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("phase: name is required")
	}
	if _, ok := c.phases[p.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, p.Name)
	}
	if p.Previous == "" && len(c.phases) > 0 {
		return nil, fmt.Errorf("phase: %s needs a previous phase", p.Name)
	}
	if p.Previous != "" {
		if _, ok := c.phases[p.Previous]; !ok {
			return nil, fmt.Errorf("%w: previous phase %s of %s", ErrNotFound, p.Previous, p.Name)
		}
	}
	c.seq++
	p.Seq = c.seq
	if p.Status == "" {
		p.Status = Pending
	}
	stored := p
	c.phases[p.Name] = &stored
	c.order = append(c.order, p.Name)
	return &stored, nil
}

// Get returns a phase by name.
func (c *Chain) Get(name string) (*Phase, bool) {
	p, ok := c.phases[name]
	return p, ok
}

// Len returns the number of phases.
func (c *Chain) Len() int { return len(c.order) }

// All returns every phase in creation order.
func (c *Chain) All() []*Phase {
	out := make([]*Phase, 0, len(c.order))
	for _, n := range c.order {
		out = append(out, c.phases[n])
	}
	return out
}

// SetStatus moves a pending phase to converged or failed.
func (c *Chain) SetStatus(name string, s Status, msg string) error {
	p, ok := c.phases[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	for _, v := range validTransitions[p.Status] {
		if v == s {
			p.Status = s
			p.Message = msg
			return nil
		}
	}
	return fmt.Errorf("phase: invalid transition %s -> %s for %s", p.Status, s, name)
}

// Children returns the phases that directly follow name.
func (c *Chain) Children(name string) []*Phase {
	var out []*Phase
	for _, n := range c.order {
		if p := c.phases[n]; p.Previous == name {
			out = append(out, p)
		}
	}
	return out
}

// Descendants returns every phase reachable from name, in creation order.
func (c *Chain) Descendants(name string) []*Phase {
	reached := map[string]bool{name: true}
	var out []*Phase
	// Creation order is a topological order of the chain.
	for _, n := range c.order {
		p := c.phases[n]
		if p.Previous != "" && reached[p.Previous] {
			reached[n] = true
			out = append(out, p)
		}
	}
	return out
}

// Remove deletes a phase and its descendants and returns them leaf-first.
func (c *Chain) Remove(name string) ([]*Phase, error) {
	p, ok := c.phases[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	removed := append([]*Phase{p}, c.Descendants(name)...)
	sort.Slice(removed, func(i, j int) bool { return removed[i].Seq > removed[j].Seq })

	gone := make(map[string]bool, len(removed))
	for _, r := range removed {
		gone[r.Name] = true
		delete(c.phases, r.Name)
	}
	kept := c.order[:0]
	for _, n := range c.order {
		if !gone[n] {
			kept = append(kept, n)
		}
	}
	c.order = kept
	return removed, nil
}

// ByTest returns the phases of a test in creation order.
func (c *Chain) ByTest(test string) []*Phase {
	var out []*Phase
	for _, n := range c.order {
		if p := c.phases[n]; p.Test == test {
			out = append(out, p)
		}
	}
	return out
}

// Last returns the most recent phase of a test.
func (c *Chain) Last(test string) (*Phase, bool) {
	ps := c.ByTest(test)
	if len(ps) == 0 {
		return nil, false
	}
	return ps[len(ps)-1], true
}

// LastConverged returns the most recent converged phase of a test.
func (c *Chain) LastConverged(test string) (*Phase, bool) {
	ps := c.ByTest(test)
	for i := len(ps) - 1; i >= 0; i-- {
		if ps[i].Status == Converged {
			return ps[i], true
		}
	}
	return nil, false
}

// Tests returns the distinct test ids in order of first appearance.
func (c *Chain) Tests() []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range c.order {
		t := c.phases[n].Test
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
