// Package progress tracks which targets, and which of their polygons, have
// been found.
package progress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// SolvedTarget is the solved state of one target: either fully solved, or the
// sorted indices of the polygons found so far.
type SolvedTarget struct {
	Full  bool
	Found []int
}

// MarshalJSON encodes a fully solved target as 1 and a partial one as its index list
func (s SolvedTarget) MarshalJSON() ([]byte, error) {
	if s.Full {
		return []byte("1"), nil
	}
	found := s.Found
	if found == nil {
		found = []int{}
	}
	return json.Marshal(found)
}

// UnmarshalJSON accepts 1, a list of polygon indices, or null for no progress
func (s *SolvedTarget) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = SolvedTarget{}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if n != 1 {
			return fmt.Errorf("solved target must be 1 or a list, got %d", n)
		}
		*s = SolvedTarget{Full: true}
		return nil
	}
	var found []int
	if err := json.Unmarshal(data, &found); err != nil {
		return fmt.Errorf("solved target must be 1 or a list: %w", err)
	}
	sort.Ints(found)
	*s = SolvedTarget{Found: found}
	return nil
}

// MarkResult describes what a Mark call changed
type MarkResult struct {
	State        SolvedTarget
	AlreadyFound bool
	JustSolved   bool
}

// Tracker holds solved state keyed by target index. It is safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	solved map[int]SolvedTarget
}

// New creates an empty tracker
func New() *Tracker {
	return &Tracker{solved: make(map[int]SolvedTarget)}
}

// Mark records that polygon of target was found. polygonCount is the number of
// polygons the target has; once all of them are found the target becomes fully solved.
func (t *Tracker) Mark(target, polygon, polygonCount int) (MarkResult, error) {
	if polygon < 0 || polygon >= polygonCount {
		return MarkResult{}, fmt.Errorf("polygon %d out of range for target %d with %d polygons", polygon, target, polygonCount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.solved[target]
	if state.Full || containsInt(state.Found, polygon) {
		return MarkResult{State: state.clone(), AlreadyFound: true}, nil
	}

	// a restored state may list polygons the target no longer has
	found := []int{polygon}
	for _, i := range state.Found {
		if i >= 0 && i < polygonCount && !containsInt(found, i) {
			found = append(found, i)
		}
	}
	sort.Ints(found)
	if len(found) >= polygonCount {
		state = SolvedTarget{Full: true}
	} else {
		state = SolvedTarget{Found: found}
	}
	t.solved[target] = state

	return MarkResult{State: state.clone(), JustSolved: state.Full}, nil
}

// State returns the solved state of target and whether any progress exists
func (t *Tracker) State(target int) (SolvedTarget, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.solved[target]
	return s.clone(), ok
}

// IsSolved reports whether target is fully solved
func (t *Tracker) IsSolved(target int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.solved[target].Full
}

// IsFound reports whether a polygon of target has been found, either directly
// or because the whole target is solved
func (t *Tracker) IsFound(target, polygon int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.solved[target]
	return s.Full || containsInt(s.Found, polygon)
}

// Found returns the polygons found so far for a partially solved target. It is
// empty for a fully solved target, which only records that it is complete.
func (t *Tracker) Found(target int) []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]int(nil), t.solved[target].Found...)
}

// SolvedCount returns the number of fully solved targets
func (t *Tracker) SolvedCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, s := range t.solved {
		if s.Full {
			n++
		}
	}
	return n
}

// Reset forgets all progress on target
func (t *Tracker) Reset(target int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.solved, target)
}

// ResetAll forgets all progress
func (t *Tracker) ResetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.solved = make(map[int]SolvedTarget)
}

// Snapshot returns a copy of all solved state
func (t *Tracker) Snapshot() map[int]SolvedTarget {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int]SolvedTarget, len(t.solved))
	for k, v := range t.solved {
		out[k] = v.clone()
	}
	return out
}

// Restore replaces all solved state with snapshot. Entries without progress are dropped.
func (t *Tracker) Restore(snapshot map[int]SolvedTarget) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.solved = make(map[int]SolvedTarget, len(snapshot))
	for k, v := range snapshot {
		if !v.Full && len(v.Found) == 0 {
			continue
		}
		t.solved[k] = v.clone()
	}
}

// MarshalJSON encodes the tracker as an object keyed by target index
func (t *Tracker) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Snapshot())
}

// UnmarshalJSON restores the tracker from an object keyed by target index
func (t *Tracker) UnmarshalJSON(data []byte) error {
	var snapshot map[int]SolvedTarget
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to decode progress: %w", err)
	}
	t.Restore(snapshot)
	return nil
}

func (s SolvedTarget) clone() SolvedTarget {
	if s.Found == nil {
		return s
	}
	return SolvedTarget{Full: s.Full, Found: append([]int(nil), s.Found...)}
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
