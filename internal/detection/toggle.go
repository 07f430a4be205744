package detection

import (
	"sync"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/pkg/types"
)

// Phase is where a toggle is in its lifecycle.
type Phase string

const (
	PhaseTentative Phase = "tentative"
	PhaseConfirmed Phase = "confirmed"
	PhaseReverted  Phase = "reverted"
)

// Transition is an optimistic enable/disable. BeginToggle applies it to the
// store immediately; exactly one of Confirm or Revert settles it. Overlapping
// toggles are not serialized: each settles independently and the last write
// wins.
type Transition struct {
	Feature  types.Feature
	Previous bool
	Target   bool

	store *Store
	mu    sync.Mutex
	phase Phase
}

// BeginToggle flips feature to enabled and publishes the tentative state.
func (s *Store) BeginToggle(feature types.Feature, enabled bool) (*Transition, State, error) {
	t := &Transition{Feature: feature, Target: enabled, store: s, phase: PhaseTentative}
	st, err := s.Update(feature, func(cur State) State {
		t.Previous = cur.Enabled
		cur.Enabled = enabled
		cur.Pending = true
		cur.Status = StatusLabel(cur)
		return cur
	})
	if err != nil {
		return nil, State{}, err
	}
	return t, st, nil
}

// Phase returns the current phase.
func (t *Transition) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Confirm settles the toggle as applied.
func (t *Transition) Confirm() State {
	return t.settle(PhaseConfirmed)
}

// Revert settles the toggle as failed and restores the previous enabled flag.
func (t *Transition) Revert() State {
	return t.settle(PhaseReverted)
}

func (t *Transition) settle(phase Phase) State {
	t.mu.Lock()
	if t.phase != PhaseTentative {
		t.mu.Unlock()
		st, _ := t.store.Get(t.Feature)
		return st
	}
	t.phase = phase
	t.mu.Unlock()

	st, _ := t.store.Update(t.Feature, func(cur State) State {
		cur.Pending = false
		if phase == PhaseReverted {
			cur.Enabled = t.Previous
			cur.Status = StatusLabel(cur)
		}
		return cur
	})
	return st
}
