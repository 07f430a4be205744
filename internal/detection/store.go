package detection

import (
	"fmt"
	"sync"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/logger"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/pkg/types"
)

// Store holds the state of every feature and fans changes out to
// subscribers. Last write wins, and subscribers see writes in the order they
// were made: publish runs while mu is held.
type Store struct {
	mu     sync.RWMutex
	states map[types.Feature]State

	subMu    sync.Mutex
	subs     map[int]chan State
	watchers map[int]chan struct{}
	nextID   int

	log logger.Module
}

// NewStore returns a store with every feature disabled.
func NewStore() *Store {
	s := &Store{
		states: make(map[types.Feature]State, len(types.Features)),
		subs:     make(map[int]chan State),
		watchers: make(map[int]chan struct{}),
		log:      logger.For("DetectionStore"),
	}
	for _, f := range types.Features {
		st, _ := NewState(f)
		s.states[f] = st
	}
	return s
}

// Get returns the state of feature.
func (s *Store) Get(feature types.Feature) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[feature]
	if !ok {
		return State{}, fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
	}
	return st, nil
}

// All returns every state in display order.
func (s *Store) All() []State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]State, 0, len(types.Features))
	for _, f := range types.Features {
		out = append(out, s.states[f])
	}
	return out
}

// Apply merges a poll result. It reports whether anything changed; an
// unchanged result publishes nothing.
func (s *Store) Apply(feature types.Feature, info Info) (State, bool, error) {
	s.mu.Lock()
	current, ok := s.states[feature]
	if !ok {
		s.mu.Unlock()
		return State{}, false, fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
	}
	next, changed := Merge(current, info)
	if changed {
		s.states[feature] = next
		s.publish(next)
	}
	s.mu.Unlock()
	return next, changed, nil
}

// Update applies fn to the state of feature and publishes the result when it
// differs in any top-level flag or label.
func (s *Store) Update(feature types.Feature, fn func(State) State) (State, error) {
	s.mu.Lock()
	current, ok := s.states[feature]
	if !ok {
		s.mu.Unlock()
		return State{}, fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
	}
	next := fn(current)
	next.Feature = feature
	s.states[feature] = next
	if !SameState(current, next) {
		s.publish(next)
	}
	s.mu.Unlock()
	return next, nil
}

// SameState reports whether a and b would render identically.
func SameState(a, b State) bool {
	return a.Enabled == b.Enabled && a.Status == b.Status && a.Streaming == b.Streaming &&
		a.Expanded == b.Expanded && a.Pending == b.Pending &&
		equalString(a.LastDetection, b.LastDetection) &&
		(a.Details == nil) == (b.Details == nil) && (a.Details == nil || a.Details.Equal(b.Details))
}

// Subscribe registers a listener for state changes. A listener that falls
// more than a few events behind misses the overflow.
func (s *Store) Subscribe() (int, <-chan State) {
	return s.subscribe(8)
}

func (s *Store) subscribe(buffer int) (int, <-chan State) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan State, buffer)
	s.subs[id] = ch

	s.log.Debug("Subscriber #%d added (total: %d)", id, len(s.subs))
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (s *Store) Unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
		s.log.Debug("Subscriber #%d removed (remaining: %d)", id, len(s.subs))
	}
}

// Watch registers a listener that only needs to know something changed. The
// channel holds one pending signal, so bursts coalesce but the last change is
// never lost; the listener re-reads the store on every receive.
func (s *Store) Watch() (int, <-chan struct{}) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan struct{}, 1)
	s.watchers[id] = ch
	return id, ch
}

// Unwatch removes a Watch listener and closes its channel.
func (s *Store) Unwatch(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if ch, ok := s.watchers[id]; ok {
		close(ch)
		delete(s.watchers, id)
	}
}

// publish must be called with s.mu held.
func (s *Store) publish(st State) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for id, ch := range s.subs {
		select {
		case ch <- st:
		default:
			s.log.Debug("Subscriber #%d is slow, dropped %s update", id, st.Feature)
		}
	}
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
