package dashboard

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/detection"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/logger"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/metrics"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/pkg/types"
)

// SerializedEvent holds one state change in both wire formats, so each
// change is encoded once no matter how many clients listen.
type SerializedEvent struct {
	JSONData     []byte
	ProtobufData []byte // base64 of a google.protobuf.Struct
}

// StateBroadcaster fans detection state changes out to SSE clients.
type StateBroadcaster struct {
	store   *detection.Store
	metrics *metrics.Metrics

	mu      sync.Mutex
	clients map[int]chan *SerializedEvent
	nextID  int
	subID   int
	stop    chan struct{}
	stopped bool

	sent map[types.Feature]detection.State // owned by run
}

// NewStateBroadcaster creates a broadcaster reading from store.
func NewStateBroadcaster(store *detection.Store, m *metrics.Metrics) *StateBroadcaster {
	return &StateBroadcaster{
		store:   store,
		metrics: m,
		clients: make(map[int]chan *SerializedEvent),
		stop:    make(chan struct{}),
		sent:    make(map[types.Feature]detection.State),
	}
}

// Subscribe adds a new client and returns a channel for receiving events.
func (b *StateBroadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan *SerializedEvent, 8)
	b.clients[id] = ch
	b.metrics.AddSSEClients(1)

	logger.Debug("StateBroadcaster", "Client #%d subscribed (total clients: %d)", id, len(b.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (b *StateBroadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
		b.metrics.AddSSEClients(-1)
		logger.Debug("StateBroadcaster", "Client #%d unsubscribed (remaining clients: %d)", id, len(b.clients))
	}
}

// Start begins relaying store updates. The store only signals that something
// changed; each signal is answered by diffing every feature against what was
// last broadcast, so a burst of writes can never leave clients on an older
// state than the store holds.
func (b *StateBroadcaster) Start() {
	id, ch := b.store.Watch()
	b.subID = id
	for _, st := range b.store.All() {
		b.sent[st.Feature] = st
	}
	go b.run(ch)
}

// Stop halts the broadcaster and closes every client channel.
func (b *StateBroadcaster) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	close(b.stop)
	b.stopped = true
	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
		b.metrics.AddSSEClients(-1)
	}
	b.mu.Unlock()

	b.store.Unwatch(b.subID)
}

// Snapshot serializes the current state of every feature.
func (b *StateBroadcaster) Snapshot() []*SerializedEvent {
	states := b.store.All()
	out := make([]*SerializedEvent, 0, len(states))
	for _, st := range states {
		event, err := serializeState(st)
		if err != nil {
			logger.Error("StateBroadcaster", "serialize %s: %v", st.Feature, err)
			continue
		}
		out = append(out, event)
	}
	return out
}

func (b *StateBroadcaster) run(changed <-chan struct{}) {
	logger.Info("StateBroadcaster", "Starting detection state broadcaster...")
	for {
		select {
		case <-b.stop:
			return
		case _, ok := <-changed:
			if !ok {
				return
			}
			b.relayChanges()
		}
	}
}

func (b *StateBroadcaster) relayChanges() {
	for _, st := range b.store.All() {
		if prev, ok := b.sent[st.Feature]; ok && detection.SameState(prev, st) {
			continue
		}
		b.sent[st.Feature] = st
		event, err := serializeState(st)
		if err != nil {
			logger.Error("StateBroadcaster", "serialize %s: %v", st.Feature, err)
			continue
		}
		b.broadcast(event)
	}
}

func (b *StateBroadcaster) broadcast(event *SerializedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.clients {
		select {
		case ch <- event:
		default:
			logger.Debug("StateBroadcaster", "Client #%d too slow, skipped event", id)
		}
	}
}

// serializeState encodes st as JSON and as a base64 protobuf Struct built
// from the same JSON document.
func serializeState(st detection.State) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(jsonData, &fields); err != nil {
		return nil, fmt.Errorf("json round trip: %w", err)
	}
	pbStruct, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("protobuf struct: %w", err)
	}
	pbData, err := proto.Marshal(pbStruct)
	if err != nil {
		return nil, fmt.Errorf("protobuf: %w", err)
	}

	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}, nil
}
