package testutils

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/market-pulse/pkg/models"
)

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal    string
	RawBytes []string
	Closed   bool
	Mu       sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) SendBytes(b []byte) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.RawBytes = append(m.RawBytes, string(b))
}

// Envelopes decodes every frame received so far.
func (m *MockClient) Envelopes() []protocol.Envelope {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	out := make([]protocol.Envelope, 0, len(m.RawBytes))
	for _, raw := range m.RawBytes {
		var env protocol.Envelope
		if err := json.Unmarshal([]byte(raw), &env); err == nil {
			out = append(out, env)
		}
	}
	return out
}

// Updates decodes the update payloads of frames with the given event name.
func (m *MockClient) Updates(event string) []models.UpdateMessage {
	var out []models.UpdateMessage
	for _, env := range m.Envelopes() {
		if env.Event != event {
			continue
		}
		var u models.UpdateMessage
		if err := json.Unmarshal(env.Data, &u); err == nil {
			out = append(out, u)
		}
	}
	return out
}

func (m *MockClient) Count() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.RawBytes)
}

// MockQuoteSource records every batched call and answers from Quotes.
type MockQuoteSource struct {
	Quotes map[string]models.QuoteSnapshot
	Err    error
	Calls  [][]string
	Mu     sync.Mutex
}

func (m *MockQuoteSource) Quote(ctx context.Context, instruments []string) (map[string]models.QuoteSnapshot, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	m.Calls = append(m.Calls, append([]string(nil), instruments...))
	if m.Err != nil {
		return nil, m.Err
	}

	out := make(map[string]models.QuoteSnapshot)
	for _, in := range instruments {
		if q, ok := m.Quotes[in]; ok {
			out[in] = q
		}
	}
	return out, nil
}

func (m *MockQuoteSource) CallCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Calls)
}

// MockPublisher captures published events instead of delivering them.
type MockPublisher struct {
	Events     []models.Event
	ShouldFail bool
	Mu         sync.Mutex
}

func (m *MockPublisher) Publish(ctx context.Context, ev models.Event) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("publish failed")
	}
	m.Events = append(m.Events, ev)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

// ByGroup returns the captured events addressed to group.
func (m *MockPublisher) ByGroup(name, group string) []models.UpdateMessage {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	var out []models.UpdateMessage
	for _, ev := range m.Events {
		if ev.Name != name || ev.Group != group {
			continue
		}
		var u models.UpdateMessage
		if err := json.Unmarshal(ev.Payload, &u); err == nil {
			out = append(out, u)
		}
	}
	return out
}

// MockSnapshotStore is an in-memory last-value store. When Gate is set,
// reads block until it is closed.
type MockSnapshotStore struct {
	Data  map[string]models.UpdateMessage
	Saves int
	Reads int
	Gate  chan struct{}
	Mu    sync.Mutex
}

func NewMockSnapshotStore() *MockSnapshotStore {
	return &MockSnapshotStore{Data: make(map[string]models.UpdateMessage)}
}

func (m *MockSnapshotStore) SaveUpdates(ctx context.Context, updates map[string]models.UpdateMessage) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Saves++
	for k, v := range updates {
		m.Data[k] = v
	}
	return nil
}

func (m *MockSnapshotStore) GetSnapshots(ctx context.Context, canonicals []string) (map[string]models.UpdateMessage, error) {
	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Reads++
	out := make(map[string]models.UpdateMessage)
	for _, c := range canonicals {
		if v, ok := m.Data[c]; ok {
			out[c] = v
		}
	}
	return out, nil
}

func (m *MockSnapshotStore) ReadCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Reads
}

func (m *MockSnapshotStore) Close() error { return nil }

type MockClock struct {
	CurrentTime time.Time
}

func (m *MockClock) Now() time.Time { return m.CurrentTime }

func AssertTrue(t *testing.T, condition bool, msg string) {
	t.Helper()
	if !condition {
		t.Errorf("Assertion failed: %s", msg)
	}
}

// Eventually polls cond until it holds or the timeout passes.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Condition not met: %s", msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
