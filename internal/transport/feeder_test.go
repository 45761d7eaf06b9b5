// SPDX-License-Identifier: MIT
package transport

import (
	"sync"
	"testing"
	"time"

	"pulse/pkg/utils"
)

var _ Transport = (*utils.MockTransport)(nil)

// lockedMock wraps MockTransport for concurrent access from the feed loop.
type lockedMock struct {
	mu sync.Mutex
	utils.MockTransport
}

func (m *lockedMock) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.MockTransport.Send(data)
}

func (m *lockedMock) sent() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.Sent...)
}

func TestFeederSendsOnlyFreshPayloads(t *testing.T) {
	mock := &lockedMock{}

	var mu sync.Mutex
	payload, seq := "a", uint64(1)
	source := func() (any, uint64) {
		mu.Lock()
		defer mu.Unlock()
		return payload, seq
	}

	f := NewFeeder(mock, time.Millisecond, source)
	f.Start()

	// Same sequence across many ticks: exactly one send.
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	payload, seq = "b", 2
	mu.Unlock()
	time.Sleep(30 * time.Millisecond)

	if err := f.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	got := mock.sent()
	if len(got) != 2 {
		t.Fatalf("Sent %d payloads, want 2 (one per sequence): %v", len(got), got)
	}
	if got[0] != "a" || got[1] != "b" {
		t.Errorf("Sent payloads = %v, want [a b]", got)
	}
}

func TestFeederSilentBeforeFirstPublication(t *testing.T) {
	mock := &lockedMock{}
	f := NewFeeder(mock, time.Millisecond, func() (any, uint64) { return nil, 0 })
	f.Start()

	time.Sleep(20 * time.Millisecond)
	if err := f.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := mock.sent(); len(got) != 0 {
		t.Errorf("Sent %d payloads with sequence 0, want none", len(got))
	}
}

func TestFeederStopIsIdempotent(t *testing.T) {
	f := NewFeeder(&utils.MockTransport{}, time.Millisecond,
		func() (any, uint64) { return nil, 0 })
	f.Start()

	if err := f.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := f.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
