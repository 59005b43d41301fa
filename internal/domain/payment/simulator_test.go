package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkRecorder struct {
	mu   sync.Mutex
	got  []Notification
	recv chan struct{}
}

func newSinkRecorder() *sinkRecorder {
	return &sinkRecorder{recv: make(chan struct{}, 16)}
}

func (s *sinkRecorder) sink(_ context.Context, n Notification) error {
	s.mu.Lock()
	s.got = append(s.got, n)
	s.mu.Unlock()
	s.recv <- struct{}{}
	return nil
}

func (s *sinkRecorder) wait(t *testing.T) Notification {
	t.Helper()
	select {
	case <-s.recv:
	case <-time.After(2 * time.Second):
		t.Fatal("no settlement delivered")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.got[len(s.got)-1]
}

func runSimulator(t *testing.T, sim *Simulator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func constDraw(v float64) SimulatorOption {
	return WithDraw(func() float64 { return v })
}

func testIntent(id string) Intent {
	return Intent{ID: id, ExternalID: "intent_" + id, CorrelationID: "pay_" + id, Status: StatusPending}
}

func TestSimulator_Success(t *testing.T) {
	rec := newSinkRecorder()
	sim := NewSimulator(SimulatorConfig{Delay: time.Millisecond, FailureProbability: 0.1, Workers: 2}, rec.sink, constDraw(0.5))
	runSimulator(t, sim)

	sim.Schedule(testIntent("1"))
	n := rec.wait(t)

	assert.Equal(t, EventPaymentCaptured, n.Event)
	assert.Equal(t, "intent_1", n.IntentRef)
	assert.Equal(t, "pay_1", n.Label)
	assert.Equal(t, KindSuccess, n.Kind())
}

func TestSimulator_Failure(t *testing.T) {
	rec := newSinkRecorder()
	sim := NewSimulator(SimulatorConfig{Delay: time.Millisecond, FailureProbability: 0.1}, rec.sink, constDraw(0.05))
	runSimulator(t, sim)

	sim.Schedule(testIntent("1"))
	n := rec.wait(t)

	assert.Equal(t, EventPaymentFailed, n.Event)
	assert.Equal(t, SimulatedFailureReason, n.Reason)
}

func TestSimulator_CancelIsIdempotent(t *testing.T) {
	rec := newSinkRecorder()
	sim := NewSimulator(SimulatorConfig{Delay: time.Hour}, rec.sink)
	runSimulator(t, sim)

	sim.Schedule(testIntent("1"))
	sim.Schedule(testIntent("1"))
	assert.Equal(t, 1, sim.Pending())

	assert.True(t, sim.Cancel("intent_1"))
	assert.False(t, sim.Cancel("intent_1"))
	assert.False(t, sim.Cancel("intent_unknown"))
	assert.Equal(t, 0, sim.Pending())
}

func TestSimulator_CancelledNeverDelivers(t *testing.T) {
	rec := newSinkRecorder()
	sim := NewSimulator(SimulatorConfig{Delay: 20 * time.Millisecond}, rec.sink, constDraw(0.9))
	runSimulator(t, sim)

	sim.Schedule(testIntent("1"))
	sim.Schedule(testIntent("2"))
	require.True(t, sim.Cancel("intent_1"))

	n := rec.wait(t)
	assert.Equal(t, "intent_2", n.IntentRef)

	select {
	case <-rec.recv:
		t.Fatal("cancelled settlement was delivered")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestSimulator_ShutdownDropsPending(t *testing.T) {
	rec := newSinkRecorder()
	sim := NewSimulator(SimulatorConfig{Delay: time.Hour}, rec.sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()

	sim.Schedule(testIntent("1"))
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 0, sim.Pending())
	sim.Schedule(testIntent("2"))
	assert.Equal(t, 0, sim.Pending(), "schedule after shutdown is ignored")
}
