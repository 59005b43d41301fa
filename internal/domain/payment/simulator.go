package payment

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SimulatedFailureReason is the reason attached to simulated failures.
const SimulatedFailureReason = "simulated payment failure: insufficient funds"

// SimulatorConfig controls simulated settlement.
type SimulatorConfig struct {
	// Delay between opening an intent and its settlement.
	Delay time.Duration
	// FailureProbability is the chance in [0,1] that a settlement fails.
	FailureProbability float64
	// Workers is the number of goroutines delivering settlements.
	Workers int
}

// Sink receives settlement notifications.
type Sink func(ctx context.Context, n Notification) error

// SimulatorOption configures a Simulator.
type SimulatorOption func(*Simulator)

// WithDraw replaces the random source. draw must return values in [0,1).
func WithDraw(draw func() float64) SimulatorOption {
	return func(s *Simulator) {
		s.draw = draw
	}
}

// Simulator stands in for a payment provider: every scheduled intent is
// settled after a delay with a configurable failure rate. Settlements are
// delivered through the same sink real notifications use.
type Simulator struct {
	cfg  SimulatorConfig
	sink Sink
	draw func() float64

	queue chan Intent
	done  chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
}

var _ Scheduler = (*Simulator)(nil)

// NewSimulator creates a Simulator delivering to sink. Call Run to start
// delivering.
func NewSimulator(cfg SimulatorConfig, sink Sink, opts ...SimulatorOption) *Simulator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	s := &Simulator{
		cfg:     cfg,
		sink:    sink,
		draw:    rand.Float64,
		queue:   make(chan Intent, cfg.Workers),
		done:    make(chan struct{}),
		pending: make(map[string]*time.Timer),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Schedule arranges settlement of in after the configured delay. It never
// blocks on delivery.
func (s *Simulator) Schedule(in Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, ok := s.pending[in.ExternalID]; ok {
		return
	}
	s.pending[in.ExternalID] = time.AfterFunc(s.cfg.Delay, func() {
		s.fire(in)
	})
}

// Cancel drops a scheduled settlement. It reports whether one was pending;
// cancelling twice, or after delivery started, returns false.
func (s *Simulator) Cancel(externalID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.pending[externalID]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.pending, externalID)
	return true
}

// Pending returns the number of settlements waiting for their delay.
func (s *Simulator) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Simulator) fire(in Intent) {
	s.mu.Lock()
	if _, ok := s.pending[in.ExternalID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pending, in.ExternalID)
	s.mu.Unlock()

	select {
	case s.queue <- in:
	case <-s.done:
	}
}

// Run delivers settlements until ctx is cancelled. Timers still pending at
// that point are dropped.
func (s *Simulator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for range s.cfg.Workers {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case in := <-s.queue:
					s.deliver(ctx, in)
				}
			}
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		s.shutdown()
		return nil
	})
	return g.Wait()
}

func (s *Simulator) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
	close(s.done)
}

func (s *Simulator) deliver(ctx context.Context, in Intent) {
	n := s.settle(in)
	lg := zctx.From(ctx).With(
		zap.String("intent_id", in.ID),
		zap.String("event", n.Event),
	)
	lg.Debug("Delivering simulated settlement")
	if err := s.sink(ctx, n); err != nil {
		lg.Warn("Simulated settlement rejected", zap.Error(err))
	}
}

func (s *Simulator) settle(in Intent) Notification {
	n := Notification{
		IntentRef:  in.ExternalID,
		DeliveryID: "sim_" + in.ExternalID,
	}
	if s.draw() > s.cfg.FailureProbability {
		n.Event = EventPaymentCaptured
		n.Label = in.CorrelationID
		return n
	}
	n.Event = EventPaymentFailed
	n.Reason = SimulatedFailureReason
	return n
}
