package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-fulfillment/internal/domain/cart"
	"github.com/xenking/kart-fulfillment/internal/domain/catalog"
	"github.com/xenking/kart-fulfillment/internal/domain/inventory"
	"github.com/xenking/kart-fulfillment/internal/domain/order"
	"github.com/xenking/kart-fulfillment/internal/domain/payment"
	"github.com/xenking/kart-fulfillment/internal/domain/user"
	"github.com/xenking/kart-fulfillment/internal/handler"
	"github.com/xenking/kart-fulfillment/internal/notify"
	storageredis "github.com/xenking/kart-fulfillment/internal/storage/redis"
	"github.com/xenking/kart-fulfillment/pkg/health"
	"github.com/xenking/kart-fulfillment/pkg/httpmiddleware"
	"github.com/xenking/kart-fulfillment/pkg/keylock"
)

// worker is a background loop that runs until its context is cancelled.
type worker struct {
	name string
	run  func(ctx context.Context) error
}

// runtime is the wired application before it starts serving.
type runtime struct {
	handler http.Handler
	health  *health.Health
	workers []worker
	closers []func()
}

func (rt *runtime) onClose(fn func()) {
	rt.closers = append(rt.closers, fn)
}

// close releases resources in reverse acquisition order.
func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// Run creates all dependencies, starts the HTTP server and the background
// workers, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	otel.SetTracerProvider(m.TracerProvider())
	otel.SetMeterProvider(m.MeterProvider())
	otel.SetTextMapPropagator(m.TextMapPropagator())

	rt, err := build(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	rt.health.Start(ctx, 10*time.Second)
	rt.health.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           rt.handler,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range rt.workers {
		g.Go(func() error {
			lg.Info("Worker started", zap.String("worker", w.name))
			if err := w.run(gctx); err != nil {
				return errors.Wrap(err, w.name)
			}
			return nil
		})
	}

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		rt.health.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		rt.health.Stop()
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}

// newRedisClient accepts either host:port or a redis:// URL, the form
// hosting platforms export.
func newRedisClient(addr string) (*redis.Client, error) {
	if !strings.Contains(addr, "://") {
		return redis.NewClient(&redis.Options{Addr: addr}), nil
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	return redis.NewClient(opts), nil
}

// build wires storage, domain services, background workers and the HTTP
// handler. Nothing runs until the caller starts the workers.
func build(ctx context.Context, lg *zap.Logger, cfg *Config) (_ *runtime, rerr error) {
	rt := &runtime{health: health.New()}
	defer func() {
		if rerr != nil {
			rt.close()
		}
	}()
	rt.health.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	repos, closeStore, err := openStore(ctx, lg, cfg.DatabaseURL, rt.health)
	if err != nil {
		return nil, err
	}
	rt.onClose(closeStore)

	locks := keylock.New()
	ledger := inventory.NewLedger(repos.items)
	lifecycle := order.NewLifecycle(repos.orders, ledger,
		order.WithReleaseOnFailure(cfg.Payment.ReleaseStockOnFailure),
	)
	builder := order.NewBuilder(repos.carts, repos.items, ledger, repos.orders, locks)

	var dedupe payment.Deduper
	if cfg.Redis.Addr != "" {
		client, err := newRedisClient(cfg.Redis.Addr)
		if err != nil {
			return nil, err
		}
		rt.onClose(func() { _ = client.Close() })
		d := storageredis.NewDeduper(client, cfg.Redis.DedupeTTL)
		rt.health.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(d.Ping))
		dedupe = d
	}

	// The simulator delivers to the receiver, which is built after the
	// tracker that schedules on the simulator.
	var receiver *payment.Receiver
	var sink payment.Sink = func(ctx context.Context, n payment.Notification) error {
		return receiver.Receive(ctx, n)
	}

	kafkaEnabled := len(cfg.Kafka.Brokers) > 0
	if kafkaEnabled {
		publisher := notify.NewPublisher(notify.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		rt.onClose(func() { _ = publisher.Close() })
		sink = publisher.Publish
	}

	var scheduler payment.Scheduler
	if cfg.Payment.Simulate {
		sim := payment.NewSimulator(payment.SimulatorConfig{
			Delay:              cfg.Payment.Delay,
			FailureProbability: cfg.Payment.FailureProbability,
			Workers:            cfg.Payment.Workers,
		}, sink)
		scheduler = sim
		rt.health.AddLivenessCheck("settlement-backlog", time.Second, health.BacklogCheck(sim.Pending, 100000))
		rt.workers = append(rt.workers, worker{name: "settlement simulator", run: sim.Run})
		lg.Info("Settlement simulator enabled",
			zap.Duration("delay", cfg.Payment.Delay),
			zap.Float64("failure_probability", cfg.Payment.FailureProbability),
		)
	}

	tracker := payment.NewTracker(repos.intents, lifecycle, scheduler)
	receiver = payment.NewReceiver(tracker, dedupe)

	if kafkaEnabled {
		consumer := notify.NewConsumer(notify.NewReader(notify.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}), receiver)
		rt.onClose(func() { _ = consumer.Close() })
		rt.workers = append(rt.workers, worker{name: "notification consumer", run: consumer.Run})
		lg.Info("Notification topic enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	h := handler.NewHandler(handler.Services{
		Catalog:  catalog.NewService(repos.items, ledger),
		Users:    user.NewService(repos.users),
		Carts:    cart.NewAccumulator(repos.carts, ledger, repos.items, locks),
		Orders:   order.NewService(builder, lifecycle, repos.orders, tracker, scheduler),
		Payments: tracker,
		Receiver: receiver,
	})

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", rt.health.LiveEndpoint)
	mux.HandleFunc("/readyz", rt.health.ReadyEndpoint)
	mux.Handle("/api/", otelhttp.NewHandler(h.Routes(), "kart-api"))

	middlewares := []httpmiddleware.Middleware{
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.LogRequests(),
	}
	if cfg.RateLimit.Max > 0 {
		middlewares = append(middlewares, httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}))
	}
	rt.handler = httpmiddleware.Wrap(mux, middlewares...)

	return rt, nil
}
