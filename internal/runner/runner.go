package runner

import (
	"cacheprobe/internal/config"
	"cacheprobe/internal/dns"
	"cacheprobe/internal/metrics"
	"cacheprobe/internal/pool"
	"cacheprobe/internal/probe"
	"cacheprobe/internal/report"
	"cacheprobe/internal/shutdown"
	"cacheprobe/internal/sink"
	"cacheprobe/internal/status"
	"cacheprobe/internal/store"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// outcome channel buffer between the pool and the consumer
const outcomeBuffer = 100

// Runner performs one audit run over a validated config.
type Runner struct {
	Config config.Config
	RunID  string

	// Interrupt is done when the process was asked to stop. Nil means never.
	Interrupt context.Context
	// Exit ends the process after an abrupt interrupt. Defaults to os.Exit.
	Exit func(code int)

	Registry *prometheus.Registry
	Client   *http.Client
	Resolver dns.Resolver
}

// Run returns nil when every scheduled URL was probed (whether or not any
// produced a finding) and the output was finalized. Startup failures and
// output write failures are returned.
func (r *Runner) Run(ctx context.Context) error {
	cfg := r.Config
	if r.RunID == "" {
		r.RunID = uuid.New().String()
	}
	if r.Registry == nil {
		r.Registry = prometheus.NewRegistry()
	}
	interrupt := r.Interrupt
	if interrupt == nil {
		interrupt = context.Background()
	}
	start := time.Now()

	out, err := sink.Create(cfg.Output)
	if err != nil {
		return err
	}

	var findings store.Store
	if cfg.Store.Driver != "" {
		if findings, err = store.Open(cfg.Store.Driver, cfg.Store.Path); err != nil {
			out.Finalize()
			return err
		}
		defer findings.Close()
	}

	m := metrics.New(r.Registry)

	// in the default abrupt mode nothing cancels probeCtx: an interrupt
	// ends the process instead
	probeCtx, cancelProbes := context.WithCancel(ctx)
	defer cancelProbes()

	mode := shutdown.Abrupt
	if cfg.Graceful {
		mode = shutdown.Graceful
	}
	coordinator := shutdown.NewCoordinator(&shutdown.Spec{
		Finalizer: out,
		Mode:      mode,
		Cancel:    cancelProbes,
		Exit:      r.Exit,
	})

	if cfg.Status.HTTP != "" || cfg.Status.GRPC != "" {
		srv := status.NewServer(cfg.Status.HTTP, cfg.Status.GRPC, r.Registry)
		statusCtx, stopStatus := context.WithCancel(context.Background())
		defer stopStatus()
		go func() {
			if err := srv.Run(statusCtx, nil); err != nil {
				log.Error().Err(err).Msg("status server failed")
			}
		}()
		coordinator.OnFinalize(func() { srv.SetServing(false) })
	}

	completed := make(chan struct{})
	go coordinator.Watch(interrupt, completed)

	prober := probe.NewProber(&probe.Spec{
		Client:   r.Client,
		Resolver: r.Resolver,
		Timeout:  cfg.RequestTimeout(),
		Retries:  int(cfg.Retries),
		Headers:  cfg.Headers,
		Metrics:  m,
	})
	p := pool.NewPool(&pool.PoolSpec{
		Concurrency: int(cfg.Concurrency),
		Prober:      prober,
		Sink:        out,
		Metrics:     m,
	})

	reqs := cfg.Requests()
	consumer := report.NewConsumer(&report.ConsumerSpec{
		RunID: r.RunID,
		Total: len(reqs),
		Store: findings,
	})

	outcomes := make(chan pool.Outcome, outcomeBuffer)
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		consumer.Consume(context.Background(), outcomes)
	}()

	log.Info().Int("urls", len(reqs)).Uint("concurrency", cfg.Concurrency).Str("output", cfg.Output).Msg("starting probe run")

	runErr := p.Run(probeCtx, reqs, outcomes)
	wg.Wait()
	close(completed)

	if errors.Is(runErr, sink.ErrFinalized) {
		// units finishing after an interrupt finalized the output
		runErr = nil
	}

	if coordinator.State() == shutdown.Finalizing {
		// the interrupt path owns the output; do not return before the
		// closing bracket is on disk
		coordinator.Wait()
		return runErr
	}

	finalizeErr := coordinator.Complete()

	consumer.Summary().Log(cfg.Output, time.Since(start))

	if err := errors.Join(runErr, finalizeErr); err != nil {
		return fmt.Errorf("results may be incomplete: %w", err)
	}
	return nil
}
