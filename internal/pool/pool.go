package pool

import (
	"cacheprobe/internal/metrics"
	"cacheprobe/internal/probe"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Prober interface {
	Probe(ctx context.Context, req probe.Request) (*probe.Result, error)
}

type Emitter interface {
	Emit(r *probe.Result) error
}

// Outcome is forwarded for every request, with or without a result.
type Outcome struct {
	Request  probe.Request
	Result   *probe.Result // nil when no cache signal was found or the probe failed
	Err      error
	Duration time.Duration
}

type PoolSpec struct {
	Concurrency int
	Prober      Prober
	Sink        Emitter
	Metrics     *metrics.Metrics
}

// Pool bounds the number of URLs with an active probe lifecycle. A unit
// holds its permit from the first DNS lookup until its last retry sleep.
type Pool struct {
	concurrency int
	prober      Prober
	sink        Emitter
	metrics     *metrics.Metrics
}

func NewPool(spec *PoolSpec) *Pool {
	return &Pool{
		concurrency: max(spec.Concurrency, 1),
		prober:      spec.Prober,
		sink:        spec.Sink,
		metrics:     spec.Metrics,
	}
}

// Run probes every request and closes out once all units finished. Probe
// failures only produce an Outcome without a result; a failed sink write is
// returned after every unit completed.
func (p *Pool) Run(ctx context.Context, reqs []probe.Request, out chan<- Outcome) error {
	defer close(out)

	// errgroup.Group without a derived context: one unit failing must not
	// cancel the others
	g := &errgroup.Group{}
	g.SetLimit(p.concurrency)

	for _, req := range reqs {
		req := req
		// blocks until a permit is free
		g.Go(func() error {
			return p.unit(ctx, req, out)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("output write failed: %w", err)
	}
	return nil
}

func (p *Pool) unit(ctx context.Context, req probe.Request, out chan<- Outcome) error {
	p.metrics.Acquired()
	defer p.metrics.Released()

	start := time.Now()
	res, err := p.prober.Probe(ctx, req)
	took := time.Since(start)

	var emitErr error
	switch {
	case err != nil:
		p.metrics.ProbeDone(metrics.OutcomeFailed, took)
		log.Debug().Err(err).Str("url", req.URL).Msg("no result")
	case res == nil:
		p.metrics.ProbeDone(metrics.OutcomeClean, took)
	default:
		p.metrics.ProbeDone(metrics.OutcomeFound, took)
		if emitErr = p.sink.Emit(res); emitErr != nil {
			log.Error().Err(emitErr).Str("url", req.URL).Msg("failed to write result")
		} else {
			p.metrics.Emitted()
		}
	}

	out <- Outcome{Request: req, Result: res, Err: err, Duration: took}

	return emitErr
}
