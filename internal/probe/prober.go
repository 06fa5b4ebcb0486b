package probe

import (
	"cacheprobe/internal/dns"
	"cacheprobe/internal/metrics"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	initialDNSBackoff = 500 * time.Millisecond
	minJitter         = 1000 * time.Millisecond
	maxJitter         = 5000 * time.Millisecond
)

type Spec struct {
	Client   *http.Client
	Resolver dns.Resolver
	Timeout  time.Duration // per attempt
	Retries  int
	Headers  []string
	Metrics  *metrics.Metrics
}

// Prober runs the attempt loop for a single URL: DNS preflight, request,
// inspection, with a doubling backoff after DNS failures and a jittered
// delay after request failures.
type Prober struct {
	client   *http.Client
	resolver dns.Resolver
	timeout  time.Duration
	retries  int
	headers  []string
	metrics  *metrics.Metrics

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

func NewProber(spec *Spec) *Prober {
	client := spec.Client
	if client == nil {
		client = &http.Client{}
	}
	resolver := spec.Resolver
	if resolver == nil {
		resolver = dns.NewResolver()
	}
	return &Prober{
		client:   client,
		resolver: resolver,
		timeout:  spec.Timeout,
		retries:  max(spec.Retries, 0),
		headers:  spec.Headers,
		metrics:  spec.Metrics,
		sleep:    sleepContext,
		jitter:   randomJitter,
	}
}

// Probe returns (nil, nil) when the URL answered without any cache signal and
// a wrapped ErrRetriesExhausted when no attempt got a response.
func (p *Prober) Probe(ctx context.Context, req Request) (*Result, error) {
	log.Debug().Str("url", req.URL).Msg("requesting url")

	host := dns.HostFromURL(req.URL)
	backoff := initialDNSBackoff
	var lastErr error

	for attempt := 0; attempt <= p.retries; attempt++ {
		if err := p.resolver.Resolve(ctx, host); err != nil {
			p.metrics.Attempt(metrics.AttemptDNSError)
			lastErr = fmt.Errorf("%w: %s: %w", ErrDNSResolution, host, err)
			log.Debug().Err(err).Str("url", req.URL).Int("attempt", attempt).Msg("dns error")

			if attempt == p.retries {
				break
			}
			if err := p.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
			continue
		}

		result, err := p.attempt(ctx, req)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		log.Debug().Err(err).Str("url", req.URL).Int("attempt", attempt).Msg("request error")

		if attempt == p.retries {
			break
		}
		delay := p.jitter()
		log.Debug().Str("url", req.URL).Dur("delay", delay).Msgf("retrying (attempt %d/%d)", attempt+1, p.retries)
		if err := p.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, p.retries+1, lastErr)
}

// attempt issues one request under the per-attempt timeout and inspects the
// response. Only request errors are returned; body read failures are not.
func (p *Prober) attempt(ctx context.Context, req Request) (*Result, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method), req.URL, nil)
	if err != nil {
		p.metrics.Attempt(metrics.AttemptTransportError)
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			p.metrics.Attempt(metrics.AttemptTimeout)
			return nil, fmt.Errorf("%w: %w", ErrRequestTimeout, err)
		}
		p.metrics.Attempt(metrics.AttemptTransportError)
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	p.metrics.Attempt(metrics.AttemptResponse)
	log.Debug().Str("url", req.URL).Int("status", resp.StatusCode).Msg("received response")

	found := inspectHeaders(resp.Header, p.headers)
	for name, value := range found {
		log.Debug().Str("url", req.URL).Str("header", name).Str("value", value).Msg("found header")
	}

	if body, err := readBody(resp); err != nil {
		log.Debug().Err(err).Str("url", req.URL).Msg("failed to read body")
	} else if hasBodyMarker(body) {
		found[BodyIndicatorHeader] = BodyIndicatorValue
		log.Debug().Str("url", req.URL).Msg("cache indicator found in body")
	}

	if len(found) == 0 {
		log.Debug().Str("url", req.URL).Msg("no caching headers found")
		return nil, nil
	}

	return &Result{
		URL:     req.URL,
		Headers: found,
		Method:  string(req.Method),
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// randomJitter is uniform in [minJitter, maxJitter).
func randomJitter() time.Duration {
	return minJitter + time.Duration(rand.Int63n(int64(maxJitter-minJitter)))
}
