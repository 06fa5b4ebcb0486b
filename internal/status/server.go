package status

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	prom "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	grpcstatus "google.golang.org/grpc/status"
)

// Addrs are the bound listener addresses, useful with ":0".
type Addrs struct {
	HTTP string
	GRPC string
}

// Server exposes run status while a probe run is in progress: Prometheus
// metrics and /healthz over HTTP, and the standard gRPC health service.
// Either address may be empty to disable that listener.
type Server struct {
	httpAddr string
	grpcAddr string
	limiter  *rate.Limiter
	gatherer prometheus.Gatherer
	health   *health.Server
	serving  atomic.Bool
}

func NewServer(httpAddr, grpcAddr string, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		httpAddr: httpAddr,
		grpcAddr: grpcAddr,
		// Global rate limiter (100 requests/sec, burst of 10)
		limiter:  rate.NewLimiter(rate.Limit(100), 10),
		gatherer: gatherer,
		health:   health.NewServer(),
	}
	s.SetServing(true)
	return s
}

// SetServing flips both /healthz and the gRPC health status.
func (s *Server) SetServing(serving bool) {
	s.serving.Store(serving)
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
}

// Run serves until ctx is cancelled. Bound addresses are sent on ready once
// both listeners are up.
func (s *Server) Run(ctx context.Context, ready chan<- Addrs) error {
	var addrs Addrs
	var grpcLis, httpLis net.Listener
	var err error

	if s.grpcAddr != "" {
		if grpcLis, err = net.Listen("tcp", s.grpcAddr); err != nil {
			return fmt.Errorf("failed to listen on address %q: %w", s.grpcAddr, err)
		}
		addrs.GRPC = grpcLis.Addr().String()
	}
	if s.httpAddr != "" {
		if httpLis, err = net.Listen("tcp", s.httpAddr); err != nil {
			if grpcLis != nil {
				grpcLis.Close()
			}
			return fmt.Errorf("failed to listen on address %q: %w", s.httpAddr, err)
		}
		addrs.HTTP = httpLis.Addr().String()
	}

	server := grpc.NewServer(
		grpc.UnaryInterceptor(s.CompositeUnaryInterceptor),
		grpc.StreamInterceptor(s.CompositeStreamInterceptor),
	)
	healthpb.RegisterHealthServer(server, s.health)
	// initializes per-method gRPC metrics on the default registry
	prom.Register(server)

	srv := &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	if grpcLis != nil {
		g.Go(func() error {
			log.Info().Str("address", addrs.GRPC).Msg("starting gRPC health server")
			if err := server.Serve(grpcLis); err != nil {
				return fmt.Errorf("failed to serve gRPC service: %w", err)
			}
			return nil
		})
	}

	if httpLis != nil {
		g.Go(func() error {
			log.Info().Str("address", addrs.HTTP).Msg("starting status HTTP endpoint")
			if err := srv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()

		log.Debug().Msg("shutting down status HTTP endpoint")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("error shutting down status server")
		}

		log.Debug().Msg("stopping gRPC health server")
		s.health.Shutdown()
		server.GracefulStop()

		return nil
	})

	if ready != nil {
		go func() {
			select {
			case ready <- addrs:
			case <-ctx.Done():
			}
		}()
	}

	return g.Wait()
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer}
	if s.gatherer != nil && s.gatherer != prometheus.DefaultGatherer {
		gatherers = append(gatherers, s.gatherer)
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !s.serving.Load() {
			http.Error(w, "finalizing", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})

	return r
}

// CompositeUnaryInterceptor checks the global rate limit before handing
// the call to the Prometheus interceptor.
func (s *Server) CompositeUnaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !s.limiter.Allow() {
		return nil, grpcstatus.Errorf(codes.ResourceExhausted, "rate limit exceeded")
	}
	return prom.UnaryServerInterceptor(ctx, req, info, handler)
}

// CompositeStreamInterceptor does the same for health Watch streams.
func (s *Server) CompositeStreamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if !s.limiter.Allow() {
		return grpcstatus.Errorf(codes.ResourceExhausted, "rate limit exceeded")
	}
	return prom.StreamServerInterceptor(srv, ss, info, handler)
}
