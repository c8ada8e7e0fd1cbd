// Package runnable runs the scheduler daemon: the schedules themselves and
// the HTTP server exposing their state.
package runnable

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"lacus-client/internal/env"
	"lacus-client/internal/myhttp"
	"lacus-client/internal/schedule"

	"github.com/grafana/pyroscope-go"
	pyroscopepprof "github.com/grafana/pyroscope-go/http/pprof"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

type Server struct {
	address                string
	terminationGracePeriod time.Duration
	lameduck               time.Duration
	keepAlive              bool
	maxConnections         int
	pyroscopeEndpoint      string

	scheduler     *schedule.Scheduler
	logger        *slog.Logger
	meterProvider metric.MeterProvider
}

func NewServer(scheduler *schedule.Scheduler, logger *slog.Logger, meterProvider metric.MeterProvider) *Server {
	return &Server{
		address:                env.OrDefault("ADDRESS", "0.0.0.0:8082"),
		terminationGracePeriod: env.OrDefault("TERMINATION_GRACE_PERIOD", 10*time.Second),
		lameduck:               env.OrDefault("LAMEDUCK", 1*time.Second),
		keepAlive:              env.OrDefault("HTTP_KEEPALIVE", true),
		maxConnections:         env.OrDefault("MAX_CONNECTIONS", 65532),
		pyroscopeEndpoint:      env.OrDefault("PYROSCOPE_ENDPOINT", ""),
		scheduler:              scheduler,
		logger:                 logger,
		meterProvider:          meterProvider,
	}
}

var Debug = false

// Handler serves health, metrics and the schedules.
func (s *Server) Handler() (http.Handler, error) {
	httpRequestsDurationMicroSeconds, err := s.meterProvider.Meter("lacus-scheduler").Int64Histogram("http_requests_duration_micro_seconds")
	if err != nil {
		return nil, xerrors.Errorf("failed to create histogram: %w", err)
	}

	mux := myhttp.NewServerMux(s.logger, httpRequestsDurationMicroSeconds)

	mux.HandleFuncWithMiddleware("GET /schedules", func(w http.ResponseWriter, r *http.Request) {
		myhttp.WriteJSON(w, http.StatusOK, s.scheduler.Statuses())
	})
	mux.HandleFuncWithMiddleware("POST /schedules/{name}/trigger", func(w http.ResponseWriter, r *http.Request) {
		uuid, err := s.scheduler.Trigger(r.Context(), r.PathValue("name"))
		if errors.Is(err, schedule.ErrUnknownSchedule) {
			myhttp.WriteError(w, http.StatusNotFound, err)
			return
		}
		if err != nil {
			myhttp.Logger(r.Context()).Warn("failed to trigger schedule", "name", r.PathValue("name"), "error", err)
			myhttp.WriteError(w, http.StatusBadGateway, err)
			return
		}
		myhttp.WriteJSON(w, http.StatusAccepted, map[string]string{"uuid": uuid})
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(http.StatusText(http.StatusOK)))
	})

	mux.HandleWithMiddleware("GET /metrics", promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer, promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}),
	))

	if Debug {
		mux.HandleFunc("GET /debug/pprof/", pprof.Index)
		mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
		mux.HandleFunc("GET /debug/pprof/profile", pyroscopepprof.Profile)
	}

	return mux, nil
}

// Start blocks until SIGTERM or SIGINT, then drains the server and stops the
// schedules.
func (s *Server) Start(ctx context.Context) error {
	if s.pyroscopeEndpoint != "" {
		runtime.SetMutexProfileFraction(1)
		runtime.SetBlockProfileRate(1)

		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "lacus-scheduler",
			ServerAddress:   s.pyroscopeEndpoint,
			UploadRate:      60 * time.Second,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
				pyroscope.ProfileGoroutines,
				pyroscope.ProfileMutexCount,
				pyroscope.ProfileMutexDuration,
				pyroscope.ProfileBlockCount,
				pyroscope.ProfileBlockDuration,
			},
		})
		if err != nil {
			return xerrors.Errorf("failed to create profiler: %w", err)
		}
		defer func() {
			if err := profiler.Stop(); err != nil {
				s.logger.Error("failed to shutdown profiler", "error", err)
			}
		}()
	}

	handler, err := s.Handler()
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return xerrors.Errorf("failed to listen on address %s: %w", s.address, err)
	}

	server := &http.Server{
		Handler: handler,
	}
	server.SetKeepAlivesEnabled(s.keepAlive)

	go func() {
		if err := server.Serve(netutil.LimitListener(listener, s.maxConnections)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("failed to serve HTTP", "error", err)
		}
	}()
	s.logger.Info("listening", "address", listener.Addr().String())

	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	eg := errgroup.Group{}
	eg.Go(func() error {
		return s.scheduler.Start(schedulerCtx)
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	time.Sleep(s.lameduck)

	stopScheduler()
	if err := eg.Wait(); err != nil {
		return xerrors.Errorf("failed to stop schedules: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.terminationGracePeriod)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return xerrors.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
