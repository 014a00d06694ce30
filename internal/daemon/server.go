package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/matheus3301/chatfetch/internal/api"
	"github.com/matheus3301/chatfetch/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server manages the gRPC server lifecycle for a session daemon, plus the
// optional Prometheus endpoint.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	socketPath string

	metricsServer   *http.Server
	metricsListener net.Listener

	logger *zap.Logger
}

// NewServer creates a gRPC server bound to the session's Unix domain socket.
func NewServer(
	p Params,
	logger *zap.Logger,
	ingestSvc *api.IngestService,
	querySvc *api.QueryService,
	reg *prometheus.Registry,
) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = filepath.Join(p.dir(), "daemon.sock")
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	// Set socket permissions to 0600.
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	s := &Server{
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}

	if p.Config != nil && p.Config.Metrics.Listen != "" {
		ml, err := net.Listen("tcp", p.Config.Metrics.Listen)
		if err != nil {
			_ = listener.Close()
			return nil, fmt.Errorf("listen metrics: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		s.metricsListener = ml
		s.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(logFailures(logger)))
	api.RegisterIngestServer(srv, ingestSvc)
	api.RegisterQueryServer(srv, querySvc)

	s.health = health.NewServer()
	healthpb.RegisterHealthServer(srv, s.health)
	s.grpcServer = srv

	return s, nil
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	if s.metricsServer != nil {
		s.logger.Info("metrics server starting", zap.String("addr", s.metricsListener.Addr().String()))
		go func() {
			if err := s.metricsServer.Serve(s.metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// MetricsAddr returns the bound metrics address, or "" when metrics are off.
func (s *Server) MetricsAddr() string {
	if s.metricsListener == nil {
		return ""
	}
	return s.metricsListener.Addr().String()
}

// Stop performs a graceful shutdown and removes the socket file. In-flight
// calls get until ctx is done, then the server is stopped hard.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("gRPC server stopping")
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("graceful stop timed out, forcing")
		s.grpcServer.Stop()
		<-done
	}

	if s.metricsServer != nil {
		_ = s.metricsServer.Shutdown(ctx)
	}
	_ = os.Remove(s.socketPath)
}

// logFailures logs unary calls that end with an error status.
func logFailures(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn("rpc failed",
				zap.String("method", info.FullMethod),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
		}
		return resp, err
	}
}
