package grpcapi

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-check name of the booking core.
const ServiceName = "clinic.booking.v1.Core"

const defaultPingInterval = 10 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes grpc.health.v1 and reflection. Health follows the database:
// SERVING while it answers pings, NOT_SERVING otherwise.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	db       Pinger
	interval time.Duration
	logger   *zap.Logger
}

func NewServer(db Pinger, interval time.Duration, logger *zap.Logger) *Server {
	if interval <= 0 {
		interval = defaultPingInterval
	}
	s := &Server{
		grpc:     grpc.NewServer(),
		health:   health.NewServer(),
		db:       db,
		interval: interval,
		logger:   logger.Named("grpc"),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("grpc.listen", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// WatchDB pings the database until ctx is done and mirrors the result into
// the health status.
func (s *Server) WatchDB(ctx context.Context) {
	s.check(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *Server) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()
	if err := s.db.Ping(pingCtx); err != nil {
		s.logger.Warn("grpc.health.db_unreachable", zap.Error(err))
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// GracefulStop marks the server as shutting down and drains open RPCs.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
