// Package grpc runs the gRPC health-probe endpoint used by orchestrators.
// Serving status follows the database: SERVING while it answers pings.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/paygate/internal/dbx"
	"github.com/dmitrijs2005/paygate/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name health clients ask about besides the overall "".
const ServiceName = "paygate"

const defaultProbeInterval = 10 * time.Second

type GRPCServer struct {
	address  string
	store    dbx.Store
	logger   logging.Logger
	health   *health.Server
	interval time.Duration
}

func NewGRPCServer(address string, store dbx.Store, l logging.Logger) *GRPCServer {
	return &GRPCServer{
		address:  address,
		store:    store,
		logger:   l.With("module", "grpc_server"),
		health:   health.NewServer(),
		interval: defaultProbeInterval,
	}
}

func (s *GRPCServer) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// probe pings the store once and publishes the result.
func (s *GRPCServer) probe(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := s.store.PingContext(pingCtx); err != nil {
		s.logger.Warn(ctx, "database ping failed", "error", err)
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
}

func (s *GRPCServer) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probe(ctx)
		}
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve blocks on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, s.health)

	s.probe(ctx)
	go s.watch(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
