package main

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const healthInterval = 15 * time.Second

// startGRPC serves the standard health service on addr. Its status follows
// ping until ctx is done.
func startGRPC(ctx context.Context, addr string, ping func(context.Context) error, log *zap.Logger) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	go watchHealth(ctx, hs, ping, healthInterval, log)
	go func() {
		log.Info("grpc server started", zap.String("addr", addr))
		if err := srv.Serve(lis); err != nil {
			log.Error("grpc server error", zap.Error(err))
		}
	}()
	return srv, nil
}

// watchHealth checks ping every interval and reports the result for the
// overall server ("") until ctx ends, then marks it as shutting down.
func watchHealth(ctx context.Context, hs *health.Server, ping func(context.Context) error, every time.Duration, log *zap.Logger) {
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := ping(pctx); err != nil {
			log.Warn("storage health check failed", zap.Error(err))
			hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			return
		}
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}
	check()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
			check()
		}
	}
}
