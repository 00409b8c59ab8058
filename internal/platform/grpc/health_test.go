package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const testService = "shop.gateway"

func TestProbeServing(t *testing.T) {
	addr, _, stop := startHealthServer(t, grpc_health_v1.HealthCheckResponse_SERVING)
	defer stop()

	if err := Probe(context.Background(), addr, testService, 2*time.Second, nil); err != nil {
		t.Fatalf("probe: %v", err)
	}
}

func TestProbeReportsHealthStage(t *testing.T) {
	addr, _, stop := startHealthServer(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	defer stop()

	err := Probe(context.Background(), addr, testService, 300*time.Millisecond, nil)
	var probeErr *ProbeError
	if !errors.As(err, &probeErr) {
		t.Fatalf("error = %v, want ProbeError", err)
	}
	if probeErr.Stage != ProbeStageHealth {
		t.Fatalf("stage = %q, want %q", probeErr.Stage, ProbeStageHealth)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
}

func TestWaitForHealthTransitionsToServing(t *testing.T) {
	addr, setStatus, stop := startHealthServer(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	defer stop()

	conn := dialHealthServer(t, addr)
	defer conn.Close()

	go func() {
		time.Sleep(200 * time.Millisecond)
		setStatus(grpc_health_v1.HealthCheckResponse_SERVING)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var logged int
	logf := func(string, ...any) { logged++ }
	if err := WaitForHealth(ctx, conn, testService, logf); err != nil {
		t.Fatalf("wait for health after transition: %v", err)
	}
	if logged < 2 {
		t.Fatalf("logged = %d, want waiting and serving lines", logged)
	}
}

func TestWaitForHealthUnknownServiceRespectsContext(t *testing.T) {
	addr, _, stop := startHealthServer(t, grpc_health_v1.HealthCheckResponse_SERVING)
	defer stop()

	conn := dialHealthServer(t, addr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := WaitForHealth(ctx, conn, "shop.unknown", nil); err == nil {
		t.Fatal("expected context error, got nil")
	}
}

func TestWaitForHealthRequiresConn(t *testing.T) {
	if err := WaitForHealth(context.Background(), nil, testService, nil); err == nil {
		t.Fatal("expected error for nil connection")
	}
}

func startHealthServer(t *testing.T, status grpc_health_v1.HealthCheckResponse_ServingStatus) (string, func(grpc_health_v1.HealthCheckResponse_ServingStatus), func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	grpcServer := gogrpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(testService, status)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()

	setStatus := func(next grpc_health_v1.HealthCheckResponse_ServingStatus) {
		healthServer.SetServingStatus(testService, next)
	}

	stop := func() {
		grpcServer.GracefulStop()
		_ = listener.Close()
		select {
		case <-serveErr:
		case <-time.After(2 * time.Second):
		}
	}

	return listener.Addr().String(), setStatus, stop
}

func dialHealthServer(t *testing.T, addr string) *gogrpc.ClientConn {
	t.Helper()

	conn, err := gogrpc.NewClient(addr, ClientDialOptions()...)
	if err != nil {
		t.Fatalf("dial health server: %v", err)
	}
	return conn
}
