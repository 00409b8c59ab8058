// Package grpc holds client helpers for the bot's local gRPC endpoint.
package grpc

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// ProbeStage describes where a health probe failed.
type ProbeStage string

const (
	// ProbeStageConnect indicates the client could not be built.
	ProbeStageConnect ProbeStage = "connect"
	// ProbeStageHealth indicates the service never reported SERVING.
	ProbeStageHealth ProbeStage = "health"
)

// ProbeError wraps probe failures with a stage indicator.
type ProbeError struct {
	Stage   ProbeStage
	Service string
	Err     error
}

// Error implements the error interface.
func (e *ProbeError) Error() string {
	if e == nil {
		return "health probe error"
	}
	return fmt.Sprintf("health probe %s %q: %v", e.Stage, e.Service, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProbeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ClientDialOptions returns dial options for local health and admin clients.
// The OTel stats handler propagates trace context when a TracerProvider is
// set.
func ClientDialOptions() []gogrpc.DialOption {
	return []gogrpc.DialOption{
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// Probe connects to addr and waits up to timeout for service to report
// SERVING.
func Probe(ctx context.Context, addr, service string, timeout time.Duration, logf func(string, ...any)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := gogrpc.NewClient(addr, ClientDialOptions()...)
	if err != nil {
		return &ProbeError{Stage: ProbeStageConnect, Service: service, Err: err}
	}
	defer conn.Close()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := WaitForHealth(ctx, conn, service, logf); err != nil {
		return &ProbeError{Stage: ProbeStageHealth, Service: service, Err: err}
	}
	return nil
}

// WaitForHealth blocks until service reports SERVING or the context ends.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logf func(string, ...any)) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	healthClient := grpc_health_v1.NewHealthClient(conn)
	backoff := 200 * time.Millisecond
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		response, err := healthClient.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		if err == nil && response.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING {
			if logf != nil {
				logf("health %q is SERVING", service)
			}
			return nil
		}
		if logf != nil {
			if err != nil {
				logf("waiting for health %q: %v", service, err)
			} else {
				logf("waiting for health %q: status %s", service, response.GetStatus().String())
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for health %q: %w", service, ctx.Err())
		case <-time.After(backoff):
		}

		if backoff < time.Second {
			backoff = min(backoff*2, time.Second)
		}
	}
}
