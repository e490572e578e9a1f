package grpchealth

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestHealthStatus(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil { t.Fatalf("dial: %v", err) }
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		cctx, ccancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer ccancel()
		resp, err := client.Check(cctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil { t.Fatalf("check %q: %v", service, err) }
		return resp.GetStatus()
	}
	if st := check(Service); st != healthpb.HealthCheckResponse_NOT_SERVING { t.Fatalf("initial status=%v", st) }
	s.SetServing(true)
	if st := check(""); st != healthpb.HealthCheckResponse_SERVING { t.Fatalf("overall status=%v", st) }
	if st := check(Service); st != healthpb.HealthCheckResponse_SERVING { t.Fatalf("service status=%v", st) }

	cancel()
	select {
	case err := <-done:
		if err != nil { t.Fatalf("serve: %v", err) }
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not stop")
	}
}
