package grpc

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakePinger struct {
	error error
}

func (f *fakePinger) Ping(context.Context) error { return f.error }

func statusOf(t *testing.T, h *HealthReporter, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := h.server.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthReporter_Check(t *testing.T) {
	testCases := []struct {
		name     string
		pingErr  error
		expected healthpb.HealthCheckResponse_ServingStatus
	}{
		{name: "storage reachable", expected: healthpb.HealthCheckResponse_SERVING},
		{name: "storage down", pingErr: errors.New("connection refused"), expected: healthpb.HealthCheckResponse_NOT_SERVING},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			h := NewHealthReporter(&fakePinger{error: tc.pingErr}, time.Second, slog.New(slog.DiscardHandler))

			// when
			h.check(context.Background())

			// then
			assert.Equal(t, tc.expected, statusOf(t, h, ""))
			assert.Equal(t, tc.expected, statusOf(t, h, ServiceName))
		})
	}
}

func TestHealthReporter_Recovers(t *testing.T) {
	// given
	pinger := &fakePinger{error: errors.New("down")}
	h := NewHealthReporter(pinger, time.Second, slog.New(slog.DiscardHandler))
	h.check(context.Background())
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, statusOf(t, h, ""))

	// when
	pinger.error = nil
	h.check(context.Background())

	// then
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, statusOf(t, h, ""))
}

func TestHealthReporter_ShutdownStaysNotServing(t *testing.T) {
	// given
	h := NewHealthReporter(&fakePinger{}, time.Second, slog.New(slog.DiscardHandler))

	// when
	h.Shutdown()
	h.check(context.Background())

	// then
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, statusOf(t, h, ""))
}

func TestHealthReporter_RunStopsWithContext(t *testing.T) {
	// given
	h := NewHealthReporter(&fakePinger{}, 10*time.Millisecond, slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	// when
	go func() { done <- h.Run(ctx) }()
	cancel()

	// then
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
