package handlers

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/jal-shakti/jal-shakti-api/internal/events"
	"github.com/jal-shakti/jal-shakti-api/internal/models"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestAuthAudit_LoginSuccessAndFailed(t *testing.T) {
	t.Parallel()

	out := &syncBuffer{}
	audit := NewAuthAudit(slog.New(slog.NewJSONHandler(out, nil)))
	ctx := context.Background()

	ok := events.Message{
		SubType: models.AuthLoginSuccess,
		Payload: []byte(`{"userId":"u1","ip":"1.2.3.4","userAgent":"curl"}`),
	}
	require.NoError(t, audit.LoginSuccess(ctx, ok))

	failed := events.Message{
		SubType: models.AuthLoginFailed,
		Payload: []byte(`{"userId":"u2","metadata":{"success":false,"reason":"invalid_password"}}`),
	}
	require.NoError(t, audit.LoginFailed(ctx, failed))

	logs := out.String()
	require.Contains(t, logs, `"msg":"login_succeeded"`)
	require.Contains(t, logs, `"user_id":"u1"`)
	require.Contains(t, logs, `"level":"WARN","msg":"login_failed"`)
	require.Contains(t, logs, `"reason":"invalid_password"`)
}

func TestAuthAudit_BrokenPayloadDoesNotFail(t *testing.T) {
	t.Parallel()

	audit := NewAuthAudit(slog.New(slog.NewTextHandler(&syncBuffer{}, nil)))
	msg := events.Message{Channel: "c", Payload: []byte("{not json")}

	require.NoError(t, audit.LoginSuccess(context.Background(), msg))
	require.NoError(t, audit.LoginFailed(context.Background(), msg))
}

func TestAuthMetrics_Observe(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewAuthMetrics(reg)
	require.NoError(t, err)

	_, err = NewAuthMetrics(reg)
	require.Error(t, err)

	ctx := context.Background()
	require.NoError(t, m.Observe(ctx, events.Message{SubType: models.AuthLogout}))
	require.NoError(t, m.Observe(ctx, events.Message{SubType: models.AuthLogout}))
	require.NoError(t, m.Observe(ctx, events.Message{SubType: models.AuthLoginFailed}))

	require.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("logout")))

	expected := `
# HELP jal_shakti_auth_events_total Auth events observed on the event bus, by subtype.
# TYPE jal_shakti_auth_events_total counter
jal_shakti_auth_events_total{sub_type="login_failed"} 1
jal_shakti_auth_events_total{sub_type="logout"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "jal_shakti_auth_events_total"))
}

func TestRegisterAuthHandlers_EndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	out := &syncBuffer{}
	lg := slog.New(slog.NewJSONHandler(out, nil))

	bus := events.New(events.NewMemoryTransport(16), events.Options{Logger: lg})
	require.NoError(t, bus.Initialize(ctx))
	t.Cleanup(func() { _ = bus.Disconnect(context.Background()) })

	reg := prometheus.NewRegistry()
	metrics, err := NewAuthMetrics(reg)
	require.NoError(t, err)

	require.NoError(t, RegisterAuthHandlers(ctx, bus, NewAuthAudit(lg), metrics))

	require.NoError(t, bus.Publish(ctx, models.EventAuth, models.AuthLoginSuccess, &models.AuthEvent{UserID: "u1"}))
	require.NoError(t, bus.Publish(ctx, models.EventAuth, models.AuthTokenRefresh, &models.AuthEvent{UserID: "u1"}))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.events.WithLabelValues("token_refresh")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.events.WithLabelValues("login_success")))
	require.Contains(t, out.String(), "login_succeeded")
}

type failingSubscriber struct{ err error }

func (f failingSubscriber) Subscribe(context.Context, models.EventType, models.SubType, events.Handler) (events.HandlerID, error) {
	return 0, f.err
}

func TestRegisterAuthHandlers_PropagatesSubscribeError(t *testing.T) {
	t.Parallel()

	err := RegisterAuthHandlers(context.Background(), failingSubscriber{err: events.ErrNotInitialized}, NewAuthAudit(nil), nil)
	require.ErrorIs(t, err, events.ErrNotInitialized)
}
