package events

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jal-shakti/jal-shakti-api/internal/models"
)

// TestMain поднимает Redis в контейнере, если задан GO_TEST_INTEGRATION.
func TestMain(m *testing.M) {
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		os.Exit(m.Run())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis testcontainer: %v\n", err)
		os.Exit(1)
	}

	endpoint, err := redisC.Endpoint(ctx, "")
	if err != nil {
		_ = redisC.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get container endpoint: %v\n", err)
		os.Exit(1)
	}

	_ = os.Setenv("REDIS_ADDR", endpoint)

	code := m.Run()

	_ = redisC.Terminate(context.Background())
	os.Exit(code)
}

func TestRedisTransport_Bus(t *testing.T) {
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration test: set GO_TEST_INTEGRATION=1")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tr := NewRedisTransport(&redis.Options{Addr: os.Getenv("REDIS_ADDR")}, nil)
	b := New(tr, Options{ChannelPrefix: "test:" + uuid.NewString()})
	require.NoError(t, b.Initialize(ctx))
	defer func() { _ = b.Disconnect(context.Background()) }()

	success, failed := &recorder{}, &recorder{}
	_, err := b.Subscribe(ctx, models.EventAuth, models.AuthLoginSuccess, success.handler())
	require.NoError(t, err)
	failedID, err := b.Subscribe(ctx, models.EventAuth, models.AuthLoginFailed, failed.handler())
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, models.EventAuth, models.AuthLoginSuccess, &models.AuthEvent{UserID: "u1"}))
	require.Eventually(t, func() bool { return success.len() == 1 }, 5*time.Second, 20*time.Millisecond)

	var ev models.AuthEvent
	require.NoError(t, success.first().Decode(&ev))
	require.Equal(t, "u1", ev.UserID)
	require.Equal(t, models.AuthLoginSuccess, ev.SubType)

	require.NoError(t, b.Unsubscribe(ctx, models.EventAuth, models.AuthLoginFailed, failedID))
	require.NoError(t, b.Publish(ctx, models.EventAuth, models.AuthLoginFailed, &models.AuthEvent{}))
	require.NoError(t, b.Publish(ctx, models.EventAuth, models.AuthLoginSuccess, &models.AuthEvent{}))
	require.Eventually(t, func() bool { return success.len() == 2 }, 5*time.Second, 20*time.Millisecond)
	require.Equal(t, 0, failed.len())

	require.NoError(t, b.Disconnect(ctx))
	require.ErrorIs(t, b.Publish(ctx, models.EventAuth, models.AuthLogout, &models.AuthEvent{}), ErrNotInitialized)
}

func TestRedisTransport_ConnectFails(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tr := NewRedisTransport(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1}, nil)
	b := New(tr, Options{})

	require.Error(t, b.Initialize(ctx))
	require.Equal(t, StateUninitialized, b.State())

	err := b.Publish(ctx, models.EventAuth, models.AuthLogout, &models.AuthEvent{})
	require.ErrorIs(t, err, ErrNotInitialized)
}
