package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// RedisContainer manages a Redis test container
type RedisContainer struct {
	container testcontainers.Container
	host      string
	port      string
}

// StartRedisContainer starts a Redis container for testing
func StartRedisContainer(ctx context.Context) (*RedisContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, err
	}

	mappedPort, err := container.MappedPort(ctx, "6379")
	if err != nil {
		return nil, err
	}

	return &RedisContainer{
		container: container,
		host:      host,
		port:      mappedPort.Port(),
	}, nil
}

// Stop terminates the Redis container
func (rc *RedisContainer) Stop(ctx context.Context) error {
	return rc.container.Terminate(ctx)
}

// Addr returns the Redis connection address
func (rc *RedisContainer) Addr() string {
	return fmt.Sprintf("%s:%s", rc.host, rc.port)
}

// TestRedisIntegration exercises the cache against a real Redis instance
func TestRedisIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	redisContainer, err := StartRedisContainer(ctx)
	require.NoError(t, err)
	defer redisContainer.Stop(ctx)

	svc, err := NewRedisService(&RedisConfig{
		Addr:     redisContainer.Addr(),
		PoolSize: 5,
	})
	require.NoError(t, err)
	defer svc.Close()

	t.Run("PlacesRoundTrip", func(t *testing.T) {
		type record struct {
			Name      *string `json:"name"`
			DistanceM int     `json:"distance_m"`
		}
		name := "Happy Paws Clinic"
		stored := []record{{Name: &name, DistanceM: 320}}

		key := "veterinary:25.03300:121.56540:1500:20:false"
		require.NoError(t, svc.SetPlaces(ctx, key, stored))

		var loaded []record
		require.NoError(t, svc.GetPlaces(ctx, key, &loaded))
		require.Len(t, loaded, 1)
		assert.Equal(t, "Happy Paws Clinic", *loaded[0].Name)
		assert.Equal(t, 320, loaded[0].DistanceM)
	})

	t.Run("PlacesMiss", func(t *testing.T) {
		var dest []string
		assert.Error(t, svc.GetPlaces(ctx, "no-such-key", &dest))
	})

	t.Run("InvalidatePlaces", func(t *testing.T) {
		require.NoError(t, svc.SetPlaces(ctx, "a", []string{"x"}))
		require.NoError(t, svc.SetPlaces(ctx, "b", []string{"y"}))
		require.NoError(t, svc.InvalidatePlaces(ctx))

		var dest []string
		assert.Error(t, svc.GetPlaces(ctx, "a", &dest))
		assert.Error(t, svc.GetPlaces(ctx, "b", &dest))
	})

	t.Run("ChatState", func(t *testing.T) {
		type pending struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		}
		require.NoError(t, svc.SetChatState(ctx, 99, pending{Lat: 25.03, Lon: 121.56}))

		var got pending
		require.NoError(t, svc.GetChatState(ctx, 99, &got))
		assert.Equal(t, 121.56, got.Lon)

		require.NoError(t, svc.DeleteChatState(ctx, 99))
		assert.Error(t, svc.GetChatState(ctx, 99, &got))
	})

	t.Run("ExpiryHonored", func(t *testing.T) {
		require.NoError(t, svc.Set(ctx, "short-lived", "v", time.Second))

		exists, err := svc.Exists(ctx, "short-lived")
		require.NoError(t, err)
		assert.True(t, exists)

		ttl, err := svc.TTL(ctx, "short-lived")
		require.NoError(t, err)
		assert.LessOrEqual(t, ttl, time.Second)
	})

	t.Run("HealthCheck", func(t *testing.T) {
		assert.True(t, svc.HealthCheck(ctx))
	})
}
