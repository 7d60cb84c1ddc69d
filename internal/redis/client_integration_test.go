package redis

import (
	"context"
	"strings"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisClient_Integration_TLECache(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := rediscontainer.Run(ctx, "redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections"),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	defer func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	}()

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get Redis connection string: %v", err)
	}

	client, err := New(strings.TrimPrefix(uri, "redis://"))
	if err != nil {
		t.Fatalf("Failed to create Redis client: %v", err)
	}
	defer client.Close()

	if err := client.StoreTLE(ctx, 33591, noaa19); err != nil {
		t.Fatalf("StoreTLE() failed: %v", err)
	}

	got, err := client.GetTLE(ctx, 33591)
	if err != nil {
		t.Fatalf("GetTLE() failed: %v", err)
	}
	if got == nil || got.Line1 != noaa19.Line1 {
		t.Fatalf("Expected cached TLE, got %+v", got)
	}

	missing, err := client.GetTLE(ctx, 1)
	if err != nil || missing != nil {
		t.Errorf("Expected nil for missing TLE, got %+v, %v", missing, err)
	}
}
