package db

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saviobatista/groundstation/internal/db/migrations"
	"github.com/saviobatista/groundstation/internal/types"
)

func setupHistory(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "timescale/timescaledb:latest-pg14",
		postgres.WithDatabase("groundstation"),
		postgres.WithUsername("groundstation"),
		postgres.WithPassword("groundstation"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start TimescaleDB container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate TimescaleDB container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	client, err := New(connStr)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if _, err := migrations.New(client.DB(), zerolog.Nop()).Migrate(ctx, migrations.All()); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return client
}

func TestClient_Integration_History(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := setupHistory(t)
	ctx := context.Background()

	sat := types.NewSatellite("NOAA 19", 33591, 1, 20, 137.1, types.DownlinkAPT, true)
	aos := time.Now().UTC().Truncate(time.Second)
	pass := types.Pass{AOS: aos, LOS: aos.Add(12 * time.Minute), MaxElevation: 48}

	if err := client.StoreScheduledPass(ctx, &types.ScheduledRecording{Satellite: sat, AOS: aos, LOS: pass.LOS, Pass: pass}); err != nil {
		t.Fatalf("StoreScheduledPass() failed: %v", err)
	}

	rec := &types.Recording{ID: "rec-1", Satellite: sat, Stem: "/srv/NOAA_19/NOAA_19_x", Start: aos, Pass: pass}
	if err := client.StoreRecording(ctx, rec); err != nil {
		t.Fatalf("StoreRecording() failed: %v", err)
	}
	// Duplicate inserts are ignored
	if err := client.StoreRecording(ctx, rec); err != nil {
		t.Fatalf("Second StoreRecording() failed: %v", err)
	}
	if err := client.StoreDecode(ctx, rec.ID, []string{"/srv/NOAA_19/NOAA_19_x.png"}, true, 3*time.Second); err != nil {
		t.Fatalf("StoreDecode() failed: %v", err)
	}
	if err := client.StoreSystemStats(ctx, &types.StationStats{Time: time.Now().UTC(), Recordings: 1}); err != nil {
		t.Fatalf("StoreSystemStats() failed: %v", err)
	}

	decodes, err := client.RecentDecodes(ctx, aos.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("RecentDecodes() failed: %v", err)
	}
	if len(decodes) != 1 {
		t.Fatalf("Expected 1 decode, got %d", len(decodes))
	}
	if d := decodes[0]; d.Satellite != "NOAA 19" || !d.Success || len(d.Artifacts) != 1 {
		t.Errorf("Unexpected decode row: %+v", d)
	}
}
