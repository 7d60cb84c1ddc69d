// Package testutils holds fixtures shared by package tests.
package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/saviobatista/groundstation/internal/types"
)

// ISS element set, epoch 2024-03-20
const (
	ISSName  = "ISS (ZARYA)"
	ISSLine1 = "1 25544U 98067A   24080.50000000  .00016717  00000-0  30057-3 0  9999"
	ISSLine2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.49815322444449"
)

// MockTLE returns a fixture element set
func MockTLE() types.TLE {
	return types.TLE{
		Name:      ISSName,
		Line1:     ISSLine1,
		Line2:     ISSLine2,
		FetchedAt: time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC),
	}
}

// MockSatellite creates an APT satellite with the given priority
func MockSatellite(name string, priority int) *types.Satellite {
	return types.NewSatellite(name, 10000+priority, priority, 10, 137.1, types.DownlinkAPT, false)
}

// PassAt builds a pass starting at aos
func PassAt(aos time.Time, duration time.Duration, maxElevation float64) types.Pass {
	return types.Pass{AOS: aos, LOS: aos.Add(duration), MaxElevation: maxElevation}
}

// MockPredictor returns scripted passes: the first one with AOS at or after
// the query time, or Err when set
type MockPredictor struct {
	Passes []types.Pass
	Err    error

	mu    sync.Mutex
	calls int
}

// NextPass implements types.Predictor
func (p *MockPredictor) NextPass(loc types.Location, after time.Time, minElevation float64) (types.Pass, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.Err != nil {
		return types.Pass{}, p.Err
	}
	for _, pass := range p.Passes {
		if !pass.AOS.Before(after) && pass.MaxElevation >= minElevation {
			return pass, nil
		}
	}
	return types.Pass{}, fmt.Errorf("no scripted pass after %s", after.Format(time.RFC3339))
}

// SubPointLatitude implements types.Predictor; the satellite moves north
func (p *MockPredictor) SubPointLatitude(t time.Time) (float64, error) {
	return float64(t.Unix()%3600) / 100, nil
}

// Calls returns the number of NextPass calls
func (p *MockPredictor) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
		}
	}
}
