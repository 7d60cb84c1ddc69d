package tle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/saviobatista/groundstation/internal/types"
)

const (
	noaa19Line1 = "1 33591U 09005A   24100.50000000  .00000100  00000-0  80000-4 0  9990"
	noaa19Line2 = "2 33591  99.1000 100.0000 0014000 100.0000 260.0000 14.12500000    00"
	issLine1    = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2    = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

var testLogger = zerolog.Nop()

func TestParse(t *testing.T) {
	data := "NOAA 19\n" + noaa19Line1 + "\n" + noaa19Line2 + "\r\n\n" +
		"garbage line\n" +
		"ISS (ZARYA)\n" + issLine1 + "\n" + issLine2 + "\n"

	entries, err := Parse(strings.NewReader(data), testLogger)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}

	if entries[0].NoradID != 33591 || entries[0].Name != "NOAA 19" {
		t.Errorf("Unexpected first entry: %+v", entries[0])
	}
	if entries[1].NoradID != 25544 || entries[1].Name != "ISS (ZARYA)" {
		t.Errorf("Unexpected second entry: %+v", entries[1])
	}

	// Day 100.5 of 2024 (leap year) is April 9 at 12:00
	want := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	if !entries[0].Epoch.Equal(want) {
		t.Errorf("Expected epoch %v, got %v", want, entries[0].Epoch)
	}
}

func TestParseEpoch(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "24001.00000000", want: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{in: "98032.25000000", want: time.Date(1998, 2, 1, 6, 0, 0, 0, time.UTC)},
		{in: "56365.00000000", want: time.Date(2056, 12, 30, 0, 0, 0, 0, time.UTC)},
		{in: "24", wantErr: true},
		{in: "xx001.0", wantErr: true},
		{in: "24abc.0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseEpoch(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseEpoch() failed: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseEpoch(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFetcher_FetchTLE(t *testing.T) {
	var requested string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Query().Get("CATNR")
		fmt.Fprintf(w, "NOAA 19                 \n%s\n%s\n", noaa19Line1, noaa19Line2)
	}))
	defer server.Close()

	fetcher := NewFetcher(server.URL+"/gp.php?CATNR=%d&FORMAT=tle", testLogger)
	fixed := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	fetcher.now = func() time.Time { return fixed }

	tle, err := fetcher.FetchTLE(context.Background(), 33591)
	if err != nil {
		t.Fatalf("FetchTLE() failed: %v", err)
	}
	if requested != "33591" {
		t.Errorf("Expected catalog number 33591 in request, got %q", requested)
	}
	if tle.Name != "NOAA 19" || tle.Line1 != noaa19Line1 || tle.Line2 != noaa19Line2 {
		t.Errorf("Unexpected TLE: %+v", tle)
	}
	if !tle.FetchedAt.Equal(fixed) {
		t.Errorf("Expected FetchedAt %v, got %v", fixed, tle.FetchedAt)
	}
}

func TestFetcher_Errors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		notFound bool
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "not found status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			notFound: true,
		},
		{
			name: "no gp data",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "No GP data found\n")
			},
			notFound: true,
		},
		{
			name: "other satellite",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, "ISS (ZARYA)\n%s\n%s\n", issLine1, issLine2)
			},
			notFound: true,
		},
		{
			name: "oversized body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(strings.Repeat("A", maxBodyBytes+10)))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			fetcher := NewFetcher(server.URL+"/?CATNR=%d", testLogger)
			_, err := fetcher.FetchTLE(context.Background(), 33591)
			if err == nil {
				t.Fatal("Expected error, got none")
			}
			if got := errors.Is(err, ErrNotFound); got != tt.notFound {
				t.Errorf("errors.Is(err, ErrNotFound) = %v, want %v (%v)", got, tt.notFound, err)
			}
		})
	}
}

func TestNewFetcher_DefaultURL(t *testing.T) {
	if f := NewFetcher("", testLogger); f.sourceURL != DefaultSourceURL {
		t.Errorf("Expected default source URL, got %s", f.sourceURL)
	}
}

type fakeSource struct {
	tles map[int]types.TLE
	err  error
}

func (f *fakeSource) FetchTLE(ctx context.Context, noradID int) (types.TLE, error) {
	if f.err != nil {
		return types.TLE{}, f.err
	}
	tle, ok := f.tles[noradID]
	if !ok {
		return types.TLE{}, ErrNotFound
	}
	return tle, nil
}

type fakeCache struct {
	stored map[int]types.TLE
}

func (f *fakeCache) StoreTLE(ctx context.Context, noradID int, tle types.TLE) error {
	f.stored[noradID] = tle
	return nil
}

func (f *fakeCache) GetTLE(ctx context.Context, noradID int) (*types.TLE, error) {
	tle, ok := f.stored[noradID]
	if !ok {
		return nil, nil
	}
	return &tle, nil
}

type stubPredictor struct{ tle types.TLE }

func (s *stubPredictor) NextPass(types.Location, time.Time, float64) (types.Pass, error) {
	return types.Pass{}, nil
}

func (s *stubPredictor) SubPointLatitude(time.Time) (float64, error) { return 0, nil }

func stubFactory(tle types.TLE) (types.Predictor, error) {
	if tle.Line1 == "" {
		return nil, errors.New("empty line1")
	}
	return &stubPredictor{tle: tle}, nil
}

func TestRefresher_Refresh(t *testing.T) {
	noaa := types.NewSatellite("NOAA 19", 33591, 1, 20, 137.1, types.DownlinkAPT, true)
	iss := types.NewSatellite("ISS", 25544, 1, 20, 145.8, types.DownlinkAPT, true)

	source := &fakeSource{tles: map[int]types.TLE{
		33591: {Name: "NOAA 19", Line1: noaa19Line1, Line2: noaa19Line2},
	}}
	cache := &fakeCache{stored: map[int]types.TLE{}}

	r := NewRefresher(source, cache, stubFactory, testLogger)
	res := r.Refresh(context.Background(), []*types.Satellite{noaa, iss})

	if res.Updated != 1 || res.Failed != 1 || res.FromCache != 0 {
		t.Errorf("Unexpected result: %+v", res)
	}
	if noaa.Orbit() == nil || noaa.Orbit().TLE.Line1 != noaa19Line1 {
		t.Error("Expected NOAA 19 orbit to be updated")
	}
	if iss.Orbit() != nil {
		t.Error("Expected ISS orbit to stay empty")
	}
	if _, ok := cache.stored[33591]; !ok {
		t.Error("Expected fetched TLE to be cached")
	}
}

func TestRefresher_KeepsStaleOnFailure(t *testing.T) {
	sat := types.NewSatellite("NOAA 19", 33591, 1, 20, 137.1, types.DownlinkAPT, true)
	stale := types.TLE{Name: "NOAA 19", Line1: "stale1", Line2: "stale2"}
	stalePredictor := &stubPredictor{tle: stale}
	sat.UpdateOrbit(stale, stalePredictor)

	// A cached copy must not override a snapshot already in use
	cache := &fakeCache{stored: map[int]types.TLE{33591: {Line1: "cached1", Line2: "cached2"}}}
	r := NewRefresher(&fakeSource{err: errors.New("connection refused")}, cache, stubFactory, testLogger)

	res := r.Refresh(context.Background(), []*types.Satellite{sat})
	if res.Failed != 1 {
		t.Errorf("Expected one failure, got %+v", res)
	}
	if sat.Predictor() != stalePredictor {
		t.Error("Expected stale predictor to be kept")
	}
}

func TestRefresher_FallsBackToCache(t *testing.T) {
	sat := types.NewSatellite("METEOR-M2 3", 57166, 2, 20, 137.9, types.DownlinkLRPT, true)
	cached := types.TLE{Name: "METEOR-M2 3", Line1: "cached1", Line2: "cached2"}
	cache := &fakeCache{stored: map[int]types.TLE{57166: cached}}

	r := NewRefresher(&fakeSource{err: errors.New("timeout")}, cache, stubFactory, testLogger)
	res := r.Refresh(context.Background(), []*types.Satellite{sat})

	if res.FromCache != 1 || res.Failed != 0 {
		t.Errorf("Unexpected result: %+v", res)
	}
	if sat.Orbit() == nil || sat.Orbit().TLE.Line1 != "cached1" {
		t.Error("Expected cached TLE to be applied")
	}
}

func TestRefresher_NilCache(t *testing.T) {
	sat := types.NewSatellite("NOAA 18", 28654, 1, 20, 137.9125, types.DownlinkAPT, true)
	r := NewRefresher(&fakeSource{err: errors.New("timeout")}, nil, stubFactory, testLogger)

	res := r.Refresh(context.Background(), []*types.Satellite{sat})
	if res.Failed != 1 {
		t.Errorf("Expected one failure, got %+v", res)
	}
	if sat.Orbit() != nil {
		t.Error("Expected no orbit without cache")
	}
}

func TestRefresher_InvalidTLE(t *testing.T) {
	sat := types.NewSatellite("NOAA 15", 25338, 1, 20, 137.62, types.DownlinkAPT, true)
	source := &fakeSource{tles: map[int]types.TLE{25338: {Name: "NOAA 15"}}}
	cache := &fakeCache{stored: map[int]types.TLE{}}

	r := NewRefresher(source, cache, stubFactory, testLogger)
	res := r.Refresh(context.Background(), []*types.Satellite{sat})

	if res.Failed != 1 {
		t.Errorf("Expected one failure, got %+v", res)
	}
	if len(cache.stored) != 0 {
		t.Error("Expected invalid TLE not to be cached")
	}
}
