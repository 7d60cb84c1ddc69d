package tle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/saviobatista/groundstation/internal/types"
)

const (
	// DefaultSourceURL takes the NORAD catalog number as its only verb
	DefaultSourceURL = "https://celestrak.org/NORAD/elements/gp.php?CATNR=%d&FORMAT=tle"

	maxBodyBytes = 1 << 20
)

// ErrNotFound is returned when the source has no element set for a catalog number
var ErrNotFound = errors.New("no TLE found")

// Fetcher retrieves element sets per satellite from an HTTP source
type Fetcher struct {
	sourceURL  string
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time
}

// NewFetcher creates a Fetcher. sourceURL must contain one %d for the catalog number.
func NewFetcher(sourceURL string, logger zerolog.Logger) *Fetcher {
	if sourceURL == "" {
		sourceURL = DefaultSourceURL
	}
	return &Fetcher{
		sourceURL: sourceURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// FetchTLE downloads and parses the element set of one satellite
func (f *Fetcher) FetchTLE(ctx context.Context, noradID int) (types.TLE, error) {
	url := fmt.Sprintf(f.sourceURL, noradID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.TLE{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return types.TLE{}, fmt.Errorf("failed to fetch TLE data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return types.TLE{}, fmt.Errorf("%w for NORAD %d", ErrNotFound, noradID)
	}
	if resp.StatusCode != http.StatusOK {
		return types.TLE{}, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return types.TLE{}, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return types.TLE{}, fmt.Errorf("response from %s exceeds %d byte limit", url, maxBodyBytes)
	}

	entries, err := Parse(bytes.NewReader(body), f.logger)
	if err != nil {
		return types.TLE{}, err
	}

	for _, e := range entries {
		if e.NoradID == noradID {
			return types.TLE{
				Name:      e.Name,
				Line1:     strings.TrimSpace(e.Line1),
				Line2:     strings.TrimSpace(e.Line2),
				FetchedAt: f.now(),
			}, nil
		}
	}
	return types.TLE{}, fmt.Errorf("%w for NORAD %d", ErrNotFound, noradID)
}
