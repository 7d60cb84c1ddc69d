package orbit

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/saviobatista/groundstation/internal/types"
)

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi

	coarseStep    = 30 * time.Second
	fineStep      = time.Second
	searchHorizon = 48 * time.Hour
)

// ErrNoPass is returned when no qualifying pass exists within the search horizon
var ErrNoPass = errors.New("no pass found within search horizon")

// SGP4Predictor predicts passes for one satellite from its TLE
type SGP4Predictor struct {
	sat     satellite.Satellite
	noradID string
}

var _ types.Predictor = (*SGP4Predictor)(nil)

// NewSGP4Predictor creates an SGP4 predictor from TLE lines.
//
// Lines are validated first because go-satellite calls log.Fatal on malformed input.
func NewSGP4Predictor(tle types.TLE) (*SGP4Predictor, error) {
	line1 := strings.TrimSpace(tle.Line1)
	line2 := strings.TrimSpace(tle.Line2)
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for %s: %w", tle.Name, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for %s: code=%d %s", tle.Name, sat.Error, sat.ErrorStr)
	}
	return &SGP4Predictor{sat: sat, noradID: strings.TrimSpace(line1[2:7])}, nil
}

// NewPredictor is NewSGP4Predictor returning the Predictor interface
func NewPredictor(tle types.TLE) (types.Predictor, error) {
	p, err := NewSGP4Predictor(tle)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func validateTLELines(line1, line2 string) error {
	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// position returns the TEME/ECI position (km) at t
func (p *SGP4Predictor) position(t time.Time) (satellite.Vector3, error) {
	t = t.UTC()
	pos, _ := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return satellite.Vector3{}, fmt.Errorf("sgp4 propagation failed for NORAD %s: output is NaN/Inf", p.noradID)
	}

	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if mag < 6200.0 || mag > 50000.0 {
		return satellite.Vector3{}, fmt.Errorf("sgp4 propagation failed for NORAD %s: unreasonable position magnitude %.1f km", p.noradID, mag)
	}
	return pos, nil
}

// elevation returns the elevation in degrees of the satellite seen from loc at t
func (p *SGP4Predictor) elevation(loc types.Location, t time.Time) (float64, error) {
	pos, err := p.position(t)
	if err != nil {
		return 0, err
	}
	t = t.UTC()
	jday := satellite.JDay(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	observer := satellite.LatLong{
		Latitude:  loc.Latitude * deg2rad,
		Longitude: loc.Longitude * deg2rad,
	}
	look := satellite.ECIToLookAngles(pos, observer, loc.Elevation/1000.0, jday)
	return look.El * rad2deg, nil
}

// SubPointLatitude returns the geodetic latitude in degrees of the sub-satellite point at t
func (p *SGP4Predictor) SubPointLatitude(t time.Time) (float64, error) {
	pos, err := p.position(t)
	if err != nil {
		return 0, err
	}
	t = t.UTC()
	gmst := satellite.GSTimeFromDate(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	_, _, ll := satellite.ECIToLLA(pos, gmst)
	return ll.Latitude * rad2deg, nil
}

// NextPass returns the first pass starting at or after the given time whose
// maximum elevation reaches minElevation. AOS and LOS are horizon crossings;
// a pass already in progress at after is skipped.
func (p *SGP4Predictor) NextPass(loc types.Location, after time.Time, minElevation float64) (types.Pass, error) {
	after = after.UTC().Truncate(time.Second)
	end := after.Add(searchHorizon)

	t := after
	// Skip a pass already in progress
	for t.Before(end) {
		el, err := p.elevation(loc, t)
		if err != nil {
			return types.Pass{}, err
		}
		if el <= 0 {
			break
		}
		t = t.Add(coarseStep)
	}

	for t.Before(end) {
		el, err := p.elevation(loc, t)
		if err != nil {
			return types.Pass{}, err
		}

		if el <= 0 {
			t = t.Add(coarseStep)
			continue
		}

		// Above the horizon: back up one coarse step and refine the window
		searchStart := t.Add(-coarseStep)
		if searchStart.Before(after) {
			searchStart = after
		}
		pass, windowEnd, err := p.refine(loc, searchStart, end)
		if err != nil {
			return types.Pass{}, err
		}
		if pass != nil && pass.MaxElevation >= minElevation {
			return *pass, nil
		}
		t = windowEnd.Add(coarseStep)
	}

	return types.Pass{}, ErrNoPass
}

// refine scans at one-second resolution from start and returns the pass found
// together with the time the scan stopped
func (p *SGP4Predictor) refine(loc types.Location, start, end time.Time) (*types.Pass, time.Time, error) {
	var (
		aos, los  time.Time
		maxEl     float64
		foundRise bool
	)

	t := start
	for t.Before(end) {
		el, err := p.elevation(loc, t)
		if err != nil {
			return nil, t, err
		}

		if el > 0 {
			if !foundRise {
				aos = t
				foundRise = true
				maxEl = el
			}
			if el > maxEl {
				maxEl = el
			}
		} else if foundRise {
			los = t
			break
		}
		t = t.Add(fineStep)
	}

	if !foundRise {
		return nil, t, nil
	}
	if los.IsZero() {
		los = t
	}
	return &types.Pass{AOS: aos, LOS: los, MaxElevation: maxEl}, los, nil
}
