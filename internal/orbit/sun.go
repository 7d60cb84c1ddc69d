package orbit

import (
	"math"
	"time"

	"github.com/saviobatista/groundstation/internal/types"
)

// NauticalTwilight is the sun altitude above which a pass counts as daytime
const NauticalTwilight = -12.0

// SubsolarPoint returns the subsolar latitude/longitude in degrees
func SubsolarPoint(t time.Time) (latDeg, lonDeg float64) {
	utc := t.UTC()
	jd := julianDay(utc)
	T := (jd - 2451545.0) / 36525.0

	L0 := math.Mod(280.46646+T*(36000.76983+T*0.0003032), 360.0)
	M := 357.52911 + T*(35999.05029-0.0001537*T)
	e := 0.016708634 - T*(0.000042037+0.0000001267*T)

	C := math.Sin(M*deg2rad)*(1.914602-T*(0.004817+0.000014*T)) +
		math.Sin(2*M*deg2rad)*(0.019993-0.000101*T) +
		math.Sin(3*M*deg2rad)*0.000289

	trueLong := L0 + C
	omega := 125.04 - 1934.136*T
	lambda := trueLong - 0.00569 - 0.00478*math.Sin(omega*deg2rad)

	eps0 := 23.0 + (26.0+(21.448-T*(46.815+T*(0.00059-0.001813*T)))/60.0)/60.0
	eps := eps0 + 0.00256*math.Cos(omega*deg2rad)

	decl := math.Asin(math.Sin(eps*deg2rad) * math.Sin(lambda*deg2rad))

	y := math.Tan(eps * deg2rad / 2.0)
	y *= y

	eqTime := 4 * rad2deg * (y*math.Sin(2*L0*deg2rad) -
		2*e*math.Sin(M*deg2rad) +
		4*e*y*math.Sin(M*deg2rad)*math.Cos(2*L0*deg2rad) -
		0.5*y*y*math.Sin(4*L0*deg2rad) -
		1.25*e*e*math.Sin(2*M*deg2rad))

	minutes := float64(utc.Hour()*60+utc.Minute()) + float64(utc.Second())/60.0 + float64(utc.Nanosecond())/6e10
	lonDeg = wrapLongitude((720 - (minutes + eqTime)) / 4)
	latDeg = decl * rad2deg
	return latDeg, lonDeg
}

// SunAltitude returns the altitude of the sun in degrees above the horizon at loc
func SunAltitude(t time.Time, loc types.Location) float64 {
	sunLat, sunLon := SubsolarPoint(t)

	lat1 := loc.Latitude * deg2rad
	lat2 := sunLat * deg2rad
	dLon := (sunLon - loc.Longitude) * deg2rad

	cosZenith := math.Sin(lat1)*math.Sin(lat2) + math.Cos(lat1)*math.Cos(lat2)*math.Cos(dLon)
	cosZenith = math.Max(-1, math.Min(1, cosZenith))
	return 90.0 - math.Acos(cosZenith)*rad2deg
}

// IsDaytime reports whether the sun is above nautical twilight at loc
func IsDaytime(t time.Time, loc types.Location) bool {
	return SunAltitude(t, loc) > NauticalTwilight
}

func wrapLongitude(lonDeg float64) float64 {
	lon := math.Mod(lonDeg+180.0, 360.0)
	if lon < 0 {
		lon += 360.0
	}
	return lon - 180.0
}

func julianDay(t time.Time) float64 {
	y, m, d := t.Date()
	if m <= 2 {
		y -= 1
		m += 12
	}
	A := y / 100
	B := 2 - A + A/4
	day := float64(d) + (float64(t.Hour()) / 24.0) + (float64(t.Minute()) / 1440.0) + (float64(t.Second()) / 86400.0) + (float64(t.Nanosecond()) / 8.64e13)
	return float64(int(365.25*float64(y+4716))) + float64(int(30.6001*float64(m+1))) + day + float64(B) - 1524.5
}
