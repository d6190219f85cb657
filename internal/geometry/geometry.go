package geometry

import (
	"math"
	"strconv"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
	"github.com/yegors/aussie-atis/internal/atis"
)

// Position is an aerodrome reference point
type Position struct {
	Latitude      float64
	Longitude     float64
	ElevationFeet float64
}

// Known reports whether the position was configured
func (p Position) Known() bool {
	return p.Latitude != 0 || p.Longitude != 0
}

// Assessment is derived from a decoded record without modifying it.
// Components refer to the arrival runway.
type Assessment struct {
	MagneticVariation    *float64 `json:"magnetic_variation,omitempty"`
	ArrivalTrueHeading   *float64 `json:"runway_arr_true_heading,omitempty"`
	DepartureTrueHeading *float64 `json:"runway_dep_true_heading,omitempty"`
	HeadwindKnots        *float64 `json:"headwind,omitempty"`
	CrosswindKnots       *float64 `json:"crosswind,omitempty"`
	LimitExceeded        *bool    `json:"limit_exceeded,omitempty"`
}

// MagneticVariation calculates the magnetic declination for a given position and time
// Returns declination in degrees (+East, -West)
func MagneticVariation(lat, lon, altFt float64, date time.Time) (float64, bool) {
	loc := egm96.NewLocationGeodetic(lat, lon, altFt*0.3048)

	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		return 0, false
	}
	return mag.D(), true
}

// RunwayHeading returns the magnetic heading named by a runway designator: "34L" is 340
func RunwayHeading(designator string) (int, bool) {
	if len(designator) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(designator[:2])
	if err != nil || n < 1 || n > 36 {
		return 0, false
	}
	return n * 10, true
}

// windBearing parses a 3-digit wind direction; VRB and anything else is rejected
func windBearing(dir string) (float64, bool) {
	if len(dir) != 3 {
		return 0, false
	}
	n, err := strconv.Atoi(dir)
	if err != nil || n < 0 || n > 360 {
		return 0, false
	}
	return float64(n), true
}

// Components resolves a wind into headwind and crosswind for a runway heading.
// A negative headwind is a tailwind. Positive crosswind blows from the right.
func Components(windDir string, speedKnots int, runwayHeading int) (headwind, crosswind float64, ok bool) {
	bearing, ok := windBearing(windDir)
	if !ok {
		return 0, 0, false
	}
	rad := (bearing - float64(runwayHeading)) * math.Pi / 180
	headwind = round1(float64(speedKnots) * math.Cos(rad))
	crosswind = round1(float64(speedKnots) * math.Sin(rad))
	return headwind, crosswind, true
}

// Assess derives runway headings and wind components from a record. Anything
// that cannot be derived is left nil.
func Assess(rec *atis.Record, pos Position, at time.Time) *Assessment {
	a := &Assessment{}
	if rec == nil {
		return a
	}

	var variation float64
	haveVariation := false
	if pos.Known() {
		if v, ok := MagneticVariation(pos.Latitude, pos.Longitude, pos.ElevationFeet, at); ok {
			variation = round1(v)
			haveVariation = true
			a.MagneticVariation = &variation
		}
	}

	trueHeading := func(designator *string) *float64 {
		if designator == nil || !haveVariation {
			return nil
		}
		hdg, ok := RunwayHeading(*designator)
		if !ok {
			return nil
		}
		t := normalize(float64(hdg) + variation)
		return &t
	}
	a.ArrivalTrueHeading = trueHeading(rec.RunwayArrival)
	a.DepartureTrueHeading = trueHeading(rec.RunwayDeparture)

	if rec.RunwayArrival == nil || rec.WindDirection == nil || rec.WindSpeedKnots == nil {
		return a
	}
	hdg, ok := RunwayHeading(*rec.RunwayArrival)
	if !ok {
		return a
	}
	head, cross, ok := Components(*rec.WindDirection, *rec.WindSpeedKnots, hdg)
	if !ok {
		return a
	}
	a.HeadwindKnots = &head
	a.CrosswindKnots = &cross

	if rec.WindMaxCrossOrTail != nil {
		// Gusts are checked as the worst case
		speed := *rec.WindSpeedKnots
		if rec.WindGustKnots != nil && *rec.WindGustKnots > speed {
			speed = *rec.WindGustKnots
		}
		gh, gc, _ := Components(*rec.WindDirection, speed, hdg)
		limit := float64(*rec.WindMaxCrossOrTail)
		exceeded := math.Abs(gc) > limit || -gh > limit
		a.LimitExceeded = &exceeded
	}

	return a
}

func normalize(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg <= 0 {
		deg += 360
	}
	return round1(deg)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
