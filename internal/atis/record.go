package atis

import "time"

// Record is the structured form of one ATIS bulletin plus the METAR and TAF
// carried alongside it. Every field is optional; nil means the value was not
// found or could not be decoded.
type Record struct {
	Code               *string   `json:"code"`
	Approach           *string   `json:"approach"`
	RunwayArrival      *string   `json:"runway_arr"`
	RunwayDeparture    *string   `json:"runway_dep"`
	OperationalInfo    *string   `json:"opr_info"`
	Wind               *string   `json:"wind"`
	WindDirection      *string   `json:"wind_dir"`
	WindSpeedKnots     *int      `json:"wind_speed"`
	WindGustKnots      *int      `json:"wind_gust"`
	WindMaxCrossOrTail *int      `json:"wind_max_tw"`
	Weather            *string   `json:"weather"`
	TemperatureCelsius *int      `json:"temperature"`
	QNH                *int      `json:"qnh"`
	SignificantWeather *string   `json:"sigwx"`
	ATISRaw            *string   `json:"atis"`
	METARRaw           *string   `json:"metar"`
	TAFRaw             *string   `json:"taf"`
	DecodedAt          time.Time `json:"last_updated"`
}

// State is the one-line summary shown for an airport: the weather code,
// "ATIS <code>" when only the revision letter is known, otherwise "Unknown".
func (r *Record) State() string {
	if r == nil {
		return "Unknown"
	}
	if r.Weather != nil {
		return *r.Weather
	}
	if r.Code != nil {
		return "ATIS " + *r.Code
	}
	return "Unknown"
}

// SameSource reports whether two records were decoded from identical ATIS, METAR and TAF text
func (r *Record) SameSource(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	return equalString(r.ATISRaw, other.ATISRaw) &&
		equalString(r.METARRaw, other.METARRaw) &&
		equalString(r.TAFRaw, other.TAFRaw)
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
