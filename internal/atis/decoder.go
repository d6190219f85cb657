package atis

import (
	"strings"
	"time"
)

// Input holds the three text blocks isolated from the source page.
// A nil block was not present on the page.
type Input struct {
	ATIS  *string
	METAR *string
	TAF   *string
}

// Diagnostic reports a label that was present but whose payload could not be decoded
type Diagnostic struct {
	Field  Label  `json:"field"`
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

// Result is a decoded record together with any per-field diagnostics
type Result struct {
	Record      Record
	Diagnostics []Diagnostic
}

// Decoder turns text blocks into records. The zero value is ready to use and
// reads the wall clock for DecodedAt. A Decoder holds no state between calls
// and is safe for concurrent use.
type Decoder struct {
	// Now overrides the clock used for DecodedAt
	Now func() time.Time
}

// Decode decodes the blocks with the default decoder
func Decode(in Input) Result {
	return Decoder{}.Decode(in)
}

// DecodeText decodes a bare ATIS block without METAR or TAF
func DecodeText(atisText string) Record {
	return Decode(Input{ATIS: &atisText}).Record
}

// Decode builds a record from the input. It never fails: a field that is
// missing or malformed is left nil and does not affect any other field.
func (d Decoder) Decode(in Input) Result {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}

	var res Result
	rec := &res.Record

	rec.METARRaw = passThrough(in.METAR)
	rec.TAFRaw = passThrough(in.TAF)

	if block := passThrough(in.ATIS); block != nil {
		rec.ATISRaw = block
		res.Diagnostics = decodeATIS(*block, rec)
	}

	rec.DecodedAt = now().UTC()
	return res
}

func passThrough(block *string) *string {
	if block == nil {
		return nil
	}
	return extractText(*block)
}

// decodeATIS fills the ATIS-derived fields of rec
func decodeATIS(block string, rec *Record) []Diagnostic {
	var diags []Diagnostic
	unparseable := func(label Label, raw, reason string) {
		diags = append(diags, Diagnostic{Field: label, Raw: raw, Reason: reason})
	}

	rec.Code = extractATISCode(block)

	fields := Classify(splitLines(block))

	if f, ok := fields.Lookup(LabelApproach); ok {
		rec.Approach = extractText(f.First())
	}

	if f, ok := fields.Lookup(LabelRunway); ok {
		rwy := ParseRunways(f.First())
		rec.RunwayArrival = rwy.Arrival
		rec.RunwayDeparture = rwy.Departure
		if rwy.Rule == "" {
			unparseable(LabelRunway, f.First(), "unrecognized runway phrasing")
		}
	}

	if f, ok := fields.Lookup(LabelOperationalInfo); ok {
		rec.OperationalInfo = extractText(f.Text())
	}

	if f, ok := fields.Lookup(LabelWind); ok {
		w := ParseWind(f.First())
		rec.Wind = w.Raw
		rec.WindDirection = w.Direction
		rec.WindSpeedKnots = w.SpeedKnots
		rec.WindGustKnots = w.GustKnots
		rec.WindMaxCrossOrTail = w.MaxCrossOrTail
		if w.Raw != nil && !w.hasData() {
			unparseable(LabelWind, f.First(), "no wind vector or limit")
		}
	}

	if f, ok := fields.Lookup(LabelWeather); ok {
		rec.Weather = extractToken(f.First())
	}

	if f, ok := fields.Lookup(LabelTemperature); ok {
		rec.TemperatureCelsius = extractTemperature(f.First())
		if rec.TemperatureCelsius == nil {
			unparseable(LabelTemperature, f.First(), "no digits")
		}
	}

	if f, ok := fields.Lookup(LabelQNH); ok {
		rec.QNH = extractInt(f.First())
		if rec.QNH == nil {
			unparseable(LabelQNH, f.First(), "no digits")
		}
	}

	if f, ok := fields.Lookup(LabelSignificantWeather); ok {
		rec.SignificantWeather = extractText(f.First())
	}

	return diags
}

// String renders the diagnostic for log output
func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(string(d.Field))
	b.WriteString(": ")
	b.WriteString(d.Reason)
	if d.Raw != "" {
		b.WriteString(" (")
		b.WriteString(d.Raw)
		b.WriteString(")")
	}
	return b.String()
}
