package atis

import (
	"regexp"
	"strconv"
	"strings"
)

// Wind is the decoded WND field. Each part is optional and independent of the others.
type Wind struct {
	Raw            *string
	Direction      *string // 3-digit bearing or VRB
	SpeedKnots     *int
	GustKnots      *int
	MaxCrossOrTail *int // MAX XW / MAX TW limit
}

var (
	// 250/15-25, VRB/05
	reWindVector = regexp.MustCompile(`(?i)\b(\d{3}|VRB)/(\d{1,3})(?:-(\d{1,3}))?`)
	// MAX XW 20, MAX TW 5
	reWindLimit = regexp.MustCompile(`(?i)\bMAX\s+(?:TW|XW)\s*(\d+)`)
)

// ParseWind decodes wind text such as "250/15-25 MAX XW 20". The vector and
// the crosswind/tailwind limit are matched separately, so either may be
// present without the other.
func ParseWind(text string) Wind {
	text = strings.TrimSpace(text)
	if text == "" {
		return Wind{}
	}

	w := Wind{Raw: &text}

	if m := reWindVector.FindStringSubmatch(text); m != nil {
		dir := strings.ToUpper(m[1])
		w.Direction = &dir
		w.SpeedKnots = atoi(m[2])
		if m[3] != "" {
			w.GustKnots = atoi(m[3])
		}
	}

	if m := reWindLimit.FindStringSubmatch(text); m != nil {
		w.MaxCrossOrTail = atoi(m[1])
	}

	return w
}

// hasData reports whether anything beyond the raw text was decoded
func (w Wind) hasData() bool {
	return w.Direction != nil || w.MaxCrossOrTail != nil
}

func atoi(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
