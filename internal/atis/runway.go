package atis

import (
	"regexp"
	"strings"
)

// Runways holds the decoded runway assignment.
// Rule names the phrasing that produced it, empty when nothing matched.
type Runways struct {
	Arrival   *string
	Departure *string
	Rule      string
}

const runwayDesignator = `(\d{2}[LCR]?)`

var (
	// 34L AND 34R FOR ARRS AND DEPS
	rePairedRunways = regexp.MustCompile(`(?i)^` + runwayDesignator + `\s+AND\s+` + runwayDesignator + `\s+FOR\s+ARRS?\s+AND\s+DEPS?\b`)
	// segments of "16 FOR ARR. 34 FOR DEP"
	reSegmentSplit = regexp.MustCompile(`(?i)[.,]|\bAND\b`)
	reArrSegment   = regexp.MustCompile(`(?i)^(?:RWY\s+)?` + runwayDesignator + `\s+FOR\s+ARR`)
	reDepSegment   = regexp.MustCompile(`(?i)^(?:RWY\s+)?` + runwayDesignator + `\s+FOR\s+DEP`)
	// 07
	reSingleRunway = regexp.MustCompile(`(?i)^` + runwayDesignator + `$`)
)

// runwayRule is one accepted phrasing. apply reports false when the text
// does not use that phrasing, leaving the next rule to try.
type runwayRule struct {
	name  string
	apply func(text string) (arr, dep *string, ok bool)
}

// runwayRules are tried in order, first match wins
var runwayRules = []runwayRule{
	{name: "paired", apply: pairedRunways},
	{name: "segmented", apply: segmentedRunways},
	{name: "single", apply: singleRunway},
}

// ParseRunways decodes the text following "RWY:". Unrecognized phrasing
// leaves both runways absent.
func ParseRunways(text string) Runways {
	text = strings.TrimSpace(text)
	if text == "" {
		return Runways{}
	}
	for _, rule := range runwayRules {
		if arr, dep, ok := rule.apply(text); ok {
			return Runways{Arrival: arr, Departure: dep, Rule: rule.name}
		}
	}
	return Runways{}
}

func designator(s string) *string {
	d := strings.ToUpper(s)
	return &d
}

func pairedRunways(text string) (*string, *string, bool) {
	m := rePairedRunways.FindStringSubmatch(text)
	if m == nil {
		return nil, nil, false
	}
	return designator(m[1]), designator(m[2]), true
}

func segmentedRunways(text string) (*string, *string, bool) {
	var arr, dep *string
	for _, seg := range reSegmentSplit.Split(text, -1) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if m := reArrSegment.FindStringSubmatch(seg); m != nil && arr == nil {
			arr = designator(m[1])
			continue
		}
		if m := reDepSegment.FindStringSubmatch(seg); m != nil && dep == nil {
			dep = designator(m[1])
		}
	}
	return arr, dep, arr != nil || dep != nil
}

func singleRunway(text string) (*string, *string, bool) {
	m := reSingleRunway.FindStringSubmatch(strings.TrimSuffix(text, "."))
	if m == nil {
		return nil, nil, false
	}
	return designator(m[1]), designator(m[1]), true
}
