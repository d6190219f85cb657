package atis

import "testing"

func TestParseRunways(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantArr string
		wantDep string
		rule    string
	}{
		{"paired runways", "34L AND 34R FOR ARRS AND DEPS", "34L", "34R", "paired"},
		{"paired runways trailing text", "16L AND 16R FOR ARRS AND DEPS. INDEPENDENT PARALLEL APCH", "16L", "16R", "paired"},
		{"arrival with bare dep word", "16 FOR ARR AND DEP", "16", "", "segmented"},
		{"departure after bare dep word", "16 FOR ARR AND DEP. 34 FOR DEP", "16", "34", "segmented"},
		{"segmented by period", "16 FOR ARR. 34 FOR DEP", "16", "34", "segmented"},
		{"segmented by and", "27 FOR ARRS AND 34 FOR DEPS", "27", "34", "segmented"},
		{"segmented by comma", "09 FOR ARR, 16L FOR DEP", "09", "16L", "segmented"},
		{"segment with rwy word", "34 FOR ARR. RWY 27 FOR DEP", "34", "27", "segmented"},
		{"arrival only", "03 FOR ARR", "03", "", "segmented"},
		{"departure only", "21 FOR DEP", "", "21", "segmented"},
		{"single runway", "07", "07", "07", "single"},
		{"single runway with suffix", "34L", "34L", "34L", "single"},
		{"single runway trailing period", "25.", "25", "25", "single"},
		{"lower case", "16l for arr. 34r for dep", "16L", "34R", "segmented"},
		{"unrecognized", "RWY CLOSED", "", "", ""},
		{"runway with words", "07 WET", "", "", ""},
		{"empty", "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRunways(tt.text)
			if s := deref(got.Arrival); s != tt.wantArr {
				t.Errorf("arrival = %q, want %q", s, tt.wantArr)
			}
			if s := deref(got.Departure); s != tt.wantDep {
				t.Errorf("departure = %q, want %q", s, tt.wantDep)
			}
			if got.Rule != tt.rule {
				t.Errorf("rule = %q, want %q", got.Rule, tt.rule)
			}
		})
	}
}

func TestParseRunwaysAbsentIsNil(t *testing.T) {
	got := ParseRunways("RWY CLOSED FOR MAINT")
	if got.Arrival != nil || got.Departure != nil {
		t.Fatalf("expected nil runways, got %v / %v", got.Arrival, got.Departure)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(n *int) int {
	if n == nil {
		return -1
	}
	return *n
}
