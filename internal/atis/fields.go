package atis

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reATISCode    = regexp.MustCompile(`\bATIS[ \t]+([A-Z])(?:\s|$)`)
	reDigits      = regexp.MustCompile(`\d+`)
	reTemperature = regexp.MustCompile(`([-M]?)(\d+)`)
)

// extractATISCode finds the revision letter that follows the word ATIS
func extractATISCode(block string) *string {
	m := reATISCode.FindStringSubmatch(block)
	if m == nil {
		return nil
	}
	return &m[1]
}

// extractText returns the trimmed text, or nil when nothing is left
func extractText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// extractToken returns the first whitespace-delimited token
func extractToken(s string) *string {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return nil
	}
	return &tokens[0]
}

// extractInt returns the first run of digits as an integer
func extractInt(s string) *int {
	m := reDigits.FindString(s)
	if m == "" {
		return nil
	}
	return atoi(m)
}

// extractTemperature reads the first run of digits like extractInt, and also
// treats a "-" or "M" directly before it as a minus sign: "-3" and "M03" are both -3
func extractTemperature(s string) *int {
	m := reTemperature.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return nil
	}
	if m[1] != "" {
		n = -n
	}
	return &n
}
