package atis

import (
	"strings"
	"unicode"
)

// Label is a recognized ATIS line prefix
type Label string

const (
	LabelApproach           Label = "APCH"
	LabelRunway             Label = "RWY"
	LabelOperationalInfo    Label = "OPR INFO"
	LabelWind               Label = "WND"
	LabelWeather            Label = "WX"
	LabelTemperature        Label = "TMP"
	LabelQNH                Label = "QNH"
	LabelSignificantWeather Label = "SIGWX"
)

// labelPrefixes maps every accepted spelling to its field.
// WIND is a synonym for WND.
var labelPrefixes = []struct {
	prefix string
	label  Label
}{
	{"OPR INFO:", LabelOperationalInfo},
	{"APCH:", LabelApproach},
	{"RWY:", LabelRunway},
	{"WND:", LabelWind},
	{"WIND:", LabelWind},
	{"WX:", LabelWeather},
	{"TMP:", LabelTemperature},
	{"QNH:", LabelQNH},
	{"SIGWX:", LabelSignificantWeather},
}

// Field is the raw text collected for one label, one entry per source line
type Field struct {
	Lines []string
}

// First returns the text on the line that opened the field
func (f Field) First() string {
	if len(f.Lines) == 0 {
		return ""
	}
	return f.Lines[0]
}

// Text returns all collected lines joined with single spaces
func (f Field) Text() string {
	return strings.Join(f.Lines, " ")
}

// Fields is the output of the line classifier. Labels never seen have no entry.
type Fields map[Label]Field

// Lookup returns the field for a label and whether it was present in the block
func (fs Fields) Lookup(label Label) (Field, bool) {
	f, ok := fs[label]
	return f, ok
}

// cleanLine strips the continuation marker and surrounding whitespace
func cleanLine(line string) string {
	return strings.TrimFunc(line, func(r rune) bool {
		return r == '+' || unicode.IsSpace(r)
	})
}

// matchLabel reports whether a cleaned line opens a field, returning the
// label and the text that follows the colon
func matchLabel(line string) (Label, string, bool) {
	for _, lp := range labelPrefixes {
		if strings.HasPrefix(line, lp.prefix) {
			return lp.label, strings.TrimSpace(line[len(lp.prefix):]), true
		}
	}
	return "", "", false
}

// splitLines splits a block on newlines, tolerating CRLF
func splitLines(block string) []string {
	block = strings.ReplaceAll(block, "\r\n", "\n")
	return strings.Split(block, "\n")
}

// Classify turns the ATIS block into a mapping from label to collected text.
// Lines before the first label are ignored. A field keeps every following
// line until another label opens; blank lines contribute nothing.
func Classify(lines []string) Fields {
	fields := make(Fields)
	var current Label
	open := false

	for _, raw := range lines {
		line := cleanLine(raw)

		if label, rest, ok := matchLabel(line); ok {
			f := fields[label]
			if f.Lines == nil {
				f.Lines = []string{}
			}
			if rest != "" {
				f.Lines = append(f.Lines, rest)
			}
			fields[label] = f
			current = label
			open = true
			continue
		}

		if !open || line == "" {
			continue
		}

		f := fields[current]
		f.Lines = append(f.Lines, line)
		fields[current] = f
	}

	return fields
}
