package source

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrBlockNotFound is returned when a page carries none of the ATIS, METAR or TAF sections
var ErrBlockNotFound = errors.New("no ATIS, METAR or TAF block found")

// Blocks holds the monospace text sections of an airport page.
// A nil block means the section heading was not on the page.
type Blocks struct {
	ATIS  *string
	METAR *string
	TAF   *string
}

// Empty reports whether no section was found
func (b Blocks) Empty() bool {
	return b.ATIS == nil && b.METAR == nil && b.TAF == nil
}

type section int

const (
	sectionNone section = iota
	sectionATIS
	sectionMETAR
	sectionTAF
)

func headingSection(text string) section {
	switch strings.ToUpper(strings.TrimSpace(text)) {
	case "ATIS":
		return sectionATIS
	case "METAR/SPECI", "METAR", "SPECI":
		return sectionMETAR
	case "TAF":
		return sectionTAF
	}
	return sectionNone
}

// ExtractBlocks parses the page and returns the text of the first
// <p class="monospace"> following each <h6> section heading
func ExtractBlocks(r io.Reader) (Blocks, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Blocks{}, fmt.Errorf("failed to parse page: %w", err)
	}

	var blocks Blocks
	pending := sectionNone

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.DataAtom == atom.H6:
				pending = headingSection(nodeText(n))
				return
			case n.DataAtom == atom.P && hasClass(n, "monospace") && pending != sectionNone:
				text := strings.TrimSpace(nodeText(n))
				switch pending {
				case sectionATIS:
					blocks.ATIS = setOnce(blocks.ATIS, text)
				case sectionMETAR:
					blocks.METAR = setOnce(blocks.METAR, text)
				case sectionTAF:
					blocks.TAF = setOnce(blocks.TAF, text)
				}
				pending = sectionNone
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return blocks, nil
}

func setOnce(cur *string, text string) *string {
	if cur != nil {
		return cur
	}
	return &text
}

// nodeText collects the text below n, turning <br> into newlines.
// Entities such as &#xA; are already decoded by the parser.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.ReplaceAll(b.String(), "\r\n", "\n")
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}
