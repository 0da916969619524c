package mpdparser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Identifiers of SegmentTemplate
const (
	identRepresentationID = "RepresentationID"
	identNumber           = "Number"
	identBandwidth        = "Bandwidth"
	identTime             = "Time"
)

var widthFormat = regexp.MustCompile(`^0?(\d*)d$`)

// templateVars are the values substituted in a SegmentTemplate
type templateVars struct {
	RepresentationID string // $RepresentationID$
	Bandwidth        uint64 // $Bandwidth$
	Number           uint64 // $Number$ = Current segment number
	Time             uint64 // $Time$ = current time in timescale units (not seconds)
}

type templatePart struct {
	literal string
	ident   string
	width   int
}

// urlTemplate is a parsed SegmentTemplate pattern
type urlTemplate []templatePart

// parseTemplate checks and splits the pattern. $$ stands for a single $.
func parseTemplate(s string) (urlTemplate, error) {
	var (
		t   urlTemplate
		lit strings.Builder
	)
	p := 0
	for p < len(s) {
		i := strings.IndexByte(s[p:], '$')
		if i < 0 {
			lit.WriteString(s[p:])
			break
		}
		lit.WriteString(s[p : p+i])
		p += i + 1
		i = strings.IndexByte(s[p:], '$')
		if i < 0 {
			return nil, fmt.Errorf("unterminated identifier in template %q", s)
		}
		tok := s[p : p+i]
		p += i + 1
		if tok == "" {
			lit.WriteByte('$')
			continue
		}

		ident, format, hasFormat := strings.Cut(tok, "%")
		part := templatePart{ident: ident}
		switch ident {
		case identRepresentationID:
			if hasFormat {
				return nil, fmt.Errorf("format not allowed for $%s$ in template %q", ident, s)
			}
		case identNumber, identBandwidth, identTime:
			if hasFormat {
				m := widthFormat.FindStringSubmatch(format)
				if m == nil {
					return nil, fmt.Errorf("invalid format %q in template %q", format, s)
				}
				if m[1] != "" {
					part.width, _ = strconv.Atoi(m[1])
				}
			}
		default:
			return nil, fmt.Errorf("unknown identifier $%s$ in template %q", tok, s)
		}
		if lit.Len() > 0 {
			t = append(t, templatePart{literal: lit.String()})
			lit.Reset()
		}
		t = append(t, part)
	}
	if lit.Len() > 0 {
		t = append(t, templatePart{literal: lit.String()})
	}
	return t, nil
}

// uses tells if the template refers to the identifier
func (t urlTemplate) uses(ident string) bool {
	for _, p := range t {
		if p.ident == ident {
			return true
		}
	}
	return false
}

func (t urlTemplate) expand(v templateVars) string {
	var b strings.Builder
	for _, p := range t {
		switch p.ident {
		case "":
			b.WriteString(p.literal)
		case identRepresentationID:
			b.WriteString(v.RepresentationID)
		case identNumber:
			writePadded(&b, v.Number, p.width)
		case identBandwidth:
			writePadded(&b, v.Bandwidth, p.width)
		case identTime:
			writePadded(&b, v.Time, p.width)
		}
	}
	return b.String()
}

func writePadded(b *strings.Builder, v uint64, width int) {
	s := strconv.FormatUint(v, 10)
	for i := len(s); i < width; i++ {
		b.WriteByte('0')
	}
	b.WriteString(s)
}
