// Package ttml reads TTML subtitles, as plain documents or carried by
// fragmented MP4 (stpp) segments, and converts them to SRT.
package ttml

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TTML is a Timed Text Markup Language document
type TTML struct {
	XMLName   xml.Name `xml:"tt"`
	Lang      string   `xml:"lang,attr"`
	TickRate  string   `xml:"tickRate,attr"`
	FrameRate string   `xml:"frameRate,attr"`
	Pages     []Page   `xml:"body>div>p"`
}

// Page is a caption displayed between Begin and End
type Page struct {
	ID    string
	Begin string
	End   string
	Dur   string
	Lines []string // SRT formatted lines
}

// UnmarshalXML collects the text of the paragraph: spans, line breaks and colors
func (p *Page) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	color := ""
	for _, a := range start.Attr {
		switch a.Name.Local {
		case "id":
			p.ID = a.Value
		case "begin":
			p.Begin = a.Value
		case "end":
			p.End = a.Value
		case "dur":
			p.Dur = a.Value
		case "color":
			color = a.Value
		}
	}

	colors := []string{color}
	line := strings.Builder{}
	flush := func() {
		if l := strings.TrimSpace(line.String()); l != "" {
			p.Lines = append(p.Lines, l)
		}
		line.Reset()
	}

	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "br":
				flush()
			case "span":
				c := colors[len(colors)-1]
				for _, a := range t.Attr {
					if a.Name.Local == "color" {
						c = a.Value
					}
				}
				colors = append(colors, c)
			}
		case xml.EndElement:
			switch {
			case t.Name.Local == "span" && len(colors) > 1:
				colors = colors[:len(colors)-1]
			case t.Name == start.Name:
				flush()
				return nil
			}
		case xml.CharData:
			line.WriteString(colored(string(t), colors[len(colors)-1]))
		}
	}
}

// colored collapses the white spaces of s, and wraps it into a font tag
// unless the color is the default one
func colored(s string, color string) string {
	text := strings.Join(strings.Fields(s), " ")
	if text == "" {
		if s != "" {
			return " "
		}
		return ""
	}
	if color != "" && !strings.EqualFold(color, "white") {
		text = fmt.Sprintf(`<font color="%s">%s</font>`, color, text)
	}
	if strings.TrimLeft(s, " \t\r\n") != s {
		text = " " + text
	}
	if strings.TrimRight(s, " \t\r\n") != s {
		text += " "
	}
	return text
}

// times gives the begin and end of the page
func (tt *TTML) times(p Page) (time.Duration, time.Duration, error) {
	begin, err := tt.parseTime(p.Begin)
	if err != nil {
		return 0, 0, err
	}
	if p.End == "" && p.Dur != "" {
		d, err := tt.parseTime(p.Dur)
		return begin, begin + d, err
	}
	end, err := tt.parseTime(p.End)
	return begin, end, err
}

func (tt *TTML) frameRate() float64 {
	if f, err := strconv.ParseFloat(tt.FrameRate, 64); err == nil && f > 0 {
		return f
	}
	return 30
}

func (tt *TTML) tickRate() float64 {
	if f, err := strconv.ParseFloat(tt.TickRate, 64); err == nil && f > 0 {
		return f
	}
	return 1
}

// parseTime reads clock times (hh:mm:ss.fff or hh:mm:ss:ff) and offset times (1.5s, 200ms, 50t)
func (tt *TTML) parseTime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) != 3 && len(parts) != 4 {
			return 0, fmt.Errorf("invalid clock time %q", s)
		}
		var v [3]float64
		for i := 0; i < 3; i++ {
			f, err := strconv.ParseFloat(parts[i], 64)
			if err != nil {
				return 0, fmt.Errorf("invalid clock time %q", s)
			}
			v[i] = f
		}
		secs := v[0]*3600 + v[1]*60 + v[2]
		if len(parts) == 4 {
			f, err := strconv.ParseFloat(parts[3], 64)
			if err != nil {
				return 0, fmt.Errorf("invalid clock time %q", s)
			}
			secs += f / tt.frameRate()
		}
		return seconds(secs), nil
	}

	i := strings.IndexFunc(s, func(r rune) bool { return (r < '0' || r > '9') && r != '.' })
	if i <= 0 {
		return 0, fmt.Errorf("invalid offset time %q", s)
	}
	f, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid offset time %q", s)
	}
	switch s[i:] {
	case "h":
		return seconds(f * 3600), nil
	case "m":
		return seconds(f * 60), nil
	case "s":
		return seconds(f), nil
	case "ms":
		return seconds(f / 1000), nil
	case "f":
		return seconds(f / tt.frameRate()), nil
	case "t":
		return seconds(f / tt.tickRate()), nil
	}
	return 0, fmt.Errorf("invalid offset time %q", s)
}

func seconds(f float64) time.Duration {
	return time.Duration(f*1000+0.5) * time.Millisecond
}
