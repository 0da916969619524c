package mpdparser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"time"
)

// Parse decodes the manifest and checks its structure
func Parse(b []byte) (*MPD, error) {
	m := &MPD{}
	err := newDecoder(b).Decode(m)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	err = m.Validate()
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	m.Extra = withoutDefaultNamespace(m.Extra)
	return m, nil
}

// Read the MPD from the reader
func Read(r io.Reader) (*MPD, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("can't read MPD: %w", err)
	}
	return Parse(b)
}

// Marshal gives the XML text of the manifest, with the XML header.
// The DASH namespace is declared when the manifest has no default namespace.
func (m *MPD) Marshal() ([]byte, error) {
	c := *m
	if !hasDefaultNamespace(m.Extra) {
		c.Extra = append([]ExtraAttr{{Name: xml.Name{Local: "xmlns"}, Value: NamespaceDASH}}, m.Extra...)
	}
	output, err := xml.MarshalIndent(&c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("can't marshal MPD: %w", err)
	}
	b := bytes.NewBufferString(xml.Header)
	b.Write(output)
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// Write the MPD to the writer
func (m *MPD) Write(w io.Writer) error {
	output, err := m.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(output)
	if err != nil {
		return fmt.Errorf("can't write MPD: %w", err)
	}
	return nil
}

// Validate checks the structural rules the XML decoder can't enforce
func (m *MPD) Validate() error {
	if m.Type != nil && *m.Type != TypeStatic && *m.Type != TypeDynamic {
		return fmt.Errorf("unknown MPD type %q", *m.Type)
	}
	if len(m.Periods) == 0 {
		return errors.New("MPD without Period")
	}
	for i, p := range m.Periods {
		if len(p.AdaptationSets) == 0 {
			return fmt.Errorf("period #%d without AdaptationSet", i)
		}
		for j, a := range p.AdaptationSets {
			for k, r := range a.Representations {
				if r.ID == "" {
					return fmt.Errorf("period #%d, adaptation set #%d: representation #%d without id", i, j, k)
				}
				if r.Bandwidth == nil {
					return fmt.Errorf("period #%d, adaptation set #%d: representation %q without bandwidth", i, j, r.ID)
				}
			}
		}
		if i == 0 || p.Start == nil {
			continue
		}
		prev := m.Periods[i-1]
		prevStart, ok := m.PeriodStart(i - 1)
		if ok && prev.Duration != nil && p.Start.Duration() < prevStart+prev.Duration.Duration() {
			return fmt.Errorf("period #%d starts at %s, before the end of the previous one", i, p.Start.Duration())
		}
	}
	return nil
}

// PeriodStart gives the start of the i-th period from the beginning of the presentation.
// ok is false when it can't be determined.
func (m *MPD) PeriodStart(i int) (start time.Duration, ok bool) {
	p := m.Periods[i]
	switch {
	case p.Start != nil:
		return p.Start.Duration(), true
	case i == 0:
		return 0, true
	}
	prev := m.Periods[i-1]
	if prev.Duration == nil {
		return 0, false
	}
	s, ok := m.PeriodStart(i - 1)
	if !ok {
		return 0, false
	}
	return s + prev.Duration.Duration(), true
}

// PeriodDuration gives the duration of the i-th period.
// ok is false for an open period, like the last period of a live stream.
func (m *MPD) PeriodDuration(i int) (d time.Duration, ok bool) {
	p := m.Periods[i]
	if p.Duration != nil {
		return p.Duration.Duration(), true
	}
	start, ok := m.PeriodStart(i)
	if !ok {
		return 0, false
	}
	if i+1 < len(m.Periods) {
		next, ok := m.PeriodStart(i + 1)
		if !ok {
			return 0, false
		}
		return next - start, true
	}
	if m.MediaPresentationDuration != nil {
		return m.MediaPresentationDuration.Duration() - start, true
	}
	return 0, false
}
