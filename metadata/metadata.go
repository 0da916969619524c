// Package metadata holds the descriptive information recorded with a download:
// container tags given to the muxer, and the NFO sidecar file read by media centers.
package metadata

import (
	"fmt"
	"time"

	"github.com/simulot/dashdl/parsers/mpdparser"
)

// MediaInfo is the descriptive part of a presentation
type MediaInfo struct {
	Title     string   `xml:"title,omitempty"`
	Plot      string   `xml:"plot,omitempty"`
	Studio    string   `xml:"studio,omitempty"`
	Copyright string   `xml:"copyright,omitempty"`
	Lang      string   `xml:"language,omitempty"`
	Aired     Aired    `xml:"aired,omitempty"`
	Runtime   int      `xml:"runtime,omitempty"` // minutes
	Tag       []string `xml:"tag,omitempty"`

	URL         string `xml:"-"` // Manifest URL
	MoreInfoURL string `xml:"-"`
}

// FromMPD collects the ProgramInformation of the manifest. The first title, source
// and copyright found win.
func FromMPD(m *mpdparser.MPD, manifestURL string) *MediaInfo {
	info := &MediaInfo{URL: manifestURL}
	for _, pi := range m.ProgramInformation {
		setFirst(&info.Title, pi.Title)
		setFirst(&info.Studio, pi.Source)
		setFirst(&info.Copyright, pi.Copyright)
		setFirst(&info.Lang, pi.Lang)
		setFirst(&info.MoreInfoURL, pi.MoreInformationURL)
	}
	if m.PublishTime != nil {
		info.Aired = Aired(m.PublishTime.Time())
	} else if m.AvailabilityStartTime != nil {
		info.Aired = Aired(m.AvailabilityStartTime.Time())
	}
	if m.MediaPresentationDuration != nil {
		info.Runtime = int(m.MediaPresentationDuration.Duration().Round(time.Minute) / time.Minute)
	}
	return info
}

func setFirst(dst *string, v *string) {
	if *dst == "" && v != nil {
		*dst = *v
	}
}

// Tags gives the global tags written in the output container
func (m *MediaInfo) Tags() [][2]string {
	var tags [][2]string
	add := func(k, v string) {
		if v != "" {
			tags = append(tags, [2]string{k, v})
		}
	}
	add("title", m.Title)
	add("comment", m.Plot)
	add("publisher", m.Studio)
	add("copyright", m.Copyright)
	add("source", m.URL)
	if !m.Aired.Time().IsZero() {
		add("date", m.Aired.Time().Format("2006-01-02"))
	}
	return tags
}

// Aired type helper
type Aired time.Time

// UnmarshalText grab aired field and turn it into time
func (f *Aired) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*f = Aired{}
		return nil
	}
	t, err := time.Parse("2006-01-02", string(text))
	if err != nil {
		return fmt.Errorf("can't parse Aired. %w", err)
	}
	*f = Aired(t)
	return nil
}

// Time convert Aired to Time
func (f Aired) Time() time.Time {
	return time.Time(f)
}

// Equal compares the instants
func (f Aired) Equal(o Aired) bool {
	return f.Time().Equal(o.Time())
}

// MarshalText write Aired correctly
func (f Aired) MarshalText() ([]byte, error) {
	if f.Time().IsZero() {
		return nil, nil
	}
	return []byte(f.Time().Format("2006-01-02")), nil
}
