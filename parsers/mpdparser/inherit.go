package mpdparser

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ContentType is the kind of media carried by an adaptation set
type ContentType string

// Content types
const (
	ContentUnknown ContentType = ""
	ContentVideo   ContentType = "video"
	ContentAudio   ContentType = "audio"
	ContentText    ContentType = "text"
)

// Type returns the content type of the adaptation set, given by contentType attribute
// or guessed from the mime type and codecs of the set or its first representation.
func (a *AdaptationSet) Type() ContentType {
	if a.ContentType != nil {
		switch ct := ContentType(strings.ToLower(*a.ContentType)); ct {
		case ContentVideo, ContentAudio, ContentText:
			return ct
		}
	}
	mime, codecs := deref(a.MimeType), deref(a.Codecs)
	if len(a.Representations) > 0 {
		r := a.Representations[0]
		if mime == "" {
			mime = deref(r.MimeType)
		}
		if codecs == "" {
			codecs = deref(r.Codecs)
		}
	}
	return typeFromMime(mime, codecs)
}

func typeFromMime(mime, codecs string) ContentType {
	mime = strings.ToLower(mime)
	switch {
	case strings.HasPrefix(mime, "video/"):
		return ContentVideo
	case strings.HasPrefix(mime, "audio/"):
		return ContentAudio
	case strings.HasPrefix(mime, "text/"), mime == "application/ttml+xml":
		return ContentText
	case mime == "application/mp4":
		if strings.HasPrefix(codecs, "stpp") || strings.HasPrefix(codecs, "wvtt") {
			return ContentText
		}
	}
	return ContentUnknown
}

// Effective is the flat view of a representation, once attributes inherited from
// the adaptation set, the period and the MPD are resolved.
type Effective struct {
	MPD            *MPD
	PeriodIndex    int
	Period         *Period
	AdaptationSet  *AdaptationSet
	Representation *Representation

	ID                string
	Bandwidth         uint64
	ContentType       ContentType
	MimeType          string
	Codecs            string
	Lang              string
	Width             uint64
	Height            uint64
	FrameRate         *FrameRate
	AudioSamplingRate string
	AudioChannels     string
	Roles             []*Descriptor

	// BaseURL is the absolute URL segment references are relative to
	BaseURL *url.URL

	// Segment addressing, merged along the hierarchy. Only one of them is set.
	SegmentTemplate *SegmentTemplate
	SegmentList     *SegmentList
	SegmentBase     *SegmentBase

	PeriodStart          time.Duration
	PeriodDuration       *time.Duration // nil when the period is open
	Dynamic              bool
	AvailabilityStart    time.Time
	TimeShiftBufferDepth *time.Duration
}

// Effective computes the effective attributes of the representation r, member of the
// adaptation set a in the period at periodIndex.
func (m *MPD) Effective(manifestURL *url.URL, periodIndex int, a *AdaptationSet, r *Representation) (*Effective, error) {
	if periodIndex < 0 || periodIndex >= len(m.Periods) {
		return nil, fmt.Errorf("no period #%d", periodIndex)
	}
	p := m.Periods[periodIndex]

	base, err := ResolveBaseURL(manifestURL, m.BaseURLs, p.BaseURLs, a.BaseURLs, r.BaseURLs)
	if err != nil {
		return nil, err
	}

	e := &Effective{
		MPD:               m,
		PeriodIndex:       periodIndex,
		Period:            p,
		AdaptationSet:     a,
		Representation:    r,
		ID:                r.ID,
		Bandwidth:         derefUint(r.Bandwidth),
		ContentType:       a.Type(),
		MimeType:          deref(first(r.MimeType, a.MimeType)),
		Codecs:            deref(first(r.Codecs, a.Codecs)),
		Lang:              deref(a.Lang),
		Width:             derefUint(first(r.Width, a.Width)),
		Height:            derefUint(first(r.Height, a.Height)),
		FrameRate:         first(r.FrameRate, a.FrameRate),
		AudioSamplingRate: deref(first(r.AudioSamplingRate, a.AudioSamplingRate)),
		Roles:             a.Roles,
		BaseURL:           base,
		Dynamic:           m.IsDynamic(),
	}
	if e.ContentType == ContentUnknown {
		e.ContentType = typeFromMime(e.MimeType, e.Codecs)
	}
	for _, l := range [][]*Descriptor{r.AudioChannelConfigurations, a.AudioChannelConfigurations} {
		if len(l) > 0 && l[0].Value != nil {
			e.AudioChannels = *l[0].Value
			break
		}
	}

	e.PeriodStart, _ = m.PeriodStart(periodIndex)
	if d, ok := m.PeriodDuration(periodIndex); ok {
		e.PeriodDuration = &d
	}
	if m.AvailabilityStartTime != nil {
		e.AvailabilityStart = m.AvailabilityStartTime.Time()
	}
	if m.TimeShiftBufferDepth != nil {
		d := m.TimeShiftBufferDepth.Duration()
		e.TimeShiftBufferDepth = &d
	}

	e.mergeAddressing(p, a, r)
	return e, nil
}

// mergeAddressing picks the addressing scheme declared at the lowest level, and
// completes it with the elements of the same kind found at upper levels.
func (e *Effective) mergeAddressing(p *Period, a *AdaptationSet, r *Representation) {
	templates := nonNil(r.SegmentTemplate, a.SegmentTemplate, p.SegmentTemplate)
	lists := nonNil(r.SegmentList, a.SegmentList, p.SegmentList)
	bases := nonNil(r.SegmentBase, a.SegmentBase, p.SegmentBase)

	type level struct{ t, l, b bool }
	levels := []level{
		{r.SegmentTemplate != nil, r.SegmentList != nil, r.SegmentBase != nil},
		{a.SegmentTemplate != nil, a.SegmentList != nil, a.SegmentBase != nil},
		{p.SegmentTemplate != nil, p.SegmentList != nil, p.SegmentBase != nil},
	}
	for _, l := range levels {
		switch {
		case l.t:
			e.SegmentTemplate = mergeTemplates(templates)
			return
		case l.l:
			e.SegmentList = mergeLists(lists)
			return
		case l.b:
			e.SegmentBase = mergeBases(bases)
			return
		}
	}
}

func mergeTemplates(l []*SegmentTemplate) *SegmentTemplate {
	infos := make([]*MultipleSegmentInfo, len(l))
	t := &SegmentTemplate{}
	for i := range l {
		infos[i] = &l[i].MultipleSegmentInfo
		t.Media = first(t.Media, l[i].Media)
		t.Index = first(t.Index, l[i].Index)
		t.InitializationTemplate = first(t.InitializationTemplate, l[i].InitializationTemplate)
		t.BitstreamSwitching = first(t.BitstreamSwitching, l[i].BitstreamSwitching)
	}
	t.MultipleSegmentInfo = mergeMultipleInfo(infos)
	return t
}

func mergeLists(l []*SegmentList) *SegmentList {
	infos := make([]*MultipleSegmentInfo, len(l))
	sl := &SegmentList{}
	for i := range l {
		infos[i] = &l[i].MultipleSegmentInfo
		if sl.SegmentURLs == nil {
			sl.SegmentURLs = l[i].SegmentURLs
		}
	}
	sl.MultipleSegmentInfo = mergeMultipleInfo(infos)
	return sl
}

func mergeBases(l []*SegmentBase) *SegmentBase {
	infos := make([]*SegmentInfo, len(l))
	for i := range l {
		infos[i] = &l[i].SegmentInfo
	}
	return &SegmentBase{SegmentInfo: mergeInfo(infos)}
}

func mergeMultipleInfo(l []*MultipleSegmentInfo) MultipleSegmentInfo {
	var m MultipleSegmentInfo
	infos := make([]*SegmentInfo, len(l))
	for i, s := range l {
		infos[i] = &s.SegmentInfo
		m.Duration = first(m.Duration, s.Duration)
		m.StartNumber = first(m.StartNumber, s.StartNumber)
		m.EndNumber = first(m.EndNumber, s.EndNumber)
		m.SegmentTimeline = first(m.SegmentTimeline, s.SegmentTimeline)
		m.BitstreamSwitchingURL = first(m.BitstreamSwitchingURL, s.BitstreamSwitchingURL)
	}
	m.SegmentInfo = mergeInfo(infos)
	return m
}

func mergeInfo(l []*SegmentInfo) SegmentInfo {
	var m SegmentInfo
	for _, s := range l {
		m.Timescale = first(m.Timescale, s.Timescale)
		m.PresentationTimeOffset = first(m.PresentationTimeOffset, s.PresentationTimeOffset)
		m.IndexRange = first(m.IndexRange, s.IndexRange)
		m.IndexRangeExact = first(m.IndexRangeExact, s.IndexRangeExact)
		m.AvailabilityTimeOffset = first(m.AvailabilityTimeOffset, s.AvailabilityTimeOffset)
		m.AvailabilityTimeComplete = first(m.AvailabilityTimeComplete, s.AvailabilityTimeComplete)
		m.Initialization = first(m.Initialization, s.Initialization)
		m.RepresentationIndex = first(m.RepresentationIndex, s.RepresentationIndex)
	}
	return m
}

// first returns the first non nil pointer
func first[T any](values ...*T) *T {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func nonNil[T any](values ...*T) []*T {
	r := make([]*T, 0, len(values))
	for _, v := range values {
		if v != nil {
			r = append(r, v)
		}
	}
	return r
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefUint(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}
