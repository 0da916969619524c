package mpdparser

import (
	"encoding/xml"
)

// Optional attributes and elements are pointers: nil means the attribute is absent
// from the manifest. Defaults are applied when computing effective values, never at
// parse time.

// MPD is the root element of the manifest
type MPD struct {
	XMLName                    xml.Name              `xml:"MPD"`
	ID                         *string               `xml:"id,attr,omitempty"`
	Profiles                   *string               `xml:"profiles,attr,omitempty"`
	Type                       *string               `xml:"type,attr,omitempty"`
	AvailabilityStartTime      *DateTime             `xml:"availabilityStartTime,attr,omitempty"`
	PublishTime                *DateTime             `xml:"publishTime,attr,omitempty"`
	AvailabilityEndTime        *DateTime             `xml:"availabilityEndTime,attr,omitempty"`
	MediaPresentationDuration  *Duration             `xml:"mediaPresentationDuration,attr,omitempty"`
	MinimumUpdatePeriod        *Duration             `xml:"minimumUpdatePeriod,attr,omitempty"`
	MinBufferTime              *Duration             `xml:"minBufferTime,attr,omitempty"`
	TimeShiftBufferDepth       *Duration             `xml:"timeShiftBufferDepth,attr,omitempty"`
	SuggestedPresentationDelay *Duration             `xml:"suggestedPresentationDelay,attr,omitempty"`
	MaxSegmentDuration         *Duration             `xml:"maxSegmentDuration,attr,omitempty"`
	MaxSubsegmentDuration      *Duration             `xml:"maxSubsegmentDuration,attr,omitempty"`
	ProgramInformation         []*ProgramInformation `xml:"ProgramInformation"`
	BaseURLs                   []*BaseURL            `xml:"BaseURL"`
	Locations                  []string              `xml:"Location"`
	Periods                    []*Period             `xml:"Period"`
	EssentialProperties        []*Descriptor         `xml:"EssentialProperty"`
	SupplementalProperties     []*Descriptor         `xml:"SupplementalProperty"`
	UTCTimings                 []*Descriptor         `xml:"UTCTiming"`
	Extra                      []ExtraAttr           `xml:",any,attr"`
	Extensions                 []RawElement          `xml:",any"`
}

// MPD types
const (
	TypeStatic  = "static"
	TypeDynamic = "dynamic"
)

// IsDynamic is true for live manifests
func (m *MPD) IsDynamic() bool {
	return m.Type != nil && *m.Type == TypeDynamic
}

// ProgramInformation describes the program
type ProgramInformation struct {
	Lang               *string      `xml:"lang,attr,omitempty"`
	MoreInformationURL *string      `xml:"moreInformationURL,attr,omitempty"`
	Title              *string      `xml:"Title,omitempty"`
	Source             *string      `xml:"Source,omitempty"`
	Copyright          *string      `xml:"Copyright,omitempty"`
	Extra              []ExtraAttr  `xml:",any,attr"`
	Extensions         []RawElement `xml:",any"`
}

// BaseURL is an URL used to resolve relative references
type BaseURL struct {
	Value                    string      `xml:",chardata"`
	ServiceLocation          *string     `xml:"serviceLocation,attr,omitempty"`
	ByteRange                *string     `xml:"byteRange,attr,omitempty"`
	AvailabilityTimeOffset   *float64    `xml:"availabilityTimeOffset,attr,omitempty"`
	AvailabilityTimeComplete *bool       `xml:"availabilityTimeComplete,attr,omitempty"`
	Extra                    []ExtraAttr `xml:",any,attr"`
}

// Descriptor is the generic scheme/value element used by Role, ContentProtection,
// EssentialProperty, AudioChannelConfiguration and others.
type Descriptor struct {
	SchemeIDURI string       `xml:"schemeIdUri,attr"`
	Value       *string      `xml:"value,attr,omitempty"`
	ID          *string      `xml:"id,attr,omitempty"`
	Extra       []ExtraAttr  `xml:",any,attr"`
	Extensions  []RawElement `xml:",any"`
}

// Period is a part of the presentation timeline
type Period struct {
	ID                     *string          `xml:"id,attr,omitempty"`
	Start                  *Duration        `xml:"start,attr,omitempty"`
	Duration               *Duration        `xml:"duration,attr,omitempty"`
	BitstreamSwitching     *bool            `xml:"bitstreamSwitching,attr,omitempty"`
	BaseURLs               []*BaseURL       `xml:"BaseURL"`
	SegmentBase            *SegmentBase     `xml:"SegmentBase,omitempty"`
	SegmentList            *SegmentList     `xml:"SegmentList,omitempty"`
	SegmentTemplate        *SegmentTemplate `xml:"SegmentTemplate,omitempty"`
	AssetIdentifier        *Descriptor      `xml:"AssetIdentifier,omitempty"`
	AdaptationSets         []*AdaptationSet `xml:"AdaptationSet"`
	SupplementalProperties []*Descriptor    `xml:"SupplementalProperty"`
	Extra                  []ExtraAttr      `xml:",any,attr"`
	Extensions             []RawElement     `xml:",any"`
}

// RepresentationBase holds attributes and elements common to
// AdaptationSet and Representation
type RepresentationBase struct {
	Profiles                   *string       `xml:"profiles,attr,omitempty"`
	Width                      *uint64       `xml:"width,attr,omitempty"`
	Height                     *uint64       `xml:"height,attr,omitempty"`
	Sar                        *string       `xml:"sar,attr,omitempty"`
	FrameRate                  *FrameRate    `xml:"frameRate,attr,omitempty"`
	AudioSamplingRate          *string       `xml:"audioSamplingRate,attr,omitempty"`
	MimeType                   *string       `xml:"mimeType,attr,omitempty"`
	Codecs                     *string       `xml:"codecs,attr,omitempty"`
	StartWithSAP               *uint64       `xml:"startWithSAP,attr,omitempty"`
	MaxPlayoutRate             *float64      `xml:"maxPlayoutRate,attr,omitempty"`
	CodingDependency           *bool         `xml:"codingDependency,attr,omitempty"`
	ScanType                   *string       `xml:"scanType,attr,omitempty"`
	AudioChannelConfigurations []*Descriptor `xml:"AudioChannelConfiguration"`
	ContentProtections         []*Descriptor `xml:"ContentProtection"`
	EssentialProperties        []*Descriptor `xml:"EssentialProperty"`
	SupplementalProperties     []*Descriptor `xml:"SupplementalProperty"`
	InbandEventStreams         []*Descriptor `xml:"InbandEventStream"`
}

// AdaptationSet groups interchangeable representations of one media component
type AdaptationSet struct {
	RepresentationBase
	ID                      *string           `xml:"id,attr,omitempty"`
	Group                   *uint64           `xml:"group,attr,omitempty"`
	Lang                    *string           `xml:"lang,attr,omitempty"`
	ContentType             *string           `xml:"contentType,attr,omitempty"`
	Par                     *string           `xml:"par,attr,omitempty"`
	MinBandwidth            *uint64           `xml:"minBandwidth,attr,omitempty"`
	MaxBandwidth            *uint64           `xml:"maxBandwidth,attr,omitempty"`
	MaxWidth                *uint64           `xml:"maxWidth,attr,omitempty"`
	MaxHeight               *uint64           `xml:"maxHeight,attr,omitempty"`
	MaxFrameRate            *FrameRate        `xml:"maxFrameRate,attr,omitempty"`
	SegmentAlignment        *string           `xml:"segmentAlignment,attr,omitempty"`
	SubsegmentAlignment     *string           `xml:"subsegmentAlignment,attr,omitempty"`
	SubsegmentStartsWithSAP *uint64           `xml:"subsegmentStartsWithSAP,attr,omitempty"`
	BitstreamSwitching      *bool             `xml:"bitstreamSwitching,attr,omitempty"`
	Accessibilities         []*Descriptor     `xml:"Accessibility"`
	Roles                   []*Descriptor     `xml:"Role"`
	Ratings                 []*Descriptor     `xml:"Rating"`
	Viewpoints              []*Descriptor     `xml:"Viewpoint"`
	BaseURLs                []*BaseURL        `xml:"BaseURL"`
	SegmentBase             *SegmentBase      `xml:"SegmentBase,omitempty"`
	SegmentList             *SegmentList      `xml:"SegmentList,omitempty"`
	SegmentTemplate         *SegmentTemplate  `xml:"SegmentTemplate,omitempty"`
	Representations         []*Representation `xml:"Representation"`
	Extra                   []ExtraAttr       `xml:",any,attr"`
	Extensions              []RawElement      `xml:",any"`
}

// Representation is one encoding of the media component
type Representation struct {
	RepresentationBase
	ID                     string           `xml:"id,attr"`
	Bandwidth              *uint64          `xml:"bandwidth,attr,omitempty"`
	QualityRanking         *uint64          `xml:"qualityRanking,attr,omitempty"`
	DependencyID           *string          `xml:"dependencyId,attr,omitempty"`
	MediaStreamStructureID *string          `xml:"mediaStreamStructureId,attr,omitempty"`
	BaseURLs               []*BaseURL       `xml:"BaseURL"`
	SegmentBase            *SegmentBase     `xml:"SegmentBase,omitempty"`
	SegmentList            *SegmentList     `xml:"SegmentList,omitempty"`
	SegmentTemplate        *SegmentTemplate `xml:"SegmentTemplate,omitempty"`
	Extra                  []ExtraAttr      `xml:",any,attr"`
	Extensions             []RawElement     `xml:",any"`
}

// URLType is used for Initialization, RepresentationIndex and BitstreamSwitching elements
type URLType struct {
	SourceURL *string `xml:"sourceURL,attr,omitempty"`
	Range     *string `xml:"range,attr,omitempty"`
}

// SegmentInfo holds what is common to every segment addressing scheme
type SegmentInfo struct {
	Timescale                *uint64  `xml:"timescale,attr,omitempty"`
	PresentationTimeOffset   *uint64  `xml:"presentationTimeOffset,attr,omitempty"`
	IndexRange               *string  `xml:"indexRange,attr,omitempty"`
	IndexRangeExact          *bool    `xml:"indexRangeExact,attr,omitempty"`
	AvailabilityTimeOffset   *float64 `xml:"availabilityTimeOffset,attr,omitempty"`
	AvailabilityTimeComplete *bool    `xml:"availabilityTimeComplete,attr,omitempty"`
	Initialization           *URLType `xml:"Initialization,omitempty"`
	RepresentationIndex      *URLType `xml:"RepresentationIndex,omitempty"`
}

// MultipleSegmentInfo is the part shared by SegmentList and SegmentTemplate
type MultipleSegmentInfo struct {
	SegmentInfo
	Duration              *uint64          `xml:"duration,attr,omitempty"`
	StartNumber           *uint64          `xml:"startNumber,attr,omitempty"`
	EndNumber             *uint64          `xml:"endNumber,attr,omitempty"`
	SegmentTimeline       *SegmentTimeline `xml:"SegmentTimeline,omitempty"`
	BitstreamSwitchingURL *URLType         `xml:"BitstreamSwitching,omitempty"`
}

// SegmentBase describes a representation made of a single segment
type SegmentBase struct {
	SegmentInfo
	Extra      []ExtraAttr  `xml:",any,attr"`
	Extensions []RawElement `xml:",any"`
}

// SegmentList enumerates segment URLs
type SegmentList struct {
	MultipleSegmentInfo
	SegmentURLs []*SegmentURL `xml:"SegmentURL"`
	Extra       []ExtraAttr   `xml:",any,attr"`
	Extensions  []RawElement  `xml:",any"`
}

// SegmentURL is one entry of a SegmentList
type SegmentURL struct {
	Media      *string `xml:"media,attr,omitempty"`
	MediaRange *string `xml:"mediaRange,attr,omitempty"`
	Index      *string `xml:"index,attr,omitempty"`
	IndexRange *string `xml:"indexRange,attr,omitempty"`
}

// SegmentTemplate describes segment URLs with a pattern
type SegmentTemplate struct {
	MultipleSegmentInfo
	Media                  *string      `xml:"media,attr,omitempty"`
	Index                  *string      `xml:"index,attr,omitempty"`
	InitializationTemplate *string      `xml:"initialization,attr,omitempty"`
	BitstreamSwitching     *string      `xml:"bitstreamSwitching,attr,omitempty"`
	Extra                  []ExtraAttr  `xml:",any,attr"`
	Extensions             []RawElement `xml:",any"`
}

// SegmentTimeline lists segments with explicit times
type SegmentTimeline struct {
	S []*S `xml:"S"`
}

// S is one entry of a SegmentTimeline. R=-1 repeats the segment until the next
// entry or the end of the period.
type S struct {
	T *uint64 `xml:"t,attr,omitempty"`
	N *uint64 `xml:"n,attr,omitempty"`
	D uint64  `xml:"d,attr"`
	R *int64  `xml:"r,attr,omitempty"`
}
