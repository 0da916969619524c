package mpdparser

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateTime is an xs:dateTime. Values without a time zone are taken as UTC.
type DateTime time.Time

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// NewDateTime wraps a time.Time
func NewDateTime(t time.Time) *DateTime {
	v := DateTime(t.UTC())
	return &v
}

// Time returns the value as time.Time
func (t DateTime) Time() time.Time {
	return time.Time(t)
}

// Equal reports whether t and o are the same instant
func (t DateTime) Equal(o DateTime) bool {
	return time.Time(t).Equal(time.Time(o))
}

// MarshalText implements encoding.TextMarshaler
func (t DateTime) MarshalText() ([]byte, error) {
	return []byte(time.Time(t).UTC().Format(time.RFC3339Nano)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *DateTime) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	for _, l := range dateTimeLayouts {
		v, err := time.Parse(l, s)
		if err == nil {
			*t = DateTime(v.UTC())
			return nil
		}
	}
	return fmt.Errorf("invalid date time %q", s)
}

// FrameRate is the frame rate of a video, given as n or n/d
type FrameRate struct {
	Num uint64
	Den uint64 // 0 when the denominator is omitted
}

// ParseFrameRate decodes frame rate like "25" or "30000/1001"
func ParseFrameRate(s string) (FrameRate, error) {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return FrameRate{}, fmt.Errorf("invalid frame rate %q", s)
	}
	fr := FrameRate{Num: n}
	if found {
		d, err := strconv.ParseUint(den, 10, 64)
		if err != nil || d == 0 {
			return FrameRate{}, fmt.Errorf("invalid frame rate %q", s)
		}
		fr.Den = d
	}
	return fr, nil
}

// Float returns the frame rate as frames per second
func (f FrameRate) Float() float64 {
	if f.Den == 0 {
		return float64(f.Num)
	}
	return float64(f.Num) / float64(f.Den)
}

func (f FrameRate) String() string {
	if f.Den == 0 {
		return strconv.FormatUint(f.Num, 10)
	}
	return strconv.FormatUint(f.Num, 10) + "/" + strconv.FormatUint(f.Den, 10)
}

// MarshalText implements encoding.TextMarshaler
func (f FrameRate) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (f *FrameRate) UnmarshalText(b []byte) error {
	v, err := ParseFrameRate(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// ByteRange is an HTTP byte range. Last is nil for an open range.
type ByteRange struct {
	First uint64
	Last  *uint64
}

// ParseByteRange decodes "first-last" or "first-"
func ParseByteRange(s string) (*ByteRange, error) {
	first, last, found := strings.Cut(strings.TrimSpace(s), "-")
	if !found {
		return nil, fmt.Errorf("invalid byte range %q", s)
	}
	f, err := strconv.ParseUint(first, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid byte range %q", s)
	}
	r := &ByteRange{First: f}
	if last != "" {
		l, err := strconv.ParseUint(last, 10, 64)
		if err != nil || l < f {
			return nil, fmt.Errorf("invalid byte range %q", s)
		}
		r.Last = &l
	}
	return r, nil
}

// String gives the range in the form expected by the HTTP Range header, without the unit
func (r ByteRange) String() string {
	if r.Last == nil {
		return strconv.FormatUint(r.First, 10) + "-"
	}
	return strconv.FormatUint(r.First, 10) + "-" + strconv.FormatUint(*r.Last, 10)
}
