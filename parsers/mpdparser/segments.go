package mpdparser

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"time"
)

// Window is a range of presentation time, relative to the start of the period.
// A zero End means up to the end of the period, or up to the live edge.
type Window struct {
	Start time.Duration
	End   time.Duration
}

// Segment is a resolved media or initialization segment
type Segment struct {
	URL       string
	Range     *ByteRange
	Init      bool
	Number    uint64        // $Number$ value, 0 for init segments
	Time      uint64        // segment time in timescale units, as used by $Time$
	Timescale uint64        // units per second
	Start     time.Duration // presentation time from the period start
	Duration  time.Duration
}

// SegmentIterator yields segments in presentation order.
// When Next returns false, Err tells if the sequence was interrupted.
// A live representation ends with an *AvailabilityError once the live edge is reached.
type SegmentIterator interface {
	Next() (Segment, bool)
	Err() error
}

// Resolution is the outcome of resolving one representation
type Resolution struct {
	Init     *Segment // nil when the representation has no separate initialization segment
	Segments SegmentIterator
}

// Resolve computes the segments of the representation that intersect the window.
// now is the wall clock used to compute the availability of live segments.
func Resolve(e *Effective, w Window, now time.Time) (*Resolution, error) {
	var (
		r   *Resolution
		err error
	)
	switch {
	case e.SegmentTemplate != nil:
		r, err = resolveTemplate(e, w, now)
	case e.SegmentList != nil:
		r, err = resolveList(e, w, now)
	case e.SegmentBase != nil:
		r, err = resolveBase(e, e.SegmentBase)
	default:
		// The BaseURL points directly to the media
		r, err = resolveBase(e, &SegmentBase{})
	}
	if err != nil {
		var re *ResolutionError
		if errors.As(err, &re) {
			return nil, err
		}
		return nil, &ResolutionError{Representation: e.ID, Err: err}
	}
	return r, nil
}

func timescaleOf(ts *uint64) (uint64, error) {
	if ts == nil {
		return 1, nil
	}
	if *ts == 0 {
		return 0, errors.New("null timescale")
	}
	return *ts, nil
}

func startNumberOf(n *uint64) uint64 {
	if n == nil {
		return 1
	}
	return *n
}

// initSegment resolves an Initialization element. Without sourceURL, the
// initialization data is read from the base URL.
func initSegment(e *Effective, u *URLType, vars *templateVars) (*Segment, error) {
	if u == nil {
		return nil, nil
	}
	ref := ""
	if u.SourceURL != nil {
		ref = *u.SourceURL
		if vars != nil {
			t, err := parseTemplate(ref)
			if err != nil {
				return nil, err
			}
			ref = t.expand(*vars)
		}
	}
	s := &Segment{Init: true}
	var err error
	s.URL, err = resolveURL(e.BaseURL, ref)
	if err != nil {
		return nil, err
	}
	if u.Range != nil {
		s.Range, err = ParseByteRange(*u.Range)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func resolveBase(e *Effective, sb *SegmentBase) (*Resolution, error) {
	r := &Resolution{}
	if sb.Initialization != nil && sb.Initialization.SourceURL != nil {
		is, err := initSegment(e, sb.Initialization, nil)
		if err != nil {
			return nil, err
		}
		r.Init = is
	}
	u, err := resolveURL(e.BaseURL, "")
	if err != nil {
		return nil, err
	}
	ts, err := timescaleOf(sb.Timescale)
	if err != nil {
		return nil, err
	}
	s := Segment{URL: u, Number: 1, Timescale: ts}
	if e.PeriodDuration != nil {
		s.Duration = *e.PeriodDuration
	}
	r.Segments = &sliceIterator{segments: []Segment{s}}
	return r, nil
}

func resolveTemplate(e *Effective, w Window, now time.Time) (*Resolution, error) {
	st := e.SegmentTemplate
	ts, err := timescaleOf(st.Timescale)
	if err != nil {
		return nil, err
	}
	vars := templateVars{RepresentationID: e.ID, Bandwidth: e.Bandwidth}

	r := &Resolution{}
	switch {
	case st.InitializationTemplate != nil:
		t, err := parseTemplate(*st.InitializationTemplate)
		if err != nil {
			return nil, err
		}
		if t.uses(identNumber) || t.uses(identTime) {
			return nil, fmt.Errorf("initialization template %q can't use $Number$ or $Time$", *st.InitializationTemplate)
		}
		u, err := resolveURL(e.BaseURL, t.expand(vars))
		if err != nil {
			return nil, err
		}
		r.Init = &Segment{URL: u, Init: true, Timescale: ts}
	case st.Initialization != nil:
		r.Init, err = initSegment(e, st.Initialization, &vars)
		if err != nil {
			return nil, err
		}
	}

	if st.Media == nil {
		return nil, errors.New("SegmentTemplate without media attribute")
	}
	media, err := parseTemplate(*st.Media)
	if err != nil {
		return nil, err
	}

	it, err := newIterator(e, &st.MultipleSegmentInfo, ts, w, now)
	if err != nil {
		return nil, err
	}
	it.limit = math.MaxUint64
	startNumber := startNumberOf(st.StartNumber)
	it.build = func(s slot) (Segment, error) {
		v := vars
		v.Number = startNumber + s.index
		v.Time = s.t
		u, err := resolveURL(e.BaseURL, media.expand(v))
		return Segment{URL: u, Number: v.Number}, err
	}
	r.Segments = it
	return r, nil
}

func resolveList(e *Effective, w Window, now time.Time) (*Resolution, error) {
	sl := e.SegmentList
	ts, err := timescaleOf(sl.Timescale)
	if err != nil {
		return nil, err
	}
	r := &Resolution{}
	r.Init, err = initSegment(e, sl.Initialization, nil)
	if err != nil {
		return nil, err
	}

	info := sl.MultipleSegmentInfo
	if info.Duration == nil && info.SegmentTimeline == nil {
		if len(sl.SegmentURLs) > 1 {
			return nil, errors.New("SegmentList of several segments without duration nor timeline")
		}
		// A single segment covers the whole period
		var d uint64
		if e.PeriodDuration != nil {
			d, _ = durationToTicks(*e.PeriodDuration, ts)
		}
		if d == 0 {
			d = 1
		}
		info.Duration = &d
	}

	it, err := newIterator(e, &info, ts, w, now)
	if err != nil {
		return nil, err
	}
	it.limit = uint64(len(sl.SegmentURLs))
	startNumber := startNumberOf(sl.StartNumber)
	it.build = func(s slot) (Segment, error) {
		su := sl.SegmentURLs[s.index]
		seg := Segment{Number: startNumber + s.index}
		var err error
		seg.URL, err = resolveURL(e.BaseURL, deref(su.Media))
		if err != nil {
			return seg, err
		}
		if su.MediaRange != nil {
			seg.Range, err = ParseByteRange(*su.MediaRange)
		}
		return seg, err
	}
	r.Segments = it
	return r, nil
}

// slot is the position of a segment on the timeline, before its URL is known
type slot struct {
	index uint64 // position from the first segment of the representation
	t     uint64 // start in timescale units, presentation time offset included
	d     uint64
}

type slotSource interface {
	next() (slot, bool, error)
	// skipTo moves to the first slot ending after t
	skipTo(t uint64) error
}

// liveEdge holds the availability window of a dynamic representation,
// in presentation time relative to the period start.
type liveEdge struct {
	periodStart time.Time
	elapsed     time.Duration
	earliest    time.Duration
	hasDepth    bool
}

type iterator struct {
	representation string
	src            slotSource
	build          func(slot) (Segment, error)
	ts, pto        uint64
	window         Window
	periodEnd      *time.Duration
	live           *liveEdge
	open           bool // the timeline may grow with the next manifest
	limit          uint64
	lastEnd        time.Duration
	done           bool
	err            error
}

func newIterator(e *Effective, info *MultipleSegmentInfo, ts uint64, w Window, now time.Time) (*iterator, error) {
	it := &iterator{
		representation: e.ID,
		ts:             ts,
		window:         w,
		periodEnd:      e.PeriodDuration,
	}
	if info.PresentationTimeOffset != nil {
		it.pto = *info.PresentationTimeOffset
	}

	if e.Dynamic {
		if e.AvailabilityStart.IsZero() {
			return nil, errors.New("dynamic MPD without availabilityStartTime")
		}
		l := &liveEdge{periodStart: e.AvailabilityStart.Add(e.PeriodStart)}
		l.elapsed = now.Sub(l.periodStart)
		if e.TimeShiftBufferDepth != nil {
			l.hasDepth = true
			l.earliest = l.elapsed - *e.TimeShiftBufferDepth
		}
		it.live = l
		it.open = e.PeriodDuration == nil
	}

	switch {
	case info.SegmentTimeline != nil && len(info.SegmentTimeline.S) > 0:
		src := &timelineSource{entries: info.SegmentTimeline.S, live: it.live != nil}
		if e.PeriodDuration != nil {
			end, _ := durationToTicks(*e.PeriodDuration, ts)
			end += it.pto
			src.periodEnd = &end
		}
		it.src = src
	case info.Duration != nil:
		if *info.Duration == 0 {
			return nil, errors.New("null segment duration")
		}
		src := &numberSource{d: *info.Duration, pto: it.pto}
		if e.PeriodDuration != nil {
			t, exact := durationToTicks(*e.PeriodDuration, ts)
			src.count = t / src.d
			if t%src.d != 0 || !exact {
				src.count++
			}
			src.bounded = true
		}
		if info.EndNumber != nil {
			n := *info.EndNumber - startNumberOf(info.StartNumber) + 1
			if !src.bounded || n < src.count {
				src.count, src.bounded = n, true
			}
		}
		if !src.bounded && !e.Dynamic {
			return nil, errors.New("can't count segments of a period without duration")
		}
		it.src = src
	default:
		return nil, errors.New("no segment duration nor SegmentTimeline")
	}

	from := w.Start
	if it.live != nil && it.live.hasDepth && it.live.earliest > from {
		from = it.live.earliest
	}
	if from > 0 {
		t, _ := durationToTicks(from, ts)
		if err := it.src.skipTo(it.pto + t); err != nil {
			return nil, err
		}
	}
	return it, nil
}

func (it *iterator) presentation(t uint64) time.Duration {
	if t >= it.pto {
		return ticksToDuration(t-it.pto, it.ts)
	}
	return -ticksToDuration(it.pto-t, it.ts)
}

// Next implements SegmentIterator
func (it *iterator) Next() (Segment, bool) {
	for !it.done {
		s, ok, err := it.src.next()
		if err != nil {
			return it.fail(&ResolutionError{Representation: it.representation, Err: err})
		}
		if !ok || s.index >= it.limit {
			if it.live != nil && it.open && (it.window.End == 0 || it.lastEnd < it.window.End) {
				return it.fail(&AvailabilityError{Representation: it.representation, Next: it.live.periodStart.Add(it.lastEnd)})
			}
			break
		}
		start := it.presentation(s.t)
		end := start + ticksToDuration(s.d, it.ts)
		it.lastEnd = end
		if it.periodEnd != nil && start >= *it.periodEnd {
			break
		}
		if it.window.End > 0 && start >= it.window.End {
			break
		}
		if end <= it.window.Start {
			continue
		}
		if it.live != nil {
			if it.live.hasDepth && end <= it.live.earliest {
				continue
			}
			if end > it.live.elapsed {
				return it.fail(&AvailabilityError{Representation: it.representation, Next: it.live.periodStart.Add(end)})
			}
		}

		seg, err := it.build(s)
		if err != nil {
			return it.fail(&ResolutionError{Representation: it.representation, Err: err})
		}
		seg.Time = s.t
		seg.Timescale = it.ts
		seg.Start = start
		seg.Duration = end - start
		return seg, true
	}
	it.done = true
	return Segment{}, false
}

func (it *iterator) fail(err error) (Segment, bool) {
	it.err = err
	it.done = true
	return Segment{}, false
}

// Err implements SegmentIterator
func (it *iterator) Err() error {
	return it.err
}

// numberSource produces segments of constant duration
type numberSource struct {
	d, pto  uint64
	index   uint64
	count   uint64
	bounded bool
}

func (s *numberSource) next() (slot, bool, error) {
	if s.bounded && s.index >= s.count {
		return slot{}, false, nil
	}
	sl := slot{index: s.index, t: s.pto + s.index*s.d, d: s.d}
	s.index++
	return sl, true, nil
}

func (s *numberSource) skipTo(t uint64) error {
	if t > s.pto {
		if i := (t - s.pto) / s.d; i > s.index {
			s.index = i
		}
	}
	return nil
}

// timelineSource expands the S elements of a SegmentTimeline
type timelineSource struct {
	entries   []*S
	periodEnd *uint64
	live      bool

	entry    int    // next entry to load
	active   bool   // an entry is being expanded
	left     uint64 // segments left in the current entry
	open     bool   // the current entry repeats until 'until'
	wasOpen  bool
	until    uint64
	cursor   uint64
	d        uint64
	index    uint64
}

func (s *timelineSource) load() (bool, error) {
	if s.entry >= len(s.entries) {
		return false, nil
	}
	e := s.entries[s.entry]
	if e.D == 0 {
		return false, fmt.Errorf("S element #%d has a null duration", s.entry)
	}
	if e.T != nil {
		if *e.T < s.cursor && s.entry > 0 && !s.wasOpen {
			return false, fmt.Errorf("S element #%d at %d overlaps the previous segment ending at %d", s.entry, *e.T, s.cursor)
		}
		s.cursor = *e.T
	}
	s.d = e.D
	r := int64(0)
	if e.R != nil {
		r = *e.R
	}
	s.open = r < 0
	if s.open {
		switch {
		case s.entry+1 < len(s.entries) && s.entries[s.entry+1].T != nil:
			s.until = *s.entries[s.entry+1].T
		case s.periodEnd != nil:
			s.until = *s.periodEnd
		case s.live:
			s.until = math.MaxUint64
		default:
			return false, fmt.Errorf("S element #%d repeats without end", s.entry)
		}
	} else {
		s.left = uint64(r) + 1
	}
	s.wasOpen = s.open
	s.entry++
	s.active = s.hasMore()
	return true, nil
}

func (s *timelineSource) hasMore() bool {
	if s.open {
		return s.cursor < s.until
	}
	return s.left > 0
}

func (s *timelineSource) next() (slot, bool, error) {
	for !s.active {
		ok, err := s.load()
		if err != nil || !ok {
			return slot{}, false, err
		}
	}
	sl := slot{index: s.index, t: s.cursor, d: s.d}
	s.advance(1)
	return sl, true, nil
}

func (s *timelineSource) advance(k uint64) {
	s.cursor += k * s.d
	s.index += k
	if !s.open {
		s.left -= k
	}
	s.active = s.hasMore()
}

func (s *timelineSource) skipTo(t uint64) error {
	for {
		if !s.active {
			ok, err := s.load()
			if err != nil || !ok {
				return err
			}
			continue
		}
		if s.cursor+s.d > t {
			return nil
		}
		k := (t - s.cursor) / s.d
		if s.open {
			// slots left before until, the last one may be partial
			rem := s.until - s.cursor
			m := rem / s.d
			if rem%s.d != 0 {
				m++
			}
			if k > m {
				k = m
			}
		} else if k > s.left {
			k = s.left
		}
		if k == 0 {
			k = 1
		}
		s.advance(k)
	}
}

type sliceIterator struct {
	segments []Segment
	i        int
}

func (it *sliceIterator) Next() (Segment, bool) {
	if it.i >= len(it.segments) {
		return Segment{}, false
	}
	s := it.segments[it.i]
	it.i++
	return s, true
}

func (it *sliceIterator) Err() error { return nil }

// ticksToDuration converts a count of timescale units
func ticksToDuration(ticks, timescale uint64) time.Duration {
	hi, lo := bits.Mul64(ticks, uint64(time.Second))
	if hi >= timescale {
		return time.Duration(math.MaxInt64)
	}
	q, _ := bits.Div64(hi, lo, timescale)
	if q > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(q)
}

// durationToTicks converts a duration in timescale units, rounded down.
// exact is false when the conversion was rounded.
func durationToTicks(d time.Duration, timescale uint64) (ticks uint64, exact bool) {
	if d <= 0 {
		return 0, d == 0
	}
	hi, lo := bits.Mul64(uint64(d), timescale)
	if hi >= uint64(time.Second) {
		return math.MaxUint64, false
	}
	q, r := bits.Div64(hi, lo, uint64(time.Second))
	return q, r == 0
}

// ResolveURL makes a reference from the manifest absolute, using the effective base URL
func (e *Effective) ResolveURL(ref string) (string, error) {
	return resolveURL(e.BaseURL, ref)
}
