package mpdparser

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestURL = "https://example.com/dash/manifest.mpd"

func effective(t *testing.T, m *MPD, p, a, r int) *Effective {
	t.Helper()
	u, err := url.Parse(manifestURL)
	require.NoError(t, err)
	as := m.Periods[p].AdaptationSets[a]
	e, err := m.Effective(u, p, as, as.Representations[r])
	require.NoError(t, err)
	return e
}

func collect(t *testing.T, it SegmentIterator) ([]Segment, error) {
	t.Helper()
	var l []Segment
	for {
		s, ok := it.Next()
		if !ok {
			return l, it.Err()
		}
		l = append(l, s)
		if len(l) > 10000 {
			t.Fatal("endless segment sequence")
		}
	}
}

func mustParse(t *testing.T, s string) *MPD {
	t.Helper()
	m, err := Parse([]byte(s))
	require.NoError(t, err)
	return m
}

func TestResolveNumber(t *testing.T) {
	m := mustParseFile(t, "testdata/static_number.mpd")
	r, err := Resolve(effective(t, m, 0, 0, 0), Window{}, time.Time{})
	require.NoError(t, err)

	require.NotNil(t, r.Init)
	assert.True(t, r.Init.Init)
	assert.Equal(t, "https://example.com/dash/video/v1/init.mp4", r.Init.URL)

	l, err := collect(t, r.Segments)
	require.NoError(t, err)
	// 10s of 3s segments, the last one is partial
	require.Len(t, l, 4)
	for i, s := range l {
		assert.Equal(t, uint64(i+1), s.Number)
		assert.Equal(t, time.Duration(i)*3*time.Second, s.Start)
		assert.Equal(t, 3*time.Second, s.Duration)
		assert.False(t, s.Init)
	}
	assert.Equal(t, "https://example.com/dash/video/v1/seg_00001.m4s", l[0].URL)
	assert.Equal(t, "https://example.com/dash/video/v1/seg_00004.m4s", l[3].URL)

	// no overlap, no gap
	for i := 1; i < len(l); i++ {
		assert.Equal(t, l[i-1].Start+l[i-1].Duration, l[i].Start)
	}
}

func TestResolveWindow(t *testing.T) {
	m := mustParseFile(t, "testdata/static_number.mpd")
	e := effective(t, m, 0, 0, 1)

	tests := []struct {
		name    string
		window  Window
		numbers []uint64
	}{
		{"whole", Window{}, []uint64{1, 2, 3, 4}},
		{"straddling", Window{Start: 4 * time.Second, End: 7 * time.Second}, []uint64{2, 3}},
		{"aligned", Window{Start: 3 * time.Second, End: 6 * time.Second}, []uint64{2}},
		{"tail", Window{Start: 8 * time.Second}, []uint64{3, 4}},
		{"after the end", Window{Start: 20 * time.Second}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Resolve(e, tt.window, time.Time{})
			require.NoError(t, err)
			l, err := collect(t, r.Segments)
			require.NoError(t, err)
			var got []uint64
			for _, s := range l {
				got = append(got, s.Number)
			}
			assert.Equal(t, tt.numbers, got)
		})
	}
}

func TestResolveTimeline(t *testing.T) {
	m := mustParse(t, `<MPD type="static" mediaPresentationDuration="PT30S">
  <Period>
    <AdaptationSet mimeType="video/mp4">
      <SegmentTemplate media="$RepresentationID$-$Time$-$Number$.m4s">
        <SegmentTimeline><S t="0" d="10" r="2"/></SegmentTimeline>
      </SegmentTemplate>
      <Representation id="v" bandwidth="1000"/>
    </AdaptationSet>
  </Period>
</MPD>`)
	r, err := Resolve(effective(t, m, 0, 0, 0), Window{}, time.Time{})
	require.NoError(t, err)
	assert.Nil(t, r.Init)

	l, err := collect(t, r.Segments)
	require.NoError(t, err)
	require.Len(t, l, 3)
	for i, s := range l {
		assert.Equal(t, uint64(i*10), s.Time)
		assert.Equal(t, uint64(1), s.Timescale)
		assert.Equal(t, 10*time.Second, s.Duration)
	}
	assert.Equal(t, "https://example.com/dash/v-20-3.m4s", l[2].URL)
}

func TestResolveTimelineFixture(t *testing.T) {
	m := mustParseFile(t, "testdata/timeline_cenc.mpd")

	tests := []struct {
		as, rep  int
		firstURL string
		lastURL  string
	}{
		{0, 0, "https://example.com/dash/dash/audio-audio_fre=64000-0.dash", "https://example.com/dash/dash/audio-audio_fre=64000-2878464.dash"},
		{1, 1, "https://example.com/dash/dash/video-video=1500000-10800.dash", "https://example.com/dash/dash/video-video=1500000-5410800.dash"},
		{2, 0, "https://example.com/dash/dash/text-textstream_fre=1000-0.dash", "https://example.com/dash/dash/text-textstream_fre=1000-60000.dash"},
	}
	for _, tt := range tests {
		e := effective(t, m, 0, tt.as, tt.rep)
		t.Run(e.ID, func(t *testing.T) {
			r, err := Resolve(e, Window{}, time.Time{})
			require.NoError(t, err)
			require.NotNil(t, r.Init)
			l, err := collect(t, r.Segments)
			require.NoError(t, err)
			require.Len(t, l, 11)
			assert.Equal(t, tt.firstURL, l[0].URL)
			assert.Equal(t, tt.lastURL, l[10].URL)
			for i := 1; i < len(l); i++ {
				assert.Greater(t, l[i].Time, l[i-1].Time)
			}
		})
	}
}

func TestResolveTimelineSkip(t *testing.T) {
	m := mustParseFile(t, "testdata/timeline_cenc.mpd")
	e := effective(t, m, 0, 2, 0)

	r, err := Resolve(e, Window{Start: 30 * time.Second, End: 42 * time.Second}, time.Time{})
	require.NoError(t, err)
	l, err := collect(t, r.Segments)
	require.NoError(t, err)
	require.Len(t, l, 2)
	assert.Equal(t, uint64(30000), l[0].Time)
	assert.Equal(t, uint64(36000), l[1].Time)
}

func TestResolveList(t *testing.T) {
	m := mustParseFile(t, "testdata/multi_period.mpd")

	r, err := Resolve(effective(t, m, 1, 0, 0), Window{}, time.Time{})
	require.NoError(t, err)
	require.NotNil(t, r.Init)
	assert.Equal(t, "https://cdn.example.com/content/main/video/init.mp4", r.Init.URL)

	l, err := collect(t, r.Segments)
	require.NoError(t, err)
	require.Len(t, l, 4)
	for i, s := range l {
		assert.Equal(t, time.Duration(i)*5*time.Second, s.Start)
		assert.Equal(t, 5*time.Second, s.Duration)
	}
	assert.Equal(t, "https://cdn.example.com/content/main/video/s1.m4s", l[0].URL)
	assert.Equal(t, "https://cdn.example.com/content/main/video/s4.m4s", l[3].URL)
}

func TestResolveBase(t *testing.T) {
	m := mustParseFile(t, "testdata/multi_period.mpd")

	r, err := Resolve(effective(t, m, 0, 0, 0), Window{}, time.Time{})
	require.NoError(t, err)
	assert.Nil(t, r.Init, "the initialization is part of the media file")

	l, err := collect(t, r.Segments)
	require.NoError(t, err)
	require.Len(t, l, 1)
	assert.Equal(t, "https://cdn.example.com/content/ad/ad-video.mp4", l[0].URL)
	assert.Equal(t, 10*time.Second, l[0].Duration)
}

func TestResolveLive(t *testing.T) {
	m := mustParseFile(t, "testdata/live.mpd")
	e := effective(t, m, 0, 0, 0)
	ast := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := ast.Add(61 * time.Second)

	r, err := Resolve(e, Window{}, now)
	require.NoError(t, err)
	l, err := collect(t, r.Segments)

	// The time shift buffer keeps the last 30s, the segment ending at 62s isn't published yet
	var ae *AvailabilityError
	require.True(t, errors.As(err, &ae), "expecting an AvailabilityError, got %v", err)
	assert.Equal(t, ast.Add(62*time.Second), ae.Next)
	assert.Equal(t, "V300", ae.Representation)

	require.Len(t, l, 15)
	assert.Equal(t, uint64(15), l[0].Number)
	assert.Equal(t, uint64(29), l[14].Number)
	assert.Equal(t, "https://example.com/dash/V300/15.m4s", l[0].URL)
	for _, s := range l {
		assert.LessOrEqual(t, s.Start+s.Duration, 61*time.Second)
	}
}

func TestResolveLiveResume(t *testing.T) {
	m := mustParseFile(t, "testdata/live.mpd")
	e := effective(t, m, 0, 1, 0)
	ast := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	r, err := Resolve(e, Window{Start: 56 * time.Second}, ast.Add(64*time.Second))
	require.NoError(t, err)
	l, err := collect(t, r.Segments)
	var ae *AvailabilityError
	require.ErrorAs(t, err, &ae)
	require.Len(t, l, 4)
	assert.Equal(t, uint64(28), l[0].Number)
}

func TestResolveLiveTimeline(t *testing.T) {
	m := mustParse(t, `<MPD type="dynamic" availabilityStartTime="2024-01-01T00:00:00Z" minimumUpdatePeriod="PT2S" timeShiftBufferDepth="PT30S">
  <Period id="p0" start="PT0S">
    <AdaptationSet mimeType="video/mp4">
      <SegmentTemplate media="$RepresentationID$/$Time$.m4s">
        <SegmentTimeline><S t="0" d="10" r="-1"/></SegmentTimeline>
      </SegmentTemplate>
      <Representation id="v" bandwidth="1000"/>
    </AdaptationSet>
  </Period>
</MPD>`)
	e := effective(t, m, 0, 0, 0)
	ast := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		window Window
		first  uint64
		count  int
	}{
		{"time shift buffer", Window{}, 570, 3},
		{"window start", Window{Start: 585 * time.Second}, 580, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			type result struct {
				l   []Segment
				err error
			}
			done := make(chan result, 1)
			go func() {
				r, err := Resolve(e, tt.window, ast.Add(10*time.Minute))
				if err != nil {
					done <- result{err: err}
					return
				}
				var l []Segment
				for s, ok := r.Segments.Next(); ok && len(l) < 100; s, ok = r.Segments.Next() {
					l = append(l, s)
				}
				done <- result{l, r.Segments.Err()}
			}()

			var res result
			select {
			case res = <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("Resolve didn't return")
			}
			var ae *AvailabilityError
			require.ErrorAs(t, res.err, &ae)
			assert.Equal(t, ast.Add(610*time.Second), ae.Next)
			require.Len(t, res.l, tt.count)
			assert.Equal(t, tt.first, res.l[0].Time)
			assert.Equal(t, "https://example.com/dash/v/590.m4s", res.l[len(res.l)-1].URL)
		})
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		mpd  string
	}{
		{"unknown identifier", `<MPD mediaPresentationDuration="PT10S"><Period><AdaptationSet mimeType="video/mp4">
  <SegmentTemplate duration="2" media="$Bad$.m4s"/><Representation id="v" bandwidth="1"/></AdaptationSet></Period></MPD>`},
		{"unterminated identifier", `<MPD mediaPresentationDuration="PT10S"><Period><AdaptationSet mimeType="video/mp4">
  <SegmentTemplate duration="2" media="$Number.m4s"/><Representation id="v" bandwidth="1"/></AdaptationSet></Period></MPD>`},
		{"no media", `<MPD mediaPresentationDuration="PT10S"><Period><AdaptationSet mimeType="video/mp4">
  <SegmentTemplate duration="2"/><Representation id="v" bandwidth="1"/></AdaptationSet></Period></MPD>`},
		{"no duration", `<MPD mediaPresentationDuration="PT10S"><Period><AdaptationSet mimeType="video/mp4">
  <SegmentTemplate media="$Number$.m4s"/><Representation id="v" bandwidth="1"/></AdaptationSet></Period></MPD>`},
		{"null timescale", `<MPD mediaPresentationDuration="PT10S"><Period><AdaptationSet mimeType="video/mp4">
  <SegmentTemplate timescale="0" duration="2" media="$Number$.m4s"/><Representation id="v" bandwidth="1"/></AdaptationSet></Period></MPD>`},
		{"number in initialization", `<MPD mediaPresentationDuration="PT10S"><Period><AdaptationSet mimeType="video/mp4">
  <SegmentTemplate duration="2" initialization="$Number$.mp4" media="$Number$.m4s"/><Representation id="v" bandwidth="1"/></AdaptationSet></Period></MPD>`},
		{"unknown period duration", `<MPD><Period><AdaptationSet mimeType="video/mp4">
  <SegmentTemplate duration="2" media="$Number$.m4s"/><Representation id="v" bandwidth="1"/></AdaptationSet></Period></MPD>`},
		{"live without availabilityStartTime", `<MPD type="dynamic"><Period><AdaptationSet mimeType="video/mp4">
  <SegmentTemplate duration="2" media="$Number$.m4s"/><Representation id="v" bandwidth="1"/></AdaptationSet></Period></MPD>`},
		{"list without duration", `<MPD mediaPresentationDuration="PT10S"><Period><AdaptationSet mimeType="video/mp4">
  <SegmentList><SegmentURL media="a.m4s"/><SegmentURL media="b.m4s"/></SegmentList><Representation id="v" bandwidth="1"/></AdaptationSet></Period></MPD>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustParse(t, tt.mpd)
			_, err := Resolve(effective(t, m, 0, 0, 0), Window{}, time.Now())
			var re *ResolutionError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, "v", re.Representation)
		})
	}
}

func TestResolveTimelineErrors(t *testing.T) {
	tests := []struct {
		name     string
		timeline string
	}{
		{"overlap", `<S t="0" d="10"/><S t="5" d="10"/>`},
		{"null duration", `<S t="0" d="0"/>`},
		{"endless repeat", `<S t="0" d="10" r="-1"/>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustParse(t, `<MPD><Period><AdaptationSet mimeType="video/mp4">
  <SegmentTemplate media="$Time$.m4s"><SegmentTimeline>`+tt.timeline+`</SegmentTimeline></SegmentTemplate>
  <Representation id="v" bandwidth="1"/></AdaptationSet></Period></MPD>`)
			r, err := Resolve(effective(t, m, 0, 0, 0), Window{}, time.Time{})
			require.NoError(t, err)
			_, err = collect(t, r.Segments)
			var re *ResolutionError
			assert.ErrorAs(t, err, &re)
		})
	}
}

func TestTicks(t *testing.T) {
	assert.Equal(t, 2*time.Second, ticksToDuration(180000, 90000))
	assert.Equal(t, time.Duration(1_000_000_000_000), ticksToDuration(1_000_000_000_000*90000/uint64(time.Second), 90000))

	d, exact := durationToTicks(60480*time.Millisecond, 1000)
	assert.Equal(t, uint64(60480), d)
	assert.True(t, exact)

	d, exact = durationToTicks(time.Second/3, 1)
	assert.Equal(t, uint64(0), d)
	assert.False(t, exact)

	// large timescale and long duration don't overflow
	d, _ = durationToTicks(24*time.Hour, 10_000_000)
	assert.Equal(t, uint64(864_000_000_000), d)
}
