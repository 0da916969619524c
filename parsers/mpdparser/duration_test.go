package mpdparser

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"PT10S", 10 * time.Second},
		{"PT0S", 0},
		{"PT1M0.48S", time.Minute + 480*time.Millisecond},
		{"PT1H2M3S", time.Hour + 2*time.Minute + 3*time.Second},
		{"P1DT2H", 26 * time.Hour},
		{"P1D", 24 * time.Hour},
		{"P1Y", 365 * 24 * time.Hour},
		{"P1M", 30 * 24 * time.Hour},
		{"PT0.000000001S", time.Nanosecond},
		{"PT1.0000000019S", time.Second + time.Nanosecond},
		{"PT0H1M59.99S", time.Minute + 59*time.Second + 990*time.Millisecond},
		{"-PT5S", -5 * time.Second},
		{"-P1DT0.5S", -24*time.Hour - 500*time.Millisecond},
		{"PT2562047H47M16.854775807S", math.MaxInt64},
		{"-PT2562047H47M16.854775808S", math.MinInt64},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDuration(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration())
		})
	}
}

func TestParseDurationErrors(t *testing.T) {
	for _, in := range []string{"", "P", "PT", "10S", "PT-1S", "-P", "--PT1S", "P-1D", "P1DT", "PTS", "PT1.S", "PT1H30", "1 hour"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseDuration(in)
			assert.Error(t, err)
		})
	}
}

func TestParseDurationOverflow(t *testing.T) {
	for _, in := range []string{
		"P300Y",
		"-P300Y",
		"P106752D",
		"PT9223372037S",
		"PT2562047H47M16.854775808S",
		"PT99999999999999999999S",
		"P292Y1000000D",
	} {
		t.Run(in, func(t *testing.T) {
			d, err := ParseDuration(in)
			assert.Error(t, err, "got %s", d.Duration())
		})
	}
}

func TestDurationString(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "PT0S"},
		{90 * time.Minute, "PT1H30M"},
		{1500 * time.Millisecond, "PT1.5S"},
		{25 * time.Hour, "PT25H"},
		{time.Hour + time.Nanosecond, "PT1H0.000000001S"},
		{42 * time.Second, "PT42S"},
		{-5 * time.Second, "-PT5S"},
		{-90*time.Minute - time.Millisecond, "-PT1H30M0.001S"},
		{math.MaxInt64, "PT2562047H47M16.854775807S"},
		{math.MinInt64, "-PT2562047H47M16.854775808S"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			s := Duration(tt.d).String()
			assert.Equal(t, tt.want, s)

			back, err := ParseDuration(s)
			require.NoError(t, err)
			assert.Equal(t, tt.d, back.Duration())
		})
	}
}

func TestFrameRate(t *testing.T) {
	fr, err := ParseFrameRate("15/2")
	require.NoError(t, err)
	assert.Equal(t, FrameRate{Num: 15, Den: 2}, fr)
	assert.Equal(t, 7.5, fr.Float())
	assert.Equal(t, "15/2", fr.String())

	fr, err = ParseFrameRate("25")
	require.NoError(t, err)
	assert.Equal(t, "25", fr.String())
	assert.Equal(t, 25.0, fr.Float())

	for _, in := range []string{"25.5", "1/0", "a", "", "30000/"} {
		_, err := ParseFrameRate(in)
		assert.Error(t, err, in)
	}
}

func TestByteRange(t *testing.T) {
	r, err := ParseByteRange("0-799")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r.First)
	require.NotNil(t, r.Last)
	assert.Equal(t, uint64(799), *r.Last)
	assert.Equal(t, "0-799", r.String())

	r, err = ParseByteRange("800-")
	require.NoError(t, err)
	assert.Nil(t, r.Last)
	assert.Equal(t, "800-", r.String())

	for _, in := range []string{"5-2", "x-1", "12", ""} {
		_, err := ParseByteRange(in)
		assert.Error(t, err, in)
	}
}

func TestDateTime(t *testing.T) {
	var dt DateTime
	require.NoError(t, dt.UnmarshalText([]byte("2024-01-01T00:00:00Z")))
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), dt.Time())

	require.NoError(t, dt.UnmarshalText([]byte("2024-01-01T02:00:00+02:00")))
	assert.True(t, dt.Time().Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, dt.UnmarshalText([]byte("1970-01-01T00:00:00")))
	assert.Equal(t, int64(0), dt.Time().Unix())

	assert.Error(t, dt.UnmarshalText([]byte("yesterday")))
}
