package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simulot/dashdl/parsers/mpdparser"
)

func ptr[T any](v T) *T { return &v }

func TestFromMPD(t *testing.T) {
	m := &mpdparser.MPD{
		PublishTime:               mpdparser.NewDateTime(time.Date(2023, 4, 5, 10, 0, 0, 0, time.UTC)),
		MediaPresentationDuration: mpdparser.NewDuration(42*time.Minute + 20*time.Second),
		ProgramInformation: []*mpdparser.ProgramInformation{
			{Lang: ptr("eng"), Title: ptr("My serialization example"), Copyright: ptr("MIT Licenced")},
			{Title: ptr("ignored"), Source: ptr("Example TV")},
		},
	}
	got := FromMPD(m, "https://example.com/manifest.mpd")
	want := &MediaInfo{
		Title:     "My serialization example",
		Studio:    "Example TV",
		Copyright: "MIT Licenced",
		Lang:      "eng",
		Aired:     Aired(time.Date(2023, 4, 5, 10, 0, 0, 0, time.UTC)),
		Runtime:   42,
		URL:       "https://example.com/manifest.mpd",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FromMPD() mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, [][2]string{
		{"title", "My serialization example"},
		{"publisher", "Example TV"},
		{"copyright", "MIT Licenced"},
		{"source", "https://example.com/manifest.mpd"},
		{"date", "2023-04-05"},
	}, got.Tags())
}

func TestFromMPDEmpty(t *testing.T) {
	got := FromMPD(&mpdparser.MPD{}, "m.mpd")
	assert.Equal(t, [][2]string{{"source", "m.mpd"}}, got.Tags())
}

func TestWriteNFO(t *testing.T) {
	dir := t.TempDir()
	info := &MediaInfo{
		Title: "Big Buck Bunny",
		Plot:  "A giant rabbit",
		Aired: Aired(time.Date(2008, 5, 20, 0, 0, 0, 0, time.UTC)),
		Tag:   []string{"animation"},
	}
	p := NFOPath(info.MediaPath(filepath.Join(dir, "sub"), ""))
	assert.Equal(t, filepath.Join(dir, "sub", "Big Buck Bunny.nfo"), p)

	require.NoError(t, info.WriteNFO(p))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(b), "<movie>")
	assert.Contains(t, string(b), "<aired>2008-05-20</aired>")

	back, err := ReadNFO(p)
	require.NoError(t, err)
	if diff := cmp.Diff(info, back); diff != "" {
		t.Errorf("ReadNFO() mismatch (-want +got):\n%s", diff)
	}

	// Rewriting replaces the file
	info.Title = "Other"
	require.NoError(t, info.WriteNFO(p))
	back, err = ReadNFO(p)
	require.NoError(t, err)
	assert.Equal(t, "Other", back.Title)
}

func TestMediaPath(t *testing.T) {
	tests := []struct {
		title, fallback, want string
	}{
		{"Le film: la suite?", "", "Le film- la suite.mp4"},
		{"", "manifest", "manifest.mp4"},
		{"", "", "presentation.mp4"},
		{" a/b ", "x", "a-b.mp4"},
	}
	for _, tt := range tests {
		got := (&MediaInfo{Title: tt.title}).MediaPath("out", tt.fallback)
		assert.Equal(t, filepath.Join("out", tt.want), got)
	}
}
