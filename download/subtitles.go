package download

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/simulot/dashdl/parsers/mpdparser"
	"github.com/simulot/dashdl/parsers/ttml"
)

// isTTML is true for TTML text tracks, plain or carried by fMP4 segments
func isTTML(f TrackFile) bool {
	return f.ContentType == mpdparser.ContentText &&
		(strings.EqualFold(f.MimeType, "application/ttml+xml") || strings.HasPrefix(strings.ToLower(f.Codecs), "stpp"))
}

// toSRT converts a TTML track into a SRT file, that ffmpeg can read
func (s *session) toSRT(f TrackFile) (TrackFile, error) {
	in, err := os.Open(f.Path)
	if err != nil {
		return f, err
	}
	defer in.Close()

	dst := strings.TrimSuffix(f.Path, filepath.Ext(f.Path)) + ".srt"
	out, err := os.Create(dst)
	if err != nil {
		return f, err
	}
	n, err := ttml.TranscodeToSRT(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return f, fmt.Errorf("can't convert subtitles: %w", err)
	}
	s.log.Trace().Printf("%d captions converted to %s", n, filepath.Base(dst))
	f.Path = dst
	f.MimeType = "application/x-subrip"
	return f, nil
}
