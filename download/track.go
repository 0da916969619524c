package download

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/simulot/dashdl/parsers/mpdparser"
	"github.com/simulot/dashdl/selector"
)

// trackWriter appends segments to a track file in index order, whatever the
// order of fetch completion. Segments received ahead of time wait in memory.
type trackWriter struct {
	mu      sync.Mutex
	w       io.Writer
	next    int
	pending map[int][]byte
	written int64
	err     error
}

func newTrackWriter(w io.Writer) *trackWriter {
	return &trackWriter{w: w, pending: map[int][]byte{}}
}

// put gives the bytes of segment i. A nil slice marks a skipped segment.
func (t *trackWriter) put(i int, b []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	if i < t.next {
		return fmt.Errorf("segment #%d already written", i)
	}
	if _, ok := t.pending[i]; ok {
		return fmt.Errorf("segment #%d given twice", i)
	}
	t.pending[i] = b
	for {
		b, ok := t.pending[t.next]
		if !ok {
			return nil
		}
		delete(t.pending, t.next)
		t.next++
		if len(b) == 0 {
			continue
		}
		n, err := t.w.Write(b)
		t.written += int64(n)
		if err != nil {
			t.err = fmt.Errorf("can't write segment: %w", err)
			return t.err
		}
	}
}

// complete is true when every segment before n has been written
func (t *trackWriter) complete(n int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next >= n && len(t.pending) == 0
}

func (t *trackWriter) size() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written
}

// segmentKey identifies a segment across manifest refreshes
type segmentKey struct {
	period string
	start  time.Duration
}

// track is the state of one content type during a session
type track struct {
	kind     mpdparser.ContentType
	path     string
	file     *os.File
	writer   *trackWriter
	progress *progression

	selection *selector.Selection
	mpd       *mpdparser.MPD // manifest of the selection
	period    int
	cursor    time.Duration // end of the last segment taken in the period
	recorded  time.Duration
	lastInit  string
	started   bool
	res       *mpdparser.Resolution // resolved, not consumed yet

	maxReached bool

	next   int // index of the next segment in the file
	seen   map[segmentKey]struct{}
	failed map[string]struct{} // representations that can't be resolved
	jobs   sync.WaitGroup
}

func newTrack(kind mpdparser.ContentType, path string) (*track, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("can't create track file: %w", err)
	}
	return &track{
		kind:   kind,
		path:   path,
		file:   f,
		writer: newTrackWriter(f),
		seen:   map[segmentKey]struct{}{},
		failed: map[string]struct{}{},
	}, nil
}

// lang is the language of the selected adaptation set
func (t *track) lang() string {
	if t.selection == nil || t.selection.Effective == nil {
		return ""
	}
	return t.selection.Effective.Lang
}

func (t *track) close() error {
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

// TrackFile is a complete track handed to the muxer
type TrackFile struct {
	Path        string
	ContentType mpdparser.ContentType
	Lang        string
	Codecs      string
	MimeType    string
}

func (t *track) trackFile() TrackFile {
	tf := TrackFile{Path: t.path, ContentType: t.kind, Lang: t.lang()}
	if t.selection != nil && t.selection.Effective != nil {
		tf.Codecs = t.selection.Effective.Codecs
		tf.MimeType = t.selection.Effective.MimeType
	}
	return tf
}
