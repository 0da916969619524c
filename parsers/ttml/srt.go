package ttml

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

var (
	ttStart = regexp.MustCompile(`<(\w+:)?tt[\s>]`)
	ttEnd   = regexp.MustCompile(`</(\w+:)?tt\s*>`)
)

// TranscodeToSRT converts all TTML documents found in src into one SRT file.
// The documents can be surrounded by binary data, like the boxes of fMP4 segments.
// It returns the number of captions written.
func TranscodeToSRT(dst io.Writer, src io.Reader) (int, error) {
	b, err := io.ReadAll(src)
	if err != nil {
		return 0, err
	}
	w := NewSrtWriter(dst)
	documents := 0
	for {
		loc := ttStart.FindIndex(b)
		if loc == nil {
			break
		}
		b = b[loc[0]:]
		end := ttEnd.FindIndex(b)
		if end == nil {
			return w.Count(), fmt.Errorf("can't read TTML: truncated document")
		}
		tt := TTML{}
		if err := xml.NewDecoder(bytes.NewReader(b[:end[1]])).Decode(&tt); err != nil {
			return w.Count(), fmt.Errorf("can't parse TTML xml: %w", err)
		}
		if err := w.Write(&tt); err != nil {
			return w.Count(), fmt.Errorf("can't convert TTML to Srt: %w", err)
		}
		documents++
		b = b[end[1]:]
	}
	if documents == 0 {
		return 0, fmt.Errorf("can't read TTML: no document found")
	}
	return w.Count(), w.Flush()
}

// SrtWriter numbers the captions of successive documents
type SrtWriter struct {
	dst  *bufio.Writer
	n    int
	last string // previous caption, repeated by successive fragments
}

// NewSrtWriter creates a SrtWriter on dst
func NewSrtWriter(dst io.Writer) *SrtWriter {
	return &SrtWriter{dst: bufio.NewWriter(dst)}
}

// Count is the number of captions written
func (w *SrtWriter) Count() int {
	return w.n
}

// Write adds the pages of the document
func (w *SrtWriter) Write(tt *TTML) error {
	for _, page := range tt.Pages {
		if len(page.Lines) == 0 {
			continue
		}
		begin, end, err := tt.times(page)
		if err != nil {
			return err
		}
		caption := srtTime(begin) + " --> " + srtTime(end) + "\n" + strings.Join(page.Lines, "\n") + "\n"
		if caption == w.last {
			continue
		}
		w.last = caption
		w.n++
		if _, err = fmt.Fprintf(w.dst, "%d\n%s\n", w.n, caption); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes buffered data
func (w *SrtWriter) Flush() error {
	return w.dst.Flush()
}

// ToSrt writes the document as a SRT file
func (tt *TTML) ToSrt(dst io.Writer) error {
	w := NewSrtWriter(dst)
	if err := w.Write(tt); err != nil {
		return err
	}
	return w.Flush()
}

// srtTime formats d as hh:mm:ss,mmm
func srtTime(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}
