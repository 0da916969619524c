package download

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"golang.org/x/text/language"

	"github.com/simulot/dashdl/metadata"
	"github.com/simulot/dashdl/mylog"
	"github.com/simulot/dashdl/parsers/mpdparser"
)

// Muxer combines the track files into the output file
type Muxer interface {
	Mux(ctx context.Context, tracks []TrackFile, out string, info *metadata.MediaInfo) error
}

// diagnosticLines is the number of ffmpeg lines kept for error reports
const diagnosticLines = 10

// FFMpeg is the Muxer running ffmpeg
type FFMpeg struct {
	path         string
	probePath    string
	debug        bool
	stallTimeout time.Duration
	log          *mylog.MyLog
	pgr          Progresser
}

// FFMpegOption configures FFMpeg
type FFMpegOption func(f *FFMpeg)

// NewFFMpeg creates the muxer, running "ffmpeg" from the PATH by default
func NewFFMpeg(opts ...FFMpegOption) *FFMpeg {
	f := &FFMpeg{
		path:         "ffmpeg",
		stallTimeout: 30 * time.Second,
		log:          mylog.Nop(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// FFMpegPath gives the ffmpeg executable
func FFMpegPath(p string) FFMpegOption {
	return func(f *FFMpeg) { f.path = p }
}

// FFProbePath enables the check of the output with the given ffprobe executable
func FFProbePath(p string) FFMpegOption {
	return func(f *FFMpeg) { f.probePath = p }
}

// FFMpegWithDebug logs all ffmpeg output, and disables the stall watchdog
func FFMpegWithDebug(debug bool) FFMpegOption {
	return func(f *FFMpeg) { f.debug = debug }
}

// FFMpegStallTimeout kills ffmpeg when it doesn't report progress during d
func FFMpegStallTimeout(d time.Duration) FFMpegOption {
	return func(f *FFMpeg) { f.stallTimeout = d }
}

// FFMpegWithLogger gives the logger
func FFMpegWithLogger(l *mylog.MyLog) FFMpegOption {
	return func(f *FFMpeg) { f.log = l.Component("ffmpeg") }
}

// FFMpegWithProgress reports the muxing progression
func FFMpegWithProgress(p Progresser) FFMpegOption {
	return func(f *FFMpeg) { f.pgr = p }
}

// outputFormat is the ffmpeg format for the output extension
func outputFormat(out string) string {
	switch strings.ToLower(filepath.Ext(out)) {
	case ".mkv":
		return "matroska"
	case ".webm":
		return "webm"
	case ".ts":
		return "mpegts"
	}
	return "mp4"
}

// iso639_2 gives the three letters code ffmpeg expects in language tags
func iso639_2(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return lang
	}
	base, conf := tag.Base()
	if conf == language.No {
		return lang
	}
	return base.ISO3()
}

// args builds the ffmpeg command line
func (f *FFMpeg) args(tracks []TrackFile, out, format string, info *metadata.MediaInfo) []string {
	params := []string{
		"-loglevel", "info", // Give me feedback
		"-hide_banner", // I don't want banner
		"-nostdin",
	}
	for _, t := range tracks {
		params = append(params, "-i", t.Path)
	}
	for i := range tracks {
		params = append(params, "-map", strconv.Itoa(i))
	}
	params = append(params, "-c", "copy")
	for i, t := range tracks {
		if t.ContentType == mpdparser.ContentText && format == "mp4" {
			params = append(params, "-c:"+strconv.Itoa(i), "mov_text")
		}
		if t.Lang != "" {
			params = append(params, "-metadata:s:"+strconv.Itoa(i), "language="+iso639_2(t.Lang))
		}
	}
	if info != nil {
		for _, tag := range info.Tags() {
			params = append(params, "-metadata", tag[0]+"="+tag[1])
		}
	}
	return append(params,
		"-f", format, // Be sure that output
		"-y", // Override output file
		out,
	)
}

// Mux implements Muxer. The output is written aside and renamed once complete.
func (f *FFMpeg) Mux(ctx context.Context, tracks []TrackFile, out string, info *metadata.MediaInfo) error {
	if len(tracks) == 0 {
		return &MuxError{Err: errors.New("no track to mux")}
	}
	if len(tracks) == 1 && info == nil {
		return copyTrack(tracks[0].Path, out)
	}

	tmp := filepath.Join(filepath.Dir(out), "."+filepath.Base(out)+".part")
	defer os.Remove(tmp)

	params := f.args(tracks, tmp, outputFormat(out), info)
	f.log.Debug().Printf("Running %s %v", f.path, params)

	cmd := exec.CommandContext(ctx, f.path, params...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &MuxError{Err: err}
	}
	if err = cmd.Start(); err != nil {
		return &MuxError{Err: err}
	}
	w := &ffmpegWatcher{f: f, cmd: cmd}
	w.watch(stderr)
	w.done.Wait()
	err = cmd.Wait()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &MuxError{Err: err, Diagnostics: w.diagnostics()}
	}

	if f.probePath != "" {
		p, err := Probe(ctx, f.probePath, tmp)
		if err != nil {
			return &MuxError{Err: err}
		}
		if len(p.Streams) == 0 {
			return &MuxError{Err: errors.New("the output has no stream")}
		}
	}
	if err = os.Rename(tmp, out); err != nil {
		return &MuxError{Err: err}
	}
	return nil
}

// copyTrack copies the only track to the output, atomically
func copyTrack(src, out string) error {
	in, err := os.Open(src)
	if err != nil {
		return &MuxError{Err: err}
	}
	defer in.Close()

	pending, err := renameio.NewPendingFile(out)
	if err != nil {
		return &MuxError{Err: err}
	}
	defer pending.Cleanup()
	if _, err = io.Copy(pending, in); err != nil {
		return &MuxError{Err: err}
	}
	if err = pending.CloseAtomicallyReplace(); err != nil {
		return &MuxError{Err: err}
	}
	return nil
}

// ffmpegWatcher reads ffmpeg's stderr: progress lines and diagnostics
type ffmpegWatcher struct {
	f   *FFMpeg
	cmd *exec.Cmd

	mu   sync.Mutex
	last []string
	done sync.WaitGroup
}

func dropCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		return data[0 : len(data)-1]
	}
	return data
}

// scanLines splits on \n and \r, ffmpeg rewrites its progress line with \r
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\n\r"); i >= 0 {
		return i + 1, dropCR(data[0:i]), nil
	}
	// If we're at EOF, we have a final, non-terminated line. Return it.
	if atEOF {
		return len(data), dropCR(data), nil
	}
	// Request more data.
	return 0, nil, nil
}

func (w *ffmpegWatcher) keep(l string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = append(w.last, l)
	if len(w.last) > diagnosticLines {
		w.last = w.last[len(w.last)-diagnosticLines:]
	}
}

func (w *ffmpegWatcher) diagnostics() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.last...)
}

func (w *ffmpegWatcher) watch(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Split(scanLines)
	wf := w.f.stallTimeout
	if w.f.debug || wf <= 0 {
		wf = 10 * time.Hour
	}
	w.done.Add(1)
	go func() {
		defer w.done.Done()
		var total time.Duration

		// watch if frames are coming
		activityWatchDog := newWatchDog(wf, func() {
			w.keep("time out when receiving frames")
			w.cmd.Process.Kill()
		})
		defer activityWatchDog.Stop()

		for sc.Scan() {
			l := sc.Text()
			if l == "" {
				continue
			}
			if !strings.HasPrefix(l, "frame=") && !strings.HasPrefix(l, "size=") {
				if w.f.debug {
					w.f.log.Debug().Printf("%s", l)
				}
				w.keep(l)
				if d, ok := ffmpegTime(l, "Duration:"); ok {
					total = d
					if w.f.pgr != nil {
						w.f.pgr.Init(1024 * 1024)
					}
				}
				continue
			}

			// alive!
			activityWatchDog.Kick()
			if w.f.pgr == nil {
				continue
			}
			size, ok := ffmpegSize(l)
			if !ok {
				continue
			}
			current, ok := ffmpegTime(l, "time=")
			if !ok {
				continue
			}
			estimated := size
			if total > 0 && current > 0 && current < total && !strings.Contains(l, "Lsize=") {
				estimated = int64(float64(size) * float64(total) / float64(current))
			}
			if estimated < size {
				estimated = size + 1024
			}
			w.f.pgr.Update(size, estimated)
		}
	}()
}

// ffmpegTime reads a hh:mm:ss.cc value following the key
func ffmpegTime(l, key string) (time.Duration, bool) {
	i := strings.Index(l, key)
	if i < 0 {
		return 0, false
	}
	var h, m, s, c int64
	_, err := fmt.Sscanf(strings.TrimSpace(l[i+len(key):]), "%d:%d:%d.%d", &h, &m, &s, &c)
	if err != nil {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second + time.Duration(c)*10*time.Millisecond, true
}

// ffmpegSize reads the size= value of a progress line, in bytes
func ffmpegSize(l string) (int64, bool) {
	i := strings.Index(l, "size=")
	if i < 0 {
		return 0, false
	}
	var size int64
	var unit string
	_, err := fmt.Sscanf(strings.TrimSpace(l[i+len("size="):]), "%d%s", &size, &unit)
	if err != nil {
		return 0, false
	}
	switch {
	case strings.HasPrefix(unit, "kB"), strings.HasPrefix(unit, "KiB"):
		size *= 1024
	case strings.HasPrefix(unit, "MB"), strings.HasPrefix(unit, "MiB"):
		size *= 1024 * 1024
	}
	return size, true
}
