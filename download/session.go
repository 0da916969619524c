package download

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/simulot/dashdl/metadata"
	"github.com/simulot/dashdl/mylog"
	dashhttp "github.com/simulot/dashdl/net/http"
	"github.com/simulot/dashdl/parsers/mpdparser"
	"github.com/simulot/dashdl/selector"
	"github.com/simulot/dashdl/workers"
)

// ErrNoRefreshPolicy is returned for live manifests that can't be refreshed
var ErrNoRefreshPolicy = errors.New("dynamic manifest without minimumUpdatePeriod")

// manifestSnapshot is the manifest in use. next is closed when a refreshed
// manifest replaces it.
type manifestSnapshot struct {
	mpd  *mpdparser.MPD
	url  *url.URL
	next chan struct{}
}

// session is one run of Download
type session struct {
	d       *Downloader
	id      string
	log     *mylog.MyLog
	fetcher Fetcher
	retry   retryPolicy
	budget  *errorBudget
	metrics *Metrics
	clock   func() time.Time
	pool    *workers.WorkerPool
	cancel  context.CancelCauseFunc

	manifest atomic.Pointer[manifestSnapshot]
	workDir  string
	tracks   []*track

	mu    sync.Mutex
	state State
}

func (d *Downloader) newSession() *session {
	id := uuid.NewString()
	return &session{
		d:       d,
		id:      id,
		log:     d.log.Component("download").With("session", id),
		fetcher: d.fetcher,
		retry:   d.retry,
		budget:  newErrorBudget(d.maxErrorCount),
		metrics: d.metrics,
		clock:   d.clock,
	}
}

func (s *session) setState(st State) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()
	if !changed && st != StateInit {
		return
	}
	s.log.Trace().Printf("Session is %s", st)
	if s.d.observer != nil {
		s.d.observer(st)
	}
}

func (s *session) getState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) snapshot() *manifestSnapshot {
	return s.manifest.Load()
}

// swap publishes a new manifest and wakes up the tracks waiting for it
func (s *session) swap(m *mpdparser.MPD, u *url.URL) {
	old := s.manifest.Swap(&manifestSnapshot{mpd: m, url: u, next: make(chan struct{})})
	if old != nil {
		close(old.next)
	}
}

func (s *session) loadManifest(ctx context.Context, u string) (*mpdparser.MPD, error) {
	b, err := s.fetch(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	return mpdparser.Parse(b)
}

func (s *session) run(ctx context.Context, manifest string) (string, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	s.cancel = cancel
	defer cancel(nil)

	s.setState(StateInit)
	u, err := dashhttp.ManifestURL(manifest)
	if err != nil {
		return "", err
	}
	s.log.Info().Printf("Get manifest %s", u)
	m, err := s.loadManifest(ctx, u.String())
	if err != nil {
		return "", err
	}
	if m.IsDynamic() && m.MinimumUpdatePeriod == nil && s.d.refreshInterval <= 0 {
		return "", ErrNoRefreshPolicy
	}
	s.swap(m, u)

	out, err := s.outputPath(metadata.FromMPD(m, u.String()), u)
	if err != nil {
		return "", err
	}
	s.workDir = filepath.Join(filepath.Dir(out), ".dashdl-"+s.id)
	if err = os.MkdirAll(s.workDir, 0o755); err != nil {
		return "", fmt.Errorf("can't create work directory: %w", err)
	}
	defer s.cleanup()

	s.setState(StateSelectingStreams)
	if err = s.selectTracks(); err != nil {
		return "", err
	}

	s.setState(StateResolvingSegments)
	for _, t := range s.tracks {
		if err = s.resolve(t); err != nil {
			return "", err
		}
	}

	s.setState(StateFetching)
	s.pool = workers.New(s.d.maxConcurrency, s.log)
	err = s.fetchAll(ctx)
	s.pool.Stop()
	if err != nil {
		return "", err
	}
	for _, t := range s.tracks {
		if err = t.close(); err != nil {
			return "", fmt.Errorf("can't close track file: %w", err)
		}
	}

	s.setState(StateMuxing)
	if err = s.mux(ctx, out); err != nil {
		return "", err
	}
	s.setState(StateDone)
	s.log.Info().Printf("%s downloaded, %d segment(s) missing", out, s.budget.count())
	return out, nil
}

// outputPath is the configured output, or a name made from the program title
// when the output is a directory or isn't given.
func (s *session) outputPath(info *metadata.MediaInfo, u *url.URL) (string, error) {
	dir := s.d.output
	if dir != "" {
		st, err := os.Stat(dir)
		if err != nil || !st.IsDir() {
			return filepath.Abs(dir)
		}
	} else {
		dir = "."
	}
	name := strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
	return filepath.Abs(info.MediaPath(dir, name))
}

func (s *session) cleanup() {
	for _, t := range s.tracks {
		t.close()
	}
	if err := os.RemoveAll(s.workDir); err != nil {
		s.log.Error().Err(err).Printf("Can't remove work directory %s", s.workDir)
	}
}

// startPeriod is the first period to download: the first one for static manifests,
// the one holding the live edge for dynamic ones.
func (s *session) startPeriod(m *mpdparser.MPD) int {
	if !m.IsDynamic() || m.AvailabilityStartTime == nil {
		return 0
	}
	elapsed := s.clock().Sub(m.AvailabilityStartTime.Time())
	p := 0
	for i := range m.Periods {
		if start, ok := m.PeriodStart(i); ok && start <= elapsed {
			p = i
		}
	}
	return p
}

// presentationDuration is the duration of the presentation when known
func (s *session) presentationDuration(m *mpdparser.MPD) time.Duration {
	if m.IsDynamic() {
		return s.d.maxDuration
	}
	if m.MediaPresentationDuration != nil {
		return m.MediaPresentationDuration.Duration()
	}
	var total time.Duration
	for i := range m.Periods {
		d, ok := m.PeriodDuration(i)
		if !ok {
			return 0
		}
		total += d
	}
	return total
}

func (s *session) selectTracks() error {
	snap := s.snapshot()
	period := s.startPeriod(snap.mpd)
	for _, kind := range s.d.tracks {
		sel, err := selector.Select(snap.mpd, period, kind, s.d.policy, snap.url)
		if err != nil {
			var nm *selector.NoMatchingStreamError
			if errors.As(err, &nm) && kind == mpdparser.ContentText && nm.Language == "" {
				s.log.Info().Printf("No subtitles in the manifest")
				continue
			}
			return err
		}
		t, err := newTrack(kind, filepath.Join(s.workDir, string(kind)+trackExt(sel.Effective)))
		if err != nil {
			return err
		}
		t.selection, t.mpd, t.period = sel, snap.mpd, period
		var p Progresser
		if s.d.progress != nil {
			p = s.d.progress(kind)
		}
		t.progress = newProgression(p, int64(s.presentationDuration(snap.mpd)))
		s.tracks = append(s.tracks, t)
		s.log.Info().Printf("Selected %s representation %q (%d bps, lang %q)", kind, sel.Effective.ID, sel.Effective.Bandwidth, sel.Effective.Lang)
	}
	if len(s.tracks) == 0 {
		return errors.New("no track to download")
	}
	return nil
}

// trackExt is the extension of the track file, given by the mime type
func trackExt(e *mpdparser.Effective) string {
	switch strings.ToLower(e.MimeType) {
	case "text/vtt":
		return ".vtt"
	case "application/ttml+xml":
		return ".ttml"
	case "video/webm", "audio/webm":
		return ".webm"
	}
	return ".mp4"
}

func (s *session) mux(ctx context.Context, out string) error {
	var files []TrackFile
	for _, t := range s.tracks {
		if t.writer.size() == 0 {
			s.log.Error().Printf("Track %s is empty", t.kind)
			continue
		}
		files = append(files, t.trackFile())
	}
	if len(files) == 0 {
		return errors.New("no segment downloaded")
	}
	for i := 0; i < len(files); i++ {
		if !isTTML(files[i]) {
			continue
		}
		f, err := s.toSRT(files[i])
		if err != nil {
			s.log.Error().Err(err).Printf("Subtitles are dropped")
			files = append(files[:i], files[i+1:]...)
			i--
			continue
		}
		files[i] = f
	}

	snap := s.snapshot()
	info := metadata.FromMPD(snap.mpd, snap.url.String())
	var tags *metadata.MediaInfo
	if s.d.recordMetadata {
		tags = info
	}
	if err := s.d.muxer.Mux(ctx, files, out, tags); err != nil {
		return err
	}

	if s.d.nfo {
		if err := info.WriteNFO(metadata.NFOPath(out)); err != nil {
			return err
		}
	}
	if s.d.saveManifest != "" {
		b, err := snap.mpd.Marshal()
		if err != nil {
			return err
		}
		if err = renameio.WriteFile(s.d.saveManifest, b, 0o644); err != nil {
			return fmt.Errorf("can't save manifest: %w", err)
		}
	}
	if s.d.keepTracks {
		base := strings.TrimSuffix(out, filepath.Ext(out))
		for _, f := range files {
			dst := base + "." + string(f.ContentType) + filepath.Ext(f.Path)
			if err := os.Rename(f.Path, dst); err != nil {
				return fmt.Errorf("can't keep track file: %w", err)
			}
		}
	}
	return nil
}
