// Package download fetches the streams of a DASH presentation and muxes them
// into a single file.
package download

import (
	"context"
	"time"

	"github.com/simulot/dashdl/mylog"
	dashhttp "github.com/simulot/dashdl/net/http"
	"github.com/simulot/dashdl/parsers/mpdparser"
	"github.com/simulot/dashdl/selector"
)

// Downloader holds the configuration of download sessions. A Downloader can run
// several sessions, concurrently or not.
type Downloader struct {
	policy          selector.Policy
	tracks          []mpdparser.ContentType
	maxErrorCount   int
	retry           retryPolicy
	maxConcurrency  int
	recordMetadata  bool
	nfo             bool
	output          string
	refreshInterval time.Duration
	maxDuration     time.Duration
	saveManifest    string
	keepTracks      bool
	fetcher         Fetcher
	muxer           Muxer
	log             *mylog.MyLog
	progress        func(kind mpdparser.ContentType) Progresser
	observer        func(State)
	metrics         *Metrics
	clock           func() time.Time
}

// Option configures the Downloader
type Option func(d *Downloader)

// New creates a Downloader. By default, it gets the best video and audio
// representations, and tolerates 10 failed segments.
func New(opts ...Option) *Downloader {
	d := &Downloader{
		policy:        selector.Policy{Quality: selector.QualityBest},
		tracks:        []mpdparser.ContentType{mpdparser.ContentVideo, mpdparser.ContentAudio},
		maxErrorCount: 10,
		retry: retryPolicy{
			limit:      3,
			timeout:    30 * time.Second,
			initial:    500 * time.Millisecond,
			maxBackoff: 10 * time.Second,
		},
		maxConcurrency: 4,
		log:            mylog.Nop(),
		clock:          time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	if d.fetcher == nil {
		d.fetcher = dashhttp.NewClient(dashhttp.SetLogger(d.log.Component("http")))
	}
	if d.muxer == nil {
		d.muxer = NewFFMpeg(FFMpegWithLogger(d.log))
	}
	if d.metrics == nil {
		d.metrics = NewMetrics()
	}
	return d
}

// Metrics gives the counters of the Downloader
func (d *Downloader) Metrics() *Metrics {
	return d.metrics
}

// WithQuality chooses the best or the worst representations
func WithQuality(q selector.Quality) Option {
	return func(d *Downloader) { d.policy.Quality = q }
}

// WithRepresentationID forces the representation with the given id, when present
func WithRepresentationID(id string) Option {
	return func(d *Downloader) { d.policy.RepresentationID = id }
}

// WithLanguage gives the preferred language of audio and subtitle tracks
func WithLanguage(lang string) Option {
	return func(d *Downloader) { d.policy.Language = lang }
}

// WithStrictLanguage makes the download fail when the preferred language is missing
func WithStrictLanguage(strict bool) Option {
	return func(d *Downloader) {
		d.policy.LanguageFallback = selector.FallbackFirst
		if strict {
			d.policy.LanguageFallback = selector.FallbackStrict
		}
	}
}

// WithRoles gives the preferred roles of adaptation sets, in preference order
func WithRoles(roles ...string) Option {
	return func(d *Downloader) { d.policy.Roles = roles }
}

// WithCodecs restricts representations to the given codec prefixes
func WithCodecs(codecs ...string) Option {
	return func(d *Downloader) { d.policy.Codecs = codecs }
}

// WithMaxBandwidth ignores representations above the bandwidth, when possible
func WithMaxBandwidth(bps uint64) Option {
	return func(d *Downloader) { d.policy.MaxBandwidth = bps }
}

// WithMinBandwidth ignores representations below the bandwidth, when possible
func WithMinBandwidth(bps uint64) Option {
	return func(d *Downloader) { d.policy.MinBandwidth = bps }
}

// WithMaxErrorCount sets the number of failed segments tolerated by a session
func WithMaxErrorCount(n int) Option {
	return func(d *Downloader) { d.maxErrorCount = n }
}

// WithRetryLimit sets the number of retries of a failed request
func WithRetryLimit(n int) Option {
	return func(d *Downloader) { d.retry.limit = n }
}

// WithRequestTimeout limits the duration of each request attempt
func WithRequestTimeout(t time.Duration) Option {
	return func(d *Downloader) { d.retry.timeout = t }
}

// WithBackoff sets the first and the longest wait between two attempts
func WithBackoff(initial, max time.Duration) Option {
	return func(d *Downloader) {
		d.retry.initial = initial
		d.retry.maxBackoff = max
	}
}

// WithMaxConcurrency sets the number of segments fetched at once
func WithMaxConcurrency(n int) Option {
	return func(d *Downloader) { d.maxConcurrency = n }
}

// WithRecordMetadata writes the program information as container metadata
func WithRecordMetadata(b bool) Option {
	return func(d *Downloader) { d.recordMetadata = b }
}

// WithNFO writes a NFO file beside the output
func WithNFO(b bool) Option {
	return func(d *Downloader) { d.nfo = b }
}

// WithOutput gives the output file, or the directory where the output is written
func WithOutput(path string) Option {
	return func(d *Downloader) { d.output = path }
}

// WithTracks gives the content types to download
func WithTracks(kinds ...mpdparser.ContentType) Option {
	return func(d *Downloader) { d.tracks = kinds }
}

// WithRefreshInterval overrides the minimumUpdatePeriod of live manifests
func WithRefreshInterval(t time.Duration) Option {
	return func(d *Downloader) { d.refreshInterval = t }
}

// WithMaxDuration stops recording once each track holds the given duration
func WithMaxDuration(t time.Duration) Option {
	return func(d *Downloader) { d.maxDuration = t }
}

// WithSaveManifest writes the last manifest of the session at path
func WithSaveManifest(path string) Option {
	return func(d *Downloader) { d.saveManifest = path }
}

// WithKeepTracks keeps the track files beside the output
func WithKeepTracks(b bool) Option {
	return func(d *Downloader) { d.keepTracks = b }
}

// WithFetcher replaces the HTTP client
func WithFetcher(f Fetcher) Option {
	return func(d *Downloader) { d.fetcher = f }
}

// WithMuxer replaces ffmpeg
func WithMuxer(m Muxer) Option {
	return func(d *Downloader) { d.muxer = m }
}

// WithLogger gives the logger
func WithLogger(l *mylog.MyLog) Option {
	return func(d *Downloader) { d.log = l }
}

// WithProgress gives a function returning the Progresser of each track
func WithProgress(fn func(kind mpdparser.ContentType) Progresser) Option {
	return func(d *Downloader) { d.progress = fn }
}

// WithStateObserver gives a function called at each state change of a session
func WithStateObserver(fn func(State)) Option {
	return func(d *Downloader) { d.observer = fn }
}

// WithMetrics shares the given metrics
func WithMetrics(m *Metrics) Option {
	return func(d *Downloader) { d.metrics = m }
}

// Download gets the presentation described by the manifest, a URL or a local file,
// and returns the path of the output file.
// The error is a *SessionError.
func (d *Downloader) Download(ctx context.Context, manifest string) (string, error) {
	s := d.newSession()
	out, err := s.run(ctx, manifest)
	if err != nil {
		se := &SessionError{State: s.getState(), Err: err}
		s.setState(StateFailed)
		d.metrics.Sessions.WithLabelValues(StateFailed.String()).Inc()
		s.log.Error().Err(err).Printf("Download of %s failed while %s", manifest, se.State)
		return "", se
	}
	d.metrics.Sessions.WithLabelValues(StateDone.String()).Inc()
	return out, nil
}
