package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"
	"github.com/vbauerster/mpb/v8"

	"github.com/simulot/dashdl/download"
	"github.com/simulot/dashdl/mylog"
	dashhttp "github.com/simulot/dashdl/net/http"
	"github.com/simulot/dashdl/parsers/mpdparser"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type app struct {
	Config *Config
	logger *mylog.MyLog
	stdout io.Writer
	stderr io.Writer
}

func main() {
	os.Exit(run())
}

func run() int {
	// trap Ctrl+C and call cancel on the context
	ctx, cancel := context.WithCancel(context.Background())
	breakChannel := make(chan os.Signal, 1)
	signal.Notify(breakChannel, os.Interrupt)

	defer func() {
		// Normal end... cleaning up
		signal.Stop(breakChannel)
		cancel()
	}()

	// waiting for interruption
	go func() {
		select {
		case <-breakChannel:
			cancel()
		case <-ctx.Done():
			return
		}
	}()

	a := &app{stdout: os.Stdout, stderr: os.Stderr}
	if err := a.ParseArgs(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(a.stderr, err)
		return 2
	}
	if err := a.Run(ctx); err != nil {
		fmt.Fprintf(a.stderr, "Download failed: %s\n", err)
		return 1
	}
	return 0
}

func (a *app) flagSet(c *Config) *flag.FlagSet {
	fs := flag.NewFlagSet("dashdl", flag.ContinueOnError)
	fs.SetOutput(a.stderr)

	fs.StringVarP(&c.ConfigFile, "config", "c", c.ConfigFile, "YAML configuration file. Command line options override it.")
	fs.StringVarP(&c.Output, "output", "o", c.Output, "Output file, or directory where the output is named after the title.")
	fs.StringVarP(&c.Quality, "quality", "q", c.Quality, "Representation quality: best or worst.")
	fs.StringVar(&c.Representation, "representation", c.Representation, "Id of the representation to get, when present.")
	fs.StringVarP(&c.Language, "lang", "L", c.Language, "Preferred language for audio and subtitles (ISO 639).")
	fs.BoolVar(&c.StrictLanguage, "strict-lang", c.StrictLanguage, "Fail when the preferred language is missing.")
	fs.StringSliceVar(&c.Roles, "roles", c.Roles, "Preferred roles, like main or alternate.")
	fs.StringSliceVar(&c.Codecs, "codecs", c.Codecs, "Accepted codec prefixes, like avc1 or mp4a.")
	fs.Uint64Var(&c.MaxBandwidth, "max-bandwidth", c.MaxBandwidth, "Ignore representations above this bandwidth (bits/s).")
	fs.Uint64Var(&c.MinBandwidth, "min-bandwidth", c.MinBandwidth, "Ignore representations below this bandwidth (bits/s).")
	fs.StringSliceVarP(&c.Tracks, "tracks", "t", c.Tracks, "Tracks to download: video, audio, text.")
	fs.IntVar(&c.MaxErrorCount, "max-errors", c.MaxErrorCount, "Number of failed segments tolerated.")
	fs.IntVar(&c.RetryLimit, "retries", c.RetryLimit, "Number of retries of a failed request.")
	fs.Var(&c.RequestTimeout, "timeout", "Timeout of each request.")
	fs.IntVarP(&c.MaxConcurrency, "max-concurrency", "m", c.MaxConcurrency, "Number of segments fetched at once.")
	fs.IntVar(&c.RateLimit, "rate-limit", c.RateLimit, "Bandwidth limit in bytes/s, 0 for none.")
	fs.Var(&c.RefreshInterval, "refresh", "Refresh interval of live manifests, overrides minimumUpdatePeriod.")
	fs.Var(&c.MaxDuration, "max-duration", "Stop recording after this duration.")
	fs.BoolVar(&c.RecordMetadata, "record-metadata", c.RecordMetadata, "Write the program information into the output.")
	fs.BoolVar(&c.WriteNFO, "nfo", c.WriteNFO, "Write a NFO file beside the output.")
	fs.BoolVar(&c.KeepTracks, "keep-tracks", c.KeepTracks, "Keep track files beside the output.")
	fs.StringVar(&c.SaveManifest, "save-manifest", c.SaveManifest, "Save the last manifest to this file.")
	fs.StringVar(&c.UserAgent, "user-agent", c.UserAgent, "User agent of HTTP requests.")
	fs.StringToStringVarP(&c.Headers, "header", "H", c.Headers, "HTTP header sent with each request, as name=value.")
	fs.StringVar(&c.FFMpeg, "ffmpeg", c.FFMpeg, "ffmpeg executable.")
	fs.StringVar(&c.FFProbe, "ffprobe", c.FFProbe, "ffprobe executable used to check the output.")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Log level (INFO,TRACE,ERROR,DEBUG)")
	fs.StringVar(&c.LogFile, "log", c.LogFile, "Give the log file name.")
	fs.BoolVar(&c.Headless, "headless", c.Headless, "Headless mode. Progression bars are not displayed.")
	fs.StringVar(&c.MetricsFile, "metrics", c.MetricsFile, "Write download metrics to this file, in Prometheus text format.")

	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "%s: %v, commit %v, built at %v\n\n", filepath.Base(os.Args[0]), version, commit, date)
		fmt.Fprintln(a.stderr, "Download a DASH presentation into a single media file")
		fmt.Fprintln(a.stderr)
		fmt.Fprintln(a.stderr, filepath.Base(os.Args[0]), "[ options... ] MANIFEST")
		fmt.Fprintln(a.stderr)
		fmt.Fprintln(a.stderr, "  example:  ", filepath.Base(os.Args[0]), "--lang fr -o ~/Videos https://example.com/manifest.mpd")
		fmt.Fprintln(a.stderr)
		fmt.Fprintln(a.stderr, "  options:")
		fs.PrintDefaults()
	}
	return fs
}

// ParseArgs reads the configuration file named on the command line, then
// applies the command line options over it.
func (a *app) ParseArgs(args []string) error {
	first := defaultConfig()
	if err := a.flagSet(first).Parse(args); err != nil {
		return err
	}

	c := defaultConfig()
	if first.ConfigFile != "" {
		if err := ReadConfig(first.ConfigFile, c); err != nil {
			return err
		}
	}
	fs := a.flagSet(c)
	if err := fs.Parse(args); err != nil {
		return err
	}
	switch fs.NArg() {
	case 0:
	case 1:
		c.Manifest = fs.Arg(0)
	default:
		return fmt.Errorf("only one manifest is expected, got %d", fs.NArg())
	}
	if err := c.Check(); err != nil {
		return err
	}
	a.Config = c
	return nil
}

// needsFFMpeg is false when the only track is copied as is
func (c *Config) needsFFMpeg() bool {
	return len(c.Tracks) > 1 || c.RecordMetadata
}

// Run downloads the manifest given by the configuration
func (a *app) Run(ctx context.Context) error {
	c := a.Config

	var bars *progressBars
	logOutput := a.stderr
	if !c.Headless {
		pc := mpb.NewWithContext(ctx, mpb.WithWidth(64), mpb.WithOutput(a.stderr))
		bars = newProgressBars(pc)
		// Log lines are printed above the bars
		logOutput = pc
	}
	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("can't open log file: %w", err)
		}
		defer f.Close()
		logOutput = f
	}
	logger, err := mylog.NewConsoleLog(c.LogLevel, logOutput)
	if err != nil {
		return err
	}
	a.logger = logger
	a.logger.Info().Printf("%s: %v, commit %v, built at %v", filepath.Base(os.Args[0]), version, commit, date)

	if c.needsFFMpeg() {
		p, err := exec.LookPath(c.FFMpeg)
		if err != nil {
			return fmt.Errorf("missing ffmpeg on your system, it's required to mux tracks: %w", err)
		}
		a.logger.Trace().Printf("FFMPEG path: %q", p)
	}

	httpOpts := []func(*dashhttp.Client){
		dashhttp.SetLogger(a.logger.Component("http")),
		dashhttp.SetRateLimit(c.RateLimit),
	}
	if c.UserAgent != "" {
		httpOpts = append(httpOpts, dashhttp.SetUserAgent(c.UserAgent))
	}
	for k, v := range c.Headers {
		httpOpts = append(httpOpts, dashhttp.SetHeader(k, v))
	}

	ffmpegOpts := []download.FFMpegOption{
		download.FFMpegPath(c.FFMpeg),
		download.FFMpegWithLogger(a.logger),
		download.FFMpegWithDebug(a.logger.IsDebug()),
	}
	if c.FFProbe != "" {
		ffmpegOpts = append(ffmpegOpts, download.FFProbePath(c.FFProbe))
	}

	metrics := download.NewMetrics()
	opts := append(c.Options(),
		download.WithFetcher(dashhttp.NewClient(httpOpts...)),
		download.WithLogger(a.logger),
		download.WithMetrics(metrics),
		download.WithStateObserver(func(s download.State) {
			a.logger.Trace().Printf("Session is %s", s)
		}),
	)
	if bars != nil {
		opts = append(opts, download.WithProgress(func(kind mpdparser.ContentType) download.Progresser {
			return bars.NewBar(string(kind))
		}))
		ffmpegOpts = append(ffmpegOpts, download.FFMpegWithProgress(&lazyBar{pb: bars, name: "mux"}))
	}
	opts = append(opts, download.WithMuxer(download.NewFFMpeg(ffmpegOpts...)))

	out, err := download.New(opts...).Download(ctx, c.Manifest)
	if bars != nil {
		bars.Wait()
	}
	if c.MetricsFile != "" {
		if merr := prometheus.WriteToTextfile(c.MetricsFile, metrics.Registry); merr != nil {
			a.logger.Error().Printf("Can't write metrics: %s", merr)
		}
	}
	if err != nil {
		return err
	}
	a.logger.Info().Printf("Media %q downloaded.", out)
	fmt.Fprintln(a.stdout, out)
	return nil
}
