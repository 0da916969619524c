package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/simulot/dashdl/download"
	"github.com/simulot/dashdl/mylog"
	"github.com/simulot/dashdl/parsers/mpdparser"
	"github.com/simulot/dashdl/selector"
)

// Config holds settings from configuration file and command line
type Config struct {
	ConfigFile string `yaml:"-"`
	Manifest   string `yaml:"-"`

	Output         string   `yaml:"output"`          // Output file or directory
	Quality        string   `yaml:"quality"`         // best or worst
	Representation string   `yaml:"representation"`  // Representation id to get
	Language       string   `yaml:"language"`        // Preferred language for audio and subtitles
	StrictLanguage bool     `yaml:"strict_language"` // Fail when the language is missing
	Roles          []string `yaml:"roles,omitempty"`
	Codecs         []string `yaml:"codecs,omitempty"`
	MaxBandwidth   uint64   `yaml:"max_bandwidth"`
	MinBandwidth   uint64   `yaml:"min_bandwidth"`
	Tracks         []string `yaml:"tracks"` // video, audio, text

	MaxErrorCount   int          `yaml:"max_error_count"`
	RetryLimit      int          `yaml:"retry_limit"`
	RequestTimeout  textDuration `yaml:"request_timeout"`
	MaxConcurrency  int          `yaml:"max_concurrency"`
	RateLimit       int          `yaml:"rate_limit"` // bytes per second, 0 for no limit
	RefreshInterval textDuration `yaml:"refresh_interval"`
	MaxDuration     textDuration `yaml:"max_duration"`

	RecordMetadata bool   `yaml:"record_metadata"`
	WriteNFO       bool   `yaml:"write_nfo"`
	KeepTracks     bool   `yaml:"keep_tracks"`
	SaveManifest   string `yaml:"save_manifest"`

	UserAgent string            `yaml:"user_agent"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	FFMpeg    string            `yaml:"ffmpeg"`
	FFProbe   string            `yaml:"ffprobe"`

	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	Headless    bool   `yaml:"headless"` // Progression bars are not displayed
	MetricsFile string `yaml:"metrics_file"`
}

// Handle Duration as string for YAML configuration
type textDuration time.Duration

func (t textDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(t).String()), nil
}

func (t *textDuration) UnmarshalText(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "0" {
		*t = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*t = textDuration(v)
	return nil
}

// String and Set make textDuration usable as a command line flag
func (t *textDuration) String() string {
	return time.Duration(*t).String()
}

func (t *textDuration) Set(s string) error {
	return t.UnmarshalText([]byte(s))
}

func (t *textDuration) Type() string {
	return "duration"
}

// defaultConfig gives the settings used when neither the file nor the command line set them
func defaultConfig() *Config {
	return &Config{
		Quality:        "best",
		Tracks:         []string{"video", "audio"},
		MaxErrorCount:  10,
		RetryLimit:     3,
		RequestTimeout: textDuration(30 * time.Second),
		MaxConcurrency: 4,
		FFMpeg:         "ffmpeg",
		LogLevel:       "ERROR",
	}
}

// ReadConfig reads the YAML configuration file over the given configuration
func ReadConfig(path string, c *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("can't open configuration file: %w", err)
	}
	if err = yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("can't decode configuration file %q: %w", path, err)
	}
	return nil
}

// WriteConfig writes the configuration as YAML
func (c *Config) WriteConfig(path string) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Check validates and normalizes the configuration
func (c *Config) Check() error {
	var errs []error
	if c.Manifest == "" {
		errs = append(errs, errors.New("missing manifest URL or path"))
	}
	if _, err := selector.ParseQuality(c.Quality); err != nil {
		errs = append(errs, err)
	}
	if len(c.Tracks) == 0 {
		errs = append(errs, errors.New("no track to download"))
	}
	for i, t := range c.Tracks {
		c.Tracks[i] = strings.ToLower(strings.TrimSpace(t))
		switch mpdparser.ContentType(c.Tracks[i]) {
		case mpdparser.ContentVideo, mpdparser.ContentAudio, mpdparser.ContentText:
		default:
			errs = append(errs, fmt.Errorf("unknown track kind %q", t))
		}
	}
	if c.MaxErrorCount < 0 {
		errs = append(errs, errors.New("max-errors can't be negative"))
	}
	if c.RetryLimit < 0 {
		errs = append(errs, errors.New("retries can't be negative"))
	}
	if c.MaxConcurrency < 1 {
		errs = append(errs, errors.New("max-concurrency must be at least 1"))
	}
	if c.MaxBandwidth > 0 && c.MinBandwidth > c.MaxBandwidth {
		errs = append(errs, errors.New("min-bandwidth is greater than max-bandwidth"))
	}
	if _, err := mylog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	// Expand paths
	c.Output = expandPath(c.Output)
	c.SaveManifest = expandPath(c.SaveManifest)
	c.LogFile = expandPath(c.LogFile)
	c.MetricsFile = expandPath(c.MetricsFile)
	return errors.Join(errs...)
}

func expandPath(p string) string {
	if p == "" {
		return p
	}
	return filepath.Clean(os.ExpandEnv(p))
}

// Options maps the configuration onto the downloader options
func (c *Config) Options() []download.Option {
	q, _ := selector.ParseQuality(c.Quality)
	tracks := make([]mpdparser.ContentType, 0, len(c.Tracks))
	for _, t := range c.Tracks {
		tracks = append(tracks, mpdparser.ContentType(t))
	}
	opts := []download.Option{
		download.WithQuality(q),
		download.WithRepresentationID(c.Representation),
		download.WithLanguage(c.Language),
		download.WithStrictLanguage(c.StrictLanguage),
		download.WithRoles(c.Roles...),
		download.WithCodecs(c.Codecs...),
		download.WithMaxBandwidth(c.MaxBandwidth),
		download.WithMinBandwidth(c.MinBandwidth),
		download.WithTracks(tracks...),
		download.WithMaxErrorCount(c.MaxErrorCount),
		download.WithRetryLimit(c.RetryLimit),
		download.WithMaxConcurrency(c.MaxConcurrency),
		download.WithRecordMetadata(c.RecordMetadata),
		download.WithNFO(c.WriteNFO),
		download.WithKeepTracks(c.KeepTracks),
		download.WithOutput(c.Output),
		download.WithSaveManifest(c.SaveManifest),
		download.WithMaxDuration(time.Duration(c.MaxDuration)),
		download.WithRefreshInterval(time.Duration(c.RefreshInterval)),
	}
	if c.RequestTimeout > 0 {
		opts = append(opts, download.WithRequestTimeout(time.Duration(c.RequestTimeout)))
	}
	return opts
}
