package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestApp() (*app, *bytes.Buffer, *bytes.Buffer) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	return &app{stdout: stdout, stderr: stderr}, stdout, stderr
}

func TestParseArgsDefaults(t *testing.T) {
	a, _, _ := newTestApp()
	require.NoError(t, a.ParseArgs([]string{"https://example.com/manifest.mpd"}))
	c := a.Config
	assert.Equal(t, "https://example.com/manifest.mpd", c.Manifest)
	assert.Equal(t, "best", c.Quality)
	assert.Equal(t, []string{"video", "audio"}, c.Tracks)
	assert.Equal(t, 10, c.MaxErrorCount)
	assert.Equal(t, 3, c.RetryLimit)
	assert.Equal(t, 4, c.MaxConcurrency)
	assert.Equal(t, textDuration(30*time.Second), c.RequestTimeout)
	assert.True(t, c.needsFFMpeg())
}

func TestParseArgsConfigFile(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "dashdl.yaml")
	require.NoError(t, os.WriteFile(conf, []byte(`
quality: worst
language: fr
tracks: [audio]
max_error_count: 2
max_duration: 1m30s
request_timeout: 5s
headers:
  Referer: https://example.com/
output: ${DASHDL_TEST_DIR}/videos
`), 0o644))
	t.Setenv("DASHDL_TEST_DIR", dir)

	a, _, _ := newTestApp()
	require.NoError(t, a.ParseArgs([]string{"--config", conf, "-q", "best", "--max-errors=7", "manifest.mpd"}))
	c := a.Config
	assert.Equal(t, "best", c.Quality, "the command line wins")
	assert.Equal(t, 7, c.MaxErrorCount, "the command line wins")
	assert.Equal(t, "fr", c.Language)
	assert.Equal(t, []string{"audio"}, c.Tracks)
	assert.Equal(t, textDuration(90*time.Second), c.MaxDuration)
	assert.Equal(t, textDuration(5*time.Second), c.RequestTimeout)
	assert.Equal(t, map[string]string{"Referer": "https://example.com/"}, c.Headers)
	assert.Equal(t, filepath.Join(dir, "videos"), c.Output)
	assert.Equal(t, 4, c.MaxConcurrency, "defaults are kept")
	assert.False(t, c.needsFFMpeg())

	a, _, _ = newTestApp()
	require.NoError(t, a.ParseArgs([]string{"-c", conf, "-t", "video,text", "--max-duration", "10s", "manifest.mpd"}))
	assert.Equal(t, []string{"video", "text"}, a.Config.Tracks)
	assert.Equal(t, textDuration(10*time.Second), a.Config.MaxDuration)
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no manifest", nil, "missing manifest"},
		{"two manifests", []string{"a.mpd", "b.mpd"}, "only one manifest"},
		{"quality", []string{"-q", "medium", "a.mpd"}, "unknown quality"},
		{"track", []string{"-t", "video,images", "a.mpd"}, "unknown track kind"},
		{"concurrency", []string{"-m", "0", "a.mpd"}, "max-concurrency"},
		{"bandwidth", []string{"--min-bandwidth", "2000", "--max-bandwidth", "1000", "a.mpd"}, "min-bandwidth"},
		{"log level", []string{"-l", "verbose", "a.mpd"}, "invalid log level"},
		{"duration", []string{"--max-duration", "long", "a.mpd"}, "invalid"},
		{"unknown flag", []string{"--colour", "a.mpd"}, "unknown flag"},
		{"missing config", []string{"-c", "/nonexistent/dashdl.yaml", "a.mpd"}, "can't open configuration file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _, _ := newTestApp()
			err := a.ParseArgs(tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfigYAML(t *testing.T) {
	c := defaultConfig()
	c.MaxDuration = textDuration(2 * time.Hour)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, c.WriteConfig(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "max_duration: 2h0m0s")

	var got Config
	require.NoError(t, yaml.Unmarshal(b, &got))
	assert.Equal(t, *c, got)
}

const testManifest = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT6S" minBufferTime="PT2S">
  <ProgramInformation><Title>Command line</Title></ProgramInformation>
  <Period>
    <AdaptationSet contentType="video" mimeType="video/mp4">
      <SegmentTemplate timescale="1" duration="2" initialization="init.mp4" media="$Number$.m4s"/>
      <Representation id="v" bandwidth="100000"/>
    </AdaptationSet>
  </Period>
</MPD>
`

func TestRun(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/manifest.mpd" {
			w.Write([]byte(testManifest))
			return
		}
		w.Write([]byte(r.URL.Path + ";"))
	}))
	defer ts.Close()

	dir := t.TempDir()
	metrics := filepath.Join(dir, "metrics.prom")
	a, stdout, _ := newTestApp()
	require.NoError(t, a.ParseArgs([]string{
		"--headless", "-t", "video", "-o", dir, "--metrics", metrics,
		"--log", filepath.Join(dir, "dashdl.log"), "-l", "debug",
		ts.URL + "/manifest.mpd",
	}))
	require.NoError(t, a.Run(context.Background()))

	out := filepath.Join(dir, "Command line.mp4")
	assert.Equal(t, out, strings.TrimSpace(stdout.String()))
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "/init.mp4;/1.m4s;/2.m4s;/3.m4s;", string(b))

	m, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(m), `dashdl_segments_fetched_total{track="video"} 3`)
	assert.Contains(t, string(m), `dashdl_sessions_total{state="done"} 1`)

	l, err := os.ReadFile(filepath.Join(dir, "dashdl.log"))
	require.NoError(t, err)
	assert.Contains(t, string(l), "downloaded")
}

func TestRunFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	dir := t.TempDir()
	a, stdout, _ := newTestApp()
	require.NoError(t, a.ParseArgs([]string{"--headless", "-t", "video", "-o", dir, "--retries", "0", ts.URL + "/manifest.mpd"}))
	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Empty(t, stdout.String())
}
