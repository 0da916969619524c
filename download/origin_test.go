package download

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/simulot/dashdl/metadata"
	dashhttp "github.com/simulot/dashdl/net/http"
	"github.com/simulot/dashdl/parsers/mpdparser"
)

const originURL = "https://origin.test/manifest.mpd"

// origin serves manifests and segments, in memory or over HTTP.
// A segment body is its path followed by a semicolon.
type origin struct {
	mu        sync.Mutex
	manifests []string // served in turn, the last one is repeated
	served    int
	requests  map[string]int
	fail      map[string]int // status returned for the path
	failTimes map[string]int // number of failing responses, all when absent
	delay     func() time.Duration
	block     chan struct{}     // segments wait for it when not nil
	bodies    map[string]string // bodies replacing the default one
}

func newOrigin(manifests ...string) *origin {
	return &origin{
		manifests: manifests,
		requests:  map[string]int{},
		fail:      map[string]int{},
		failTimes: map[string]int{},
		bodies:    map[string]string{},
	}
}

func (o *origin) failPath(status int, paths ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, p := range paths {
		o.fail[p] = status
	}
}

func (o *origin) count(p string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.requests[p]
}

func (o *origin) segmentRequests() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for p, c := range o.requests {
		if p != "/manifest.mpd" {
			n += c
		}
	}
	return n
}

func (o *origin) paths() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var l []string
	for p := range o.requests {
		l = append(l, p)
	}
	sort.Strings(l)
	return l
}

func (o *origin) get(ctx context.Context, p string) ([]byte, int) {
	o.mu.Lock()
	o.requests[p]++
	if p == "/manifest.mpd" {
		m := o.manifests[min(o.served, len(o.manifests)-1)]
		o.served++
		o.mu.Unlock()
		return []byte(m), http.StatusOK
	}
	status, failing := o.fail[p]
	if n, limited := o.failTimes[p]; failing && limited {
		if n <= 0 {
			failing = false
		} else {
			o.failTimes[p] = n - 1
		}
	}
	delay, block := o.delay, o.block
	body, ok := o.bodies[p]
	if !ok {
		body = p + ";"
	}
	o.mu.Unlock()

	if failing {
		return nil, status
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, 0
		}
	}
	if delay != nil {
		time.Sleep(delay())
	}
	return []byte(body), http.StatusOK
}

// Fetch implements Fetcher
func (o *origin) Fetch(ctx context.Context, u string, r *mpdparser.ByteRange) ([]byte, error) {
	pu, err := url.Parse(u)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, status := o.get(ctx, pu.Path)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &dashhttp.StatusError{URL: u, StatusCode: status, Status: http.StatusText(status)}
	}
	return b, nil
}

func (o *origin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, status := o.get(r.Context(), r.URL.Path)
	if status != http.StatusOK {
		if status == 0 {
			status = http.StatusServiceUnavailable
		}
		w.WriteHeader(status)
		return
	}
	w.Write(b)
}

// fakeMuxer records the tracks and writes their concatenation
type fakeMuxer struct {
	mu       sync.Mutex
	calls    int
	tracks   []TrackFile
	contents map[mpdparser.ContentType]string
	info     *metadata.MediaInfo
	err      error
}

func (f *fakeMuxer) Mux(ctx context.Context, tracks []TrackFile, out string, info *metadata.MediaInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.tracks = tracks
	f.info = info
	f.contents = map[mpdparser.ContentType]string{}
	var all []byte
	for _, t := range tracks {
		b, err := os.ReadFile(t.Path)
		if err != nil {
			return err
		}
		f.contents[t.ContentType] = string(b)
		all = append(all, b...)
	}
	return os.WriteFile(out, all, 0o644)
}
