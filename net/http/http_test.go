package http

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/simulot/dashdl/parsers/mpdparser"
)

func makeJar() *cookiejar.Jar {
	c, err := cookiejar.New(nil)
	if err != nil {
		panic(err)
	}
	u, err := url.Parse("http://root.com")
	if err != nil {
		panic(err)
	}
	c.SetCookies(u, []*http.Cookie{{Name: "Flavor", Value: "Chocolate Chip"}})
	return c
}

func TestNewClient(t *testing.T) {
	cj := makeJar()

	tests := []struct {
		name      string
		conf      []func(c *Client)
		userAgent string
		jar       *cookiejar.Jar
	}{
		{"default", nil, UserAgent, nil},
		{"with agent", []func(c *Client){SetUserAgent("Given Agent")}, "Given Agent", nil},
		{"with cookiejar", []func(c *Client){SetCookieJar(cj)}, UserAgent, makeJar()},
		{"with cookiejar and user agent", []func(c *Client){SetCookieJar(cj), SetUserAgent("Given Agent")}, "Given Agent", makeJar()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(tt.conf...)
			if client.userAgent != tt.userAgent {
				t.Errorf("Want userAgent to be %q, but got %q", tt.userAgent, client.userAgent)
			}
			if (client.Jar == nil) != (tt.jar == nil) {
				t.Errorf("Want cookie jar to be %v, but got %v", tt.jar, client.Jar)
				return
			}
			if client.Jar == nil {
				return
			}
			u, _ := url.Parse("http://root.com")
			if !reflect.DeepEqual(client.Jar.Cookies(u), tt.jar.Cookies(u)) {
				t.Errorf("Want cookie jar %v, but got %v", tt.jar, client.Jar)
			}
		})
	}
}

type tstHandler struct {
	body   string
	status int
	agent  string
	header http.Header
}

func newTH(l int, status int) *tstHandler {
	s := &strings.Builder{}
	for i := 0; i < l; i++ {
		s.WriteByte(byte(i%26) + 'A')
	}
	return &tstHandler{body: s.String(), status: status}
}

func (th *tstHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	th.agent = r.Header.Get("User-Agent")
	th.header = r.Header.Clone()
	if th.status != http.StatusOK {
		w.WriteHeader(th.status)
		return
	}
	http.ServeContent(w, r, "body", time.Time{}, strings.NewReader(th.body))
}

func TestGet(t *testing.T) {
	th := newTH(4*1024*1024, 200)
	ts := httptest.NewServer(th)
	defer ts.Close()

	c := NewClient(SetHeader("Referer", "https://example.com/"))
	res, err := c.Get(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Can't get: %v", err)
	}
	defer res.Close()

	b := &strings.Builder{}
	n, err := io.Copy(b, res)
	if err != nil {
		t.Fatalf("Can't read response: %v", err)
	}
	if n != int64(len(th.body)) {
		t.Errorf("Expected receive %d bytes, but got %d", len(th.body), n)
	}
	if b.String() != th.body {
		t.Errorf("Received content differs from expected")
	}
	if th.agent != UserAgent {
		t.Errorf("Expected user agent %q, got %q", UserAgent, th.agent)
	}
	if th.header.Get("Referer") != "https://example.com/" {
		t.Errorf("Expected the Referer header")
	}
}

func TestFetch(t *testing.T) {
	th := newTH(1000, 200)
	ts := httptest.NewServer(th)
	defer ts.Close()
	c := NewClient()

	last := uint64(19)
	tests := []struct {
		name string
		r    *mpdparser.ByteRange
		want string
	}{
		{"whole", nil, th.body},
		{"range", &mpdparser.ByteRange{First: 10, Last: &last}, th.body[10:20]},
		{"open range", &mpdparser.ByteRange{First: 990}, th.body[990:]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := c.Fetch(context.Background(), ts.URL, tt.r)
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if string(b) != tt.want {
				t.Errorf("Fetch() = %q, want %q", b, tt.want)
			}
			if tt.r != nil && th.header.Get("Range") != "bytes="+tt.r.String() {
				t.Errorf("Expected Range header, got %q", th.header.Get("Range"))
			}
		})
	}
}

func TestReadRange(t *testing.T) {
	const body = "0123456789"
	u := func(v uint64) *uint64 { return &v }
	tests := []struct {
		name    string
		r       mpdparser.ByteRange
		want    string
		wantErr bool
	}{
		{"inner", mpdparser.ByteRange{First: 2, Last: u(5)}, "2345", false},
		{"open", mpdparser.ByteRange{First: 7}, "789", false},
		{"whole width", mpdparser.ByteRange{First: 0, Last: u(math.MaxUint64)}, body, false},
		{"beyond the body", mpdparser.ByteRange{First: 5, Last: u(1 << 62)}, "", true},
		{"reversed", mpdparser.ByteRange{First: 5, Last: u(2)}, "", true},
		{"first too far", mpdparser.ByteRange{First: 20}, "", true},
		{"first out of range", mpdparser.ByteRange{First: math.MaxUint64}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := readRange(strings.NewReader(body), &tt.r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("readRange() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && string(b) != tt.want {
				t.Errorf("readRange() = %q, want %q", b, tt.want)
			}
		})
	}
}

func TestFetchStatus(t *testing.T) {
	tests := []struct {
		status    int
		temporary bool
	}{
		{404, false},
		{403, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			ts := httptest.NewServer(newTH(0, tt.status))
			defer ts.Close()

			_, err := NewClient().Fetch(context.Background(), ts.URL, nil)
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("Expecting a StatusError, got %v", err)
			}
			if se.StatusCode != tt.status {
				t.Errorf("Expecting status %d, got %d", tt.status, se.StatusCode)
			}
			if se.Temporary() != tt.temporary {
				t.Errorf("Expecting Temporary() to be %v", tt.temporary)
			}
		})
	}
}

func TestFetchCancelled(t *testing.T) {
	ts := httptest.NewServer(newTH(10, 200))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient().Fetch(ctx, ts.URL, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expecting context.Canceled, got %v", err)
	}
}

func TestRateLimit(t *testing.T) {
	th := newTH(3000, 200)
	ts := httptest.NewServer(th)
	defer ts.Close()

	// 1000 bytes/s with a burst of 1000: the 3000 bytes need 2 more seconds
	c := NewClient(SetRateLimit(1000))
	start := time.Now()
	b, err := c.Fetch(context.Background(), ts.URL, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(b) != 3000 {
		t.Errorf("Expecting 3000 bytes, got %d", len(b))
	}
	if d := time.Since(start); d < 1500*time.Millisecond {
		t.Errorf("The limiter didn't slow the transfer down: %s", d)
	}
}

func TestFileURL(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "segment.m4s")
	if err := os.WriteFile(p, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	u, err := ManifestURL(p)
	if err != nil {
		t.Fatal(err)
	}
	c := NewClient()

	b, err := c.Fetch(context.Background(), u.String(), nil)
	if err != nil || string(b) != "0123456789" {
		t.Errorf("Fetch() = %q, %v", b, err)
	}

	last := uint64(5)
	b, err = c.Fetch(context.Background(), u.String(), &mpdparser.ByteRange{First: 2, Last: &last})
	if err != nil || string(b) != "2345" {
		t.Errorf("Fetch() with range = %q, %v", b, err)
	}

	_, err = c.Fetch(context.Background(), u.String()+".missing", nil)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Errorf("Expecting a 404 StatusError, got %v", err)
	}
}
