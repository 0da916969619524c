// The http package provides the HTTP client used to get manifests and media segments.
// It handles a common cookie jar, the user agent string, and an optional bandwidth limit.

package http

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/time/rate"

	"github.com/simulot/dashdl/mylog"
	"github.com/simulot/dashdl/parsers/mpdparser"
)

// DefaultClient is the client
var DefaultClient = NewClient()

const UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Ubuntu Chromium/66.0.3359.181 Chrome/66.0.3359.181 Safari/537.36"

// Client is the classic http client with a cookie jar and a given user agent string
type Client struct {
	*http.Client
	userAgent string
	Jar       *cookiejar.Jar
	header    http.Header
	limiter   *rate.Limiter
	log       *mylog.MyLog
}

// SetCookieJar is configuration function to provide a cookie jar to the client
func SetCookieJar(cj *cookiejar.Jar) func(c *Client) {
	return func(c *Client) {
		c.Jar = cj
		c.Client.Jar = cj
	}
}

// SetUserAgent is configuration function to give a user agent string to the client
func SetUserAgent(ua string) func(c *Client) {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// SetHeader adds a header sent with each request, like Referer or Authorization
func SetHeader(key, value string) func(c *Client) {
	return func(c *Client) {
		c.header.Add(key, value)
	}
}

// SetTimeout limits the duration of each request, body included
func SetTimeout(d time.Duration) func(c *Client) {
	return func(c *Client) {
		c.Client.Timeout = d
	}
}

// SetRateLimit limits the download bandwidth of the client, in bytes per second.
// All requests share the same budget.
func SetRateLimit(bytesPerSecond int) func(c *Client) {
	return func(c *Client) {
		if bytesPerSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(bytesPerSecond), bytesPerSecond)
	}
}

// SetTransport replaces the transport used for http and https URLs
func SetTransport(rt http.RoundTripper) func(c *Client) {
	return func(c *Client) {
		c.Client.Transport = withFiles(rt)
	}
}

// SetLogger gives the logger for request traces
func SetLogger(l *mylog.MyLog) func(c *Client) {
	return func(c *Client) {
		c.log = l
	}
}

// NewClient create an HTTP Client and configure it with a set of config functions.
// Besides http and https, the client reads file:// URLs from the local file system.
func NewClient(conf ...func(c *Client)) *Client {
	c := &Client{
		Client:    &http.Client{Transport: withFiles(http.DefaultTransport)},
		userAgent: UserAgent,
		header:    http.Header{},
	}

	for _, f := range conf {
		f(c)
	}
	return c
}

func (c *Client) request(ctx context.Context, u string, r *mpdparser.ByteRange) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("can't get url: %w", err)
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	req.Header.Set("User-Agent", c.userAgent)
	if r != nil {
		req.Header.Set("Range", "bytes="+r.String())
	}

	c.log.Debug().Printf("[HTTP] GET %s", u)
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("can't get: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, &StatusError{URL: u, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return resp, nil
}

// Get establish a GET request and return a reader with the response body
func (c *Client) Get(ctx context.Context, u string) (io.ReadCloser, error) {
	resp, err := c.request(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	return c.limit(ctx, resp.Body), nil
}

// Fetch gets the whole body of the URL, or the given byte range of it
func (c *Client) Fetch(ctx context.Context, u string, r *mpdparser.ByteRange) ([]byte, error) {
	resp, err := c.request(ctx, u, r)
	if err != nil {
		return nil, err
	}
	body := c.limit(ctx, resp.Body)
	defer body.Close()

	if r != nil && resp.StatusCode == http.StatusOK {
		// The server ignored the range
		return readRange(body, r)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("can't read %s: %w", u, err)
	}
	return b, nil
}

func readRange(rd io.Reader, r *mpdparser.ByteRange) ([]byte, error) {
	if r.First > math.MaxInt64 {
		return nil, fmt.Errorf("invalid range %s", r)
	}
	if _, err := io.CopyN(io.Discard, rd, int64(r.First)); err != nil {
		return nil, fmt.Errorf("can't reach byte %d: %w", r.First, err)
	}
	if r.Last == nil {
		return io.ReadAll(rd)
	}
	if *r.Last < r.First {
		return nil, fmt.Errorf("invalid range %s", r)
	}
	n := *r.Last - r.First + 1
	if n == 0 || n > math.MaxInt64 {
		// wider than any body
		return io.ReadAll(rd)
	}
	// the buffer grows with the bytes actually received
	b, err := io.ReadAll(io.LimitReader(rd, int64(n)))
	if err != nil {
		return nil, fmt.Errorf("can't read range %s: %w", r, err)
	}
	if uint64(len(b)) != n {
		return nil, fmt.Errorf("can't read range %s: %w", r, io.ErrUnexpectedEOF)
	}
	return b, nil
}

func (c *Client) limit(ctx context.Context, rc io.ReadCloser) io.ReadCloser {
	if c.limiter == nil {
		return rc
	}
	return &limitedReader{ctx: ctx, rc: rc, limiter: c.limiter}
}

// limitedReader waits for the limiter before giving read bytes
type limitedReader struct {
	ctx     context.Context
	rc      io.ReadCloser
	limiter *rate.Limiter
}

func (r *limitedReader) Read(p []byte) (int, error) {
	if b := r.limiter.Burst(); len(p) > b {
		p = p[:b]
	}
	n, err := r.rc.Read(p)
	if n > 0 {
		if werr := r.limiter.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (r *limitedReader) Close() error {
	return r.rc.Close()
}
