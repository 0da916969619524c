package http

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/simulot/dashdl/parsers/mpdparser"
)

// fileTransport serves file:// URLs from the local file system, and delegates
// other schemes to the next transport.
type fileTransport struct {
	next http.RoundTripper
}

func withFiles(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if ft, ok := next.(*fileTransport); ok {
		return ft
	}
	return &fileTransport{next: next}
}

func (ft *fileTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.URL.Scheme != "file" {
		return ft.next.RoundTrip(r)
	}

	f, err := os.Open(r.URL.Path)
	if os.IsNotExist(err) {
		return response(r, http.StatusNotFound, http.NoBody, 0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("file transport: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("file transport: %w", err)
	}

	h := r.Header.Get("Range")
	if h == "" {
		return response(r, http.StatusOK, f, fi.Size()), nil
	}
	br, err := mpdparser.ParseByteRange(strings.TrimPrefix(h, "bytes="))
	if err != nil || int64(br.First) >= fi.Size() {
		f.Close()
		return response(r, http.StatusRequestedRangeNotSatisfiable, http.NoBody, 0), nil
	}
	last := fi.Size() - 1
	if br.Last != nil && int64(*br.Last) < last {
		last = int64(*br.Last)
	}
	if _, err := f.Seek(int64(br.First), io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("file transport: %w", err)
	}
	size := last - int64(br.First) + 1
	resp := response(r, http.StatusPartialContent, struct {
		io.Reader
		io.Closer
	}{io.LimitReader(f, size), f}, size)
	resp.Header.Set("Content-Range", "bytes "+strconv.FormatUint(br.First, 10)+"-"+strconv.FormatInt(last, 10)+"/"+strconv.FormatInt(fi.Size(), 10))
	return resp, nil
}

func response(r *http.Request, status int, body io.ReadCloser, size int64) *http.Response {
	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.0",
		ProtoMajor:    1,
		ProtoMinor:    0,
		Body:          body,
		ContentLength: size,
		Close:         true,
		Request:       r,
		Header:        make(http.Header),
	}
}
