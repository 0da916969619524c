package download

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dashhttp "github.com/simulot/dashdl/net/http"
	"github.com/simulot/dashdl/parsers/mpdparser"
)

func testSession(o Fetcher, opts ...Option) *session {
	opts = append([]Option{
		WithFetcher(o),
		WithMuxer(&fakeMuxer{}),
		WithBackoff(time.Millisecond, 5*time.Millisecond),
	}, opts...)
	return New(opts...).newSession()
}

func TestFetchRetry(t *testing.T) {
	o := newOrigin()
	o.failPath(http.StatusServiceUnavailable, "/seg.m4s")
	o.failTimes["/seg.m4s"] = 2
	s := testSession(o)

	b, err := s.fetch(context.Background(), "https://origin.test/seg.m4s", nil)
	require.NoError(t, err)
	assert.Equal(t, "/seg.m4s;", string(b))
	assert.Equal(t, 3, o.count("/seg.m4s"))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.Retries))
}

func TestFetchRetryLimit(t *testing.T) {
	o := newOrigin()
	o.failPath(http.StatusBadGateway, "/seg.m4s")
	s := testSession(o, WithRetryLimit(2))

	_, err := s.fetch(context.Background(), "https://origin.test/seg.m4s", nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 3, te.Attempts)
	assert.Equal(t, 3, o.count("/seg.m4s"))
	var se *dashhttp.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

func TestFetchPermanent(t *testing.T) {
	o := newOrigin()
	o.failPath(http.StatusNotFound, "/seg.m4s")
	s := testSession(o, WithRetryLimit(5))

	_, err := s.fetch(context.Background(), "https://origin.test/seg.m4s", nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, te.Attempts)
	assert.Equal(t, 1, o.count("/seg.m4s"))
}

// slowFetcher answers after a delay, or fails when its context ends before
type slowFetcher struct {
	delay time.Duration
	calls int
}

func (f *slowFetcher) Fetch(ctx context.Context, u string, r *mpdparser.ByteRange) ([]byte, error) {
	f.calls++
	select {
	case <-time.After(f.delay):
		return []byte("late"), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestFetchAttemptTimeout(t *testing.T) {
	f := &slowFetcher{delay: time.Second}
	s := testSession(f, WithRequestTimeout(10*time.Millisecond), WithRetryLimit(1))

	_, err := s.fetch(context.Background(), "https://origin.test/seg.m4s", nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, f.calls)
}

func TestFetchCancelled(t *testing.T) {
	f := &slowFetcher{delay: time.Second}
	s := testSession(f)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := s.fetch(ctx, "https://origin.test/seg.m4s", nil)
	assert.True(t, errors.Is(err, context.Canceled))
	var te *TransportError
	assert.False(t, errors.As(err, &te))
}
