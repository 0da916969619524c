package download

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	dashhttp "github.com/simulot/dashdl/net/http"
	"github.com/simulot/dashdl/parsers/mpdparser"
)

// Fetcher gets the body of an URL, or the given byte range of it
type Fetcher interface {
	Fetch(ctx context.Context, url string, r *mpdparser.ByteRange) ([]byte, error)
}

// retryPolicy tells how a request is retried
type retryPolicy struct {
	limit      int           // retries after the first attempt
	timeout    time.Duration // per attempt, 0 for none
	initial    time.Duration
	maxBackoff time.Duration
}

func (p retryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.MaxInterval = p.maxBackoff
	return b
}

// isPermanent tells if retrying the request is useless: client errors other than
// timeouts and rate limiting.
func isPermanent(err error) bool {
	var se *dashhttp.StatusError
	if errors.As(err, &se) {
		return !se.Temporary()
	}
	return false
}

// fetch gets the URL with retries. The error is the context error when ctx is done,
// a *TransportError otherwise.
func (s *session) fetch(ctx context.Context, url string, r *mpdparser.ByteRange) ([]byte, error) {
	attempts := 0
	op := func() ([]byte, error) {
		attempts++
		actx, cancel := ctx, context.CancelFunc(func() {})
		if s.retry.timeout > 0 {
			actx, cancel = context.WithTimeout(ctx, s.retry.timeout)
		}
		defer cancel()

		b, err := s.fetcher.Fetch(actx, url, r)
		if err == nil {
			return b, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if isPermanent(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	b, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(s.retry.backOff()),
		backoff.WithMaxTries(uint(s.retry.limit+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.metrics.Retries.Inc()
			s.log.Debug().Err(err).Printf("Retry %s in %s", url, next.Round(time.Millisecond))
		}),
	)
	if err == nil {
		return b, nil
	}
	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}
	var pe *backoff.PermanentError
	if errors.As(err, &pe) {
		err = pe.Unwrap()
	}
	return nil, &TransportError{URL: url, Attempts: attempts, Err: err}
}

var _ Fetcher = (*dashhttp.Client)(nil)
