package download

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/simulot/dashdl/parsers/mpdparser"
	"github.com/simulot/dashdl/selector"
	"github.com/simulot/dashdl/workers"
)

// defaultLiveDelay is how far behind the live edge a recording starts when the
// manifest doesn't suggest a delay
const defaultLiveDelay = 30 * time.Second

// fetchAll drives all tracks concurrently. For live manifests, the manifest is
// refreshed until all tracks are done.
func (s *session) fetchAll(ctx context.Context) error {
	refreshDone := make(chan struct{})
	rctx, stopRefresh := context.WithCancel(ctx)
	if s.snapshot().mpd.IsDynamic() {
		go func() {
			defer close(refreshDone)
			s.refreshLoop(rctx)
		}()
	} else {
		close(refreshDone)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range s.tracks {
		t := t
		g.Go(func() error {
			return s.drive(gctx, t)
		})
	}
	err := g.Wait()
	stopRefresh()
	<-refreshDone
	return err
}

// drive fetches the segments of the track, period after period, refresh after refresh.
// All jobs of the track are finished when it returns.
func (s *session) drive(ctx context.Context, t *track) (err error) {
	log := s.log.With("track", string(t.kind))
	defer func() {
		if err != nil {
			s.cancel(err)
		}
		t.jobs.Wait()
		if err == nil {
			if ctx.Err() != nil {
				err = context.Cause(ctx)
				return
			}
			if !t.writer.complete(t.next) {
				err = fmt.Errorf("track %s is incomplete", t.kind)
				return
			}
			t.progress.finish()
		}
	}()

	for {
		if t.res == nil {
			done, err := s.prepare(ctx, t)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
		err := s.consume(ctx, t)
		t.res = nil
		if t.maxReached {
			log.Info().Printf("Maximum duration reached")
			return nil
		}
		var ae *mpdparser.AvailabilityError
		switch {
		case errors.As(err, &ae):
			if err := s.waitAvailability(ctx, t, ae.Next); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			// The period is complete
			log.Debug().Printf("Period #%d done", t.period)
			t.period++
			t.cursor = 0
			t.selection = nil
		}
	}
}

// prepare selects and resolves the representation of the track for the current
// manifest. done is true when the presentation is complete.
func (s *session) prepare(ctx context.Context, t *track) (done bool, err error) {
	for {
		snap := s.snapshot()
		m := snap.mpd
		if t.period >= len(m.Periods) {
			if !m.IsDynamic() || presentationEnded(m) {
				return true, nil
			}
			// Wait for a new period
			select {
			case <-snap.next:
				continue
			case <-ctx.Done():
				return false, context.Cause(ctx)
			}
		}
		if t.selection == nil || t.mpd != m {
			sel, err := selector.Select(m, t.period, t.kind, s.d.policy, snap.url)
			if err != nil {
				var nm *selector.NoMatchingStreamError
				if errors.As(err, &nm) && nm.Language == "" {
					s.log.Info().Printf("Period #%d has no %s", t.period, t.kind)
					t.period++
					t.cursor = 0
					t.selection = nil
					continue
				}
				return false, err
			}
			alt, err := t.avoid(sel)
			if err != nil {
				return false, err
			}
			if alt != nil {
				sel = alt
			}
			t.selection, t.mpd = sel, m
		}
		return false, s.resolve(t)
	}
}

// presentationEnded is true when a dynamic manifest declares the end of the presentation
func presentationEnded(m *mpdparser.MPD) bool {
	if m.MediaPresentationDuration != nil {
		return true
	}
	_, ok := m.PeriodDuration(len(m.Periods) - 1)
	return ok
}

// resolve computes the segments of the selected representation from the track cursor.
// A representation that can't be resolved is replaced by the next candidate, and
// isn't selected again in the period.
func (s *session) resolve(t *track) error {
	for {
		res, err := mpdparser.Resolve(t.selection.Effective, s.window(t), s.clock())
		if err == nil {
			t.res = res
			return nil
		}
		var re *mpdparser.ResolutionError
		if !errors.As(err, &re) {
			return err
		}
		t.failed[representationKey(t.selection)] = struct{}{}
		fb, ferr := t.avoid(t.selection)
		if ferr != nil || fb == nil {
			return err
		}
		s.log.Error().Err(err).Printf("Falling back to %s representation %q", t.kind, fb.Effective.ID)
		t.selection = fb
	}
}

// avoid skips the representations of the selection that failed to resolve.
// It returns nil when no candidate is left.
func (t *track) avoid(sel *selector.Selection) (*selector.Selection, error) {
	for sel != nil {
		if _, failed := t.failed[representationKey(sel)]; !failed {
			return sel, nil
		}
		var err error
		if sel, err = sel.Fallback(); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// representationKey identifies a representation of a period
func representationKey(sel *selector.Selection) string {
	p := strconv.Itoa(sel.PeriodIndex)
	if sel.Effective.Period != nil && sel.Effective.Period.ID != nil {
		p = *sel.Effective.Period.ID
	}
	return p + "/" + sel.Representation.ID
}

// window starts at the track cursor. The first window of a live recording starts
// a bit before the live edge.
func (s *session) window(t *track) mpdparser.Window {
	e := t.selection.Effective
	if t.started || !e.Dynamic {
		return mpdparser.Window{Start: t.cursor}
	}
	m := e.MPD
	delay := defaultLiveDelay
	switch {
	case m.SuggestedPresentationDelay != nil:
		delay = m.SuggestedPresentationDelay.Duration()
	case m.MaxSegmentDuration != nil:
		delay = 3 * m.MaxSegmentDuration.Duration()
	}
	start := s.clock().Sub(e.AvailabilityStart.Add(e.PeriodStart)) - delay
	if start < 0 {
		start = 0
	}
	return mpdparser.Window{Start: start}
}

// consume submits the new segments of the resolution. It returns the error
// that ended the segment sequence.
func (s *session) consume(ctx context.Context, t *track) error {
	t.started = true
	res := t.res
	if res.Init != nil {
		key := res.Init.URL
		if res.Init.Range != nil {
			key += "#" + res.Init.Range.String()
		}
		if key != t.lastInit {
			b, err := s.fetch(ctx, res.Init.URL, res.Init.Range)
			if err != nil {
				return fmt.Errorf("can't get initialization segment: %w", err)
			}
			s.metrics.Bytes.WithLabelValues(string(t.kind)).Add(float64(len(b)))
			idx := t.next
			t.next++
			if err = t.writer.put(idx, b); err != nil {
				return err
			}
			t.progress.add(int64(len(b)), 0)
			t.lastInit = key
		}
	}

	period := periodKey(t)
	for {
		seg, ok := res.Segments.Next()
		if !ok {
			break
		}
		key := segmentKey{period: period, start: seg.Start}
		if _, seen := t.seen[key]; seen {
			continue
		}
		t.seen[key] = struct{}{}
		if end := seg.Start + seg.Duration; end > t.cursor {
			t.cursor = end
		}
		if err := s.submit(ctx, t, seg); err != nil {
			return err
		}
		t.recorded += seg.Duration
		if s.d.maxDuration > 0 && t.recorded >= s.d.maxDuration {
			t.maxReached = true
			return nil
		}
	}
	return res.Segments.Err()
}

func periodKey(t *track) string {
	if p := t.selection.Effective.Period; p != nil && p.ID != nil {
		return *p.ID
	}
	return strconv.Itoa(t.period)
}

// submit hands the segment to the worker pool
func (s *session) submit(ctx context.Context, t *track, seg mpdparser.Segment) error {
	idx := t.next
	t.next++
	t.jobs.Add(1)
	name := fmt.Sprintf("%s segment %d", t.kind, seg.Number)
	err := s.pool.Submit(ctx, workers.NewRunAction(name, func(ctx context.Context) error {
		defer t.jobs.Done()
		return s.fetchSegment(ctx, t, idx, seg)
	}))
	if err != nil {
		t.jobs.Done()
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return err
	}
	return nil
}

// fetchSegment gets one media segment and gives it to the track writer.
// A segment failing after all retries is skipped, within the error budget.
func (s *session) fetchSegment(ctx context.Context, t *track, idx int, seg mpdparser.Segment) error {
	kind := string(t.kind)
	b, err := s.fetch(ctx, seg.URL, seg.Range)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		s.metrics.Failures.WithLabelValues(kind).Inc()
		s.log.Error().Err(err).Printf("Skip %s segment %d", kind, seg.Number)
		if berr := s.budget.fail(err); berr != nil {
			s.cancel(berr)
			return berr
		}
		b = nil
	} else {
		s.metrics.Segments.WithLabelValues(kind).Inc()
		s.metrics.Bytes.WithLabelValues(kind).Add(float64(len(b)))
	}
	if err := t.writer.put(idx, b); err != nil {
		s.cancel(err)
		return err
	}
	t.progress.add(int64(len(b)), int64(seg.Duration))
	return nil
}

// waitAvailability waits until the next segment is published, or the manifest is refreshed
func (s *session) waitAvailability(ctx context.Context, t *track, next time.Time) error {
	snap := s.snapshot()
	if snap.mpd != t.mpd || !snap.mpd.IsDynamic() {
		return nil
	}
	var timer <-chan time.Time
	if d := next.Sub(s.clock()); d > 0 {
		tm := time.NewTimer(d)
		defer tm.Stop()
		timer = tm.C
	}
	select {
	case <-timer:
	case <-snap.next:
	case <-ctx.Done():
		return context.Cause(ctx)
	}
	return nil
}
