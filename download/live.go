package download

import (
	"context"
	"net/url"
	"time"

	"github.com/simulot/dashdl/parsers/mpdparser"
)

// minRefreshInterval bounds the refresh rate of manifests with a tiny minimumUpdatePeriod
const minRefreshInterval = 100 * time.Millisecond

// refreshInterval is the configured interval, or the minimumUpdatePeriod of the manifest
func (s *session) refreshInterval(m *mpdparser.MPD) time.Duration {
	d := s.d.refreshInterval
	if d <= 0 && m.MinimumUpdatePeriod != nil {
		d = m.MinimumUpdatePeriod.Duration()
	}
	if d < minRefreshInterval {
		d = minRefreshInterval
	}
	return d
}

// refreshURL is the first Location of the manifest when given, else the URL
// the manifest was read from.
func refreshURL(snap *manifestSnapshot) *url.URL {
	for _, l := range snap.mpd.Locations {
		u, err := snap.url.Parse(l)
		if err == nil {
			return u
		}
	}
	return snap.url
}

// refreshLoop reloads the live manifest until it becomes static, or ctx is done.
// A manifest that can't be loaded is ignored until the next refresh.
func (s *session) refreshLoop(ctx context.Context) {
	log := s.log.Component("refresh")
	for {
		snap := s.snapshot()
		if !snap.mpd.IsDynamic() {
			log.Info().Printf("The manifest is now static")
			return
		}
		timer := time.NewTimer(s.refreshInterval(snap.mpd))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		u := refreshURL(snap)
		s.setState(StateRefreshingManifest)
		m, err := s.loadManifest(ctx, u.String())
		s.setState(StateFetching)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Printf("Can't refresh manifest %s", u)
			continue
		}
		s.metrics.Refreshes.Inc()
		log.Debug().Printf("Manifest %s refreshed", u)
		s.swap(m, u)
	}
}
