package download

import (
	"sync"
	"time"
)

// watchdog calls bark when it isn't kicked during interval
type watchdog struct {
	mu       sync.Mutex
	interval time.Duration
	timer    *time.Timer
	stopped  bool
}

func newWatchDog(interval time.Duration, bark func()) *watchdog {
	return &watchdog{
		interval: interval,
		timer:    time.AfterFunc(interval, bark),
	}
}

// Stop disarms the watchdog for good
func (w *watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	w.timer.Stop()
}

// Kick postpones the bark by one interval
func (w *watchdog) Kick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.timer.Reset(w.interval)
}
