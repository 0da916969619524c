package download

import (
	"fmt"
	"strings"
)

// State is the step reached by a download session
type State int

// Session states
const (
	StateInit State = iota
	StateSelectingStreams
	StateResolvingSegments
	StateFetching
	StateRefreshingManifest
	StateMuxing
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateInit:               "init",
	StateSelectingStreams:   "selecting streams",
	StateResolvingSegments:  "resolving segments",
	StateFetching:           "fetching",
	StateRefreshingManifest: "refreshing manifest",
	StateMuxing:             "muxing",
	StateDone:               "done",
	StateFailed:             "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// SessionError is the single failure of a download. State is the step where
// the session failed, Err the cause.
type SessionError struct {
	State State
	Err   error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("download failed while %s: %s", e.State, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// TransportError is a fetch that still fails after all retries
type TransportError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("can't get %s after %d attempt(s): %s", e.URL, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BudgetExhaustedError aborts the session when too many segments failed
type BudgetExhaustedError struct {
	Failed int
	Last   error
}

func (e *BudgetExhaustedError) Error() string {
	return fmt.Sprintf("too many failed segments (%d), last error: %s", e.Failed, e.Last)
}

func (e *BudgetExhaustedError) Unwrap() error { return e.Last }

// MuxError is a failure of the muxer. Diagnostics holds the last lines written by the tool.
type MuxError struct {
	Err         error
	Diagnostics []string
}

func (e *MuxError) Error() string {
	if len(e.Diagnostics) == 0 {
		return fmt.Sprintf("can't mux tracks: %s", e.Err)
	}
	return fmt.Sprintf("can't mux tracks: %s\n%s", e.Err, strings.Join(e.Diagnostics, "\n"))
}

func (e *MuxError) Unwrap() error { return e.Err }
