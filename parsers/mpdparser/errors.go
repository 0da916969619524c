package mpdparser

import (
	"fmt"
	"time"
)

// ParseError is returned when the manifest text can't be decoded or breaks the MPD structure.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("can't parse MPD: %s", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ResolutionError is returned when the segments of a representation can't be computed:
// malformed template, inconsistent timeline, missing duration...
type ResolutionError struct {
	Representation string
	Err            error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("can't resolve segments of representation %q: %s", e.Representation, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// AvailabilityError tells that the next segments of a live representation aren't
// published yet. Next is the wall clock time when the next segment is expected.
type AvailabilityError struct {
	Representation string
	Next           time.Time
}

func (e *AvailabilityError) Error() string {
	return fmt.Sprintf("next segment of representation %q not available before %s", e.Representation, e.Next.Format(time.RFC3339))
}
