package selector

import (
	"fmt"

	"github.com/simulot/dashdl/parsers/mpdparser"
)

// NoMatchingStreamError is returned when the period has no adaptation set of the
// wanted content type, or none in the wanted language under the strict fallback.
type NoMatchingStreamError struct {
	ContentType mpdparser.ContentType
	PeriodIndex int
	Language    string
}

func (e *NoMatchingStreamError) Error() string {
	ct := string(e.ContentType)
	if ct == "" {
		ct = "unknown"
	}
	if e.Language != "" {
		return fmt.Sprintf("no %s stream in language %q in period #%d", ct, e.Language, e.PeriodIndex)
	}
	return fmt.Sprintf("no %s stream in period #%d", ct, e.PeriodIndex)
}
