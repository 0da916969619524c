package http

import (
	"fmt"
	"net/http"
)

// StatusError is returned when the server answers with an unexpected status
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("can't get %s: %s", e.URL, e.Status)
}

// Temporary is true when the request deserves another try
func (e *StatusError) Temporary() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}
