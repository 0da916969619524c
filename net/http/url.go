package http

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

func schema(path string) string {
	l := len(path)
	if l < 6 {
		return ""
	}
	if l > 6 {
		l = 6
	}
	s := strings.ToLower(path[:l])
	switch {
	case strings.HasPrefix(s, "https:"):
		return path[:len("https:")]
	case strings.HasPrefix(s, "http:"):
		return path[:len("http:")]
	case strings.HasPrefix(s, "file:"):
		return path[:len("file:")]
	}
	return ""
}

// IsURL return true when s is an http, https or file URL
func IsURL(s string) bool {
	return schema(s) != ""
}

// ManifestURL turns the manifest location given by the user into an URL.
// A local path becomes a file:// URL.
func ManifestURL(s string) (*url.URL, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty manifest location")
	}
	if IsURL(s) {
		u, err := url.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid manifest URL: %w", err)
		}
		return u, nil
	}
	p, err := filepath.Abs(s)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest path: %w", err)
	}
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(p)}, nil
}
