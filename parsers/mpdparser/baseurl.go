package mpdparser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

const urlNormalization = purell.FlagsSafe | purell.FlagRemoveDotSegments

// ResolveBaseURL joins the BaseURLs of each level of the hierarchy, the manifest URL first.
// Only the first BaseURL of a level is used, others are alternate locations.
func ResolveBaseURL(manifestURL *url.URL, levels ...[]*BaseURL) (*url.URL, error) {
	base := manifestURL
	for _, l := range levels {
		if len(l) == 0 {
			continue
		}
		v := strings.TrimSpace(l[0].Value)
		if v == "" {
			continue
		}
		ref, err := url.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL %q: %w", v, err)
		}
		if base == nil {
			base = ref
			continue
		}
		base = base.ResolveReference(ref)
	}
	return base, nil
}

// resolveURL makes the reference absolute against base, and normalizes it
func resolveURL(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", ref, err)
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("can't make %q absolute without a base URL", ref)
	}
	return purell.NormalizeURL(u, urlNormalization), nil
}
