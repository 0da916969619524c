// Package selector picks the adaptation set and the representation to download
// for each kind of content.
package selector

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/text/language"

	"github.com/simulot/dashdl/parsers/mpdparser"
)

// Quality tells which end of the bandwidth ladder is wanted
type Quality int

// Quality policies
const (
	QualityBest Quality = iota
	QualityWorst
)

func (q Quality) String() string {
	if q == QualityWorst {
		return "worst"
	}
	return "best"
}

// ParseQuality accepts "best" and "worst"
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "best":
		return QualityBest, nil
	case "worst":
		return QualityWorst, nil
	}
	return QualityBest, fmt.Errorf("unknown quality %q", s)
}

// LanguageFallback is the behavior when no adaptation set matches the wanted language
type LanguageFallback int

// Language fallbacks
const (
	// FallbackFirst takes the first adaptation set of the content type
	FallbackFirst LanguageFallback = iota
	// FallbackStrict fails with a NoMatchingStreamError
	FallbackStrict
)

// Policy gathers the user preferences used for the selection.
// The zero value selects the best quality of the first suitable adaptation set.
type Policy struct {
	Quality          Quality
	RepresentationID string // when found, wins over any other preference
	Language         string // ISO 639 code, applied to audio and text
	LanguageFallback LanguageFallback
	Roles            []string // role values in preference order, like "main" or "alternate"
	Codecs           []string // accepted codec prefixes, like "avc1" or "mp4a"
	MaxBandwidth     uint64   // 0 means no limit
	MinBandwidth     uint64
}

// Candidate is a representation with its adaptation set
type Candidate struct {
	AdaptationSet  *mpdparser.AdaptationSet
	Representation *mpdparser.Representation
}

// Selection is the outcome of the selection for one content type
type Selection struct {
	ContentType    mpdparser.ContentType
	PeriodIndex    int
	AdaptationSet  *mpdparser.AdaptationSet
	Representation *mpdparser.Representation
	Effective      *mpdparser.Effective

	// Alternatives are the other acceptable representations, by order of preference.
	Alternatives []Candidate

	mpd         *mpdparser.MPD
	manifestURL *url.URL
}

// Select picks one adaptation set and one representation of the content type ct in the period
// at periodIndex. The selection is deterministic for a given manifest and policy.
func Select(m *mpdparser.MPD, periodIndex int, ct mpdparser.ContentType, p Policy, manifestURL *url.URL) (*Selection, error) {
	if periodIndex < 0 || periodIndex >= len(m.Periods) {
		return nil, fmt.Errorf("no period #%d", periodIndex)
	}
	sets := setsOfType(m.Periods[periodIndex], ct)
	if len(sets) == 0 {
		return nil, &NoMatchingStreamError{ContentType: ct, PeriodIndex: periodIndex}
	}

	candidates := []Candidate{}
	if p.RepresentationID != "" {
		candidates = byID(sets, p.RepresentationID)
	}
	if len(candidates) == 0 {
		if p.Language != "" && ct != mpdparser.ContentVideo {
			matching := byLanguage(sets, p.Language)
			if len(matching) == 0 {
				if p.LanguageFallback == FallbackStrict {
					return nil, &NoMatchingStreamError{ContentType: ct, PeriodIndex: periodIndex, Language: p.Language}
				}
				matching = sets[:1]
			}
			sets = matching
		}
		sets = byRole(sets, p.Roles)
		candidates = representations(sets)
		candidates = byCodec(candidates, p.Codecs)
		candidates = byBandwidth(candidates, p.MinBandwidth, p.MaxBandwidth)
		sortByQuality(candidates, p.Quality)
	}

	s := &Selection{
		ContentType: ct,
		PeriodIndex: periodIndex,
		mpd:         m,
		manifestURL: manifestURL,
	}
	if err := s.use(candidates); err != nil {
		return nil, err
	}
	return s, nil
}

// SelectAll selects a stream for each of the given content types. All of them are required.
func SelectAll(m *mpdparser.MPD, periodIndex int, types []mpdparser.ContentType, p Policy, manifestURL *url.URL) ([]*Selection, error) {
	l := make([]*Selection, 0, len(types))
	for _, ct := range types {
		s, err := Select(m, periodIndex, ct, p, manifestURL)
		if err != nil {
			return nil, err
		}
		l = append(l, s)
	}
	return l, nil
}

// Fallback gives the selection of the next alternative representation.
// It returns nil when there is no alternative left.
func (s *Selection) Fallback() (*Selection, error) {
	if len(s.Alternatives) == 0 {
		return nil, nil
	}
	n := &Selection{
		ContentType: s.ContentType,
		PeriodIndex: s.PeriodIndex,
		mpd:         s.mpd,
		manifestURL: s.manifestURL,
	}
	if err := n.use(s.Alternatives); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Selection) use(candidates []Candidate) error {
	if len(candidates) == 0 {
		return &NoMatchingStreamError{ContentType: s.ContentType, PeriodIndex: s.PeriodIndex}
	}
	c := candidates[0]
	e, err := s.mpd.Effective(s.manifestURL, s.PeriodIndex, c.AdaptationSet, c.Representation)
	if err != nil {
		return fmt.Errorf("can't compute attributes of representation %q: %w", c.Representation.ID, err)
	}
	s.AdaptationSet = c.AdaptationSet
	s.Representation = c.Representation
	s.Effective = e
	s.Alternatives = candidates[1:]
	return nil
}

func setsOfType(p *mpdparser.Period, ct mpdparser.ContentType) []*mpdparser.AdaptationSet {
	l := []*mpdparser.AdaptationSet{}
	for _, a := range p.AdaptationSets {
		if a.Type() == ct && len(a.Representations) > 0 {
			l = append(l, a)
		}
	}
	return l
}

func byID(sets []*mpdparser.AdaptationSet, id string) []Candidate {
	for _, a := range sets {
		for _, r := range a.Representations {
			if r.ID == id {
				return []Candidate{{a, r}}
			}
		}
	}
	return nil
}

// byLanguage keeps the sets whose language is the wanted one. When none is found,
// it keeps the sets having the same base language ("en" for "en-GB" or "eng").
func byLanguage(sets []*mpdparser.AdaptationSet, lang string) []*mpdparser.AdaptationSet {
	exact := []*mpdparser.AdaptationSet{}
	for _, a := range sets {
		if a.Lang != nil && strings.EqualFold(strings.TrimSpace(*a.Lang), lang) {
			exact = append(exact, a)
		}
	}
	if len(exact) > 0 {
		return exact
	}

	want, ok := baseLanguage(lang)
	if !ok {
		return nil
	}
	near := []*mpdparser.AdaptationSet{}
	for _, a := range sets {
		if a.Lang == nil {
			continue
		}
		if b, ok := baseLanguage(*a.Lang); ok && b == want {
			near = append(near, a)
		}
	}
	return near
}

func baseLanguage(s string) (language.Base, bool) {
	t, err := language.Parse(strings.TrimSpace(s))
	if err != nil || t.IsRoot() {
		return language.Base{}, false
	}
	b, c := t.Base()
	return b, c != language.No
}

// byRole keeps the sets having the first role of the preference list that is present.
func byRole(sets []*mpdparser.AdaptationSet, roles []string) []*mpdparser.AdaptationSet {
	for _, role := range roles {
		l := []*mpdparser.AdaptationSet{}
		for _, a := range sets {
			for _, r := range a.Roles {
				if r.Value != nil && strings.EqualFold(*r.Value, role) {
					l = append(l, a)
					break
				}
			}
		}
		if len(l) > 0 {
			return l
		}
	}
	return sets
}

func representations(sets []*mpdparser.AdaptationSet) []Candidate {
	l := []Candidate{}
	for _, a := range sets {
		for _, r := range a.Representations {
			l = append(l, Candidate{a, r})
		}
	}
	return l
}

func codecsOf(c Candidate) string {
	if c.Representation.Codecs != nil {
		return *c.Representation.Codecs
	}
	if c.AdaptationSet.Codecs != nil {
		return *c.AdaptationSet.Codecs
	}
	return ""
}

// byCodec keeps the candidates using one of the codecs. When none does,
// the constraint is dropped.
func byCodec(l []Candidate, codecs []string) []Candidate {
	if len(codecs) == 0 {
		return l
	}
	kept := []Candidate{}
	for _, c := range l {
		have := strings.ToLower(codecsOf(c))
		for _, want := range codecs {
			if strings.HasPrefix(have, strings.ToLower(want)) {
				kept = append(kept, c)
				break
			}
		}
	}
	if len(kept) == 0 {
		return l
	}
	return kept
}

func bandwidthOf(c Candidate) uint64 {
	if c.Representation.Bandwidth == nil {
		return 0
	}
	return *c.Representation.Bandwidth
}

// byBandwidth keeps the candidates in the bandwidth range. When none is in the range,
// it keeps the closest ones.
func byBandwidth(l []Candidate, lo, hi uint64) []Candidate {
	if lo == 0 && hi == 0 {
		return l
	}
	kept := []Candidate{}
	for _, c := range l {
		bw := bandwidthOf(c)
		if bw >= lo && (hi == 0 || bw <= hi) {
			kept = append(kept, c)
		}
	}
	if len(kept) > 0 || len(l) == 0 {
		return kept
	}

	distance := func(bw uint64) uint64 {
		if bw < lo {
			return lo - bw
		}
		return bw - hi
	}
	best := distance(bandwidthOf(l[0]))
	for _, c := range l[1:] {
		if d := distance(bandwidthOf(c)); d < best {
			best = d
		}
	}
	for _, c := range l {
		if distance(bandwidthOf(c)) == best {
			kept = append(kept, c)
		}
	}
	return kept
}

// sortByQuality orders the candidates by preference. Ties keep the document order.
func sortByQuality(l []Candidate, q Quality) {
	sort.SliceStable(l, func(i, j int) bool {
		bi, bj := bandwidthOf(l[i]), bandwidthOf(l[j])
		if q == QualityWorst {
			return bi < bj
		}
		return bi > bj
	})
}
