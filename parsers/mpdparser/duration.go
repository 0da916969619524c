package mpdparser

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Duration is an xs:duration value as found in MPD attributes.
// Years count for 365 days and months for 30 days.
type Duration time.Duration

var xmlDurationRegex = regexp.MustCompile(`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)(?:\.(\d+))?S)?)?$`)

// NewDuration wraps a time.Duration, handy to build a manifest by program.
func NewDuration(d time.Duration) *Duration {
	v := Duration(d)
	return &v
}

// ParseDuration decodes an ISO-8601 duration like PT1H2M3.5S, P1DT2H or -PT5S.
// Values beyond the range of time.Duration are errors.
func ParseDuration(s string) (Duration, error) {
	neg := strings.HasPrefix(s, "-")
	body := strings.TrimPrefix(s, "-")
	parts := xmlDurationRegex.FindStringSubmatch(body)
	if parts == nil || body == "P" || strings.HasSuffix(body, "T") {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	units := []uint64{
		uint64(365 * 24 * time.Hour),
		uint64(30 * 24 * time.Hour),
		uint64(24 * time.Hour),
		uint64(time.Hour),
		uint64(time.Minute),
		uint64(time.Second),
	}

	limit := uint64(math.MaxInt64)
	if neg {
		limit++
	}
	var total uint64
	add := func(v, u uint64) error {
		if v > (limit-total)/u {
			return fmt.Errorf("duration %q out of range", s)
		}
		total += v * u
		return nil
	}

	for i, u := range units {
		if parts[i+1] == "" {
			continue
		}
		v, err := strconv.ParseUint(parts[i+1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		if err = add(v, u); err != nil {
			return 0, err
		}
	}

	if frac := parts[7]; frac != "" {
		// keep nanosecond precision, drop the rest
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		ns, err := strconv.ParseUint(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		if err = add(ns, 1); err != nil {
			return 0, err
		}
	}
	if neg {
		return Duration(-int64(total)), nil
	}
	return Duration(int64(total)), nil
}

// Duration returns the value as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String renders the duration in the [-]PT[nH][nM]n[.f]S form.
func (d Duration) String() string {
	v := int64(d)
	if v == 0 {
		return "PT0S"
	}
	// magnitude, math.MinInt64 included
	u := uint64(v)
	if v < 0 {
		u = uint64(-(v + 1)) + 1
	}

	var b strings.Builder
	if v < 0 {
		b.WriteByte('-')
	}
	b.WriteString("PT")
	if h := u / uint64(time.Hour); h > 0 {
		b.WriteString(strconv.FormatUint(h, 10))
		b.WriteByte('H')
		u -= h * uint64(time.Hour)
	}
	if m := u / uint64(time.Minute); m > 0 {
		b.WriteString(strconv.FormatUint(m, 10))
		b.WriteByte('M')
		u -= m * uint64(time.Minute)
	}
	if u > 0 {
		sec := u / uint64(time.Second)
		b.WriteString(strconv.FormatUint(sec, 10))
		if ns := u - sec*uint64(time.Second); ns > 0 {
			frac := fmt.Sprintf("%09d", ns)
			b.WriteByte('.')
			b.WriteString(strings.TrimRight(frac, "0"))
		}
		b.WriteByte('S')
	}
	return b.String()
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
