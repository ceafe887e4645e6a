package timeseries

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Tokens above this value are already epoch milliseconds; at or below it
// they are epoch seconds. 10^12 ms is September 2001, while 10^12 seconds
// is thirty thousand years out, so real inputs never straddle the cutoff.
const milliCutoff = 1e12

// timeLayouts are tried in order for non-numeric tokens.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseError reports a timestamp token that is neither numeric nor a
// recognized calendar date string. All downstream windowing depends on
// absolute time ordering, so the enclosing load treats it as fatal.
type ParseError struct {
	Token string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot interpret %q as a timestamp", e.Token)
}

// NormalizeTimestamp canonicalizes a raw timestamp token to epoch
// milliseconds. Numeric tokens above 10^12 are taken as milliseconds,
// numeric tokens at or below it as (possibly fractional) seconds; anything
// else is parsed as a calendar date string in UTC.
func NormalizeTimestamp(token string) (int64, error) {
	s := strings.TrimSpace(token)
	if s == "" {
		return 0, &ParseError{Token: token}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f > milliCutoff {
			return int64(f), nil
		}
		return int64(f * 1000), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().UnixMilli(), nil
		}
	}
	return 0, &ParseError{Token: token}
}
