package fetch

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"topcontributors/internal/components/chrono"
	"topcontributors/internal/config"
)

const archiveHost = "web.archive.org"

// IsArchiveURL reports whether rawURL points at a web archive capture. Captures
// never change once taken.
func IsArchiveURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Hostname() == archiveHost && strings.HasPrefix(u.Path, "/web/")
}

// ArchiveDate reads the capture day out of a URL of the form
// https://web.archive.org/web/<YYYYMMDDhhmmss>/<original url>.
func ArchiveDate(rawURL string) (time.Time, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return time.Time{}, err
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, segment := range segments {
		if segment != "web" || i+1 >= len(segments) {
			continue
		}
		stamp := segments[i+1]
		if len(stamp) < 8 {
			break
		}
		date, err := time.ParseInLocation("20060102", stamp[:8], time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("archive timestamp %q: %w", stamp, err)
		}
		return date, nil
	}
	return time.Time{}, fmt.Errorf("no archive timestamp in %q", rawURL)
}

// Source is a page to read a snapshot from along with the day it was captured.
type Source struct {
	URL  string
	Date time.Time
}

// ResolveSources dates every configured source, reading the date off the archive
// URL when none was given. Sources must be listed in chronological order.
func ResolveSources(sources []config.Source) ([]Source, error) {
	out := make([]Source, len(sources))
	for i, s := range sources {
		var date time.Time
		var err error
		if s.Date != "" {
			date, err = chrono.ParseDay(s.Date)
		} else {
			date, err = ArchiveDate(s.URL)
		}
		if err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}

		if i > 0 && date.Before(out[i-1].Date) {
			return nil, fmt.Errorf(
				"sources[%d] (%s) is dated before sources[%d] (%s)",
				i, date.Format(time.DateOnly),
				i-1, out[i-1].Date.Format(time.DateOnly),
			)
		}
		out[i] = Source{URL: s.URL, Date: date}
	}
	return out, nil
}
