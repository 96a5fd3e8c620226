package version

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Version is the huntdedup release.
var Version = "0.3.0"

// ReleasesURL is the GitHub endpoint for the latest release.
const ReleasesURL = "https://api.github.com/repos/a-marczewski/huntdedup/releases/latest"

const userAgent = "huntdedup-version-check"

// release is the part of the GitHub release payload we read.
type release struct {
	TagName     string    `json:"tag_name"`
	HTMLURL     string    `json:"html_url"`
	Draft       bool      `json:"draft"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
}

// Update describes a release newer than the running binary.
type Update struct {
	Current     string    `json:"current"`
	Latest      string    `json:"latest"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// Checker asks a release endpoint whether a newer huntdedup exists.
type Checker struct {
	client  *http.Client
	url     string
	current string
}

// NewChecker returns a Checker for url comparing against Version.
func NewChecker(url string) *Checker {
	return &Checker{
		client:  &http.Client{Timeout: 5 * time.Second},
		url:     url,
		current: Version,
	}
}

// Latest returns the newer release, or nil when the running version is
// current, the repository has no releases, or the latest one is a draft or
// pre-release.
func (c *Checker) Latest(ctx context.Context) (*Update, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build release request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query releases: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("release endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("failed to decode release: %w", err)
	}
	if rel.Draft || rel.Prerelease {
		return nil, nil
	}

	latest := strings.TrimPrefix(rel.TagName, "v")
	if !IsNewer(c.current, latest) {
		return nil, nil
	}
	return &Update{Current: c.current, Latest: latest, URL: rel.HTMLURL, PublishedAt: rel.PublishedAt}, nil
}

// IsNewer reports whether latest is a higher dotted version than current.
// A leading "v" and any "-suffix" or "+build" part are ignored; missing
// components count as zero.
func IsNewer(current, latest string) bool {
	l, ok := parse(latest)
	if !ok {
		return false
	}
	c, _ := parse(current)

	for i := range l {
		if l[i] != c[i] {
			return l[i] > c[i]
		}
	}
	return false
}

func parse(v string) ([3]int, bool) {
	var out [3]int
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	if v == "" {
		return out, false
	}
	for i, part := range strings.SplitN(v, ".", 3) {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return out, false
		}
		out[i] = n
	}
	return out, true
}
