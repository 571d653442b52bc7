// Package version carries build identity and checks GitHub for newer
// releases.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Set via ldflags during build.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// releasesURL is the GitHub "latest release" endpoint for this project.
const releasesURL = "https://api.github.com/repos/orenlab/pytmbot-sub000/releases/latest"

// checkTimeout bounds the whole release lookup.
const checkTimeout = 5 * time.Second

// Release is the slice of the GitHub release object the bot shows.
type Release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
	Body    string `json:"body"`
}

// Checker asks GitHub for the latest published release.
type Checker struct {
	client *http.Client
	url    string
}

// NewChecker builds a checker with a bounded HTTP client.
func NewChecker() *Checker {
	return &Checker{
		client: &http.Client{Timeout: checkTimeout},
		url:    releasesURL,
	}
}

// Latest fetches the newest published release.
func (c *Checker) Latest(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build release request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query releases: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release endpoint returned %s", resp.Status)
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("failed to decode release: %w", err)
	}
	if rel.TagName == "" {
		return nil, fmt.Errorf("release endpoint returned no tag")
	}
	return &rel, nil
}

// IsDev reports whether v names a local development build rather than a
// published release.
func IsDev(v string) bool {
	return normalize(v) == ""
}

// IsNewer reports whether latest is ahead of current. Tags compare as
// dotted numbers after an optional "v" prefix; a dev build treats every
// published release as newer.
func IsNewer(current, latest string) bool {
	cur := normalize(current)
	lat := normalize(latest)
	if lat == "" {
		return false
	}
	if cur == "" {
		return true // dev or unparsable local build
	}

	curParts := splitNumbers(cur)
	latParts := splitNumbers(lat)
	for i := 0; i < len(curParts) || i < len(latParts); i++ {
		c, l := 0, 0
		if i < len(curParts) {
			c = curParts[i]
		}
		if i < len(latParts) {
			l = latParts[i]
		}
		if l != c {
			return l > c
		}
	}
	return false
}

func normalize(tag string) string {
	tag = strings.TrimSpace(strings.TrimPrefix(tag, "v"))
	if tag == "" || tag == "dev" || tag == "unknown" {
		return ""
	}
	if _, err := strconv.Atoi(strings.SplitN(tag, ".", 2)[0]); err != nil {
		return ""
	}
	return tag
}

func splitNumbers(tag string) []int {
	fields := strings.Split(tag, ".")
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(strings.TrimFunc(f, func(r rune) bool { return r < '0' || r > '9' }))
		if err != nil {
			break
		}
		out = append(out, n)
	}
	return out
}
