// Package update checks for newer statuscord releases via a release
// manifest, a JSON object whose "." key holds the latest stable version.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ManifestURL is the release manifest location, set at build time with
// -ldflags "-X tools.zach/dev/statuscord/internal/update.ManifestURL=...".
// An empty value disables the check.
var ManifestURL string

// Result is the outcome of one check.
type Result struct {
	Current string
	Latest  string
	// Newer is true when Latest is strictly greater than Current.
	Newer bool
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Check fetches the manifest at url and compares its version with current.
// A newer release is logged at info level. Callers treat errors as
// non-fatal.
func Check(ctx context.Context, url, current string, log *slog.Logger) (Result, error) {
	if log == nil {
		log = slog.Default()
	}
	res := Result{Current: current}
	if url == "" {
		log.Debug("skipping version check: no manifest URL configured")
		return res, nil
	}

	latest, err := fetchLatest(ctx, url, log)
	if err != nil {
		return res, err
	}
	res.Latest = latest
	if latest != "" && latest != current && semverLess(current, latest) {
		res.Newer = true
		log.Info("new version available", "current", current, "latest", latest)
	}
	return res, nil
}

// ///////////////////////////////////////////////
// Internal helpers
// ///////////////////////////////////////////////

func fetchLatest(ctx context.Context, url string, log *slog.Logger) (string, error) {
	client := retryablehttp.NewClient()
	client.RetryMax = 1
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.HTTPClient.Timeout = 5 * time.Second
	client.Logger = log

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var manifest map[string]string
	if err := json.Unmarshal(body, &manifest); err != nil {
		return "", fmt.Errorf("parsing manifest: %w", err)
	}
	return manifest["."], nil
}

// semverLess reports whether a < b. Strings that are not major.minor.patch
// never compare less. A pre-release sorts before its release, so
// "0.1.0-dev" < "0.1.0"; two pre-releases of the same version are unordered.
func semverLess(a, b string) bool {
	pa, ok := parseSemver(a)
	if !ok {
		return false
	}
	pb, ok := parseSemver(b)
	if !ok {
		return false
	}
	for i := range pa {
		if pa[i] != pb[i] {
			return pa[i] < pb[i]
		}
	}
	return hasPreRelease(a) && !hasPreRelease(b)
}

func hasPreRelease(s string) bool {
	return strings.Contains(strings.TrimPrefix(s, "v"), "-")
}

// parseSemver returns [major, minor, patch] for "v1.2.3" or "1.2.3-rc.1+meta".
func parseSemver(s string) ([3]int, bool) {
	s = strings.TrimPrefix(s, "v")
	if i := strings.IndexAny(s, "-+"); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return [3]int{}, false
	}
	var v [3]int
	for i, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return [3]int{}, false
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return [3]int{}, false
		}
		v[i] = n
	}
	return v, true
}
