// Package rulepack loads extra application rules from a URL or a local file.
//
// Pack rules are evaluated in the built-in classification stage, ahead of
// the compiled-in table. URL and file sources fall back to the last good
// pack cached on disk; when both fail, no pack rules are used.
package rulepack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"tools.zach/dev/statuscord/internal/activity"
	"tools.zach/dev/statuscord/internal/atomicfile"
	"tools.zach/dev/statuscord/internal/paths"
)

// maxPackBytes bounds a downloaded pack.
const maxPackBytes = 2 << 20

// ErrEmpty is returned when a source yields no usable rules.
var ErrEmpty = errors.New("rule pack has no usable rules")

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Source describes where a pack comes from. Built from config.RulePackConfig.
type Source struct {
	Kind    string // "builtin", "url", "file"
	URL     string
	File    string
	Timeout time.Duration
}

// Pack is the on-the-wire and cached pack format: {"rules": [...]}.
type Pack struct {
	Name  string          `json:"name,omitempty"`
	Rules []activity.Rule `json:"rules"`
}

// Loader fetches packs. The zero value is not usable; use [NewLoader].
type Loader struct {
	cacheDir string
	client   *retryablehttp.Client
	log      *slog.Logger
}

// NewLoader returns a Loader caching into cacheDir.
func NewLoader(cacheDir string, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = log
	return &Loader{cacheDir: cacheDir, client: client, log: log}
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Load returns the pack rules for src. The builtin source has no extra
// rules. For url and file sources the primary is tried first, then the
// cache; the returned error is non-nil when the rules came from the cache.
func (l *Loader) Load(ctx context.Context, src Source) ([]activity.Rule, error) {
	var primary func(context.Context) (*Pack, error)
	switch src.Kind {
	case "", "builtin":
		return nil, nil
	case "url":
		primary = func(ctx context.Context) (*Pack, error) { return l.fetchURL(ctx, src.URL, src.Timeout) }
	case "file":
		primary = func(context.Context) (*Pack, error) { return readFile(src.File) }
	default:
		return nil, fmt.Errorf("unknown rule pack source %q", src.Kind)
	}

	pack, err := primary(ctx)
	if err == nil {
		rules := Sanitize(pack.Rules, l.log)
		if len(rules) == 0 {
			err = ErrEmpty
		} else {
			if cacheErr := l.WriteCache(&Pack{Name: pack.Name, Rules: rules}); cacheErr != nil {
				l.log.Warn("failed to write rule pack cache", "error", cacheErr)
			}
			l.log.Info("rule pack loaded", "source", src.Kind, "rules", len(rules))
			return rules, nil
		}
	}
	l.log.Warn("failed to load rule pack, trying cache", "source", src.Kind, "error", err)

	cached, cacheErr := l.ReadCache()
	if cacheErr == nil {
		rules := Sanitize(cached.Rules, l.log)
		if len(rules) > 0 {
			return rules, fmt.Errorf("using cached rule pack: %w", err)
		}
		cacheErr = ErrEmpty
	}
	return nil, fmt.Errorf("all rule pack sources failed: primary: %w; cache: %w", err, cacheErr)
}

// Sanitize drops rules without a match token or category and fills in a
// default icon.
func Sanitize(rules []activity.Rule, log *slog.Logger) []activity.Rule {
	out := make([]activity.Rule, 0, len(rules))
	for i, r := range rules {
		if r.Match == "" || r.Category == "" {
			if log != nil {
				log.Debug("skipping incomplete pack rule", "index", i, "match", r.Match)
			}
			continue
		}
		if r.Icon == "" {
			r.Icon = "default"
		}
		out = append(out, r)
	}
	return out
}

// ///////////////////////////////////////////////
// Sources
// ///////////////////////////////////////////////

func (l *Loader) fetchURL(ctx context.Context, url string, timeout time.Duration) (*Pack, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPackBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	if len(body) > maxPackBytes {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", url, maxPackBytes)
	}
	return Parse(body)
}

func readFile(path string) (*Pack, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule pack %s: %w", path, err)
	}
	return Parse(body)
}

// Parse decodes a pack document.
func Parse(body []byte) (*Pack, error) {
	var p Pack
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("parsing rule pack: %w", err)
	}
	return &p, nil
}

// ///////////////////////////////////////////////
// Cache
// ///////////////////////////////////////////////

// WriteCache stores p as the last good pack.
func (l *Loader) WriteCache(p *Pack) error {
	if p == nil {
		return errors.New("rule pack is nil")
	}
	if err := os.MkdirAll(l.cacheDir, 0o755); err != nil {
		return fmt.Errorf("creating rule pack cache directory: %w", err)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshalling rule pack: %w", err)
	}
	return atomicfile.Write(paths.DataDir{Root: l.cacheDir}.RulePackCache(), b, 0o644)
}

// ReadCache returns the last good pack.
func (l *Loader) ReadCache() (*Pack, error) {
	b, err := os.ReadFile(paths.DataDir{Root: l.cacheDir}.RulePackCache())
	if err != nil {
		return nil, fmt.Errorf("reading rule pack cache: %w", err)
	}
	p, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("rule pack cache: %w", err)
	}
	return p, nil
}
