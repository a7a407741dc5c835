// Package session tracks how long the user has been in the current activity
// and how much poll time each category has accumulated since start.
package session

import (
	"sort"
	"time"
)

// Tracker holds the per-activity timer state. It is not safe for concurrent
// use; the daemon loop owns it.
type Tracker struct {
	// interval is the fixed amount credited to a category on every update.
	interval time.Duration

	category  string
	process   string
	startedAt time.Time
	started   bool

	totals map[string]time.Duration
}

// NewTracker returns a Tracker that credits interval per poll.
func NewTracker(interval time.Duration) *Tracker {
	return &Tracker{
		interval: interval,
		totals:   make(map[string]time.Duration),
	}
}

// Update records one poll. The activity start resets to now when either the
// category or the process differs from the previous poll. The category total
// always grows by the poll interval, regardless of wall-clock drift.
// It returns the time spent in the current activity.
func (t *Tracker) Update(category, process string, now time.Time) time.Duration {
	if !t.started || category != t.category || process != t.process {
		t.category = category
		t.process = process
		t.startedAt = now
		t.started = true
	}
	t.totals[category] += t.interval
	return now.Sub(t.startedAt)
}

// StartedAt returns when the current activity began. Zero before the first
// update.
func (t *Tracker) StartedAt() time.Time { return t.startedAt }

// Current returns the category and process seen on the last update.
func (t *Tracker) Current() (category, process string) { return t.category, t.process }

// Total returns the accumulated poll time for category.
func (t *Tracker) Total(category string) time.Duration { return t.totals[category] }

// CategoryTotal is one entry of [Tracker.Totals].
type CategoryTotal struct {
	Category string
	Total    time.Duration
}

// Totals returns every category with accumulated time, largest first.
func (t *Tracker) Totals() []CategoryTotal {
	out := make([]CategoryTotal, 0, len(t.totals))
	for c, d := range t.totals {
		out = append(out, CategoryTotal{Category: c, Total: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Category < out[j].Category
	})
	return out
}
