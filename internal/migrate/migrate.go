// Package migrate applies sequential schema migrations to on-disk data,
// upgrading from one version to the next.
package migrate

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// ErrTooNew is returned when a file was written by a newer schema than
// any registered migration knows about.
var ErrTooNew = errors.New("file version is newer than supported")

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Migration upgrades on-disk data from the prior version to Version.
type Migration struct {
	// Version is the schema version this migration produces.
	Version int
	// Description is a short human-readable label for log output.
	Description string
	// Upgrade transforms data from the prior version to [Migration.Version].
	Upgrade func(data []byte) ([]byte, error)
}

// Step records one applied migration.
type Step struct {
	Version     int
	Description string
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Pending returns the migrations that would run for a file at fromVersion,
// in ascending version order.
func Pending(fromVersion int, migrations []Migration) []Migration {
	sorted := make([]Migration, 0, len(migrations))
	for _, m := range migrations {
		if m.Version > fromVersion {
			sorted = append(sorted, m)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})
	return sorted
}

// Run applies migrations sequentially where fromVersion < m.Version.
// Returns the transformed data, the steps applied, and any error. On error
// the steps slice holds what succeeded before the failure.
func Run(data []byte, fromVersion int, migrations []Migration, log *slog.Logger) ([]byte, []Step, error) {
	if log == nil {
		log = slog.Default()
	}
	var steps []Step
	for _, m := range Pending(fromVersion, migrations) {
		log.Info("applying migration", "version", m.Version, "description", m.Description)
		out, err := m.Upgrade(data)
		if err != nil {
			return nil, steps, fmt.Errorf("migration to v%d failed: %w", m.Version, err)
		}
		data = out
		steps = append(steps, Step{Version: m.Version, Description: m.Description})
	}
	return data, steps, nil
}
