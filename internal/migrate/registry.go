package migrate

import (
	"fmt"
	"log/slog"
)

// Registry holds the version and migrations for a single schema target.
// Each target gets its own instance so version numbers stay independent.
type Registry struct {
	// CurrentVersion is the latest schema version that this registry targets.
	CurrentVersion int
	// Migrations is the list of versioned upgrades. Exported so tests can
	// swap it out.
	Migrations []Migration
}

// Register appends a migration to the registry. It panics on a duplicate
// version or on a version beyond CurrentVersion.
func (r *Registry) Register(m Migration) {
	if m.Version > r.CurrentVersion {
		panic(fmt.Sprintf("migrate: migration v%d is beyond current version %d", m.Version, r.CurrentVersion))
	}
	for _, existing := range r.Migrations {
		if existing.Version == m.Version {
			panic(fmt.Sprintf("migrate: duplicate migration version %d (description: %q)", m.Version, m.Description))
		}
	}
	r.Migrations = append(r.Migrations, m)
}

// Check reports [ErrTooNew] for a file written by a newer schema.
func (r *Registry) Check(fileVersion int) error {
	if fileVersion > r.CurrentVersion {
		return fmt.Errorf("%w: file is v%d, this build understands up to v%d", ErrTooNew, fileVersion, r.CurrentVersion)
	}
	return nil
}

// NeedsMigration reports whether a file at fileVersion is behind.
func (r *Registry) NeedsMigration(fileVersion int) bool {
	return fileVersion < r.CurrentVersion
}

// Run upgrades data from fromVersion to the registry's current version.
func (r *Registry) Run(data []byte, fromVersion int, log *slog.Logger) ([]byte, []Step, error) {
	if err := r.Check(fromVersion); err != nil {
		return nil, nil, err
	}
	return Run(data, fromVersion, r.Migrations, log)
}

// Config is the migration registry for config.toml files. Version 1 carried
// a single Discord application ID; version 2 introduced named identities.
var Config = &Registry{CurrentVersion: 2}
