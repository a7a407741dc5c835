// Package migrate tests verify sequential migration application, version
// skipping, error propagation and the [Registry] guards.
package migrate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ///////////////////////////////////////////////
// Run (package-level)
// ///////////////////////////////////////////////

func TestRunSkipsOldVersions(t *testing.T) {
	called := false
	migrations := []Migration{
		{Version: 1, Description: "already applied", Upgrade: func(d []byte) ([]byte, error) {
			called = true
			return d, nil
		}},
	}
	out, steps, err := Run([]byte("data"), 1, migrations, quiet())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatal("migration should have been skipped")
	}
	if len(steps) != 0 {
		t.Fatalf("expected no steps, got %v", steps)
	}
	if string(out) != "data" {
		t.Fatalf("expected data unchanged, got %q", out)
	}
}

func TestRunAppliesInVersionOrder(t *testing.T) {
	// Registered out of order on purpose.
	migrations := []Migration{
		{Version: 3, Description: "v2->v3", Upgrade: func(d []byte) ([]byte, error) {
			return append(d, []byte("-v3")...), nil
		}},
		{Version: 2, Description: "v1->v2", Upgrade: func(d []byte) ([]byte, error) {
			return append(d, []byte("-v2")...), nil
		}},
	}
	out, steps, err := Run([]byte("data"), 1, migrations, quiet())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(steps) != 2 || steps[0].Version != 2 || steps[1].Version != 3 {
		t.Fatalf("unexpected steps %+v", steps)
	}
	if string(out) != "data-v2-v3" {
		t.Fatalf("expected data-v2-v3, got %q", out)
	}
}

func TestRunStopsOnError(t *testing.T) {
	migrations := []Migration{
		{Version: 2, Description: "v1->v2", Upgrade: func(d []byte) ([]byte, error) {
			return append(d, []byte("-v2")...), nil
		}},
		{Version: 3, Description: "v2->v3 fails", Upgrade: func(d []byte) ([]byte, error) {
			return nil, fmt.Errorf("boom")
		}},
	}
	_, steps, err := Run([]byte("data"), 1, migrations, quiet())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "migration to v3 failed") || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("unexpected error message %v", err)
	}
	if len(steps) != 1 || steps[0].Version != 2 {
		t.Fatalf("expected only v2 applied, got %+v", steps)
	}
}

func TestRunLogsEachStep(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	migrations := []Migration{
		{Version: 2, Description: "rename field", Upgrade: func(d []byte) ([]byte, error) { return d, nil }},
	}
	if _, _, err := Run(nil, 1, migrations, log); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "rename field") {
		t.Errorf("expected description in log, got %q", buf.String())
	}
}

func TestPending(t *testing.T) {
	migrations := []Migration{{Version: 4}, {Version: 2}, {Version: 3}}
	got := Pending(2, migrations)
	if len(got) != 2 || got[0].Version != 3 || got[1].Version != 4 {
		t.Fatalf("unexpected pending %+v", got)
	}
	if len(Pending(4, migrations)) != 0 {
		t.Fatal("expected nothing pending at latest version")
	}
}

// ///////////////////////////////////////////////
// Registry
// ///////////////////////////////////////////////

func TestRegistryCheck(t *testing.T) {
	r := &Registry{CurrentVersion: 2}
	if err := r.Check(2); err != nil {
		t.Fatalf("current version should pass, got %v", err)
	}
	if err := r.Check(3); !errors.Is(err, ErrTooNew) {
		t.Fatalf("expected ErrTooNew, got %v", err)
	}
	if _, _, err := r.Run([]byte("x"), 5, quiet()); !errors.Is(err, ErrTooNew) {
		t.Fatalf("Run should refuse newer files, got %v", err)
	}
}

func TestRegistryNeedsMigration(t *testing.T) {
	r := &Registry{CurrentVersion: 2}
	tests := []struct {
		version int
		want    bool
	}{
		{0, true},
		{1, true},
		{2, false},
		{3, false},
	}
	for _, tt := range tests {
		if got := r.NeedsMigration(tt.version); got != tt.want {
			t.Errorf("NeedsMigration(%d) = %v, want %v", tt.version, got, tt.want)
		}
	}
}

func TestRegisterPanicsOnDuplicate(t *testing.T) {
	r := &Registry{CurrentVersion: 3}
	r.Register(Migration{Version: 2, Description: "first"})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate version")
		}
	}()
	r.Register(Migration{Version: 2, Description: "second"})
}

func TestRegisterPanicsBeyondCurrent(t *testing.T) {
	r := &Registry{CurrentVersion: 1}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for version beyond current")
		}
	}()
	r.Register(Migration{Version: 2, Description: "too far"})
}
