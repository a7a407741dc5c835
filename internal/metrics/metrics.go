// Package metrics samples system load for the presence card.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Usage is a CPU and RAM reading, both whole percentages in 0..100.
type Usage struct {
	CPU int
	RAM int
}

// Sampler reads CPU and memory utilisation through gopsutil.
type Sampler struct{}

// Sample returns the current usage. CPU is measured since the previous call,
// so the first reading after start may be coarse.
func (Sampler) Sample(ctx context.Context) (Usage, error) {
	cpus, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Usage{}, fmt.Errorf("sample cpu: %w", err)
	}
	if len(cpus) == 0 {
		return Usage{}, errors.New("sample cpu: no readings")
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Usage{}, fmt.Errorf("sample memory: %w", err)
	}
	return Usage{CPU: Clamp(cpus[0]), RAM: Clamp(vm.UsedPercent)}, nil
}

// Clamp rounds p to the nearest whole percent within 0..100. NaN maps to 0.
func Clamp(p float64) int {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return int(math.Round(p))
}

// Hostname returns the machine name, or "" when it cannot be read.
func Hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}
