// Package sampler supplies periodic resource readings for the detector.
// OS-level collection is treated as a capability: callers depend on the
// Sampler interface, and SystemSampler is the gopsutil-backed default.
package sampler

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/hostpulse/backend/internal/model"
)

type Sampler interface {
	Sample(ctx context.Context) (model.Sample, error)

	// SystemLoad returns the 1-minute load average as a percentage of
	// available CPUs, for alert context.
	SystemLoad(ctx context.Context) (float64, error)
}

// SystemSampler reads host metrics via gopsutil.
type SystemSampler struct {
	cpuInterval time.Duration
}

func NewSystemSampler() *SystemSampler {
	return &SystemSampler{cpuInterval: 500 * time.Millisecond}
}

func (s *SystemSampler) Sample(ctx context.Context) (model.Sample, error) {
	cpuPercents, err := cpu.PercentWithContext(ctx, s.cpuInterval, false)
	if err != nil || len(cpuPercents) == 0 {
		return model.Sample{}, fmt.Errorf("failed to read cpu usage: %w", err)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return model.Sample{}, fmt.Errorf("failed to read memory usage: %w", err)
	}

	var ioBytes uint64
	if counters, err := disk.IOCountersWithContext(ctx); err == nil {
		for _, c := range counters {
			ioBytes += c.ReadBytes + c.WriteBytes
		}
	}

	procCount := 0
	if pids, err := process.PidsWithContext(ctx); err == nil {
		procCount = len(pids)
	}

	return model.Sample{
		CPUPercent:    cpuPercents[0],
		MemoryPercent: vm.UsedPercent,
		IOBytes:       ioBytes,
		ProcessCount:  procCount,
		Timestamp:     time.Now(),
	}, nil
}

func (s *SystemSampler) SystemLoad(ctx context.Context) (float64, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read load average: %w", err)
	}
	counts, err := cpu.CountsWithContext(ctx, true)
	if err != nil || counts == 0 {
		counts = 1
	}
	return avg.Load1 / float64(counts) * 100, nil
}
