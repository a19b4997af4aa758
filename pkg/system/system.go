// SPDX-License-Identifier: GPL-2.0-or-later

// Package system polls host resource usage.
package system

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"replay/pkg/log"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Status stores system status.
type Status struct {
	CPUUsage  int `json:"cpuUsage"`
	RAMUsage  int `json:"ramUsage"`
	DiskUsage int `json:"diskUsage"`
}

type (
	cpuFunc  func(context.Context, time.Duration, bool) ([]float64, error)
	ramFunc  func() (*mem.VirtualMemoryStat, error)
	diskFunc func(string) (*disk.UsageStat, error)
)

// System polls cpu, ram and disk usage of the storage directory.
type System struct {
	cpu  cpuFunc
	ram  ramFunc
	disk diskFunc

	storageDir   string
	status       Status
	interval     time.Duration
	timeZonePath string

	logger log.ILogger
	mu     sync.Mutex
	o      sync.Once
}

// New returns new System.
func New(storageDir string, logger log.ILogger) *System {
	return &System{
		cpu:  cpu.PercentWithContext,
		ram:  mem.VirtualMemory,
		disk: disk.Usage,

		storageDir:   storageDir,
		interval:     10 * time.Second,
		timeZonePath: "/etc/timezone",

		logger: logger,
	}
}

func (s *System) update(ctx context.Context) error {
	cpuUsage, err := s.cpu(ctx, s.interval, false)
	if err != nil {
		return fmt.Errorf("cpu usage: %w", err)
	}
	ramUsage, err := s.ram()
	if err != nil {
		return fmt.Errorf("ram usage: %w", err)
	}
	diskUsage, err := s.disk(s.storageDir)
	if err != nil {
		return fmt.Errorf("disk usage: %w", err)
	}

	s.mu.Lock()
	s.status = Status{
		CPUUsage:  int(cpuUsage[0]),
		RAMUsage:  int(ramUsage.UsedPercent),
		DiskUsage: int(diskUsage.UsedPercent),
	}
	s.mu.Unlock()

	return nil
}

// StatusLoop updates system status until context is canceled.
func (s *System) StatusLoop(ctx context.Context) {
	s.o.Do(func() {
		for {
			if ctx.Err() != nil {
				return
			}
			if err := s.update(ctx); err != nil {
				s.logger.Error().Src("system").
					Msgf("update status: %v", err)
			}
		}
	})
}

// Status returns cpu, ram and disk usage.
func (s *System) Status() Status {
	defer s.mu.Unlock()
	s.mu.Lock()
	return s.status
}

// TimeZone returns system time zone.
func (s *System) TimeZone() (string, error) {
	data, err := os.ReadFile(s.timeZonePath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
