// Package health reports liveness of the application and the host it
// runs on.
package health

import (
	"context"
	"database/sql"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Pinger is implemented by database handles.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Component is the health of one dependency.
type Component struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HostInfo summarizes the host the service runs on.
type HostInfo struct {
	Hostname      string  `json:"hostname"`
	Platform      string  `json:"platform"`
	UptimeSeconds uint64  `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
}

// Report is the full health snapshot.
type Report struct {
	Status     string               `json:"status"`
	Version    string               `json:"version"`
	Uptime     string               `json:"uptime"`
	Components map[string]Component `json:"components"`
	Host       *HostInfo            `json:"host,omitempty"`
}

// Checker produces health reports.
type Checker struct {
	version string
	started time.Time
	db      Pinger
}

// NewChecker creates a checker. db may be nil when the application runs on
// the in-memory store.
func NewChecker(version string, db Pinger) *Checker {
	return &Checker{
		version: version,
		started: time.Now().UTC(),
		db:      db,
	}
}

// Check gathers component and host health. Degraded components flip the
// overall status but never fail the call.
func (c *Checker) Check(ctx context.Context) Report {
	report := Report{
		Status:     "ok",
		Version:    c.version,
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		Components: make(map[string]Component),
	}

	if c.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := c.db.PingContext(pingCtx)
		cancel()
		if err != nil {
			report.Status = "degraded"
			report.Components["database"] = Component{Status: "down", Error: err.Error()}
		} else {
			report.Components["database"] = Component{Status: "ok"}
		}
	} else {
		report.Components["database"] = Component{Status: "ok"}
	}

	report.Host = collectHost()
	return report
}

func collectHost() *HostInfo {
	info := &HostInfo{}

	if hostInfo, err := host.Info(); err == nil {
		info.Hostname = hostInfo.Hostname
		info.Platform = hostInfo.Platform
		info.UptimeSeconds = hostInfo.Uptime
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		info.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryPercent = vm.UsedPercent
		info.MemoryUsedMB = vm.Used / 1024 / 1024
	}
	return info
}

var _ Pinger = (*sql.DB)(nil)
