package monitor

import (
	"context"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostStats is the host summary shown next to the agents on the health
// endpoint. Every probe is best effort; a failed probe leaves its zero value.
type HostStats struct {
	Hostname     string    `json:"hostname"`
	Platform     string    `json:"platform"`
	Uptime       string    `json:"uptime"`
	BootTime     time.Time `json:"boot_time"`
	Cores        int       `json:"cores"`
	CPUPercent   float64   `json:"cpu_percent"`
	MemoryUsed   string    `json:"memory_used"`
	MemoryTotal  string    `json:"memory_total"`
	MemoryPct    float64   `json:"memory_percent"`
	DiskPath     string    `json:"disk_path"`
	DiskFree     string    `json:"disk_free"`
	DiskUsedPct  float64   `json:"disk_used_percent"`
	GoRoutines   int       `json:"goroutines"`
	ProcessSince string    `json:"process_since"`
}

// Collect samples the host. CPU usage is measured since the previous call so
// the request never blocks on a sampling interval.
func Collect(ctx context.Context, diskPath string, startedAt time.Time) HostStats {
	stats := HostStats{
		Cores:        runtime.NumCPU(),
		GoRoutines:   runtime.NumGoroutine(),
		DiskPath:     diskPath,
		ProcessSince: humanize.Time(startedAt),
	}

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		stats.CPUPercent = pct[0]
	}

	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryUsed = humanize.Bytes(memInfo.Used)
		stats.MemoryTotal = humanize.Bytes(memInfo.Total)
		stats.MemoryPct = memInfo.UsedPercent
	}

	if diskPath != "" {
		if usage, err := disk.UsageWithContext(ctx, diskPath); err == nil {
			stats.DiskFree = humanize.Bytes(usage.Free)
			stats.DiskUsedPct = usage.UsedPercent
		}
	}

	if hostInfo, err := host.InfoWithContext(ctx); err == nil {
		stats.Hostname = hostInfo.Hostname
		stats.Platform = hostInfo.Platform + " " + hostInfo.PlatformVersion
		stats.BootTime = time.Unix(int64(hostInfo.BootTime), 0)
		stats.Uptime = humanize.RelTime(stats.BootTime, time.Now(), "", "")
	}

	return stats
}
