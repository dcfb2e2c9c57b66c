package server

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/coursevault/internal/modules/modulemanager"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// HostStats is a snapshot of host resource usage
type HostStats struct {
	CPUPercent    float64  `json:"cpu_percent"`
	CPUCount      int      `json:"cpu_count"`
	LoadAverage1  float64  `json:"load_average_1,omitempty"`
	MemoryPercent float64  `json:"memory_percent"`
	MemoryUsedMB  uint64   `json:"memory_used_mb"`
	MemoryTotalMB uint64   `json:"memory_total_mb"`
	DiskPath      string   `json:"disk_path,omitempty"`
	DiskPercent   float64  `json:"disk_percent"`
	DiskFreeGB    float64  `json:"disk_free_gb"`
	Goroutines    int      `json:"goroutines"`
	Errors        []string `json:"errors,omitempty"`
}

// SystemHealth aggregates host stats with the health of every module
type SystemHealth struct {
	Status    modulemanager.HealthState             `json:"status"`
	Timestamp time.Time                             `json:"timestamp"`
	Uptime    string                                `json:"uptime"`
	Host      HostStats                             `json:"host"`
	Modules   map[string]modulemanager.HealthStatus `json:"modules"`
	Scanner   map[string]interface{}                `json:"scanner,omitempty"`
}

// collectHostStats reads cpu, memory and disk usage. Individual failures are
// reported in Errors rather than failing the whole snapshot.
func collectHostStats(ctx context.Context, diskPath string) HostStats {
	stats := HostStats{
		CPUCount:   runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
	}

	if percents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false); err != nil {
		stats.Errors = append(stats.Errors, "cpu: "+err.Error())
	} else if len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		stats.LoadAverage1 = avg.Load1
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		stats.Errors = append(stats.Errors, "memory: "+err.Error())
	} else {
		stats.MemoryPercent = vm.UsedPercent
		stats.MemoryUsedMB = vm.Used / (1 << 20)
		stats.MemoryTotalMB = vm.Total / (1 << 20)
	}

	if diskPath != "" {
		stats.DiskPath = diskPath
		if usage, err := disk.UsageWithContext(ctx, diskPath); err != nil {
			stats.Errors = append(stats.Errors, "disk: "+err.Error())
		} else {
			stats.DiskPercent = usage.UsedPercent
			stats.DiskFreeGB = float64(usage.Free) / (1 << 30)
		}
	}
	return stats
}

// overallState is the worst state reported by any module
func overallState(modules map[string]modulemanager.HealthStatus) modulemanager.HealthState {
	state := modulemanager.HealthStateHealthy
	for _, status := range modules {
		switch status.Status {
		case modulemanager.HealthStateUnhealthy:
			return modulemanager.HealthStateUnhealthy
		case modulemanager.HealthStateDegraded:
			state = modulemanager.HealthStateDegraded
		}
	}
	return state
}

// getSystemHealth handles GET /api/system/health
func (s *Server) getSystemHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	modules := s.registry.HealthCheck(ctx)
	health := SystemHealth{
		Status:    overallState(modules),
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		Host:      collectHostStats(ctx, s.cfg.Database.DataDir),
		Modules:   modules,
	}
	if s.scanner != nil {
		health.Scanner = s.scanner.Status()
	}

	code := http.StatusOK
	if health.Status == modulemanager.HealthStateUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, health)
}
