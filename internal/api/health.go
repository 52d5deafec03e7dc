package api

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/skinscan/skinscan/internal/classifier"
	"github.com/skinscan/skinscan/internal/logger"
)

const healthProbeTimeout = 2 * time.Second

// Health status values.
const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
	storeDisabled  = "disabled"
	storeOK        = "ok"
	storeError     = "error"
)

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status    string          `json:"status"`
	Name      string          `json:"name,omitempty"`
	Version   string          `json:"version"`
	BuildDate string          `json:"build_date"`
	Uptime    string          `json:"uptime"`
	Model     classifier.Info `json:"model"`
	History   string          `json:"history"`
	System    *SystemInfo     `json:"system,omitempty"`
}

// SystemInfo is a point-in-time view of host and process resources.
type SystemInfo struct {
	CPUs            int     `json:"cpus"`
	Goroutines      int     `json:"goroutines"`
	MemoryTotal     uint64  `json:"memory_total"`
	MemoryAvailable uint64  `json:"memory_available"`
	MemoryUsedPct   float64 `json:"memory_used_percent"`
	ProcessRSS      uint64  `json:"process_rss,omitempty"`
}

// Health handles GET /api/v1/health. A failing history store degrades the
// status but still answers 200, since classification keeps working.
func (s *Server) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthProbeTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:  statusHealthy,
		Name:    s.settings.Main.Name,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
		Model:   s.service.ModelInfo(),
		History: storeDisabled,
		System:  systemInfo(ctx),
	}
	if s.build != nil {
		resp.Version = s.build.GetVersion()
		resp.BuildDate = s.build.GetBuildDate()
	}

	if s.store != nil {
		resp.History = storeOK
		if err := s.store.Ping(ctx); err != nil {
			GetLogger().WithContext(ctx).Warn("History store ping failed", logger.Error(err))
			resp.History = storeError
			resp.Status = statusDegraded
		}
	}

	return c.JSON(http.StatusOK, resp)
}

func systemInfo(ctx context.Context) *SystemInfo {
	info := &SystemInfo{
		CPUs:       runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		GetLogger().Debug("Failed to read system memory", logger.Error(err))
	} else {
		info.MemoryTotal = vm.Total
		info.MemoryAvailable = vm.Available
		info.MemoryUsedPct = vm.UsedPercent
	}

	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if mi, err := proc.MemoryInfoWithContext(ctx); err == nil {
			info.ProcessRSS = mi.RSS
		}
	}
	return info
}
