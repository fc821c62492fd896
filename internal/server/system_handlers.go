package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/quantive/chatfolio/internal/database"
	"github.com/quantive/chatfolio/internal/modules/portfolio"
)

// SystemHandlers serves health and system monitoring endpoints.
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	portfolioDB *database.DB
	analyticsDB *database.DB
	sessions    *portfolio.SessionStore
	startedAt   time.Time
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	portfolioDB *database.DB,
	analyticsDB *database.DB,
	sessions *portfolio.SessionStore,
	startedAt time.Time,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		dataDir:     dataDir,
		portfolioDB: portfolioDB,
		analyticsDB: analyticsDB,
		sessions:    sessions,
		startedAt:   startedAt,
	}
}

// HandleHealth reports service health including database reachability.
// GET /health and GET /api/health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	databases := map[string]string{}
	status := "ok"

	for _, db := range []*database.DB{h.portfolioDB, h.analyticsDB} {
		if db == nil {
			continue
		}
		if err := db.Conn().Ping(); err != nil {
			databases[db.Name()] = "unreachable"
			status = "degraded"
		} else {
			databases[db.Name()] = "ok"
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	h.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"databases": databases,
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// HandleSystemInfo reports process and host statistics.
// GET /api/system/info
func (h *SystemHandlers) HandleSystemInfo(w http.ResponseWriter, r *http.Request) {
	cpuAvg, ramPercent := h.getSystemStats()

	info := map[string]interface{}{
		"uptime":        time.Since(h.startedAt).Round(time.Second).String(),
		"goVersion":     runtime.Version(),
		"goroutines":    runtime.NumGoroutine(),
		"cpuPercent":    cpuAvg,
		"memoryPercent": ramPercent,
		"dataDirSizeMb": h.getDirSize(h.dataDir),
	}
	if h.sessions != nil {
		info["activeSessions"] = h.sessions.SessionCount()
	}

	h.writeJSON(w, http.StatusOK, info)
}

// getSystemStats calculates CPU and RAM usage percentages.
// Uses a 100ms sampling interval so the endpoint stays responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
