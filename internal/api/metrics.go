package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-stage/internal/playback"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Show          string           `json:"show"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          *MQTTMetrics     `json:"mqtt,omitempty"`
	Playback      playback.Stats   `json:"playback"`
	Misses        MissMetrics      `json:"misses"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	FramesSent       uint64 `json:"frames_sent"`
	FramesDropped    uint64 `json:"frames_dropped"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool        `json:"connected"`
	Messages  *mqtt.Stats `json:"messages,omitempty"`
}

// messageCounter is implemented by mqtt.Client.
type messageCounter interface {
	Stats() mqtt.Stats
}

// MissMetrics counts resolution misses since startup.
type MissMetrics struct {
	Total uint64 `json:"total"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns process and playback metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Show:          s.showID,
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			FramesSent:       s.hub.Sent(),
			FramesDropped:    s.hub.Dropped(),
		},
		Playback: s.playback.Stats(),
	}

	if s.mqtt != nil {
		metrics.MQTT = &MQTTMetrics{Connected: s.mqtt.IsConnected()}
		if mc, ok := s.mqtt.(messageCounter); ok {
			stats := mc.Stats()
			metrics.MQTT.Messages = &stats
		}
	}
	if s.misses != nil {
		metrics.Misses.Total = s.misses.Total()
	}
	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
