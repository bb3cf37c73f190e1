package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/cync-lan-core/internal/bridgepool"
	"github.com/nerrad567/cync-lan-core/internal/device"
	"github.com/nerrad567/cync-lan-core/internal/infrastructure/config"
	"github.com/nerrad567/cync-lan-core/internal/protocol"
)

// Logger is the logging interface the scheduler uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// MQTTStatusProvider reports whether the MQTT bridge currently has a live
// broker connection, for inclusion in PoolStats.
type MQTTStatusProvider interface {
	IsConnected() bool
}

// PoolStats is a live snapshot of pool health (§4.7), kept in memory so the
// MQTT bridge entity's binary sensors can read current counts instead of
// re-deriving them from the pool on every publish.
type PoolStats struct {
	TotalBridges    int
	ReadyBridges    int
	PendingCommands int
	MQTTConnected   bool
	LastMeshRefresh time.Time
}

// Scheduler runs the mesh-refresh and pool-logger background tasks and
// keeps a live PoolStats snapshot.
type Scheduler struct {
	pool     *bridgepool.Pool
	registry *device.Registry
	mqtt     MQTTStatusProvider
	logger   Logger

	refreshNow chan struct{}

	mu    sync.RWMutex
	stats PoolStats

	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Scheduler. Call Start to begin the background tasks.
func New(pool *bridgepool.Pool, registry *device.Registry, mqtt MQTTStatusProvider) *Scheduler {
	return &Scheduler{
		pool:       pool,
		registry:   registry,
		mqtt:       mqtt,
		logger:     noopLogger{},
		refreshNow: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// SetLogger installs a logger; the zero value is a no-op.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// Start launches the mesh-refresh and pool-logger loops. Both stop when ctx
// is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.meshRefreshLoop(ctx)
	go s.poolLogLoop(ctx)
}

// Stop halts both background loops and waits for them to exit. Safe to call
// more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

// RequestMeshRefresh triggers an immediate mesh-info broadcast outside the
// regular 300s cadence, for the bridge entity's "request_mesh_refresh"
// button (§4.5).
func (s *Scheduler) RequestMeshRefresh() {
	select {
	case s.refreshNow <- struct{}{}:
	default: // a refresh is already queued, drop the duplicate request
	}
}

// Stats returns the current pool snapshot.
func (s *Scheduler) Stats() PoolStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// TotalBridges, ReadyBridges and PendingCommands satisfy
// mqttbridge.PoolStatsProvider, letting the bridge entity's state document
// read these counters without mqttbridge importing this package.

func (s *Scheduler) TotalBridges() int { return s.Stats().TotalBridges }

func (s *Scheduler) ReadyBridges() int { return s.Stats().ReadyBridges }

func (s *Scheduler) PendingCommands() int { return s.Stats().PendingCommands }

func (s *Scheduler) meshRefreshLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(config.MeshRefreshPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.refreshMesh(ctx)
		case <-s.refreshNow:
			s.refreshMesh(ctx)
		}
	}
}

// refreshMesh queries every ready bridge for its current status, spaced by
// BridgeSpacing so the mesh isn't flooded with simultaneous queries (§4.7).
func (s *Scheduler) refreshMesh(ctx context.Context) {
	ready := s.pool.Ready()
	s.logger.Debug("maintenance: mesh refresh starting", "bridges", len(ready))

	for i, b := range ready {
		targetID := uint16(b.DeviceID)
		inner := protocol.EncodeQueryStatus(b.DeviceID)
		err := b.Send(targetID, func(msgID [3]byte) ([]byte, error) {
			return protocol.EncodeCommand(targetID, b.QueueID, msgID, inner)
		}, nil, func(err error) {
			s.logger.Warn("maintenance: mesh refresh query timed out", "device_id", b.DeviceID, "error", err)
		})
		if err != nil {
			s.logger.Warn("maintenance: mesh refresh query failed", "device_id", b.DeviceID, "error", err)
		}

		if i < len(ready)-1 {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-time.After(config.BridgeSpacing):
			}
		}
	}

	s.mu.Lock()
	s.stats.LastMeshRefresh = time.Now()
	s.mu.Unlock()
	s.logger.Info("maintenance: mesh refresh complete", "bridges", len(ready))
}

func (s *Scheduler) poolLogLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(config.PoolLogPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.logPoolStats()
		}
	}
}

func (s *Scheduler) logPoolStats() {
	stats := s.snapshot()

	s.mu.Lock()
	s.stats = stats
	s.mu.Unlock()

	devStats := s.registry.GetStats()
	s.logger.Info("maintenance: pool status",
		"total_bridges", stats.TotalBridges,
		"ready_bridges", stats.ReadyBridges,
		"pending_commands", stats.PendingCommands,
		"mqtt_connected", stats.MQTTConnected,
		"total_devices", devStats.TotalDevices,
		"online_devices", devStats.OnlineDevices,
		"pending_devices", devStats.PendingCount,
	)
}

func (s *Scheduler) snapshot() PoolStats {
	all := s.pool.All()
	total, ready := s.pool.Count()

	pending := 0
	for _, b := range all {
		pending += b.PendingCount()
	}

	connected := false
	if s.mqtt != nil {
		connected = s.mqtt.IsConnected()
	}

	s.mu.RLock()
	last := s.stats.LastMeshRefresh
	s.mu.RUnlock()

	return PoolStats{
		TotalBridges:    total,
		ReadyBridges:    ready,
		PendingCommands: pending,
		MQTTConnected:   connected,
		LastMeshRefresh: last,
	}
}
