package world

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Manager manages all active zones.
type Manager struct {
	mu     sync.RWMutex
	zones  map[int]*Zone
	cfg    ZoneConfig
	hooks  Hooks
	logger *zap.Logger
}

// NewManager creates a new Manager. Every zone it creates shares cfg and hooks.
func NewManager(cfg ZoneConfig, hooks Hooks, logger *zap.Logger) *Manager {
	return &Manager{
		zones:  make(map[int]*Zone),
		cfg:    cfg,
		hooks:  hooks,
		logger: logger,
	}
}

// GetOrCreate returns the zone for zoneID, creating and starting it if needed.
func (m *Manager) GetOrCreate(zoneID int) *Zone {
	// Fast path: zone already exists.
	m.mu.RLock()
	z, ok := m.zones[zoneID]
	m.mu.RUnlock()
	if ok {
		return z
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Double-check after acquiring write lock.
	if z, ok = m.zones[zoneID]; ok {
		return z
	}
	z = NewZone(zoneID, m.cfg, m.hooks, m.logger)
	m.zones[zoneID] = z
	go z.Run()
	m.logger.Info("zone created", zap.Int("zone_id", zoneID))
	return z
}

// Get returns the zone for zoneID, or nil if it does not exist.
func (m *Manager) Get(zoneID int) *Zone {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.zones[zoneID]
}

// Destroy stops a zone and tears down all of its agents.
func (m *Manager) Destroy(zoneID int) bool {
	m.mu.Lock()
	z, ok := m.zones[zoneID]
	if ok {
		delete(m.zones, zoneID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	z.Stop()
	z.UnpossessAll()
	m.logger.Info("zone destroyed", zap.Int("zone_id", zoneID))
	return true
}

// ZoneIDs returns the ids of all active zones, ascending.
func (m *Manager) ZoneIDs() []int {
	m.mu.RLock()
	ids := make([]int, 0, len(m.zones))
	for id := range m.zones {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Ints(ids)
	return ids
}

// ActiveZoneCount returns the number of active zones.
func (m *Manager) ActiveZoneCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.zones)
}

// StopAll stops every zone (server shutdown).
func (m *Manager) StopAll() {
	m.mu.Lock()
	zones := make([]*Zone, 0, len(m.zones))
	for _, z := range m.zones {
		zones = append(zones, z)
	}
	m.zones = make(map[int]*Zone)
	m.mu.Unlock()
	for _, z := range zones {
		z.Stop()
		z.UnpossessAll()
	}
}
