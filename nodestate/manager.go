package nodestate

import (
	"context"
	"log"
	"sync"
	"time"

	"ffcentral/loadingbay"
	"ffcentral/navigation"
	"ffcentral/pairing"
)

const redisTimeout = 2 * time.Second

// Manager keeps the last published device and reservation state in memory and
// mirrors it to Redis when one is configured. Reads prefer Redis and fall back
// to memory. Safe for concurrent use.
type Manager struct {
	mu    sync.RWMutex
	redis *RedisStore
	last  State
}

// NewManager returns a manager; redis may be nil.
func NewManager(redis *RedisStore) *Manager {
	return &Manager{redis: redis}
}

// Update records a new pairing snapshot and node reservations.
func (m *Manager) Update(snap pairing.Snapshot, blocks []navigation.NodeBlock) {
	st := State{
		UpdatedAt: snap.Timestamp,
		Fts:       snap.Fts,
		Modules:   snap.Modules,
		Bays:      snap.Bays,
		Blocks:    blocks,
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.last = st
	m.mu.Unlock()

	if m.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := m.redis.SetFts(ctx, st.Fts); err != nil {
		log.Printf("nodestate: mirror fts: %v", err)
		return
	}
	if err := m.redis.SetModules(ctx, st.Modules); err != nil {
		log.Printf("nodestate: mirror modules: %v", err)
		return
	}
	if err := m.redis.SetBays(ctx, st.Bays); err != nil {
		log.Printf("nodestate: mirror loading bays: %v", err)
	}
	if err := m.redis.SetBlocks(ctx, st.Blocks); err != nil {
		log.Printf("nodestate: mirror blocks: %v", err)
	}
	m.redis.SetUpdatedAt(ctx, st.UpdatedAt)
}

// Fts returns the mirrored vehicles.
func (m *Manager) Fts() []pairing.FtsRecord {
	if m.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
		defer cancel()
		if recs, err := m.redis.GetFts(ctx); err == nil && recs != nil {
			return recs
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]pairing.FtsRecord(nil), m.last.Fts...)
}

// Modules returns the mirrored modules.
func (m *Manager) Modules() []pairing.ModuleRecord {
	if m.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
		defer cancel()
		if recs, err := m.redis.GetModules(ctx); err == nil && recs != nil {
			return recs
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]pairing.ModuleRecord(nil), m.last.Modules...)
}

// Blocks returns the mirrored node reservations.
func (m *Manager) Blocks() []navigation.NodeBlock {
	if m.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
		defer cancel()
		if blocks, ok, err := m.redis.GetBlocks(ctx); err == nil && ok {
			return blocks
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]navigation.NodeBlock(nil), m.last.Blocks...)
}

// Bays returns the mirrored loading bay assignments.
func (m *Manager) Bays() map[string]map[loadingbay.Bay]string {
	if m.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
		defer cancel()
		if bays, ok, err := m.redis.GetBays(ctx); err == nil && ok {
			return bays
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]map[loadingbay.Bay]string, len(m.last.Bays))
	for serial, bays := range m.last.Bays {
		cp := make(map[loadingbay.Bay]string, len(bays))
		for b, id := range bays {
			cp[b] = id
		}
		out[serial] = cp
	}
	return out
}

// State returns the in-memory copy of the last update.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Reset forgets everything and clears Redis.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.last = State{}
	m.mu.Unlock()
	if m.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := m.redis.FlushAll(ctx); err != nil {
		log.Printf("nodestate: flush redis: %v", err)
	}
}
