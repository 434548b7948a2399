// Package quota measures aggregate on-disk size of the index's
// persistence root and gates ingestion against a configured ceiling.
package quota

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"codebase-rag/internal/collections"
	"codebase-rag/internal/config"
	"codebase-rag/internal/index"
	"codebase-rag/internal/models"
)

// Status classifies storage usage against the configured limit.
type Status int

const (
	StatusHealthy Status = iota
	StatusWarning
	StatusCritical // ingestion blocked
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "HEALTHY"
	case StatusWarning:
		return "WARNING"
	case StatusCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Snapshot is an immutable aggregate measurement. A fresh snapshot
// replaces the previous one wholesale; readers never observe a mix of
// old total and new timestamp.
type Snapshot struct {
	TotalBytes int64
	MeasuredAt time.Time
}

// ReclaimResult reports one session cleanup.
type ReclaimResult struct {
	Deleted    int
	BytesFreed int64
}

// Manager caches a time-bounded usage measurement and performs bulk
// deletion of a session's collections. The cached snapshot is the only
// shared mutable state and is swapped atomically.
type Manager struct {
	root     string
	limit    int64
	warnPct  int
	critPct  int
	cacheTTL time.Duration
	store    index.Store

	snap atomic.Pointer[Snapshot]
	now  func() time.Time
}

func New(root string, store index.Store, cfg config.QuotaConfig) *Manager {
	return &Manager{
		root:     root,
		limit:    cfg.StorageLimitBytes,
		warnPct:  cfg.WarningThresholdPct,
		critPct:  cfg.CriticalThresholdPct,
		cacheTTL: time.Duration(cfg.CacheTTLSeconds) * time.Second,
		store:    store,
		now:      time.Now,
	}
}

// Limit returns the configured storage ceiling in bytes.
func (m *Manager) Limit() int64 { return m.limit }

// CurrentUsage returns the cached snapshot while it is fresh,
// otherwise remeasures and atomically replaces the cache.
func (m *Manager) CurrentUsage(ctx context.Context) (Snapshot, error) {
	if cached := m.snap.Load(); cached != nil && m.now().Sub(cached.MeasuredAt) < m.cacheTTL {
		return *cached, nil
	}
	total, err := m.measure(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	fresh := &Snapshot{TotalBytes: total, MeasuredAt: m.now()}
	m.snap.Store(fresh)
	return *fresh, nil
}

// Status classifies usage against limit: HEALTHY below the warning
// threshold, WARNING from there to the critical threshold, CRITICAL at
// or above it.
func (m *Manager) Status(usageBytes, limitBytes int64) Status {
	if limitBytes <= 0 {
		return StatusHealthy
	}
	pct := float64(usageBytes) / float64(limitBytes) * 100
	switch {
	case pct >= float64(m.critPct):
		return StatusCritical
	case pct >= float64(m.warnPct):
		return StatusWarning
	default:
		return StatusHealthy
	}
}

// Check gates an ingestion run: at CRITICAL usage it fails with
// models.ErrQuotaExceeded. Called at the start of each run, not only
// at startup.
func (m *Manager) Check(ctx context.Context) error {
	snap, err := m.CurrentUsage(ctx)
	if err != nil {
		return fmt.Errorf("failed to measure storage usage: %v", err)
	}
	if m.Status(snap.TotalBytes, m.limit) == StatusCritical {
		return fmt.Errorf("usage %d of %d bytes: %w", snap.TotalBytes, m.limit, models.ErrQuotaExceeded)
	}
	return nil
}

// Reclaim deletes every collection of the session and reports the
// count and bytes freed. It measures directly before and after rather
// than trusting the cache; BytesFreed is clamped at zero if storage
// grew concurrently.
func (m *Manager) Reclaim(ctx context.Context, sessionID string) (ReclaimResult, error) {
	before, err := m.measure(ctx)
	if err != nil {
		return ReclaimResult{}, fmt.Errorf("failed to measure storage before reclaim: %v", err)
	}

	deleted, delErr := m.store.DeleteMatching(ctx, collections.Prefix(sessionID))

	after, err := m.measure(ctx)
	if err != nil {
		after = before
	}
	freed := before - after
	if freed < 0 {
		log.Warn().Int64("before", before).Int64("after", after).
			Str("session_id", sessionID).Msg("storage grew during reclaim, clamping bytes freed")
		freed = 0
	}
	m.snap.Store(&Snapshot{TotalBytes: after, MeasuredAt: m.now()})

	result := ReclaimResult{Deleted: deleted, BytesFreed: freed}
	if delErr != nil {
		return result, &models.ReclaimError{Deleted: deleted, Err: delErr}
	}
	return result, nil
}

// measure sums file sizes under the persistence root, skipping
// per-file stat errors. A missing root counts as zero usage.
func (m *Manager) measure(ctx context.Context) (int64, error) {
	var total int64
	err := filepath.WalkDir(m.root, func(path string, d fs.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			if path == m.root {
				return filepath.SkipAll
			}
			log.Debug().Err(err).Str("path", path).Msg("skipping unreadable entry during measurement")
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("cannot stat file during measurement")
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
