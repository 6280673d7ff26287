package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Tiered reads through a local layer and then a remote one, backfilling the
// local layer on remote hits. Every cache error is logged and treated as a
// miss; callers fall back to the source of truth.
type Tiered struct {
	local     Layer
	remote    Layer
	localTTL  time.Duration
	remoteTTL time.Duration
	log       zerolog.Logger

	localHits  atomic.Int64
	remoteHits atomic.Int64
	misses     atomic.Int64
}

// Stats counts lookups since start.
type Stats struct {
	LocalHits  int64 `json:"local_hits"`
	RemoteHits int64 `json:"remote_hits"`
	Misses     int64 `json:"misses"`
	Remote     bool  `json:"remote_enabled"`
}

// NewTiered combines local and remote. remote may be nil.
func NewTiered(local, remote Layer, localTTL, remoteTTL time.Duration, log zerolog.Logger) *Tiered {
	return &Tiered{
		local:     local,
		remote:    remote,
		localTTL:  localTTL,
		remoteTTL: remoteTTL,
		log:       log.With().Str("component", "cache").Logger(),
	}
}

// GetJSON decodes the cached value for key into dst and reports whether it
// was found.
func (t *Tiered) GetJSON(ctx context.Context, key string, dst any) bool {
	if t.lookup(ctx, t.local, "local", key, dst) {
		t.localHits.Add(1)
		return true
	}

	if t.remote != nil {
		raw, ok := t.read(ctx, t.remote, "remote", key)
		if ok {
			err := json.Unmarshal(raw, dst)
			if err == nil {
				t.remoteHits.Add(1)
				t.write(ctx, t.local, "local", key, raw, t.localTTL)
				return true
			}
			t.log.Warn().Err(err).Str("key", key).Msg("Discarding undecodable remote cache entry")
		}
	}

	t.misses.Add(1)
	return false
}

// SetJSON stores v under key in both tiers.
func (t *Tiered) SetJSON(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		t.log.Error().Err(err).Str("key", key).Msg("Failed to encode cache value")
		return
	}
	t.write(ctx, t.local, "local", key, raw, t.localTTL)
	if t.remote != nil {
		t.write(ctx, t.remote, "remote", key, raw, t.remoteTTL)
	}
}

// Invalidate removes key from both tiers.
func (t *Tiered) Invalidate(ctx context.Context, key string) {
	if err := t.local.Delete(ctx, key); err != nil {
		t.log.Warn().Err(err).Str("key", key).Msg("Failed to delete local cache entry")
	}
	if t.remote != nil {
		if err := t.remote.Delete(ctx, key); err != nil {
			t.log.Warn().Err(err).Str("key", key).Msg("Failed to delete remote cache entry")
		}
	}
}

// Stats returns the lookup counters.
func (t *Tiered) Stats() Stats {
	return Stats{
		LocalHits:  t.localHits.Load(),
		RemoteHits: t.remoteHits.Load(),
		Misses:     t.misses.Load(),
		Remote:     t.remote != nil,
	}
}

// Close closes both tiers.
func (t *Tiered) Close() error {
	var errs []error
	if err := t.local.Close(); err != nil {
		errs = append(errs, err)
	}
	if t.remote != nil {
		if err := t.remote.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Tiered) lookup(ctx context.Context, layer Layer, tier, key string, dst any) bool {
	raw, ok := t.read(ctx, layer, tier, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		t.log.Warn().Err(err).Str("tier", tier).Str("key", key).Msg("Discarding undecodable cache entry")
		_ = layer.Delete(ctx, key)
		return false
	}
	return true
}

func (t *Tiered) read(ctx context.Context, layer Layer, tier, key string) ([]byte, bool) {
	raw, ok, err := layer.Get(ctx, key)
	if err != nil {
		t.log.Warn().Err(err).Str("tier", tier).Str("key", key).Msg("Cache read failed")
		return nil, false
	}
	return raw, ok
}

func (t *Tiered) write(ctx context.Context, layer Layer, tier, key string, raw []byte, ttl time.Duration) {
	if err := layer.Set(ctx, key, raw, ttl); err != nil {
		t.log.Warn().Err(err).Str("tier", tier).Str("key", key).Msg("Cache write failed")
	}
}
