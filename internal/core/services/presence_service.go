package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

const (
	ChannelRegistry = "channel"
	VoiceRegistry   = "voice"
)

type presenceRegistry struct {
	name    string
	store   ports.PresenceStore
	ttl     time.Duration
	now     func() time.Time
	metrics *MetricsService
	logger  *zap.SugaredLogger
}

// NewPresenceRegistry tracks liveness in store. Entries count as active while
// LastSeen is strictly newer than now-ttl; name labels logs and metrics.
func NewPresenceRegistry(
	name string,
	store ports.PresenceStore,
	ttl time.Duration,
	metrics *MetricsService,
	logger *zap.SugaredLogger,
	opts ...Option,
) ports.PresenceRegistry {
	o := buildOptions(opts)
	return &presenceRegistry{
		name:    name,
		store:   store,
		ttl:     ttl,
		now:     o.now,
		metrics: metrics,
		logger:  logger,
	}
}

func (r *presenceRegistry) Now() time.Time {
	return r.now()
}

func (r *presenceRegistry) Touch(ctx context.Context, who domain.Participant, channelID domain.ChannelID) error {
	if who.ID == "" {
		return domain.ErrInvalidUserID
	}
	if channelID == "" {
		return domain.ErrInvalidChannel
	}
	return r.store.Upsert(ctx, domain.PresenceEntry{
		UserID:    who.ID,
		Nick:      who.Nick,
		ChannelID: channelID,
		LastSeen:  r.now(),
	})
}

func (r *presenceRegistry) Refresh(ctx context.Context, id domain.UserID) (bool, error) {
	return r.store.Refresh(ctx, id, r.now())
}

func (r *presenceRegistry) CountActive(ctx context.Context, channelID domain.ChannelID, now time.Time) (int, error) {
	entries, err := r.store.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("snapshot %s presence: %w", r.name, err)
	}

	n := 0
	for _, e := range entries {
		if e.ChannelID == channelID && e.ActiveAt(now, r.ttl) {
			n++
		}
	}
	return n, nil
}

// Active returns the active entries of channelID ordered by nick.
func (r *presenceRegistry) Active(ctx context.Context, channelID domain.ChannelID, now time.Time) ([]domain.PresenceEntry, error) {
	entries, err := r.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s presence: %w", r.name, err)
	}

	out := make([]domain.PresenceEntry, 0, len(entries))
	for _, e := range entries {
		if e.ChannelID == channelID && e.ActiveAt(now, r.ttl) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Nick != out[j].Nick {
			return out[i].Nick < out[j].Nick
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (r *presenceRegistry) Remove(ctx context.Context, id domain.UserID) error {
	return r.store.Remove(ctx, id)
}

// Sweep fixes the cutoff first, then deletes expired entries found in a
// snapshot. An entry touched after the snapshot survives because removal
// re-checks LastSeen against the cutoff.
func (r *presenceRegistry) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-r.ttl)
	entries, err := r.store.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("snapshot %s presence: %w", r.name, err)
	}

	removed, remaining := 0, 0
	for _, e := range entries {
		if e.ActiveAt(now, r.ttl) {
			remaining++
			continue
		}
		ok, err := r.store.RemoveIfStale(ctx, e.UserID, cutoff)
		if err != nil {
			return removed, fmt.Errorf("expire %s presence: %w", r.name, err)
		}
		if ok {
			removed++
		} else {
			remaining++
		}
	}

	r.metrics.PresenceExpired(r.name, removed)
	r.metrics.SetActiveUsers(r.name, remaining)
	if removed > 0 {
		r.logger.Debugw("presence expired",
			"registry", r.name,
			"removed", removed,
			"remaining", remaining,
		)
	}
	return removed, nil
}
