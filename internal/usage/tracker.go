// Package usage meters chat turns per client per calendar day.
//
// Counts live in the key-value store under usage:{client}:{YYYY-MM-DD}
// (UTC date). Increments are read-then-write, so two concurrent turns from
// the same client can both read the same count and one increment is lost.
package usage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"character-chat/internal/domain"
	"character-chat/internal/kv"
)

const (
	DefaultLimit = 20
	DefaultTTL   = 24 * time.Hour

	dayLayout = "2006-01-02"
)

type Config struct {
	// Limit is the number of turns allowed per client per day.
	Limit int
	// TTL is applied to the record on every increment.
	TTL time.Duration
	// Now returns the wall clock used to pick the day key.
	Now func() time.Time
}

type Tracker struct {
	store kv.Store
	limit int
	ttl   time.Duration
	now   func() time.Time
}

func New(s kv.Store, cfg Config) (*Tracker, error) {
	if s == nil {
		return nil, errors.New("usage: store must not be nil")
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tracker{store: s, limit: cfg.Limit, ttl: cfg.TTL, now: cfg.Now}, nil
}

func (t *Tracker) Limit() int { return t.limit }

// Key returns the usage record key for client on the day containing at.
func Key(client string, at time.Time) string {
	return "usage:" + client + ":" + at.UTC().Format(dayLayout)
}

// CheckQuota reads today's count. A missing record counts as zero.
func (t *Tracker) CheckQuota(ctx context.Context, client string) (domain.Quota, error) {
	count, err := t.read(ctx, Key(client, t.now()))
	if err != nil {
		return domain.Quota{}, err
	}
	return domain.Quota{Allowed: count < t.limit, Count: count}, nil
}

// IncrementQuota re-reads today's count and writes count+1. The TTL
// restarts from this write.
func (t *Tracker) IncrementQuota(ctx context.Context, client string) error {
	key := Key(client, t.now())
	count, err := t.read(ctx, key)
	if err != nil {
		return err
	}
	if err := t.store.Put(ctx, key, strconv.Itoa(count+1), t.ttl); err != nil {
		return fmt.Errorf("usage: write %q: %w", key, err)
	}
	return nil
}

// Remaining returns how many turns are left given count, never negative.
func (t *Tracker) Remaining(count int) int {
	return max(0, t.limit-count)
}

func (t *Tracker) read(ctx context.Context, key string) (int, error) {
	raw, found, err := t.store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("usage: read %q: %w", key, err)
	}
	if !found {
		return 0, nil
	}
	return parseCount(raw), nil
}

// parseCount treats anything that is not a non-negative integer as zero.
func parseCount(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
