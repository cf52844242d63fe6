// Package session keeps the rolling conversation history for each
// (client, character) pair.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"character-chat/internal/domain"
	"character-chat/internal/kv"
)

const (
	// DefaultMaxMessages keeps five user/assistant exchanges.
	DefaultMaxMessages = 10
	DefaultTTL         = 24 * time.Hour
)

type Config struct {
	MaxMessages int
	TTL         time.Duration
	Logger      *slog.Logger
}

// Manager reads and rewrites history as a whole JSON value. Concurrent
// turns for the same key race: the last writer wins.
type Manager struct {
	store       kv.Store
	maxMessages int
	ttl         time.Duration
	log         *slog.Logger
}

func New(s kv.Store, cfg Config) (*Manager, error) {
	if s == nil {
		return nil, errors.New("session: store must not be nil")
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultMaxMessages
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{store: s, maxMessages: cfg.MaxMessages, ttl: cfg.TTL, log: cfg.Logger}, nil
}

// Key returns the store key holding history for client and character.
func Key(client, characterID string) string {
	return "history:" + client + ":" + characterID
}

// LoadHistory returns the stored turns in insertion order. Absent or
// unparseable data yields an empty history; only store failures are errors.
func (m *Manager) LoadHistory(ctx context.Context, client, characterID string) ([]domain.Turn, error) {
	key := Key(client, characterID)
	raw, found, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("session: read %q: %w", key, err)
	}
	if !found {
		return []domain.Turn{}, nil
	}
	history, ok := decodeHistory(raw)
	if !ok {
		m.log.DebugContext(ctx, "discarding malformed history", "key", key)
		return []domain.Turn{}, nil
	}
	return history, nil
}

// AppendTurn adds one user turn and one assistant turn, keeps the newest
// entries up to the cap and writes the history back with a fresh TTL.
func (m *Manager) AppendTurn(ctx context.Context, client, characterID, userText, assistantText string) error {
	history, err := m.LoadHistory(ctx, client, characterID)
	if err != nil {
		return err
	}
	history = append(history,
		domain.Turn{Role: domain.RoleUser, Content: userText},
		domain.Turn{Role: domain.RoleAssistant, Content: assistantText},
	)
	history = Trim(history, m.maxMessages)

	buf, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("session: encode history: %w", err)
	}
	key := Key(client, characterID)
	if err := m.store.Put(ctx, key, string(buf), m.ttl); err != nil {
		return fmt.Errorf("session: write %q: %w", key, err)
	}
	return nil
}

// Trim keeps the last max entries, dropping from the oldest end.
func Trim(history []domain.Turn, max int) []domain.Turn {
	if max <= 0 || len(history) <= max {
		return history
	}
	return history[len(history)-max:]
}

// decodeHistory is the parse-or-default policy for stored history: a JSON
// null decodes to empty, anything else that is not a turn array fails.
func decodeHistory(raw string) ([]domain.Turn, bool) {
	var history []domain.Turn
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, false
	}
	if history == nil {
		history = []domain.Turn{}
	}
	return history, true
}
