package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"character-chat/internal/domain"
)

const characterPrefix = "character:"

// ParamGetter serves configuration values (character prompts, the global
// prompt, the upstream credential) straight from a Store, using the
// parameter name as the key.
type ParamGetter struct {
	store Store
}

func NewParamGetter(s Store) (*ParamGetter, error) {
	if s == nil {
		return nil, errors.New("kv: store must not be nil")
	}
	return &ParamGetter{store: s}, nil
}

// GetParameter returns the stored value or an error wrapping
// domain.ErrNotFound when the key is absent.
func (p *ParamGetter) GetParameter(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("kv: parameter name is required")
	}
	v, found, err := p.store.Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("kv: get parameter %q: %w", name, err)
	}
	if !found {
		return "", fmt.Errorf("kv: parameter %q: %w", name, domain.ErrNotFound)
	}
	return v, nil
}

// Characters lists the character ids that have a prompt stored under
// "character:<id>".
func (p *ParamGetter) Characters(ctx context.Context) ([]string, error) {
	keys, err := p.store.List(ctx, characterPrefix)
	if err != nil {
		return nil, fmt.Errorf("kv: list characters: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id := strings.TrimPrefix(k, characterPrefix); id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
