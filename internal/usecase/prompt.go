package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"character-chat/internal/domain"
)

const (
	characterKeyPrefix = "character:"
	globalPromptKey    = "global_prompt"
)

type promptContext struct {
	globalPrompt    string
	characterPrompt string
}

// tokenPayload is the JSON shape the credential may be stored in.
type tokenPayload struct {
	Token string `json:"token"`
}

// buildPromptMessages returns the upstream message list in fixed order:
// global prompt, character prompt, stored history, new user turn.
func buildPromptMessages(pc promptContext, userMessage string, history []domain.Turn) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+3)
	messages = append(messages,
		domain.ChatMessage{Role: domain.RoleSystem, Content: pc.globalPrompt},
		domain.ChatMessage{Role: domain.RoleSystem, Content: pc.characterPrompt},
	)
	for _, t := range history {
		messages = append(messages, t.ChatMessage())
	}
	return append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: userMessage})
}

func characterKey(characterID string) string {
	return characterKeyPrefix + characterID
}

// loadPromptContext fetches the per-turn configuration. The global prompt
// is optional; the character prompt and the credential are not.
func (s *ChatService) loadPromptContext(ctx context.Context, characterID string) (promptContext, string, *Error) {
	characterPrompt, err := s.params.GetParameter(ctx, characterKey(characterID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return promptContext{}, "", newError(ErrorConfiguration, "character_prompt_missing", err)
		}
		return promptContext{}, "", newError(ErrorInternal, "config_load_error", err)
	}
	if strings.TrimSpace(characterPrompt) == "" {
		return promptContext{}, "", newError(ErrorConfiguration, "character_prompt_missing", nil)
	}

	globalPrompt, err := s.params.GetParameter(ctx, globalPromptKey)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return promptContext{}, "", newError(ErrorInternal, "config_load_error", err)
		}
		globalPrompt = ""
	}

	rawKey, err := s.params.GetParameter(ctx, s.credentialKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return promptContext{}, "", newError(ErrorConfiguration, "credential_missing", err)
		}
		return promptContext{}, "", newError(ErrorInternal, "config_load_error", err)
	}
	apiKey, err := parseCredential(rawKey)
	if err != nil {
		return promptContext{}, "", newError(ErrorConfiguration, "credential_missing", err)
	}

	return promptContext{globalPrompt: globalPrompt, characterPrompt: characterPrompt}, apiKey, nil
}

// parseCredential accepts either the raw API key or {"token":"..."}.
func parseCredential(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		var tp tokenPayload
		if err := json.Unmarshal([]byte(raw), &tp); err != nil {
			return "", fmt.Errorf("usecase: unmarshal credential as JSON: %w", err)
		}
		raw = strings.TrimSpace(tp.Token)
	}
	if raw == "" {
		return "", errors.New("usecase: API token is empty")
	}
	return raw, nil
}
