package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"character-chat/internal/domain"
)

const (
	defaultCredentialKey = "venice_api_key"
	// DefaultQuotaMessage is shown to the user once the daily ceiling is reached.
	DefaultQuotaMessage = "本日のチャットは終了しました。また明日お話しましょうね！"
)

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type CompletionClient interface {
	Chat(ctx context.Context, apiKey string, messages []domain.ChatMessage) (string, error)
}

type QuotaTracker interface {
	Remaining(count int) int
	CheckQuota(ctx context.Context, client string) (domain.Quota, error)
	IncrementQuota(ctx context.Context, client string) error
}

type HistoryManager interface {
	LoadHistory(ctx context.Context, client, characterID string) ([]domain.Turn, error)
	AppendTurn(ctx context.Context, client, characterID, userText, assistantText string) error
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type Config struct {
	// CredentialKey names the parameter holding the upstream API key.
	CredentialKey string
	// MaxMessageLength caps the user message in runes. Zero means no cap.
	MaxMessageLength int
	// AllowedCharacters restricts character ids when non-empty.
	AllowedCharacters []string
	// QuotaMessage overrides DefaultQuotaMessage.
	QuotaMessage string
}

type ChatService struct {
	params  ParamGetter
	llm     CompletionClient
	quota   QuotaTracker
	history HistoryManager

	credentialKey string
	maxMessageLen int
	allowed       map[string]struct{}
	quotaMessage  string
}

type TurnInput struct {
	CharacterID string
	UserMessage string
	ClientID    string
}

type TurnOutput struct {
	Message string
	// RemainingChats is estimated from the count read before the increment.
	RemainingChats int
}

type RemainingInput struct {
	ClientID string
}

type RemainingOutput struct {
	RemainingChats int
}

func NewChatService(p ParamGetter, llm CompletionClient, q QuotaTracker, h HistoryManager, cfg Config) (*ChatService, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: completion client must not be nil")
	}
	if q == nil {
		return nil, errors.New("usecase: quota tracker must not be nil")
	}
	if h == nil {
		return nil, errors.New("usecase: history manager must not be nil")
	}
	credentialKey := strings.TrimSpace(cfg.CredentialKey)
	if credentialKey == "" {
		credentialKey = defaultCredentialKey
	}
	if cfg.MaxMessageLength < 0 {
		cfg.MaxMessageLength = 0
	}
	if strings.TrimSpace(cfg.QuotaMessage) == "" {
		cfg.QuotaMessage = DefaultQuotaMessage
	}
	var allowed map[string]struct{}
	for _, id := range cfg.AllowedCharacters {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if allowed == nil {
			allowed = make(map[string]struct{})
		}
		allowed[id] = struct{}{}
	}
	return &ChatService{
		params:        p,
		llm:           llm,
		quota:         q,
		history:       h,
		credentialKey: credentialKey,
		maxMessageLen: cfg.MaxMessageLength,
		allowed:       allowed,
		quotaMessage:  cfg.QuotaMessage,
	}, nil
}

// SubmitTurn runs one chat turn. History and usage are only written after
// the completion call succeeded; nothing is retried.
func (s *ChatService) SubmitTurn(ctx context.Context, in TurnInput) (out TurnOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = TurnOutput{}
			err = newError(ErrorInternal, "panic", fmt.Errorf("usecase: recovered: %v", r))
		}
	}()

	// Identifiers are opaque: they are checked for presence only and used
	// as keys unchanged.
	characterID, client, message := in.CharacterID, in.ClientID, in.UserMessage
	if characterID == "" || client == "" || message == "" {
		return TurnOutput{}, newError(ErrorInvalidRequest, "missing_fields", nil)
	}
	if s.maxMessageLen > 0 && utf8.RuneCountInString(message) > s.maxMessageLen {
		return TurnOutput{}, newError(ErrorInvalidRequest, "message_too_long", nil)
	}
	if s.allowed != nil {
		if _, ok := s.allowed[characterID]; !ok {
			return TurnOutput{}, newError(ErrorInvalidRequest, "unknown_character", nil)
		}
	}

	quota, err := s.quota.CheckQuota(ctx, client)
	if err != nil {
		return TurnOutput{}, newError(ErrorInternal, "usage_read_error", err)
	}
	if !quota.Allowed {
		e := newError(ErrorQuotaExceeded, "daily_limit_exceeded", nil)
		e.Message = s.quotaMessage
		return TurnOutput{}, e
	}

	pc, apiKey, cfgErr := s.loadPromptContext(ctx, characterID)
	if cfgErr != nil {
		return TurnOutput{}, cfgErr
	}

	history, err := s.history.LoadHistory(ctx, client, characterID)
	if err != nil {
		return TurnOutput{}, newError(ErrorInternal, "history_read_error", err)
	}

	reply, err := s.llm.Chat(ctx, apiKey, buildPromptMessages(pc, message, history))
	if err != nil {
		if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
			return TurnOutput{}, newError(ErrorUpstream, "completion_rate_limited", err)
		}
		return TurnOutput{}, newError(ErrorUpstream, "completion_error", err)
	}

	if err := s.history.AppendTurn(ctx, client, characterID, message, reply); err != nil {
		return TurnOutput{}, newError(ErrorInternal, "history_write_error", err)
	}
	if err := s.quota.IncrementQuota(ctx, client); err != nil {
		return TurnOutput{}, newError(ErrorInternal, "usage_write_error", err)
	}

	return TurnOutput{
		Message:        reply,
		RemainingChats: s.quota.Remaining(quota.Count + 1),
	}, nil
}

// QueryRemaining reports today's remaining turns without writing anything.
func (s *ChatService) QueryRemaining(ctx context.Context, in RemainingInput) (RemainingOutput, error) {
	client := in.ClientID
	if client == "" {
		return RemainingOutput{}, newError(ErrorInvalidRequest, "missing_fingerprint", nil)
	}
	quota, err := s.quota.CheckQuota(ctx, client)
	if err != nil {
		return RemainingOutput{}, newError(ErrorInternal, "usage_read_error", err)
	}
	return RemainingOutput{RemainingChats: s.quota.Remaining(quota.Count)}, nil
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
