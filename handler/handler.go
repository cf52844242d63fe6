package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"character-chat/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	pathChat          = "/api/chat"
	pathRemaining     = "/api/remaining"
)

// Generic texts for error bodies. Reasons stay in the logs.
const (
	msgInvalidRequest = "Invalid request"
	msgConfiguration  = "Configuration error"
	msgUpstream       = "AI service error"
	msgInternal       = "Internal server error"
	msgNotAllowed     = "Method not allowed"
	msgNotFound       = "Not found"
)

type ChatUseCase interface {
	SubmitTurn(ctx context.Context, in usecase.TurnInput) (usecase.TurnOutput, error)
	QueryRemaining(ctx context.Context, in usecase.RemainingInput) (usecase.RemainingOutput, error)
}

type chatRequest struct {
	CharacterID string `json:"characterId"`
	UserMessage string `json:"userMessage"`
	Fingerprint string `json:"fingerprint"`
}

type chatResponse struct {
	Message        string `json:"message"`
	RemainingChats int    `json:"remainingChats"`
}

type remainingRequest struct {
	Fingerprint string `json:"fingerprint"`
}

type remainingResponse struct {
	RemainingChats int `json:"remainingChats"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Handler adapts API Gateway proxy events to the chat use case.
type Handler struct {
	uc  ChatUseCase
	log *slog.Logger
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

func NewHandler(uc ChatUseCase, opts ...Option) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	h := &Handler{uc: uc, log: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(event.Headers)
	log := h.log.With("correlation_id", corrID, "path", event.Path)

	if event.HTTPMethod == http.MethodOptions {
		return respond(http.StatusNoContent, corrID, ""), nil
	}

	switch event.Path {
	case pathChat:
		if event.HTTPMethod != http.MethodPost {
			return respondJSON(http.StatusMethodNotAllowed, corrID, errorResponse{Error: "METHOD_NOT_ALLOWED", Message: msgNotAllowed}), nil
		}
		return h.handleChat(ctx, log, corrID, event.Body), nil
	case pathRemaining:
		if event.HTTPMethod != http.MethodPost {
			return respondJSON(http.StatusMethodNotAllowed, corrID, errorResponse{Error: "METHOD_NOT_ALLOWED", Message: msgNotAllowed}), nil
		}
		return h.handleRemaining(ctx, log, corrID, event.Body), nil
	default:
		return respondJSON(http.StatusNotFound, corrID, errorResponse{Error: "NOT_FOUND", Message: msgNotFound}), nil
	}
}

func (h *Handler) handleChat(ctx context.Context, log *slog.Logger, corrID, body string) events.APIGatewayProxyResponse {
	var req chatRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		log.InfoContext(ctx, "invalid chat body", "err", err)
		return respondJSON(http.StatusBadRequest, corrID, errorResponse{Error: string(usecase.ErrorInvalidRequest), Message: msgInvalidRequest})
	}

	out, err := h.uc.SubmitTurn(ctx, usecase.TurnInput{
		CharacterID: req.CharacterID,
		UserMessage: req.UserMessage,
		ClientID:    req.Fingerprint,
	})
	if err != nil {
		return h.errorResponse(ctx, log.With("character_id", req.CharacterID), corrID, err)
	}
	return respondJSON(http.StatusOK, corrID, chatResponse{Message: out.Message, RemainingChats: out.RemainingChats})
}

func (h *Handler) handleRemaining(ctx context.Context, log *slog.Logger, corrID, body string) events.APIGatewayProxyResponse {
	var req remainingRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		log.InfoContext(ctx, "invalid remaining body", "err", err)
		return respondJSON(http.StatusBadRequest, corrID, errorResponse{Error: string(usecase.ErrorInvalidRequest), Message: msgInvalidRequest})
	}

	out, err := h.uc.QueryRemaining(ctx, usecase.RemainingInput{ClientID: req.Fingerprint})
	if err != nil {
		return h.errorResponse(ctx, log, corrID, err)
	}
	return respondJSON(http.StatusOK, corrID, remainingResponse{RemainingChats: out.RemainingChats})
}

func (h *Handler) errorResponse(ctx context.Context, log *slog.Logger, corrID string, err error) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		log.ErrorContext(ctx, "unexpected error", "err", err)
		return respondJSON(http.StatusInternalServerError, corrID, errorResponse{Error: string(usecase.ErrorInternal), Message: msgInternal})
	}

	log = log.With("code", ucErr.Code, "reason", ucErr.Reason)
	switch ucErr.Code {
	case usecase.ErrorInvalidRequest:
		log.InfoContext(ctx, "request rejected")
		return respondJSON(http.StatusBadRequest, corrID, errorResponse{Error: string(ucErr.Code), Message: msgInvalidRequest})
	case usecase.ErrorQuotaExceeded:
		log.InfoContext(ctx, "daily quota exhausted")
		return respondJSON(http.StatusTooManyRequests, corrID, errorResponse{Error: string(ucErr.Code), Message: ucErr.Message})
	case usecase.ErrorConfiguration:
		log.ErrorContext(ctx, "chat configuration missing", "alert", true, "err", err)
		return respondJSON(http.StatusInternalServerError, corrID, errorResponse{Error: string(ucErr.Code), Message: msgConfiguration})
	case usecase.ErrorUpstream:
		log.ErrorContext(ctx, "completion call failed", "err", err)
		return respondJSON(http.StatusInternalServerError, corrID, errorResponse{Error: string(ucErr.Code), Message: msgUpstream})
	default:
		log.ErrorContext(ctx, "turn failed", "err", err)
		return respondJSON(http.StatusInternalServerError, corrID, errorResponse{Error: string(usecase.ErrorInternal), Message: msgInternal})
	}
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return uuid.NewString()
}

func baseHeaders(corrID string) map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type",
		correlationHeader:              corrID,
	}
}

func respond(status int, corrID, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    baseHeaders(corrID),
		Body:       body,
	}
}

func respondJSON(status int, corrID string, v any) events.APIGatewayProxyResponse {
	buf, err := json.Marshal(v)
	if err != nil {
		buf = []byte(`{"error":"INTERNAL_ERROR"}`)
		status = http.StatusInternalServerError
	}
	resp := respond(status, corrID, string(buf))
	resp.Headers["Content-Type"] = "application/json"
	return resp
}
