package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"character-chat/handler"
	"character-chat/internal/integrations/paramstore"
	"character-chat/internal/integrations/promptfile"
	"character-chat/internal/integrations/venice"
	"character-chat/internal/kv"
	"character-chat/internal/repository"
	"character-chat/internal/session"
	"character-chat/internal/usage"
	"character-chat/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(os.Getenv("LOG_LEVEL"))}))
	slog.SetDefault(logger)

	storeBackend := envString("STORE_BACKEND", "dynamodb")
	configSource := envString("CONFIG_SOURCE", "kv")
	credentialKey := envString("CREDENTIAL_KEY", "venice_api_key")
	dailyLimit := envInt("DAILY_LIMIT", usage.DefaultLimit)
	historyMax := envInt("HISTORY_MAX_MESSAGES", session.DefaultMaxMessages)
	maxMessageLen := envInt("MAX_MESSAGE_LENGTH", 0)
	completionTimeout := time.Duration(envInt("COMPLETION_TIMEOUT_SECONDS", 30)) * time.Second

	// ---- AWS SDK config (loaded lazily; memory/file setups need none) ----
	var awsCfg *aws.Config
	loadAWS := func() aws.Config {
		if awsCfg == nil {
			cfg, err := config.LoadDefaultConfig(ctx)
			if err != nil {
				slog.Error("failed to load AWS config", "err", err)
				os.Exit(1)
			}
			awsCfg = &cfg
		}
		return *awsCfg
	}

	// ---- Key-value store ----
	var store kv.Store
	switch storeBackend {
	case "dynamodb":
		client, err := repository.New(awsdynamodb.NewFromConfig(loadAWS()), mustEnv("STATE_TABLE"))
		if err != nil {
			slog.Error("failed to create state client", "err", err)
			os.Exit(1)
		}
		store = client
	case "memory":
		store = kv.NewMemory()
	default:
		slog.Error("unknown STORE_BACKEND", "value", storeBackend)
		os.Exit(1)
	}

	// ---- Configuration source ----
	var params usecase.ParamGetter
	switch configSource {
	case "kv":
		p, err := kv.NewParamGetter(store)
		if err != nil {
			slog.Error("failed to create kv param getter", "err", err)
			os.Exit(1)
		}
		if ids, err := p.Characters(ctx); err != nil {
			slog.Warn("failed to list configured characters", "err", err)
		} else {
			slog.Info("loaded characters from store", "characters", ids)
		}
		params = p
	case "ssm":
		p, err := paramstore.New(awsssm.NewFromConfig(loadAWS()), mustEnv("PARAM_PREFIX"))
		if err != nil {
			slog.Error("failed to create SSM client", "err", err)
			os.Exit(1)
		}
		params = p
	case "file":
		p, err := promptfile.Load(mustEnv("PROMPTS_FILE"), credentialKey)
		if err != nil {
			slog.Error("failed to load prompts file", "err", err)
			os.Exit(1)
		}
		slog.Info("loaded prompts file", "characters", p.Characters())
		params = p
	default:
		slog.Error("unknown CONFIG_SOURCE", "value", configSource)
		os.Exit(1)
	}

	// ---- Core ----
	tracker, err := usage.New(store, usage.Config{Limit: dailyLimit})
	if err != nil {
		slog.Error("failed to create usage tracker", "err", err)
		os.Exit(1)
	}
	slog.Info("usage tracker ready", "daily_limit", tracker.Limit(), "max_message_length", maxMessageLen)
	history, err := session.New(store, session.Config{MaxMessages: historyMax, Logger: logger})
	if err != nil {
		slog.Error("failed to create session manager", "err", err)
		os.Exit(1)
	}

	completion := venice.NewClient(
		venice.WithBaseURL(envString("COMPLETION_BASE_URL", venice.DefaultBaseURL)),
		venice.WithModel(os.Getenv("COMPLETION_MODEL")),
		venice.WithHTTPClient(&http.Client{Timeout: completionTimeout}),
	)

	chatService, err := usecase.NewChatService(params, completion, tracker, history, usecase.Config{
		CredentialKey:     credentialKey,
		MaxMessageLength:  maxMessageLen,
		AllowedCharacters: envList("ALLOWED_CHARACTERS"),
	})
	if err != nil {
		slog.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(chatService, handler.WithLogger(logger))
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envList(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

func logLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}
