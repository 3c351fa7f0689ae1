package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"chat-relay/handler"
	"chat-relay/internal/config"
	"chat-relay/internal/integrations/chatapi"
	"chat-relay/internal/integrations/paramstore"
	"chat-relay/internal/metrics"
	"chat-relay/internal/retry"
	"chat-relay/internal/usecase"
)

// setup loads configuration, installs the JSON logger and builds the shared
// request pipeline used by both hosts.
func setup(ctx context.Context) (*config.Config, *handler.Handler, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	slog.SetDefault(slog.New(handler.ContextLogHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	}))

	collector := metrics.NewCollector()
	retrier := retry.New(
		retry.WithMaxRetries(cfg.MaxRetries),
		retry.WithBaseDelay(cfg.RetryBaseDelay),
		retry.WithAttemptTimeout(cfg.AttemptTimeout),
		retry.WithObserver(collector),
	)

	clientOpts := []chatapi.Option{
		chatapi.WithURL(cfg.UpstreamURL),
		chatapi.WithModel(cfg.Model),
		chatapi.WithTemperature(cfg.Temperature),
		chatapi.WithSystemPrompt(cfg.SystemPrompt),
	}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		clientOpts = append(clientOpts, chatapi.WithAPIKey(key))
	} else {
		ssm, err := paramstore.NewFromEnvironment(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, nil, fmt.Errorf("create parameter store client: %w", err)
		}
		clientOpts = append(clientOpts, chatapi.WithParamStoreKey(ssm, cfg.APIKeyParam))
	}
	client, err := chatapi.NewClient(retrier, clientOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create chat API client: %w", err)
	}

	svc, err := usecase.NewChatService(client, cfg.MaxMessageLength, cfg.TimeoutStatus)
	if err != nil {
		return nil, nil, fmt.Errorf("create chat service: %w", err)
	}

	h, err := handler.NewHandler(svc,
		handler.WithCORS(handler.DefaultCORSConfig(cfg.AllowedOrigins)),
		handler.WithMetrics(collector, collector.Handler()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create handler: %w", err)
	}

	slog.Info("chat relay configured",
		"upstream", cfg.UpstreamURL,
		"model", cfg.Model,
		"max_retries", cfg.MaxRetries,
		"attempt_timeout", cfg.AttemptTimeout.String(),
		"allowed_origins", cfg.AllowedOrigins,
		"key_source", keySource(cfg),
	)
	return cfg, h, nil
}

func keySource(cfg *config.Config) string {
	if strings.TrimSpace(cfg.APIKey) != "" {
		return "env"
	}
	return "ssm:" + cfg.APIKeyParam
}
