// Package config loads service configuration from TASKFLOW_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string // TASKFLOW_DATABASE_URL (optional, empty = in-memory store)
	NATSURL     string // TASKFLOW_NATS_URL (optional, empty = in-process bus)
	HTTPAddr    string // TASKFLOW_HTTP_ADDR (default ":8080")
	AuthToken   string // TASKFLOW_AUTH_TOKEN (optional, empty = auth disabled)

	// Extractor settings
	Extractor   string // TASKFLOW_EXTRACTOR (default "rules"; "llm" needs an API key)
	OpenAIKey   string // TASKFLOW_OPENAI_API_KEY (required when Extractor is "llm")
	OpenAIModel string // TASKFLOW_OPENAI_MODEL (default "gpt-4o-mini")

	// Platform settings
	Platform      string // TASKFLOW_PLATFORM (default "mock")
	TrelloKey     string // TASKFLOW_TRELLO_KEY
	TrelloToken   string // TASKFLOW_TRELLO_TOKEN
	TrelloListID  string // TASKFLOW_TRELLO_LIST_ID
	ClickUpToken  string // TASKFLOW_CLICKUP_TOKEN
	ClickUpListID string // TASKFLOW_CLICKUP_LIST_ID

	// Slack intake
	SlackBotToken string // TASKFLOW_SLACK_BOT_TOKEN (enables Slack intake when set)
	SlackAppToken string // TASKFLOW_SLACK_APP_TOKEN (socket mode; required with bot token)

	// Delivery settings
	MaxAttempts   int           // TASKFLOW_MAX_ATTEMPTS (default 5)
	RetryBackoff  time.Duration // TASKFLOW_RETRY_BACKOFF (default 2s, base of the exponential)
	Concurrency   int           // TASKFLOW_CONCURRENCY (default 8, max in-flight per consumer)
	ShutdownGrace time.Duration // TASKFLOW_SHUTDOWN_GRACE (default 10s)

	// Archive settings
	ArchiveInterval   time.Duration // TASKFLOW_ARCHIVE_INTERVAL (default 0 = disabled)
	ArchiveS3Bucket   string        // TASKFLOW_ARCHIVE_S3_BUCKET (enables S3 when set)
	ArchiveS3Endpoint string        // TASKFLOW_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveS3Region   string        // TASKFLOW_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Key      string        // TASKFLOW_ARCHIVE_S3_KEY (default "taskflow/archive.jsonl")
	ArchiveFile       string        // TASKFLOW_ARCHIVE_FILE (enables local file when set)
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:       os.Getenv("TASKFLOW_DATABASE_URL"),
		NATSURL:           os.Getenv("TASKFLOW_NATS_URL"),
		HTTPAddr:          envOrDefault("TASKFLOW_HTTP_ADDR", ":8080"),
		AuthToken:         os.Getenv("TASKFLOW_AUTH_TOKEN"),
		Extractor:         envOrDefault("TASKFLOW_EXTRACTOR", "rules"),
		OpenAIKey:         os.Getenv("TASKFLOW_OPENAI_API_KEY"),
		OpenAIModel:       envOrDefault("TASKFLOW_OPENAI_MODEL", "gpt-4o-mini"),
		Platform:          envOrDefault("TASKFLOW_PLATFORM", "mock"),
		TrelloKey:         os.Getenv("TASKFLOW_TRELLO_KEY"),
		TrelloToken:       os.Getenv("TASKFLOW_TRELLO_TOKEN"),
		TrelloListID:      os.Getenv("TASKFLOW_TRELLO_LIST_ID"),
		ClickUpToken:      os.Getenv("TASKFLOW_CLICKUP_TOKEN"),
		ClickUpListID:     os.Getenv("TASKFLOW_CLICKUP_LIST_ID"),
		SlackBotToken:     os.Getenv("TASKFLOW_SLACK_BOT_TOKEN"),
		SlackAppToken:     os.Getenv("TASKFLOW_SLACK_APP_TOKEN"),
		ArchiveS3Bucket:   os.Getenv("TASKFLOW_ARCHIVE_S3_BUCKET"),
		ArchiveS3Endpoint: os.Getenv("TASKFLOW_ARCHIVE_S3_ENDPOINT"),
		ArchiveS3Region:   envOrDefault("TASKFLOW_ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Key:      envOrDefault("TASKFLOW_ARCHIVE_S3_KEY", "taskflow/archive.jsonl"),
		ArchiveFile:       os.Getenv("TASKFLOW_ARCHIVE_FILE"),
	}

	switch c.Extractor {
	case "rules":
	case "llm":
		if c.OpenAIKey == "" {
			return nil, fmt.Errorf("TASKFLOW_OPENAI_API_KEY is required when TASKFLOW_EXTRACTOR is llm")
		}
	default:
		return nil, fmt.Errorf("TASKFLOW_EXTRACTOR: unknown extractor %q", c.Extractor)
	}

	switch c.Platform {
	case "mock":
	case "trello":
		if c.TrelloKey == "" || c.TrelloToken == "" || c.TrelloListID == "" {
			return nil, fmt.Errorf("TASKFLOW_TRELLO_KEY, TASKFLOW_TRELLO_TOKEN and TASKFLOW_TRELLO_LIST_ID are required when TASKFLOW_PLATFORM is trello")
		}
	case "clickup":
		if c.ClickUpToken == "" || c.ClickUpListID == "" {
			return nil, fmt.Errorf("TASKFLOW_CLICKUP_TOKEN and TASKFLOW_CLICKUP_LIST_ID are required when TASKFLOW_PLATFORM is clickup")
		}
	default:
		return nil, fmt.Errorf("TASKFLOW_PLATFORM: unknown platform %q", c.Platform)
	}

	if c.SlackBotToken != "" && c.SlackAppToken == "" {
		return nil, fmt.Errorf("TASKFLOW_SLACK_APP_TOKEN is required when TASKFLOW_SLACK_BOT_TOKEN is set")
	}

	var err error
	if c.MaxAttempts, err = envInt("TASKFLOW_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if c.MaxAttempts < 1 {
		return nil, fmt.Errorf("TASKFLOW_MAX_ATTEMPTS must be at least 1")
	}
	if c.Concurrency, err = envInt("TASKFLOW_CONCURRENCY", 8); err != nil {
		return nil, err
	}
	if c.RetryBackoff, err = envDuration("TASKFLOW_RETRY_BACKOFF", 2*time.Second); err != nil {
		return nil, err
	}
	if c.ShutdownGrace, err = envDuration("TASKFLOW_SHUTDOWN_GRACE", 10*time.Second); err != nil {
		return nil, err
	}
	if c.ArchiveInterval, err = envDuration("TASKFLOW_ARCHIVE_INTERVAL", 0); err != nil {
		return nil, err
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
