// Package events mirrors batch messages to Redis so other processes can follow a run.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/otherjamesbrown/interview-scribe/pkg/logging"
)

// Redis channels for batch events.
const (
	ChannelBatchMessage   = "events.scribe.batch"
	ChannelBatchCompleted = "events.scribe.batch.completed"
)

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
}

// NewBaseEvent creates a BaseEvent with sensible defaults.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Source:    "scribe",
		Version:   "1.0",
	}
}

// BatchMessageEvent mirrors one observer message.
type BatchMessageEvent struct {
	BaseEvent

	RunID   string  `json:"run_id"`
	Kind    string  `json:"kind"`
	Text    string  `json:"text,omitempty"`
	Percent float64 `json:"percent"`
}

// BatchCompletedEvent is published once per run with its terminal outcome.
type BatchCompletedEvent struct {
	BaseEvent

	RunID    string `json:"run_id"`
	InputDir string `json:"input_dir"`
	Outcome  string `json:"outcome"`

	TotalFiles       int `json:"total_files"`
	TranscribedCount int `json:"transcribed_count"`
	SkippedCount     int `json:"skipped_count"`

	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	DurationSeconds float64   `json:"duration_seconds"`

	ErrorCode *string `json:"error_code,omitempty"`
}

// MessageParams contains parameters for publishing a batch message.
type MessageParams struct {
	RunID   string
	Kind    string
	Text    string
	Percent float64
}

// CompletedParams contains parameters for publishing batch completion.
type CompletedParams struct {
	RunID            string
	InputDir         string
	Outcome          string
	TotalFiles       int
	TranscribedCount int
	SkippedCount     int
	StartedAt        time.Time
	CompletedAt      time.Time
	ErrorCode        string
}

// redisPublisher is the part of the Redis client used here.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// Publisher publishes batch events to Redis.
type Publisher struct {
	client redisPublisher
	logger logging.Logger
}

// PublisherConfig holds Redis connection configuration.
type PublisherConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewPublisher creates a new event publisher.
func NewPublisher(client *redis.Client, logger logging.Logger) *Publisher {
	return newPublisher(client, logger)
}

func newPublisher(client redisPublisher, logger logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Publisher{
		client: client,
		logger: logger.With(logging.F("component", "event_publisher")),
	}
}

// NewPublisherFromConfig creates a publisher with a new Redis connection.
func NewPublisherFromConfig(ctx context.Context, cfg PublisherConfig, logger logging.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	return NewPublisher(client, logger), nil
}

// PublishMessage mirrors an observer message.
func (p *Publisher) PublishMessage(ctx context.Context, params MessageParams) error {
	event := BatchMessageEvent{
		BaseEvent: NewBaseEvent("scribe.batch." + params.Kind),
		RunID:     params.RunID,
		Kind:      params.Kind,
		Text:      params.Text,
		Percent:   params.Percent,
	}
	return p.publish(ctx, ChannelBatchMessage, event)
}

// PublishCompleted publishes the terminal outcome of a run.
func (p *Publisher) PublishCompleted(ctx context.Context, params CompletedParams) error {
	event := BatchCompletedEvent{
		BaseEvent:        NewBaseEvent("scribe.batch.completed"),
		RunID:            params.RunID,
		InputDir:         params.InputDir,
		Outcome:          params.Outcome,
		TotalFiles:       params.TotalFiles,
		TranscribedCount: params.TranscribedCount,
		SkippedCount:     params.SkippedCount,
		StartedAt:        params.StartedAt,
		CompletedAt:      params.CompletedAt,
		DurationSeconds:  params.CompletedAt.Sub(params.StartedAt).Seconds(),
	}
	if params.ErrorCode != "" {
		event.ErrorCode = &params.ErrorCode
	}
	return p.publish(ctx, ChannelBatchCompleted, event)
}

// publish serializes and publishes an event to Redis.
func (p *Publisher) publish(ctx context.Context, channel string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	p.logger.Debug("Event published",
		logging.F("channel", channel),
		logging.F("payload_size", len(data)))

	return nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
