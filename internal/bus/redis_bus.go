package bus

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	casesStream         = "cases"
	notificationsStream = "notifications"
)

// RedisBus provides Redis Streams-based messaging for dashboard activity
type RedisBus struct {
	client *redis.Client
	logger *log.Logger
}

// StreamMessage represents a message in a Redis Stream
type StreamMessage struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// CaseMessage represents a case published to the cases stream
type CaseMessage struct {
	IncidentID string `json:"incident_id"`
	Category   string `json:"category"`
	Location   string `json:"location"`
	Source     string `json:"source"` // "import" or "live_feed"
	Timestamp  int64  `json:"timestamp"`
}

// NotificationMessage represents a triage alert published to the notifications stream
type NotificationMessage struct {
	NotificationID string `json:"notification_id"`
	IncidentID     string `json:"incident_id"`
	Message        string `json:"message"`
	Timestamp      int64  `json:"timestamp"`
}

// StreamHandler is a function that processes stream messages
type StreamHandler func(ctx context.Context, message StreamMessage) error

// NewRedisBus creates a new Redis bus instance
func NewRedisBus(redisURL string, logger *log.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger == nil {
		logger = log.New(log.Writer(), "[RedisBus] ", log.LstdFlags)
	}

	return &RedisBus{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (rb *RedisBus) Close() error {
	return rb.client.Close()
}

// PublishCase publishes a case to the cases stream
func (rb *RedisBus) PublishCase(ctx context.Context, msg CaseMessage) error {
	fields := map[string]interface{}{
		"incident_id": msg.IncidentID,
		"category":    msg.Category,
		"location":    msg.Location,
		"source":      msg.Source,
		"timestamp":   msg.Timestamp,
	}

	result := rb.client.XAdd(ctx, &redis.XAddArgs{
		Stream: casesStream,
		Values: fields,
	})

	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish case: %w", err)
	}

	rb.logger.Printf("Published case %s to cases stream", msg.IncidentID)
	return nil
}

// PublishNotification publishes a triage alert to the notifications stream
func (rb *RedisBus) PublishNotification(ctx context.Context, msg NotificationMessage) error {
	fields := map[string]interface{}{
		"notification_id": msg.NotificationID,
		"incident_id":     msg.IncidentID,
		"message":         msg.Message,
		"timestamp":       msg.Timestamp,
	}

	result := rb.client.XAdd(ctx, &redis.XAddArgs{
		Stream: notificationsStream,
		Values: fields,
	})

	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	rb.logger.Printf("Published notification %s for case %s", msg.NotificationID, msg.IncidentID)
	return nil
}

// CreateConsumerGroup creates a consumer group for a stream if it doesn't exist
func (rb *RedisBus) CreateConsumerGroup(ctx context.Context, stream, group string) error {
	result := rb.client.XGroupCreateMkStream(ctx, stream, group, "0")
	if err := result.Err(); err != nil {
		if err.Error() != "BUSYGROUP Consumer Group name already exists" {
			return fmt.Errorf("failed to create consumer group %s for stream %s: %w", group, stream, err)
		}
	}

	rb.logger.Printf("Consumer group %s ready for stream %s", group, stream)
	return nil
}

// ReadStream reads messages from a stream using consumer groups
func (rb *RedisBus) ReadStream(ctx context.Context, stream, group, consumer string, handler StreamHandler) error {
	if err := rb.CreateConsumerGroup(ctx, stream, group); err != nil {
		return err
	}

	rb.logger.Printf("Starting stream reader for %s (group: %s, consumer: %s)", stream, group, consumer)

	for {
		select {
		case <-ctx.Done():
			rb.logger.Printf("Stream reader for %s stopping due to context cancellation", stream)
			return ctx.Err()
		default:
			result := rb.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    group,
				Consumer: consumer,
				Streams:  []string{stream, ">"},
				Count:    10,
				Block:    1 * time.Second,
			})

			if err := result.Err(); err != nil {
				if err == redis.Nil {
					continue
				}
				rb.logger.Printf("Error reading from stream %s: %v", stream, err)
				time.Sleep(5 * time.Second)
				continue
			}

			for _, stream := range result.Val() {
				for _, message := range stream.Messages {
					streamMsg := StreamMessage{
						ID:     message.ID,
						Fields: make(map[string]string),
					}

					for key, value := range message.Values {
						if strValue, ok := value.(string); ok {
							streamMsg.Fields[key] = strValue
						}
					}

					if err := handler(ctx, streamMsg); err != nil {
						rb.logger.Printf("Error processing message %s: %v", message.ID, err)
						continue
					}

					if err := rb.client.XAck(ctx, stream.Stream, group, message.ID).Err(); err != nil {
						rb.logger.Printf("Error acknowledging message %s: %v", message.ID, err)
					}
				}
			}
		}
	}
}

// ReadCasesStream reads from the cases stream
func (rb *RedisBus) ReadCasesStream(ctx context.Context, group, consumer string, handler func(ctx context.Context, msg CaseMessage) error) error {
	streamHandler := func(ctx context.Context, message StreamMessage) error {
		caseMsg := CaseMessage{
			IncidentID: message.Fields["incident_id"],
			Category:   message.Fields["category"],
			Location:   message.Fields["location"],
			Source:     message.Fields["source"],
		}

		if timestamp := message.Fields["timestamp"]; timestamp != "" {
			if ts, err := parseTimestamp(timestamp); err == nil {
				caseMsg.Timestamp = ts
			}
		}

		return handler(ctx, caseMsg)
	}

	return rb.ReadStream(ctx, casesStream, group, consumer, streamHandler)
}

// GetStreamInfo returns information about a stream
func (rb *RedisBus) GetStreamInfo(ctx context.Context, stream string) (*redis.XInfoStream, error) {
	result := rb.client.XInfoStream(ctx, stream)
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to get stream info for %s: %w", stream, err)
	}
	return result.Val(), nil
}

// CleanupOldMessages removes old messages from streams to prevent memory issues
func (rb *RedisBus) CleanupOldMessages(ctx context.Context, stream string, maxLen int64) error {
	result := rb.client.XTrimMaxLen(ctx, stream, maxLen)
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to trim stream %s: %w", stream, err)
	}

	rb.logger.Printf("Trimmed stream %s to max length %d", stream, maxLen)
	return nil
}

// parseTimestamp parses a timestamp string to int64
func parseTimestamp(timestamp string) (int64, error) {
	if timestamp == "" {
		return time.Now().Unix(), nil
	}

	// Try numeric epoch (seconds or milliseconds)
	if n, err := strconv.ParseInt(timestamp, 10, 64); err == nil {
		// Heuristic: 13+ digits means milliseconds
		if n > 1_000_000_000_000 {
			return n / 1000, nil
		}
		return n, nil
	}

	if ts, err := time.Parse(time.RFC3339, timestamp); err == nil {
		return ts.Unix(), nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
		return ts.Unix(), nil
	}

	return time.Now().Unix(), fmt.Errorf("unable to parse timestamp: %s", timestamp)
}

// HealthCheck performs a health check on the Redis connection
func (rb *RedisBus) HealthCheck(ctx context.Context) error {
	return rb.client.Ping(ctx).Err()
}

// GetStats returns basic statistics about the Redis streams
func (rb *RedisBus) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	if casesInfo, err := rb.GetStreamInfo(ctx, casesStream); err == nil {
		stats["cases_stream"] = map[string]interface{}{
			"length":         casesInfo.Length,
			"first_entry_id": casesInfo.FirstEntry.ID,
			"last_entry_id":  casesInfo.LastEntry.ID,
		}
	}

	if notifInfo, err := rb.GetStreamInfo(ctx, notificationsStream); err == nil {
		stats["notifications_stream"] = map[string]interface{}{
			"length":         notifInfo.Length,
			"first_entry_id": notifInfo.FirstEntry.ID,
			"last_entry_id":  notifInfo.LastEntry.ID,
		}
	}

	return stats, nil
}
