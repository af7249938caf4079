package bus

import (
	"context"
	"io"
	"log"
)

// Bus publishes dashboard activity for external consumers. Publishing is
// best-effort; the state engine never blocks on the bus.
type Bus interface {
	// PublishCase publishes a promoted case to the cases stream.
	PublishCase(ctx context.Context, msg CaseMessage) error

	// PublishNotification publishes a triage alert to the notifications stream.
	PublishNotification(ctx context.Context, msg NotificationMessage) error

	// ReadCasesStream consumes the cases stream via a consumer group.
	ReadCasesStream(ctx context.Context, group, consumer string, handler func(ctx context.Context, msg CaseMessage) error) error

	// GetStats returns basic statistics about the bus.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// HealthCheck verifies the bus connection.
	HealthCheck(ctx context.Context) error

	// Close releases the bus connection.
	Close() error
}

// NewBus creates a bus for the given Redis URL. An empty or unreachable URL
// yields a NullBus so the console keeps working without Redis.
func NewBus(redisURL string, logger *log.Logger) Bus {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	if redisURL == "" {
		return NewNullBus(logger)
	}

	if redisBus, err := NewRedisBus(redisURL, logger); err == nil {
		return redisBus
	}

	// Fall back to null bus if Redis is unreachable
	return NewNullBus(logger)
}
