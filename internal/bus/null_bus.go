package bus

import (
	"context"
	"log"
)

// NullBus is a no-op implementation of the bus interface for when Redis is disabled
type NullBus struct {
	logger *log.Logger
}

// NewNullBus creates a new null bus instance
func NewNullBus(logger *log.Logger) *NullBus {
	if logger == nil {
		logger = log.New(log.Writer(), "[NullBus] ", log.LstdFlags)
	}

	return &NullBus{
		logger: logger,
	}
}

// Close is a no-op for null bus
func (nb *NullBus) Close() error {
	return nil
}

// PublishCase logs the case but doesn't actually publish it
func (nb *NullBus) PublishCase(ctx context.Context, msg CaseMessage) error {
	nb.logger.Printf("Would publish case %s (Redis disabled)", msg.IncidentID)
	return nil
}

// PublishNotification logs the notification but doesn't actually publish it
func (nb *NullBus) PublishNotification(ctx context.Context, msg NotificationMessage) error {
	nb.logger.Printf("Would publish notification %s for case %s (Redis disabled)",
		msg.NotificationID, msg.IncidentID)
	return nil
}

// ReadCasesStream is a no-op for null bus (blocks until ctx is cancelled)
func (nb *NullBus) ReadCasesStream(ctx context.Context, group, consumer string, handler func(ctx context.Context, msg CaseMessage) error) error {
	nb.logger.Printf("Would read cases stream %s:%s (Redis disabled)", group, consumer)
	<-ctx.Done()
	return ctx.Err()
}

// GetStats returns empty stats for null bus
func (nb *NullBus) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		"type":   "null",
		"status": "disabled",
	}, nil
}

// HealthCheck always returns nil for null bus
func (nb *NullBus) HealthCheck(ctx context.Context) error {
	return nil
}
