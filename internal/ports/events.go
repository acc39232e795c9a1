package ports

import "context"

// EventPublisher is the outbound event publish port. The partition key keeps
// events for one account ordered on the broker side.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}
