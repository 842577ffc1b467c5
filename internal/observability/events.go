package observability

import (
	"context"
	"time"
)

// EventEnvelope is the wire shape of an operational event on the bus. The
// publisher stamps service and occurred_at, callers fill in what the event
// is about.
type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	Service    string      `json:"service,omitempty"`
	OccurredAt string      `json:"occurred_at,omitempty"`
	Payload    interface{} `json:"payload"`
}

var (
	defaultPublisher Publisher
	serviceName      string
)

// SetPublisher installs the process-wide event publisher. Events are dropped
// silently until one is set.
func SetPublisher(publisher Publisher, service string) {
	defaultPublisher = publisher
	serviceName = service
}

// PublishEvent stamps and publishes an event envelope. Failures are counted
// and returned, but events never sit on a request's critical path.
func PublishEvent(ctx context.Context, routingKey string, event EventEnvelope, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}

	if event.Service == "" {
		event.Service = serviceName
	}
	if event.OccurredAt == "" {
		event.OccurredAt = time.Now().UTC().Format(time.RFC3339Nano)
	}

	err := defaultPublisher.PublishJSON(ctx, routingKey, event, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
