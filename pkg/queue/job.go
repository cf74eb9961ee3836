package queue

import "context"

// Job defines a queue job handler.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type routed to this job.
	Type() string

	// Handle processes one payload. Use ParsePayload to decode it.
	Handle(ctx context.Context, payload interface{}) error
}
