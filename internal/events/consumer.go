// Package events consumes telemetry messages from the partitioned queue.
// The transport contract is ordered-per-partition, at-least-once, possibly
// duplicated; partition assignment and redelivery policy belong to the
// broker, not to this package.
package events

import "context"

// Message is one raw queue delivery plus its metadata. Seq is a local
// per-partition delivery counter, used only for logging.
type Message struct {
	Subject   string
	Partition int
	Seq       uint64
	Data      []byte
}

// Handler processes one delivery. Handlers must swallow their own failures;
// returning is the only form of acknowledgment.
type Handler func(ctx context.Context, msg Message)

// Consumer delivers queue messages to a handler until the context ends.
type Consumer interface {
	// Run blocks, delivering messages in partition order, until ctx is done.
	Run(ctx context.Context, h Handler) error
	Close() error
}
