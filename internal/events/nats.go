package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// partitionBuffer is the per-partition delivery channel depth. When a
// partition's channel is full the NATS client drops further deliveries for
// it; at-least-once redelivery is the broker's concern.
const partitionBuffer = 512

// NATSConsumer subscribes to one subject per partition
// ("<prefix>.<partition>") as a member of a queue group, and drains each
// partition on its own goroutine so per-partition order is preserved while
// partitions proceed in parallel.
type NATSConsumer struct {
	conn       *nats.Conn
	prefix     string
	partitions int
	group      string
}

// NewNATSConsumer connects to NATS with automatic reconnection. Extra
// nats.Option values (e.g. disconnect handlers) can be appended.
func NewNATSConsumer(url, prefix string, partitions int, group string, opts ...nats.Option) (*NATSConsumer, error) {
	if partitions <= 0 {
		return nil, fmt.Errorf("partitions must be positive, got %d", partitions)
	}
	defaults := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSConsumer{
		conn:       nc,
		prefix:     prefix,
		partitions: partitions,
		group:      group,
	}, nil
}

// Run subscribes to every partition subject and blocks until ctx is done.
func (c *NATSConsumer) Run(ctx context.Context, h Handler) error {
	subs := make([]*nats.Subscription, 0, c.partitions)
	chans := make([]chan *nats.Msg, 0, c.partitions)

	for p := 0; p < c.partitions; p++ {
		subject := fmt.Sprintf("%s.%d", c.prefix, p)
		ch := make(chan *nats.Msg, partitionBuffer)
		sub, err := c.conn.ChanQueueSubscribe(subject, c.group, ch)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return fmt.Errorf("subscribing to %s: %w", subject, err)
		}
		subs = append(subs, sub)
		chans = append(chans, ch)
	}

	// Ensure all subscriptions are registered on the server before messages
	// published on other connections are routed.
	if err := c.conn.Flush(); err != nil {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		return fmt.Errorf("flushing subscriptions: %w", err)
	}

	var wg sync.WaitGroup
	for p := 0; p < c.partitions; p++ {
		wg.Add(1)
		go func(partition int, ch chan *nats.Msg) {
			defer wg.Done()
			var seq uint64
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-ch:
					if !ok || msg == nil {
						return
					}
					seq++
					h(ctx, Message{
						Subject:   msg.Subject,
						Partition: partition,
						Seq:       seq,
						Data:      msg.Data,
					})
				}
			}
		}(p, chans[p])
	}

	<-ctx.Done()
	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	wg.Wait()
	return nil
}

func (c *NATSConsumer) Close() error {
	c.conn.Close()
	return nil
}
