package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

// waitForSubscriptions blocks until the consumer's partition subscriptions
// are registered, so messages published on other connections are routed.
func waitForSubscriptions(t *testing.T, c *NATSConsumer, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if c.conn.NumSubscriptions() >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("consumer never registered %d subscriptions", want)
}

func TestNATSConsumer_ReceivesPerPartitionInOrder(t *testing.T) {
	url := startTestNATS(t)

	consumer, err := NewNATSConsumer(url, "telemetry.events", 2, "test-group")
	if err != nil {
		t.Fatalf("creating consumer: %v", err)
	}
	defer consumer.Close()

	var mu sync.Mutex
	received := map[int][]string{}
	total := make(chan struct{}, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := consumer.Run(ctx, func(_ context.Context, msg Message) {
			mu.Lock()
			received[msg.Partition] = append(received[msg.Partition], string(msg.Data))
			mu.Unlock()
			total <- struct{}{}
		}); err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	}()

	waitForSubscriptions(t, consumer, 2)

	pub, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting publisher: %v", err)
	}
	defer pub.Close()

	for i := 0; i < 3; i++ {
		if err := pub.Publish("telemetry.events.0", []byte(fmt.Sprintf("p0-%d", i))); err != nil {
			t.Fatalf("publishing: %v", err)
		}
		if err := pub.Publish("telemetry.events.1", []byte(fmt.Sprintf("p1-%d", i))); err != nil {
			t.Fatalf("publishing: %v", err)
		}
	}
	pub.Flush()

	for i := 0; i < 6; i++ {
		select {
		case <-total:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d of 6 messages", i)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for p := 0; p < 2; p++ {
		want := []string{fmt.Sprintf("p%d-0", p), fmt.Sprintf("p%d-1", p), fmt.Sprintf("p%d-2", p)}
		got := received[p]
		if len(got) != 3 {
			t.Fatalf("partition %d received %d messages: %v", p, len(got), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("partition %d order broken: got %v, want %v", p, got, want)
			}
		}
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestNATSConsumer_SeqCountsPerPartition(t *testing.T) {
	url := startTestNATS(t)

	consumer, err := NewNATSConsumer(url, "telemetry.events", 1, "test-group")
	if err != nil {
		t.Fatalf("creating consumer: %v", err)
	}
	defer consumer.Close()

	seqs := make(chan uint64, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = consumer.Run(ctx, func(_ context.Context, msg Message) {
			seqs <- msg.Seq
		})
	}()

	waitForSubscriptions(t, consumer, 1)

	pub, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting publisher: %v", err)
	}
	defer pub.Close()
	for i := 0; i < 3; i++ {
		if err := pub.Publish("telemetry.events.0", []byte("x")); err != nil {
			t.Fatalf("publishing: %v", err)
		}
	}
	pub.Flush()

	for want := uint64(1); want <= 3; want++ {
		select {
		case got := <-seqs:
			if got != want {
				t.Errorf("seq = %d, want %d", got, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for messages")
		}
	}
}

func TestNewNATSConsumer_RejectsNonPositivePartitions(t *testing.T) {
	if _, err := NewNATSConsumer("nats://127.0.0.1:4222", "telemetry.events", 0, "g"); err == nil {
		t.Fatal("expected error for 0 partitions")
	}
}
