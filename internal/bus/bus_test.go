package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

func TestChannelBusPublishSubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	received := make(chan *domain.Message, 1)
	sub, err := b.Subscribe(ctx, "m1", domain.TopicReturnScored, func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	if err := b.Publish(ctx, "m1", domain.TopicReturnScored, []byte(`{"score":80}`)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg.MerchantID != "m1" {
			t.Errorf("merchantID = %q, want m1", msg.MerchantID)
		}
		if msg.Topic != domain.TopicReturnScored {
			t.Errorf("topic = %q, want %q", msg.Topic, domain.TopicReturnScored)
		}
		if string(msg.Payload) != `{"score":80}` {
			t.Errorf("payload = %s", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestChannelBusMerchantIsolation(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var count atomic.Int64
	sub, _ := b.Subscribe(ctx, "m1", domain.TopicReturnScored, func(ctx context.Context, msg *domain.Message) error {
		count.Add(1)
		return nil
	})
	defer sub.Unsubscribe()

	_ = b.Publish(ctx, "m2", domain.TopicReturnScored, []byte("x"))

	time.Sleep(50 * time.Millisecond)
	if n := count.Load(); n != 0 {
		t.Errorf("m1 subscriber received %d messages published for m2", n)
	}
}

func TestChannelBusGlobalSubscriber(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	received := make(chan *domain.Message, 2)
	sub, err := b.Subscribe(ctx, domain.GlobalMerchantKey, domain.TopicReturnRequested, func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	// Messages published under real merchant keys reach the global
	// subscriber, merchant identity intact.
	for _, merchantID := range []string{"m1", "m2"} {
		if err := b.Publish(ctx, merchantID, domain.TopicReturnRequested, []byte("x")); err != nil {
			t.Fatalf("Publish for %s failed: %v", merchantID, err)
		}
		select {
		case msg := <-received:
			if msg.MerchantID != merchantID {
				t.Errorf("merchantID = %q, want %q", msg.MerchantID, merchantID)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s message", merchantID)
		}
	}
}

func TestChannelBusUnsubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var count atomic.Int64
	sub, _ := b.Subscribe(ctx, "m1", domain.TopicReturnDenied, func(ctx context.Context, msg *domain.Message) error {
		count.Add(1)
		return nil
	})

	if sub.Topic() != domain.TopicReturnDenied {
		t.Errorf("topic = %q, want %q", sub.Topic(), domain.TopicReturnDenied)
	}

	_ = sub.Unsubscribe()
	time.Sleep(10 * time.Millisecond)

	_ = b.Publish(ctx, "m1", domain.TopicReturnDenied, []byte("x"))
	time.Sleep(50 * time.Millisecond)

	if n := count.Load(); n != 0 {
		t.Errorf("received %d messages after unsubscribe", n)
	}
}

func TestChannelBusRequiresMerchantID(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	if err := b.Publish(ctx, "", "topic", nil); err == nil {
		t.Error("expected error publishing without merchantID")
	}
	if _, err := b.Subscribe(ctx, "", "topic", nil); err == nil {
		t.Error("expected error subscribing without merchantID")
	}
}

func TestChannelBusClose(t *testing.T) {
	b := NewChannelBus(10)
	ctx := context.Background()

	if err := b.Ping(ctx); err != nil {
		t.Fatalf("Ping failed on open bus: %v", err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := b.Ping(ctx); err == nil {
		t.Error("expected Ping error on closed bus")
	}
	if err := b.Publish(ctx, "m1", "topic", nil); err == nil {
		t.Error("expected Publish error on closed bus")
	}
}

func TestNewSelectsBusType(t *testing.T) {
	b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer b.Close()

	if _, ok := b.(*ChannelBus); !ok {
		t.Errorf("expected *ChannelBus, got %T", b)
	}

	if _, err := New(domain.EventBusConfig{Type: "carrier-pigeon"}); err == nil {
		t.Error("expected error for unknown bus type")
	}
}
