package bus

import (
	"context"
	"testing"
	"time"
)

func TestSessionKey(t *testing.T) {
	m := InboundMessage{Channel: "telegram", ChatID: "-100123"}
	if got := m.SessionKey(); got != "telegram:-100123" {
		t.Errorf("SessionKey = %q", got)
	}
}

func TestDispatchOutbound_RoutesToSubscriber(t *testing.T) {
	b := NewMessageBus(10)
	got := make(chan OutboundMessage, 1)
	b.SubscribeOutbound("telegram", func(msg OutboundMessage) { got <- msg })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.Outbound <- OutboundMessage{Channel: "telegram", ChatID: "1", Content: "привет"}

	select {
	case msg := <-got:
		if msg.Content != "привет" {
			t.Errorf("Content = %q", msg.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("message never dispatched")
	}
}

func TestDispatchOutbound_DropsUnknownChannel(t *testing.T) {
	b := NewMessageBus(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	// No subscriber: the message is dropped without blocking the pump.
	b.Outbound <- OutboundMessage{Channel: "nowhere", Content: "x"}

	got := make(chan OutboundMessage, 1)
	b.SubscribeOutbound("telegram", func(msg OutboundMessage) { got <- msg })
	b.Outbound <- OutboundMessage{Channel: "telegram", Content: "после"}

	select {
	case msg := <-got:
		if msg.Content != "после" {
			t.Errorf("Content = %q", msg.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("pump stalled on the unroutable message")
	}
}
