// Package channel holds the chat transports. Each channel turns platform
// updates into bus.InboundMessage and delivers bus.OutboundMessage back.
package channel

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/rpz-tools/taskbot/internal/bus"
	"github.com/rpz-tools/taskbot/internal/config"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(msg bus.OutboundMessage) error
}

// BaseChannel carries the pieces every transport shares.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom map[string]struct{}
}

func NewBaseChannel(name string, b *bus.MessageBus, allowFrom []string) BaseChannel {
	allowed := make(map[string]struct{}, len(allowFrom))
	for _, id := range allowFrom {
		allowed[id] = struct{}{}
	}
	return BaseChannel{name: name, bus: b, allowFrom: allowed}
}

func (c *BaseChannel) Name() string { return c.name }

// IsAllowed reports whether a sender passes the allow-list. An empty list
// allows everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowFrom) == 0 {
		return true
	}
	_, ok := c.allowFrom[senderID]
	return ok
}

type Manager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
}

func NewManager(cfg config.TelegramConfig, monitored []int64, b *bus.MessageBus) (*Manager, error) {
	return NewManagerWithFactory(cfg, monitored, b, defaultBotFactory)
}

// NewManagerWithFactory builds the manager with a custom bot factory so tests
// can run against a fake transport.
func NewManagerWithFactory(cfg config.TelegramConfig, monitored []int64, b *bus.MessageBus, factory BotFactory) (*Manager, error) {
	m := &Manager{
		channels: make(map[string]Channel),
		bus:      b,
	}

	ch, err := NewTelegramChannelWithFactory(cfg, monitored, b, factory)
	if err != nil {
		return nil, fmt.Errorf("init telegram channel: %w", err)
	}
	m.register(ch)

	return m, nil
}

func (m *Manager) register(ch Channel) {
	m.channels[ch.Name()] = ch
	m.bus.SubscribeOutbound(ch.Name(), func(msg bus.OutboundMessage) {
		if err := ch.Send(msg); err != nil {
			log.Printf("[channel-mgr] send to %s failed: %v", ch.Name(), err)
		}
	})
}

func (m *Manager) StartAll(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(m.channels))

	for name, ch := range m.channels {
		wg.Add(1)
		go func(name string, ch Channel) {
			defer wg.Done()
			log.Printf("[channel-mgr] starting %s", name)
			if err := ch.Start(ctx); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}(name, ch)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err
	}
	return nil
}

func (m *Manager) StopAll() error {
	for name, ch := range m.channels {
		log.Printf("[channel-mgr] stopping %s", name)
		if err := ch.Stop(); err != nil {
			log.Printf("[channel-mgr] error stopping %s: %v", name, err)
		}
	}
	return nil
}

// Telegram returns the telegram channel for direct (synchronous) sends.
func (m *Manager) Telegram() *TelegramChannel {
	ch, _ := m.channels[telegramChannelName].(*TelegramChannel)
	return ch
}
