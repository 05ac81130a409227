// Package aggregate turns a burst of discussion-chat messages from one
// author into a single task-creation event. A tagged message opens an entry;
// every following untagged message from the same author lands in the entry's
// description until the debounce timer fires.
package aggregate

import (
	"log"
	"sync"
	"time"

	"github.com/rpz-tools/taskbot/internal/clock"
)

// Message is one inbound discussion-chat message, pre-classified by the
// caller (IsTag plus the topic/desc split for tagged messages).
type Message struct {
	AuthorID     int64
	ChatID       int64
	AuthorHandle string
	AuthorName   string
	MessageID    int
	Text         string
	IsTag        bool
	Topic        string
	Desc         string
}

// Pending is an open aggregation, handed to OnFinalize exactly once.
type Pending struct {
	AuthorID     int64
	ChatID       int64
	AuthorHandle string
	AuthorName   string
	Topic        string
	DescParts    []string
	MessageIDs   []int
	StartedAt    time.Time
}

type key struct {
	author int64
	chat   int64
}

type entry struct {
	Pending
	timer *time.Timer
}

// Aggregator owns the pending-creation registry. All mutation happens under
// one mutex; OnFinalize runs outside it so the callback may do I/O.
type Aggregator struct {
	window     time.Duration
	clk        clock.Clock
	onFinalize func(Pending)

	mu      sync.Mutex
	entries map[key]*entry
}

func New(window time.Duration, clk clock.Clock, onFinalize func(Pending)) *Aggregator {
	return &Aggregator{
		window:     window,
		clk:        clk,
		onFinalize: onFinalize,
		entries:    make(map[key]*entry),
	}
}

// OnMessage routes one message. Ordering per (author, chat) key follows
// arrival order: a forced finalize completes before the new entry opens.
func (a *Aggregator) OnMessage(m Message) {
	k := key{author: m.AuthorID, chat: m.ChatID}

	a.mu.Lock()
	e, exists := a.entries[k]
	if exists && !m.IsTag {
		e.DescParts = append(e.DescParts, m.Text)
		e.MessageIDs = append(e.MessageIDs, m.MessageID)
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	if !m.IsTag {
		// Untagged chatter with no open entry is not ours.
		return
	}

	if exists {
		// A fresh tag closes the previous aggregation immediately.
		a.finalize(k)
	}
	a.open(k, m)
}

func (a *Aggregator) open(k key, m Message) {
	p := Pending{
		AuthorID:     m.AuthorID,
		ChatID:       m.ChatID,
		AuthorHandle: m.AuthorHandle,
		AuthorName:   m.AuthorName,
		Topic:        m.Topic,
		MessageIDs:   []int{m.MessageID},
		StartedAt:    a.clk.Now(),
	}
	if m.Desc != "" {
		p.DescParts = []string{m.Desc}
	}

	a.mu.Lock()
	e := &entry{Pending: p}
	e.timer = time.AfterFunc(a.window, func() { a.finalize(k) })
	a.entries[k] = e
	a.mu.Unlock()
	log.Printf("[aggregate] opened pending task for author %d", m.AuthorID)
}

// finalize pops the entry and invokes the completion callback. Both the
// debounce timer and the forced path land here; a second call for an
// already-popped key is a no-op.
func (a *Aggregator) finalize(k key) {
	a.mu.Lock()
	e, ok := a.entries[k]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.entries, k)
	a.mu.Unlock()

	e.timer.Stop()
	if a.onFinalize != nil {
		a.onFinalize(e.Pending)
	}
}

// Len reports the number of open aggregations.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Stop cancels all debounce timers without finalizing; used at shutdown.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, e := range a.entries {
		e.timer.Stop()
		delete(a.entries, k)
	}
}
