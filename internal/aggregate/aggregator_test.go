package aggregate

import (
	"sync"
	"testing"
	"time"

	"github.com/rpz-tools/taskbot/internal/clock"
)

type capture struct {
	mu    sync.Mutex
	items []Pending
	ch    chan Pending
}

func newCapture() *capture {
	return &capture{ch: make(chan Pending, 10)}
}

func (c *capture) collect(p Pending) {
	c.mu.Lock()
	c.items = append(c.items, p)
	c.mu.Unlock()
	c.ch <- p
}

func (c *capture) wait(t *testing.T) Pending {
	t.Helper()
	select {
	case p := <-c.ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("finalize never fired")
		return Pending{}
	}
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func testClock() clock.Clock {
	return clock.Func(func() time.Time {
		return time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)
	})
}

func tag(author int64, msgID int, topic, desc string) Message {
	return Message{
		AuthorID:  author,
		ChatID:    -100,
		MessageID: msgID,
		Text:      "#З " + topic,
		IsTag:     true,
		Topic:     topic,
		Desc:      desc,
	}
}

func followup(author int64, msgID int, text string) Message {
	return Message{
		AuthorID:  author,
		ChatID:    -100,
		MessageID: msgID,
		Text:      text,
	}
}

func TestAggregator_DebounceCollectsFollowups(t *testing.T) {
	sink := newCapture()
	a := New(50*time.Millisecond, testClock(), sink.collect)
	defer a.Stop()

	a.OnMessage(tag(1, 10, "Тема", "первая строка"))
	a.OnMessage(followup(1, 11, "вторая строка"))
	a.OnMessage(followup(1, 12, "третья"))

	p := sink.wait(t)
	if p.Topic != "Тема" {
		t.Errorf("topic = %q", p.Topic)
	}
	want := []string{"первая строка", "вторая строка", "третья"}
	if len(p.DescParts) != len(want) {
		t.Fatalf("descParts = %v, want %v", p.DescParts, want)
	}
	for i := range want {
		if p.DescParts[i] != want[i] {
			t.Errorf("descParts[%d] = %q, want %q (arrival order)", i, p.DescParts[i], want[i])
		}
	}
	if len(p.MessageIDs) != 3 {
		t.Errorf("messageIDs = %v", p.MessageIDs)
	}
	if a.Len() != 0 {
		t.Errorf("Len = %d after finalize", a.Len())
	}
}

func TestAggregator_UntaggedWithoutEntryIgnored(t *testing.T) {
	sink := newCapture()
	a := New(30*time.Millisecond, testClock(), sink.collect)
	defer a.Stop()

	a.OnMessage(followup(1, 10, "просто болтовня"))
	time.Sleep(80 * time.Millisecond)

	if sink.count() != 0 {
		t.Errorf("finalized %d, chatter should not open an entry", sink.count())
	}
}

func TestAggregator_NewTagForcesFinalize(t *testing.T) {
	sink := newCapture()
	a := New(time.Hour, testClock(), sink.collect) // long window: only the forced path fires
	defer a.Stop()

	a.OnMessage(tag(1, 10, "Первая", ""))
	a.OnMessage(tag(1, 20, "Вторая", ""))

	p := sink.wait(t)
	if p.Topic != "Первая" {
		t.Errorf("forced finalize topic = %q, want Первая", p.Topic)
	}
	if a.Len() != 1 {
		t.Errorf("Len = %d, second aggregation should stay open", a.Len())
	}
}

func TestAggregator_AuthorsIsolated(t *testing.T) {
	sink := newCapture()
	a := New(50*time.Millisecond, testClock(), sink.collect)
	defer a.Stop()

	a.OnMessage(tag(1, 10, "От первого", ""))
	a.OnMessage(tag(2, 20, "От второго", ""))
	a.OnMessage(followup(2, 21, "деталь второго"))

	first := sink.wait(t)
	second := sink.wait(t)
	if first.AuthorID == second.AuthorID {
		t.Fatal("both finalizations from the same author")
	}
	for _, p := range []Pending{first, second} {
		if p.AuthorID == 2 && (len(p.DescParts) != 1 || p.DescParts[0] != "деталь второго") {
			t.Errorf("author 2 parts = %v", p.DescParts)
		}
		if p.AuthorID == 1 && len(p.DescParts) != 0 {
			t.Errorf("author 1 parts = %v, want none", p.DescParts)
		}
	}
}

func TestAggregator_StopCancelsWithoutFinalize(t *testing.T) {
	sink := newCapture()
	a := New(30*time.Millisecond, testClock(), sink.collect)

	a.OnMessage(tag(1, 10, "Тема", ""))
	a.Stop()
	time.Sleep(80 * time.Millisecond)

	if sink.count() != 0 {
		t.Errorf("finalized %d after Stop, want 0", sink.count())
	}
}
