package task

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/rpz-tools/taskbot/internal/clock"
	"github.com/rpz-tools/taskbot/internal/store"
)

// Messenger is the synchronous slice of the chat transport the task core
// needs: sends that return the new message id, in-place edits and deletes.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Resolver maps an @handle to a display name.
type Resolver interface {
	Resolve(handle string) string
}

// Canceller removes a task's escalation entry once it leaves Unassigned.
type Canceller interface {
	Cancel(taskID string)
}

// Reply is a discussion-chat reply to a task announcement.
type Reply struct {
	Text            string
	QuotedText      string
	ActionMessageID int
	SenderHandle    string // "@user", may be empty
	SenderName      string
}

// Machine applies the reply-driven transitions:
// Unassigned -> {InProgress, Operational} -> Done, InProgress <-> Operational.
// Done is terminal; replies to a done task are dropped without a trace.
type Machine struct {
	store       *store.Client
	msgr        Messenger
	dir         Resolver
	clk         clock.Clock
	esc         Canceller
	notify      func(text string)
	announce    int64
	discussion  int64
	recreateRef bool
}

type MachineOptions struct {
	Store                *store.Client
	Messenger            Messenger
	Directory            Resolver
	Clock                clock.Clock
	Escalations          Canceller
	Notify               func(text string)
	AnnounceChannel      int64
	DiscussionChat       int64
	RecreateAnnouncement bool
}

func NewMachine(opts MachineOptions) *Machine {
	m := &Machine{
		store:       opts.Store,
		msgr:        opts.Messenger,
		dir:         opts.Directory,
		clk:         opts.Clock,
		esc:         opts.Escalations,
		notify:      opts.Notify,
		announce:    opts.AnnounceChannel,
		discussion:  opts.DiscussionChat,
		recreateRef: opts.RecreateAnnouncement,
	}
	if m.notify == nil {
		m.notify = func(string) {}
	}
	return m
}

// HandleReply interprets a reply and applies at most one transition. Replies
// with no task reference, no trigger, or a terminal target are ignored.
func (m *Machine) HandleReply(ctx context.Context, r Reply) {
	id := MatchID(r.QuotedText)
	if id == "" {
		return
	}

	// Transitions always read through to the authoritative store.
	rows, err := m.store.FreshRows(ctx)
	if err != nil {
		log.Printf("[machine] read store for %s: %v", id, err)
		return
	}
	rowIdx := FindRow(rows, id)
	if rowIdx == 0 {
		log.Printf("[machine] %s not found in store", id)
		return
	}
	t := FromRow(rows[rowIdx-1])
	if t.Status == StatusDone {
		log.Printf("[machine] %s already done, ignoring reply", id)
		return
	}

	var processed bool
	switch {
	case ExtractHandle(r.Text) != "":
		processed = m.assign(ctx, rowIdx, t, ExtractHandle(r.Text))
	case HasCompletionKeyword(r.Text):
		processed = m.complete(ctx, rowIdx, t, r)
	case HasOperationalKeyword(r.Text):
		processed = m.markOperational(ctx, rowIdx, t, r)
	default:
		return
	}

	// The action message is only cleaned up after the transition landed.
	if processed && r.ActionMessageID != 0 {
		if err := m.msgr.DeleteMessage(ctx, m.discussion, r.ActionMessageID); err != nil {
			log.Printf("[machine] delete action message %d: %v", r.ActionMessageID, err)
		}
	}
}

func (m *Machine) assign(ctx context.Context, rowIdx int, t Task, handle string) bool {
	name := m.dir.Resolve(handle)
	now := m.clk.Now().Format(StampLayout)

	if err := m.store.UpdateCell(ctx, rowIdx, ColExecutor, name); err != nil {
		log.Printf("[machine] assign %s: set executor: %v", t.ID, err)
		return false
	}
	if err := m.store.UpdateCell(ctx, rowIdx, ColStatus, string(StatusInProgress)); err != nil {
		log.Printf("[machine] assign %s: set status: %v", t.ID, err)
		return false
	}
	t.Executor = name
	t.Status = StatusInProgress
	// assignedAt is stamped once, at the first assignment.
	if t.AssignedAt == "" {
		if err := m.store.UpdateCell(ctx, rowIdx, ColAssignedAt, now); err != nil {
			log.Printf("[machine] assign %s: set assignedAt: %v", t.ID, err)
			return false
		}
		t.AssignedAt = now
	}

	m.editAnnouncement(ctx, rowIdx, t, fmt.Sprintf("В работе у %s", name))

	display := name
	if name != handle {
		display = fmt.Sprintf("%s (%s)", name, handle)
	}
	m.notify(fmt.Sprintf("Назначено на %s", display))
	m.esc.Cancel(t.ID)
	log.Printf("[machine] %s assigned to %s", t.ID, display)
	return true
}

func (m *Machine) complete(ctx context.Context, rowIdx int, t Task, r Reply) bool {
	closer := m.replierName(r)
	now := m.clk.Now().Format(StampLayout)

	if err := m.store.UpdateCell(ctx, rowIdx, ColStatus, string(StatusDone)); err != nil {
		log.Printf("[machine] complete %s: set status: %v", t.ID, err)
		return false
	}
	if err := m.store.UpdateCell(ctx, rowIdx, ColCompletedAt, now); err != nil {
		log.Printf("[machine] complete %s: set completedAt: %v", t.ID, err)
		return false
	}
	if err := m.store.UpdateCell(ctx, rowIdx, ColClosedBy, closer); err != nil {
		log.Printf("[machine] complete %s: set closedBy: %v", t.ID, err)
		return false
	}

	executor := t.Executor
	if executor == "" {
		executor = closer
	}
	t.Status = StatusDone
	t.CompletedAt = now
	t.ClosedBy = closer

	m.editAnnouncement(ctx, rowIdx, t, fmt.Sprintf("Выполнил %s", executor))

	if closer != executor {
		m.notify(fmt.Sprintf("Задача №%s — Выполнено %s (закрыл %s)", t.ID, executor, closer))
	} else {
		m.notify(fmt.Sprintf("Задача №%s — Выполнено %s", t.ID, executor))
	}
	m.esc.Cancel(t.ID)
	log.Printf("[machine] %s completed by %s", t.ID, closer)
	return true
}

func (m *Machine) markOperational(ctx context.Context, rowIdx int, t Task, r Reply) bool {
	now := m.clk.Now().Format(StampLayout)

	if err := m.store.UpdateCell(ctx, rowIdx, ColStatus, string(StatusOperational)); err != nil {
		log.Printf("[machine] operational %s: set status: %v", t.ID, err)
		return false
	}
	wasUnassigned := t.Status == StatusUnassigned
	t.Status = StatusOperational

	if wasUnassigned {
		name := m.replierName(r)
		if err := m.store.UpdateCell(ctx, rowIdx, ColExecutor, name); err != nil {
			log.Printf("[machine] operational %s: set executor: %v", t.ID, err)
			return false
		}
		t.Executor = name
		if t.AssignedAt == "" {
			if err := m.store.UpdateCell(ctx, rowIdx, ColAssignedAt, now); err != nil {
				log.Printf("[machine] operational %s: set assignedAt: %v", t.ID, err)
				return false
			}
			t.AssignedAt = now
		}
	}

	line := "Операционная задача"
	if t.Executor != "" {
		line = fmt.Sprintf("Операционная задача у %s", t.Executor)
	}
	m.editAnnouncement(ctx, rowIdx, t, line)
	m.esc.Cancel(t.ID)
	log.Printf("[machine] %s marked operational", t.ID)
	return true
}

func (m *Machine) replierName(r Reply) string {
	if r.SenderHandle != "" {
		return m.dir.Resolve(r.SenderHandle)
	}
	if r.SenderName != "" {
		return r.SenderName
	}
	return "—"
}

// editAnnouncement updates the channel card in place. When the stored ref is
// missing or the edit fails, behavior depends on config: recreate the card
// and overwrite the ref (the historical behavior, at the cost of a duplicate
// in the channel), or fail loudly and leave the row as is.
func (m *Machine) editAnnouncement(ctx context.Context, rowIdx int, t Task, statusLine string) {
	text := Render(t, statusLine)

	msgID, convErr := strconv.Atoi(strings.TrimSpace(t.AnnouncementRef))
	if convErr == nil && msgID > 0 {
		err := m.msgr.EditText(ctx, m.announce, msgID, text)
		if err == nil {
			return
		}
		log.Printf("[machine] edit announcement for %s: %v", t.ID, err)
	} else {
		log.Printf("[machine] %s has no usable announcement ref %q", t.ID, t.AnnouncementRef)
	}

	if !m.recreateRef {
		log.Printf("[machine] announcement for %s left stale (recreate disabled)", t.ID)
		return
	}

	newID, err := m.msgr.SendText(ctx, m.announce, text)
	if err != nil {
		log.Printf("[machine] recreate announcement for %s: %v", t.ID, err)
		return
	}
	if err := m.store.UpdateCell(ctx, rowIdx, ColAnnouncementRef, strconv.Itoa(newID)); err != nil {
		log.Printf("[machine] store recreated ref for %s: %v", t.ID, err)
		return
	}
	log.Printf("[machine] announcement for %s recreated as message %d", t.ID, newID)
}
