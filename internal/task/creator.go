package task

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/rpz-tools/taskbot/internal/aggregate"
	"github.com/rpz-tools/taskbot/internal/clock"
	"github.com/rpz-tools/taskbot/internal/store"
)

// Registrar receives newly created High-priority tasks for escalation.
type Registrar interface {
	Register(taskID, topic string, createdAt time.Time)
}

// Creator finalizes an aggregated creation: mints the id, resolves the
// author, derives the priority, cleans up the source messages, announces the
// task and appends its row. High-priority tasks are handed to the watchdog.
type Creator struct {
	store        *store.Client
	ids          *Counter
	dir          Resolver
	msgr         Messenger
	clk          clock.Clock
	esc          Registrar
	announce     int64
	discussion   int64
	principalID  int64
	principalTag string
}

type CreatorOptions struct {
	Store           *store.Client
	IDs             *Counter
	Directory       Resolver
	Messenger       Messenger
	Clock           clock.Clock
	Escalations     Registrar
	AnnounceChannel int64
	DiscussionChat  int64
	PrincipalUserID int64
	PrincipalTag    string
}

func NewCreator(opts CreatorOptions) *Creator {
	return &Creator{
		store:        opts.Store,
		ids:          opts.IDs,
		dir:          opts.Directory,
		msgr:         opts.Messenger,
		clk:          opts.Clock,
		esc:          opts.Escalations,
		announce:     opts.AnnounceChannel,
		discussion:   opts.DiscussionChat,
		principalID:  opts.PrincipalUserID,
		principalTag: opts.PrincipalTag,
	}
}

// Create publishes one finalized aggregation. A failed announcement aborts
// the store append: losing the task beats recording a row nobody can see.
func (c *Creator) Create(ctx context.Context, p aggregate.Pending) {
	description := strings.TrimSpace(strings.Join(p.DescParts, "\n"))
	id := c.ids.Next()
	now := c.clk.Now()

	author := p.AuthorName
	if p.AuthorHandle != "" {
		author = c.dir.Resolve(p.AuthorHandle)
	}

	tags := ""
	if c.principalID != 0 && p.AuthorID == c.principalID {
		tags = c.principalTag
	}

	// Priority comes from the full creation text, once, never revisited.
	priority := PriorityFromText(p.Topic + "\n" + description)

	for _, msgID := range p.MessageIDs {
		if err := c.msgr.DeleteMessage(ctx, c.discussion, msgID); err != nil {
			log.Printf("[creator] delete source message %d: %v", msgID, err)
		}
	}

	t := Task{
		ID:          id,
		CreatedDate: now.Format(DateLayout),
		CreatedTime: now.Format(TimeLayout),
		Topic:       p.Topic,
		Description: description,
		Author:      author,
		Status:      StatusUnassigned,
		Tags:        tags,
		Priority:    priority,
	}

	msgID, err := c.msgr.SendText(ctx, c.announce, Render(t, ""))
	if err != nil {
		log.Printf("[creator] announce %s failed, task lost: %v", id, err)
		return
	}
	t.AnnouncementRef = strconv.Itoa(msgID)

	if err := c.store.Append(ctx, t.Row()); err != nil {
		log.Printf("[creator] append row for %s: %v", id, err)
	} else {
		log.Printf("[creator] created %s (%s) by %s", id, priority, author)
	}

	if priority == PriorityHigh && c.esc != nil {
		c.esc.Register(id, p.Topic, now)
	}
}
