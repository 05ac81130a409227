// Package gateway wires the transport, the aggregation pipeline, the task
// state machine and the background services into one process.
package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rpz-tools/taskbot/internal/aggregate"
	"github.com/rpz-tools/taskbot/internal/analytics"
	"github.com/rpz-tools/taskbot/internal/bus"
	"github.com/rpz-tools/taskbot/internal/channel"
	"github.com/rpz-tools/taskbot/internal/clock"
	"github.com/rpz-tools/taskbot/internal/config"
	"github.com/rpz-tools/taskbot/internal/digest"
	"github.com/rpz-tools/taskbot/internal/escalation"
	"github.com/rpz-tools/taskbot/internal/report"
	"github.com/rpz-tools/taskbot/internal/stale"
	"github.com/rpz-tools/taskbot/internal/store"
	"github.com/rpz-tools/taskbot/internal/task"
)

// Telegram's service accounts: 777000 relays channel posts into the linked
// discussion chat, 1087968824 is the anonymous group admin bot. Neither is a
// human author.
var serviceSenders = map[string]struct{}{
	"777000":     {},
	"1087968824": {},
}

// Options for creating a Gateway
type Options struct {
	BotFactory channel.BotFactory
	SignalChan chan os.Signal // for testing signal handling
}

type Gateway struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	channels   *channel.Manager
	clk        clock.Clock
	loc        *time.Location
	quiet      clock.Window
	stores     *store.Client
	dir        *store.Directory
	ids        *task.Counter
	agg        *aggregate.Aggregator
	creator    *task.Creator
	machine    *task.Machine
	watch      *escalation.Watchdog
	monitor    *stale.Monitor
	digest     *digest.Service
	metrics    *analytics.Log
	budgets    stale.Budgets
	signalChan chan os.Signal // for testing
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg}

	loc, err := time.LoadLocation(cfg.Tracker.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Tracker.Timezone, err)
	}
	g.loc = loc
	g.clk = clock.NewSystem(loc)

	g.quiet, err = clock.ParseWindow(cfg.Quiet.Start, cfg.Quiet.End)
	if err != nil {
		return nil, fmt.Errorf("parse quiet window: %w", err)
	}

	// Message bus
	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	// Store: CSV file behind retry behind cache.
	fileStore := store.NewFileStore(cfg.TasksPath())
	retrying := store.WithRetry(fileStore, cfg.Store.RetryAttempts)
	g.stores = store.NewClient(retrying, config.Duration(cfg.Store.CacheTTL, time.Minute), g.clk)

	g.dir = store.NewDirectory(store.NewFileStore(cfg.UsersPath()))

	g.metrics, err = analytics.Open(cfg.AnalyticsPath())
	if err != nil {
		return nil, fmt.Errorf("open analytics: %w", err)
	}

	// Channels
	monitored := []int64{cfg.Chats.DiscussionChatID}
	var chMgr *channel.Manager
	if opts.BotFactory != nil {
		chMgr, err = channel.NewManagerWithFactory(cfg.Telegram, monitored, g.bus, opts.BotFactory)
	} else {
		chMgr, err = channel.NewManager(cfg.Telegram, monitored, g.bus)
	}
	if err != nil {
		g.metrics.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	msgr := channel.WithMessengerRetry(chMgr.Telegram(), cfg.Store.RetryAttempts)

	notifyOps := func(text string) {
		g.bus.Outbound <- bus.OutboundMessage{
			Channel: "telegram",
			ChatID:  strconv.FormatInt(cfg.Chats.OpsChannelID, 10),
			Content: text,
		}
	}
	announce := func(text string) {
		g.bus.Outbound <- bus.OutboundMessage{
			Channel: "telegram",
			ChatID:  strconv.FormatInt(cfg.Chats.DiscussionChatID, 10),
			Content: text,
		}
	}

	g.watch = escalation.New(escalation.Options{
		Store:        g.stores,
		Clock:        g.clk,
		Quiet:        g.quiet,
		Location:     loc,
		Notify:       notifyOps,
		InitialDelay: config.Duration(cfg.Escalation.InitialDelay, 5*time.Minute),
		Interval:     config.Duration(cfg.Escalation.Interval, 5*time.Minute),
	})

	g.ids = task.NewCounter()

	g.creator = task.NewCreator(task.CreatorOptions{
		Store:           g.stores,
		IDs:             g.ids,
		Directory:       g.dir,
		Messenger:       msgr,
		Clock:           g.clk,
		Escalations:     g.watch,
		AnnounceChannel: cfg.Chats.AnnounceChannelID,
		DiscussionChat:  cfg.Chats.DiscussionChatID,
		PrincipalUserID: cfg.Tracker.PrincipalUserID,
		PrincipalTag:    cfg.Tracker.PrincipalTag,
	})

	g.agg = aggregate.New(
		config.Duration(cfg.Tracker.DebounceWindow, 20*time.Second),
		g.clk,
		func(p aggregate.Pending) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			g.creator.Create(ctx, p)
		})

	g.machine = task.NewMachine(task.MachineOptions{
		Store:                g.stores,
		Messenger:            msgr,
		Directory:            g.dir,
		Clock:                g.clk,
		Escalations:          g.watch,
		Notify:               notifyOps,
		AnnounceChannel:      cfg.Chats.AnnounceChannelID,
		DiscussionChat:       cfg.Chats.DiscussionChatID,
		RecreateAnnouncement: cfg.Tracker.RecreateAnnouncement,
	})

	g.budgets = stale.Budgets{
		High:   config.Duration(cfg.Stale.HighBudget, 2*time.Hour),
		Medium: config.Duration(cfg.Stale.MediumBudget, 5*time.Hour),
		Low:    config.Duration(cfg.Stale.LowBudget, 8*time.Hour),
	}
	g.monitor = stale.New(stale.Options{
		Store:    g.stores,
		Clock:    g.clk,
		Quiet:    g.quiet,
		Location: loc,
		Budgets:  g.budgets,
		Interval: config.Duration(cfg.Stale.ScanInterval, 30*time.Minute),
		Notify:   notifyOps,
	})

	g.digest = digest.New(digest.Options{
		Store:    g.stores,
		Watchdog: g.watch,
		Metrics:  g.metrics,
		Clock:    g.clk,
		Location: loc,
		Quiet:    g.quiet,
		Budgets:  g.budgets,
		Reports:  cfg.Reports,
		Notify:   notifyOps,
		Announce: announce,
	})

	// Signal channel for testing
	g.signalChan = opts.SignalChan

	return g, nil
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}

	if err := g.dir.Refresh(ctx); err != nil {
		log.Printf("[gateway] user directory load warning: %v", err)
	}

	if ids, err := g.stores.ColValues(ctx, task.ColID); err != nil {
		log.Printf("[gateway] seed id counter warning: %v", err)
	} else {
		g.ids.Seed(ids)
		log.Printf("[gateway] next task id: %s", g.ids.Peek())
	}

	// Rebuild escalation timers lost to the restart.
	if err := g.watch.Recover(ctx); err != nil {
		log.Printf("[gateway] escalation recovery warning: %v", err)
	} else {
		log.Printf("[gateway] recovered %d escalation timers", g.watch.ActiveCount())
	}

	g.monitor.Start(ctx)
	if err := g.digest.Start(ctx); err != nil {
		return fmt.Errorf("start digest scheduler: %w", err)
	}

	go g.processLoop(ctx)

	log.Printf("[gateway] running, discussion chat %d", g.cfg.Chats.DiscussionChatID)

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			g.handleInbound(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	if _, service := serviceSenders[msg.SenderID]; service {
		return
	}

	log.Printf("[gateway] inbound from %s/%s: %s", msg.Channel, msg.SenderID, truncate(msg.Content, 80))

	if strings.HasPrefix(msg.Content, "/") {
		g.handleCommand(ctx, msg)
		return
	}

	if msg.ReplyTo != nil {
		g.machine.HandleReply(ctx, task.Reply{
			Text:            msg.Content,
			QuotedText:      msg.ReplyTo.Content,
			ActionMessageID: msg.MessageID,
			SenderHandle:    msg.SenderHandle,
			SenderName:      msg.SenderName,
		})
		return
	}

	authorID, _ := strconv.ParseInt(msg.SenderID, 10, 64)
	chatID, _ := strconv.ParseInt(msg.ChatID, 10, 64)
	topic, desc := task.SplitTopic(msg.Content)
	g.agg.OnMessage(aggregate.Message{
		AuthorID:     authorID,
		ChatID:       chatID,
		AuthorHandle: msg.SenderHandle,
		AuthorName:   msg.SenderName,
		MessageID:    msg.MessageID,
		Text:         msg.Content,
		IsTag:        task.IsCreationTag(msg.Content),
		Topic:        topic,
		Desc:         desc,
	})
}

func (g *Gateway) handleCommand(ctx context.Context, msg bus.InboundMessage) {
	reply := func(text string) {
		g.bus.Outbound <- bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: text,
		}
	}

	// strip arguments and the @botname suffix of group commands
	cmd := msg.Content
	if idx := strings.IndexAny(cmd, " @"); idx > 0 {
		cmd = cmd[:idx]
	}

	switch cmd {
	case "/test":
		reply(fmt.Sprintf("✅ Бот работает!\nChat ID: %s\nUser ID: %s\nUsername: %s",
			msg.ChatID, msg.SenderID, msg.SenderHandle))

	case "/reload":
		if err := g.dir.Refresh(ctx); err != nil {
			log.Printf("[gateway] reload user directory: %v", err)
			reply("⚠️ Не удалось обновить список пользователей.")
			return
		}
		reply("🔄 Список пользователей обновлён.")

	case "/today":
		g.withTasks(ctx, reply, func(tasks []task.Task) string {
			return report.Today(tasks, g.clk.Now().Format(task.DateLayout))
		})

	case "/pending":
		g.withTasks(ctx, reply, report.Pending)

	case "/stats":
		g.withTasks(ctx, reply, func(tasks []task.Task) string {
			return report.Stats(tasks, g.clk.Now().Format(task.DateLayout))
		})

	case "/task":
		arg := strings.TrimSpace(strings.TrimPrefix(msg.Content, "/task"))
		id := task.MatchID(arg)
		if id == "" {
			reply("Укажите номер задачи: /task TASK-0001")
			return
		}
		g.withTasks(ctx, reply, func(tasks []task.Task) string {
			for _, t := range tasks {
				if t.ID == id {
					return task.Render(t, "")
				}
			}
			return fmt.Sprintf("Задача %s не найдена.", id)
		})

	case "/thresholds":
		reply(report.Thresholds(g.budgets, config.Duration(g.cfg.Stale.ScanInterval, 30*time.Minute)))

	default:
		// unknown commands are ignored, the chat has other bots
	}
}

func (g *Gateway) withTasks(ctx context.Context, reply func(string), format func([]task.Task) string) {
	rows, err := g.stores.Rows(ctx)
	if err != nil {
		log.Printf("[gateway] read tasks for command: %v", err)
		reply("⚠️ Не удалось прочитать таблицу задач.")
		return
	}
	reply(format(task.ParseAll(rows)))
}

func (g *Gateway) Shutdown() error {
	g.agg.Stop()
	g.watch.Stop()
	g.digest.Stop()
	if g.metrics != nil {
		if err := g.metrics.Close(); err != nil {
			log.Printf("[gateway] close analytics warning: %v", err)
		}
	}
	_ = g.channels.StopAll()
	log.Printf("[gateway] shutdown complete")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
