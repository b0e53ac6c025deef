package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"time-planner/internal/clock"
	"time-planner/internal/model"
	"time-planner/internal/notify"
	"time-planner/internal/repository"
	"time-planner/internal/service"
	"time-planner/internal/urgency"
)

const (
	cbOpenPrefix   = "open:"
	cbSnoozePrefix = "snooze:"
	cbDonePrefix   = "done:"

	snoozeDuration = 15 * time.Minute
)

const (
	iconDefault = "🟢"
	iconDue     = "⏳"
	iconOverdue = "⚠️"
)

// Bot is the push delivery channel and the operator's control surface: it
// pushes reminders to registered chats and accepts commands that drive the
// time machine, tasks and events.
type Bot struct {
	api      *tgbotapi.BotAPI
	userRepo *repository.UserRepository
	log      *slog.Logger

	tm       *clock.TimeMachine
	sched    *notify.Scheduler
	taskSvc  *service.TaskService
	eventSvc *service.EventService
	watch    *service.WatchService
}

func New(token string, userRepo *repository.UserRepository, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Info("bot authorized", "account", api.Self.UserName)

	return &Bot{api: api, userRepo: userRepo, log: log}, nil
}

// Attach wires the services the bot drives. Separate from New because the
// bot is also the scheduler's push channel and exists before the scheduler.
func (b *Bot) Attach(tm *clock.TimeMachine, sched *notify.Scheduler, taskSvc *service.TaskService,
	eventSvc *service.EventService, watch *service.WatchService) {
	b.tm = tm
	b.sched = sched
	b.taskSvc = taskSvc
	b.eventSvc = eventSvc
	b.watch = watch
}

// Deliver implements notify.Channel: the notification is pushed to every
// registered chat. Interactive reminders carry Open / Snooze / Done buttons.
func (b *Bot) Deliver(ctx context.Context, n notify.Notification) error {
	chatIDs, err := b.userRepo.ListChatIDs(ctx)
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}
	if len(chatIDs) == 0 {
		return errors.New("no registered chats")
	}

	text := fmt.Sprintf("<b>%s</b>\n%s", escape(n.Title), escape(n.Body))
	delivered := 0
	for _, chatID := range chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		if n.RequireInteraction && n.TargetID != "clock" {
			msg.ReplyMarkup = reminderKeyboard(n)
		}
		if _, err := b.api.Send(msg); err != nil {
			b.log.Warn("push to chat failed", "chat", chatID, "error", err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return errors.New("push delivery failed for all chats")
	}
	return nil
}

func reminderKeyboard(n notify.Notification) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔍 Open", cbOpenPrefix+n.TargetID),
			tgbotapi.NewInlineKeyboardButtonData("💤 Snooze 15m", cbSnoozePrefix+n.Tag),
			tgbotapi.NewInlineKeyboardButtonData("✅ Done", cbDonePrefix+n.Tag),
		),
	)
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Warn("handle callback", "error", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Warn("handle message", "error", err)
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	if !msg.IsCommand() {
		return b.sendText(msg.Chat.ID, "I only speak commands. Try /help.")
	}

	b.log.Info("command", "from", msg.From.ID, "command", msg.Command())

	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "now":
		return b.handleNow(msg)
	case "settime":
		return b.handleSetTime(msg)
	case "forward":
		return b.handleShift(msg, 1)
	case "backward":
		return b.handleShift(msg, -1)
	case "realtime":
		b.tm.ResetToSystemTime()
		return b.sendText(msg.Chat.ID, "⏱ Back on system time: "+b.tm.Now().Format("2006-01-02 15:04"))
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "newtask":
		return b.handleNewTask(ctx, msg)
	case "complete":
		return b.handleComplete(ctx, msg)
	case "events":
		return b.handleListEvents(ctx, msg)
	case "check":
		if err := b.watch.Resync(ctx); err != nil {
			return b.sendText(msg.Chat.ID, "Re-check failed: "+escape(err.Error()))
		}
		return b.sendText(msg.Chat.ID, "🔄 Schedule rebuilt, urgency re-checked.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.userRepo.UpsertFromTelegram(ctx, msg.From.ID, msg.Chat.ID, msg.From.FirstName, msg.From.UserName); err != nil {
		return err
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf(
		"👋 Hi, %s!\n<b>I push your task and event reminders, and I control the planner's clock.</b>\n\nSee /help for commands.",
		escape(name),
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Commands</b>\n" +
		"• /now — current planner time and mode\n" +
		"• /settime <code>2024-03-05 15:00</code> — pin the clock\n" +
		"• /forward &lt;minutes&gt; — move the clock forward\n" +
		"• /backward &lt;minutes&gt; — move the clock backward\n" +
		"• /realtime — resume system time\n" +
		"• /tasks — active tasks with urgency\n" +
		"• /newtask <code>2024-03-05</code> Buy tickets — add a task\n" +
		"• /complete &lt;id&gt; — finish a task\n" +
		"• /events — upcoming events and reminders\n" +
		"• /check — rebuild the reminder schedule now"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleNow(msg *tgbotapi.Message) error {
	mode := "virtual (pinned)"
	if b.tm.UsingSystemTime() {
		mode = "system"
	}
	text := fmt.Sprintf("🕒 <b>%s</b>\nMode: %s\nPending reminders: %d",
		b.tm.Now().Format("Monday, 2 January 2006, 15:04"), mode, b.sched.PendingCount())
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleSetTime(msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	t, err := parseTimeArg(args)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Use <code>/settime 2024-03-05 15:00</code> or <code>/settime 2024-03-05</code>.")
	}
	b.tm.SetTime(t)
	return b.sendText(msg.Chat.ID, "🕒 Clock pinned to "+t.Format("2006-01-02 15:04"))
}

func (b *Bot) handleShift(msg *tgbotapi.Message, sign int) error {
	args := strings.TrimSpace(msg.CommandArguments())
	minutes, err := strconv.Atoi(args)
	if err != nil || minutes <= 0 {
		return b.sendText(msg.Chat.ID, "Give a positive number of minutes, e.g. <code>/forward 90</code>.")
	}
	b.tm.Advance(time.Duration(sign*minutes) * time.Minute)
	return b.sendText(msg.Chat.ID, "🕒 Clock is now "+b.tm.Now().Format("2006-01-02 15:04"))
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	tasks, err := b.taskSvc.ListActive(ctx)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Could not load tasks: "+escape(err.Error()))
	}
	if len(tasks) == 0 {
		return b.sendText(msg.Chat.ID, "No open tasks. Add one with /newtask.")
	}

	now := b.tm.Now()
	var builder strings.Builder
	builder.WriteString("📋 <b>Open tasks</b>\n")
	for _, task := range tasks {
		builder.WriteString(formatTask(task, now))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func formatTask(task model.Task, now time.Time) string {
	var sb strings.Builder

	icon := iconDefault
	var due time.Time
	if task.DueDate != nil {
		due = *task.DueDate
	}
	switch urgency.Classify(due, task.IsCompleted, now) {
	case urgency.Overdue:
		icon = iconOverdue
	case urgency.Urgent, urgency.High:
		icon = iconDue
	}

	sb.WriteString(fmt.Sprintf("%s <b>#%d</b> %s", icon, task.ID, escape(strings.TrimSpace(task.Title))))
	if task.DueDate != nil {
		d := task.DueDate.In(now.Location())
		if now.After(d) {
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s — <b>overdue</b>", d.Format("2006-01-02")))
		} else {
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s", d.Format("2006-01-02 15:04")))
		}
	}
	if task.Description != "" {
		sb.WriteString("\n   📝 " + escape(strings.TrimSpace(task.Description)))
	}
	sb.WriteByte('\n')
	return sb.String()
}

func (b *Bot) handleNewTask(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendText(msg.Chat.ID, "Usage: <code>/newtask 2024-03-05 Buy tickets</code> (date optional).")
	}

	input := service.TaskInput{Title: args}
	if fields := strings.Fields(args); len(fields) > 1 {
		if due, err := time.Parse("2006-01-02", fields[0]); err == nil {
			end := due.Add(24*time.Hour - time.Minute) // due by end of that day
			input.DueDate = &end
			input.Title = strings.TrimSpace(strings.TrimPrefix(args, fields[0]))
		}
	}

	task, err := b.taskSvc.CreateTask(ctx, input)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Could not save the task: "+escape(err.Error()))
	}

	text := fmt.Sprintf("✅ Task <b>#%d</b> saved: %s", task.ID, escape(task.Title))
	if task.DueDate != nil {
		text += "\n⏰ Due " + task.DueDate.Format("2006-01-02")
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleComplete(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	taskID, err := strconv.ParseUint(args, 10, 32)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give the task number: <code>/complete 12</code>.")
	}

	task, err := b.taskSvc.CompleteTask(ctx, uint(taskID), b.tm.Now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(msg.Chat.ID, "Task not found.")
		}
		return b.sendText(msg.Chat.ID, "Error: "+escape(err.Error()))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Task «%s» completed.", escape(task.Title)))
}

func (b *Bot) handleListEvents(ctx context.Context, msg *tgbotapi.Message) error {
	events, err := b.eventSvc.ListUpcoming(ctx, b.tm.Now())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Could not load events: "+escape(err.Error()))
	}
	if len(events) == 0 {
		return b.sendText(msg.Chat.ID, "No upcoming events.")
	}

	var builder strings.Builder
	builder.WriteString("🗓 <b>Upcoming events</b>\n")
	for _, ev := range events {
		builder.WriteString(fmt.Sprintf("• <b>#%d</b> %s — %s", ev.ID, escape(ev.Title), ev.StartDate.Format("2006-01-02 15:04")))
		if n := len(ev.Notifications); n > 0 {
			builder.WriteString(fmt.Sprintf(" (%d reminder(s))", n))
		}
		builder.WriteByte('\n')
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

// handleCallback reacts to reminder buttons: open shows the target, snooze
// suppresses its tag and done acknowledges it (completing the task if the
// tag belongs to one).
func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb.Message == nil {
		return nil
	}
	data := cb.Data
	var ack string

	switch {
	case strings.HasPrefix(data, cbOpenPrefix):
		targetID := strings.TrimPrefix(data, cbOpenPrefix)
		if err := b.openTarget(ctx, cb.Message.Chat.ID, targetID); err != nil {
			return err
		}
		ack = "Opened"
	case strings.HasPrefix(data, cbSnoozePrefix):
		tag := strings.TrimPrefix(data, cbSnoozePrefix)
		b.sched.Snooze(tag, snoozeDuration)
		ack = "Snoozed for 15 minutes"
	case strings.HasPrefix(data, cbDonePrefix):
		tag := strings.TrimPrefix(data, cbDonePrefix)
		b.sched.Acknowledge(tag)
		if taskID, ok := taskIDFromTag(tag); ok {
			if _, err := b.taskSvc.CompleteTask(ctx, taskID, b.tm.Now()); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}
		ack = "Done"
	default:
		ack = "Unknown action"
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, ack)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// openTarget responds to the "open" navigation signal with the target's
// details.
func (b *Bot) openTarget(ctx context.Context, chatID int64, targetID string) error {
	kind, raw, found := strings.Cut(targetID, "-")
	id, err := strconv.ParseUint(raw, 10, 32)
	if !found || err != nil {
		return b.sendText(chatID, "Nothing to open.")
	}

	switch kind {
	case "task":
		task, err := b.taskSvc.GetTask(ctx, uint(id))
		if err != nil {
			return b.sendText(chatID, "Task not found (it may have been deleted).")
		}
		return b.sendText(chatID, strings.TrimSpace(formatTask(*task, b.tm.Now())))
	case "event":
		events, err := b.eventSvc.ListUpcoming(ctx, time.Time{})
		if err == nil {
			for _, ev := range events {
				if ev.ID == uint(id) {
					text := fmt.Sprintf("🗓 <b>%s</b>\n%s", escape(ev.Title), ev.StartDate.Format("Monday, 2 January 2006, 15:04"))
					if ev.Place != "" {
						text += "\n📍 " + escape(ev.Place)
					}
					return b.sendText(chatID, text)
				}
			}
		}
		return b.sendText(chatID, "Event not found (it may have been deleted).")
	default:
		return b.sendText(chatID, "Nothing to open.")
	}
}

// taskIDFromTag extracts the numeric id from a task notification tag like
// "task-12-overdue".
func taskIDFromTag(tag string) (uint, bool) {
	parts := strings.Split(tag, "-")
	if len(parts) < 2 || parts[0] != "task" {
		return 0, false
	}
	id, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

func parseTimeArg(args string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, args, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", args)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func escape(s string) string {
	return html.EscapeString(s)
}
