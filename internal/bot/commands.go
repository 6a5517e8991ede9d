package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"remindbot/internal/models"
	"remindbot/internal/repository"
	"remindbot/internal/services"
	"remindbot/internal/timeparse"

	"github.com/sirupsen/logrus"
)

const displayLayout = "02.01.2006 15:04"

// Reminders is the reminder API the chat commands drive.
type Reminders interface {
	Create(ctx context.Context, req services.CreateRequest) (*models.Reminder, error)
	Get(ctx context.Context, id string) (*models.Reminder, error)
	ListPending(ctx context.Context, ownerID int64) ([]models.Reminder, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteAll(ctx context.Context, ownerID int64) (int, error)
}

type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

type BotCommand struct {
	Command string
	Args    string
	UserID  int64
	ChatID  int64
}

type Handler struct {
	reminders Reminders
	messenger Messenger
	loc       *time.Location
	logger    *logrus.Logger
}

func NewHandler(reminders Reminders, messenger Messenger, loc *time.Location, logger *logrus.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		reminders: reminders,
		messenger: messenger,
		loc:       loc,
		logger:    logger,
	}
}

func (h *Handler) ProcessMessage(ctx context.Context, update *models.Update) {
	if update.Message.Text == "" {
		return
	}

	command := parseCommand(strings.TrimSpace(update.Message.Text), update.Message.From.Id, update.Message.Chat.Id)
	h.logger.WithFields(logrus.Fields{
		"user_id": command.UserID,
		"command": command.Command,
	}).Info("Processing command")

	switch command.Command {
	case "/start", "/help":
		h.handleStart(ctx, command)
	case "/remind":
		h.handleRemind(ctx, command)
	case "/list", "/my_reminders":
		h.handleList(ctx, command)
	case "/delete":
		h.handleDelete(ctx, command)
	case "/delete_all":
		h.handleDeleteAll(ctx, command)
	default:
		h.sendMessage(ctx, command.ChatID, "Unknown command. Use /help to see available commands")
	}
}

// parseCommand splits "/cmd@botname rest" into the command and its raw
// argument text.
func parseCommand(text string, userID, chatID int64) BotCommand {
	cmd := BotCommand{UserID: userID, ChatID: chatID}

	head, rest, _ := strings.Cut(text, " ")
	if at := strings.Index(head, "@"); at > 0 {
		head = head[:at]
	}
	cmd.Command = strings.ToLower(head)
	cmd.Args = strings.TrimSpace(rest)
	return cmd
}

func (h *Handler) handleStart(ctx context.Context, cmd BotCommand) {
	var picks []string
	for _, q := range timeparse.QuickPicks() {
		picks = append(picks, q.String())
	}

	welcomeMessage := `👋 <b>Welcome to the reminder bot!</b>

<b>Set a reminder</b>
/remind in 2 hours | call mom
/remind завтра в 9:00 | planning
/remind 25.12.2030 18:00 | dinner

<b>Time phrases</b>
in N minutes/hours, через N минут/часов
tomorrow at H:MM, завтра в H:MM
DD.MM.YYYY H:MM
today morning/evening, tomorrow morning
Quick picks: ` + html.EscapeString(strings.Join(picks, ", ")) + `

<b>Manage</b>
/list - your pending reminders
/delete &lt;id&gt; - delete one reminder
/delete_all - delete all pending reminders`

	h.sendMessage(ctx, cmd.ChatID, welcomeMessage)
}

func (h *Handler) handleRemind(ctx context.Context, cmd BotCommand) {
	when, text, ok := strings.Cut(cmd.Args, "|")
	if !ok || strings.TrimSpace(when) == "" {
		h.sendMessage(ctx, cmd.ChatID, "Usage: /remind &lt;when&gt; | &lt;text&gt;\nExample: /remind in 2 hours | call mom")
		return
	}

	reminder, err := h.reminders.Create(ctx, services.CreateRequest{
		OwnerID:       cmd.UserID,
		DestinationID: cmd.ChatID,
		Text:          strings.TrimSpace(text),
		When:          strings.TrimSpace(when),
	})
	if err != nil {
		h.sendMessage(ctx, cmd.ChatID, createErrorMessage(err))
		if !isUserError(err) {
			h.logger.WithError(err).WithField("user_id", cmd.UserID).Error("Failed to create reminder")
		}
		return
	}

	h.sendMessage(ctx, cmd.ChatID, fmt.Sprintf("✅ Reminder set for <b>%s</b>\n🆔 <code>%s</code>",
		reminder.FireAt.In(h.loc).Format(displayLayout), reminder.ID))
}

func isUserError(err error) bool {
	return errors.Is(err, timeparse.ErrUnparseable) ||
		errors.Is(err, services.ErrEmptyText) ||
		errors.Is(err, services.ErrInPast) ||
		errors.Is(err, services.ErrNotStarted) ||
		errors.Is(err, services.ErrNoChat)
}

func createErrorMessage(err error) string {
	switch {
	case errors.Is(err, timeparse.ErrUnparseable):
		return "🤔 I couldn't understand that time. Try \"in 2 hours\", \"tomorrow at 9:00\" or \"25.12.2030 18:00\"."
	case errors.Is(err, services.ErrEmptyText):
		return "Please add the reminder text after the |."
	case errors.Is(err, services.ErrInPast):
		return "⌛ That time has already passed."
	case errors.Is(err, services.ErrNotStarted):
		return "Still starting up, please try again in a moment."
	case errors.Is(err, services.ErrNoChat):
		return "I can only set reminders from a chat with a known sender."
	default:
		return "Error occurred while saving your reminder. Please try again later."
	}
}

func (h *Handler) handleList(ctx context.Context, cmd BotCommand) {
	reminders, err := h.reminders.ListPending(ctx, cmd.UserID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", cmd.UserID).Error("Failed to list reminders")
		h.sendMessage(ctx, cmd.ChatID, "Error occurred while loading your reminders. Please try again later.")
		return
	}

	h.sendMessage(ctx, cmd.ChatID, h.formatList(reminders))
}

func (h *Handler) formatList(reminders []models.Reminder) string {
	if len(reminders) == 0 {
		return "📋 You have no pending reminders."
	}

	var b strings.Builder
	b.WriteString("📋 <b>Your reminders</b>\n")
	for i, r := range reminders {
		fmt.Fprintf(&b, "\n%d. <b>%s</b>: %s\n🆔 <code>%s</code>\n",
			i+1, r.FireAt.In(h.loc).Format(displayLayout), html.EscapeString(r.Text), r.ID)
	}
	return b.String()
}

func (h *Handler) handleDelete(ctx context.Context, cmd BotCommand) {
	if cmd.Args == "" {
		h.sendMessage(ctx, cmd.ChatID, "Usage: /delete &lt;id&gt;")
		return
	}
	id := strings.Fields(cmd.Args)[0]

	reminder, err := h.reminders.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && reminder.OwnerID != cmd.UserID) {
		h.sendMessage(ctx, cmd.ChatID, "Nothing to delete with that id.")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("reminder_id", id).Error("Failed to load reminder")
		h.sendMessage(ctx, cmd.ChatID, "Error occurred while deleting. Please try again later.")
		return
	}

	deleted, err := h.reminders.Delete(ctx, id)
	switch {
	case errors.Is(err, services.ErrNotStarted):
		h.sendMessage(ctx, cmd.ChatID, createErrorMessage(err))
	case err != nil:
		h.logger.WithError(err).WithField("reminder_id", id).Error("Failed to delete reminder")
		h.sendMessage(ctx, cmd.ChatID, "Error occurred while deleting. Please try again later.")
	case !deleted:
		h.sendMessage(ctx, cmd.ChatID, "Nothing to delete with that id.")
	default:
		h.sendMessage(ctx, cmd.ChatID, "🗑 Reminder deleted.")
	}
}

func (h *Handler) handleDeleteAll(ctx context.Context, cmd BotCommand) {
	count, err := h.reminders.DeleteAll(ctx, cmd.UserID)
	switch {
	case errors.Is(err, services.ErrNotStarted):
		h.sendMessage(ctx, cmd.ChatID, createErrorMessage(err))
	case err != nil:
		h.logger.WithError(err).WithField("user_id", cmd.UserID).Error("Failed to delete reminders")
		h.sendMessage(ctx, cmd.ChatID, "Error occurred while deleting. Please try again later.")
	case count == 0:
		h.sendMessage(ctx, cmd.ChatID, "📋 You have no pending reminders.")
	default:
		h.sendMessage(ctx, cmd.ChatID, fmt.Sprintf("🗑 Deleted %d reminders.", count))
	}
}

func (h *Handler) sendMessage(ctx context.Context, chatID int64, text string) {
	if err := h.messenger.SendMessage(ctx, chatID, text); err != nil {
		h.logger.WithError(err).WithField("chat_id", chatID).Error("Failed to send message")
	}
}
