package handlers

import (
	"context"
	"log"
	"strings"
	"toolocal-bot/internal/auth"
	"toolocal-bot/internal/database"
	"toolocal-bot/internal/locales"
	"toolocal-bot/internal/publisher"
	"toolocal-bot/internal/quota"
	telegoapi "toolocal-bot/pkg/telegoapi"

	sentry "github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// CommandHandlerFunc is the signature of a bot command handler.
type CommandHandlerFunc func(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error

// Command pairs a command name with its handler and visibility. Description
// is a locale key resolved when command menus and help are rendered.
type Command struct {
	Command       string
	Description   string
	Handler       CommandHandlerFunc
	AdminOnly     bool
	MainAdminOnly bool
}

// MessageHandler owns the command registry and the dependencies the
// command handlers need.
type MessageHandler struct {
	commands  []Command
	registry  *auth.AdminRegistry
	limiter   *quota.Limiter
	store     database.SubmissionRepository
	quotaRepo database.QuotaRepository
	publisher *publisher.ChannelPublisher
	version   string
}

// NewMessageHandler creates the handler with its command registry.
func NewMessageHandler(
	registry *auth.AdminRegistry,
	limiter *quota.Limiter,
	store database.SubmissionRepository,
	quotaRepo database.QuotaRepository,
	channelPublisher *publisher.ChannelPublisher,
	version string,
) *MessageHandler {
	if registry == nil {
		log.Fatal("MessageHandler: admin registry is nil")
	}
	if limiter == nil {
		log.Fatal("MessageHandler: quota limiter is nil")
	}
	if store == nil {
		log.Fatal("MessageHandler: submission repository is nil")
	}
	if quotaRepo == nil {
		log.Fatal("MessageHandler: quota repository is nil")
	}
	if channelPublisher == nil {
		log.Fatal("MessageHandler: channel publisher is nil")
	}

	h := &MessageHandler{
		registry:  registry,
		limiter:   limiter,
		store:     store,
		quotaRepo: quotaRepo,
		publisher: channelPublisher,
		version:   version,
	}
	h.commands = []Command{
		{Command: "start", Description: "CmdStartDesc", Handler: h.HandleStart},
		{Command: "help", Description: "CmdHelpDesc", Handler: h.HandleHelp},
		{Command: "status", Description: "CmdStatusDesc", Handler: h.HandleStatus},
		{Command: "last_post", Description: "CmdLastPostDesc", Handler: h.HandleLastPost},
		{Command: "version", Description: "CmdVersionDesc", Handler: h.HandleVersion},
		{Command: "pending", Description: "CmdPendingDesc", Handler: h.HandlePending, AdminOnly: true},
		{Command: "stats", Description: "CmdStatsDesc", Handler: h.HandleStats, AdminOnly: true},
		{Command: "add_admin", Description: "CmdAddAdminDesc", Handler: h.HandleAddAdmin, MainAdminOnly: true},
		{Command: "remove_admin", Description: "CmdRemoveAdminDesc", Handler: h.HandleRemoveAdmin, MainAdminOnly: true},
		{Command: "list_admins", Description: "CmdListAdminsDesc", Handler: h.HandleListAdmins, MainAdminOnly: true},
	}
	return h
}

// IsCommand reports whether the message text starts a bot command.
func IsCommand(message telego.Message) bool {
	return strings.HasPrefix(message.Text, "/")
}

// HandleCommand routes a /command message to its handler after the
// permission check. Unknown commands are answered, not dropped.
func (h *MessageHandler) HandleCommand(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	if message.From == nil {
		return nil
	}
	name := commandName(message.Text)

	for _, cmd := range h.commands {
		if cmd.Command != name {
			continue
		}

		allowed, err := h.allowed(ctx, cmd, message.From.ID)
		if err != nil {
			log.Printf("[Command /%s User:%d] Permission check failed: %v", name, message.From.ID, err)
			sentry.CaptureException(err)
			h.sendText(ctx, bot, message.Chat.ID, h.msg("MsgErrorGeneral", nil))
			return err
		}
		if !allowed {
			h.sendText(ctx, bot, message.Chat.ID, h.msg("MsgCommandNotAllowed", nil))
			return nil
		}

		if err := cmd.Handler(ctx, bot, message); err != nil {
			log.Printf("[Command /%s User:%d] Error: %v", name, message.From.ID, err)
			sentry.CaptureException(err)
			h.sendText(ctx, bot, message.Chat.ID, h.msg("MsgErrorGeneral", nil))
			return err
		}
		return nil
	}

	h.sendText(ctx, bot, message.Chat.ID, h.msg("MsgUnknownCommand", nil))
	return nil
}

func (h *MessageHandler) allowed(ctx context.Context, cmd Command, userID int64) (bool, error) {
	if cmd.MainAdminOnly {
		return h.registry.IsMainAdmin(userID), nil
	}
	if cmd.AdminOnly {
		return h.registry.IsReviewer(ctx, userID)
	}
	return true, nil
}

// visibleCommands returns the commands available to the user, used both for
// the command menu and for /help.
func (h *MessageHandler) visibleCommands(ctx context.Context, userID int64) ([]Command, error) {
	isMain := h.registry.IsMainAdmin(userID)
	isReviewer, err := h.registry.IsReviewer(ctx, userID)
	if err != nil {
		return nil, err
	}

	visible := make([]Command, 0, len(h.commands))
	for _, cmd := range h.commands {
		if cmd.MainAdminOnly && !isMain {
			continue
		}
		if cmd.AdminOnly && !isReviewer {
			continue
		}
		visible = append(visible, cmd)
	}
	return visible, nil
}

// setupCommands publishes the role-scoped command menu for the user's chat.
func (h *MessageHandler) setupCommands(ctx context.Context, bot telegoapi.BotAPI, chatID, userID int64) error {
	visible, err := h.visibleCommands(ctx, userID)
	if err != nil {
		return err
	}

	localizer := h.localizer()
	botCommands := make([]telego.BotCommand, 0, len(visible))
	for _, cmd := range visible {
		botCommands = append(botCommands, telego.BotCommand{
			Command:     cmd.Command,
			Description: locales.GetMessage(localizer, cmd.Description, nil, nil),
		})
	}

	return bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: botCommands,
		Scope:    &telego.BotCommandScopeChat{Type: telego.ScopeTypeChat, ChatID: tu.ID(chatID)},
	})
}

func commandName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name := strings.TrimPrefix(fields[0], "/")
	// Strip the bot mention from "/cmd@botname".
	if at := strings.Index(name, "@"); at != -1 {
		name = name[:at]
	}
	return name
}

func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) <= 1 {
		return nil
	}
	return fields[1:]
}

func (h *MessageHandler) localizer() *i18n.Localizer {
	return locales.NewLocalizer(locales.GetDefaultLanguageTag().String())
}

func (h *MessageHandler) msg(key string, data map[string]interface{}) string {
	return locales.GetMessage(h.localizer(), key, data, nil)
}

func (h *MessageHandler) sendText(ctx context.Context, bot telegoapi.BotAPI, chatID int64, text string) {
	if _, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.Printf("[Handlers] Failed to send message to chat %d: %v", chatID, err)
	}
}
