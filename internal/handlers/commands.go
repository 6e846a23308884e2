package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"toolocal-bot/internal/database/models"
	telegoapi "toolocal-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// HandleStart greets the user and publishes the role-scoped command menu.
func (h *MessageHandler) HandleStart(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	if err := h.setupCommands(ctx, bot, message.Chat.ID, message.From.ID); err != nil {
		return fmt.Errorf("failed to set up command menu: %w", err)
	}
	h.sendText(ctx, bot, message.Chat.ID, h.msg("MsgStart", nil))
	return nil
}

// HandleHelp lists the commands available to the user.
func (h *MessageHandler) HandleHelp(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	visible, err := h.visibleCommands(ctx, message.From.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve available commands: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(h.msg("MsgHelpHeader", nil))
	for _, cmd := range visible {
		sb.WriteString(fmt.Sprintf("\n/%s - %s", cmd.Command, h.msg(cmd.Description, nil)))
	}
	sb.WriteString("\n\n")
	sb.WriteString(h.msg("MsgHelpFooter", nil))

	h.sendText(ctx, bot, message.Chat.ID, sb.String())
	return nil
}

// HandleStatus reports the user's quota standing.
func (h *MessageHandler) HandleStatus(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	stats, err := h.limiter.Stats(ctx, message.From.ID)
	if err != nil {
		return fmt.Errorf("failed to load quota stats: %w", err)
	}

	h.sendText(ctx, bot, message.Chat.ID, h.msg("MsgStatus", map[string]interface{}{
		"Today":     stats.SubmissionsToday,
		"Remaining": stats.Remaining,
		"Total":     stats.TotalSubmissions,
		"Approved":  stats.ApprovedCount,
		"Rejected":  stats.RejectedCount,
	}))
	return nil
}

// HandleLastPost reports when the bot last published to the channel.
func (h *MessageHandler) HandleLastPost(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	lastPostAt, ok := h.publisher.LastPostAt()
	if !ok {
		h.sendText(ctx, bot, message.Chat.ID, h.msg("MsgLastPostNever", nil))
		return nil
	}
	h.sendText(ctx, bot, message.Chat.ID, h.msg("MsgLastPost", map[string]interface{}{
		"Time": lastPostAt.Format("2006-01-02 15:04:05"),
	}))
	return nil
}

// HandleVersion reports the running bot version.
func (h *MessageHandler) HandleVersion(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	h.sendText(ctx, bot, message.Chat.ID, h.msg("MsgVersion", map[string]interface{}{
		"Version": h.version,
	}))
	return nil
}

// HandlePending lists queued submissions with view buttons so a reviewer
// can pull any of them back up with fresh controls.
func (h *MessageHandler) HandlePending(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	pending, err := h.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending submissions: %w", err)
	}
	if len(pending) == 0 {
		h.sendText(ctx, bot, message.Chat.ID, h.msg("MsgPendingEmpty", nil))
		return nil
	}

	// Keep the keyboard reasonable; the queue is resolved oldest-first anyway.
	const maxButtons = 10
	shown := pending
	if len(shown) > maxButtons {
		shown = shown[:maxButtons]
	}

	rows := make([][]telego.InlineKeyboardButton, 0, len(shown))
	for _, sub := range shown {
		label := h.msg("BtnPendingEntry", map[string]interface{}{
			"ID":       sub.ID,
			"Kind":     string(sub.Kind),
			"Username": sub.SubmitterName(),
		})
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(label).WithCallbackData(fmt.Sprintf("view:%d", sub.ID)),
		))
	}

	text := h.msg("MsgPendingHeader", map[string]interface{}{"Count": len(pending)})
	if len(pending) > maxButtons {
		text += "\n" + h.msg("MsgPendingTruncated", map[string]interface{}{"Shown": maxButtons})
	}

	params := tu.Message(tu.ID(message.Chat.ID), text).
		WithReplyMarkup(&telego.InlineKeyboardMarkup{InlineKeyboard: rows})
	if _, err := bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send pending list: %w", err)
	}
	return nil
}

// HandleStats aggregates submission totals across all users and shows the
// top submitters by approvals.
func (h *MessageHandler) HandleStats(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	records, err := h.quotaRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load user stats: %w", err)
	}

	var total, approved, rejected int
	for _, rec := range records {
		total += rec.TotalSubmissions
		approved += rec.ApprovedCount
		rejected += rec.RejectedCount
	}

	var sb strings.Builder
	sb.WriteString(h.msg("MsgStatsSummary", map[string]interface{}{
		"Users":    len(records),
		"Total":    total,
		"Approved": approved,
		"Rejected": rejected,
	}))

	top := topByApprovals(records, 5)
	if len(top) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(h.msg("MsgStatsTopHeader", nil))
		for i, rec := range top {
			sb.WriteString("\n")
			sb.WriteString(h.msg("MsgStatsTopEntry", map[string]interface{}{
				"Rank":     i + 1,
				"UserID":   rec.UserID,
				"Approved": rec.ApprovedCount,
			}))
		}
	}

	h.sendText(ctx, bot, message.Chat.ID, sb.String())
	return nil
}

// topByApprovals returns up to n records with the highest approval counts,
// skipping users who never had anything approved.
func topByApprovals(records []models.UserQuotaRecord, n int) []models.UserQuotaRecord {
	top := make([]models.UserQuotaRecord, 0, len(records))
	for _, rec := range records {
		if rec.ApprovedCount > 0 {
			top = append(top, rec)
		}
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].ApprovedCount != top[j].ApprovedCount {
			return top[i].ApprovedCount > top[j].ApprovedCount
		}
		return top[i].UserID < top[j].UserID
	})
	if len(top) > n {
		top = top[:n]
	}
	return top
}
