package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	telegoapi "toolocal-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
)

// HandleAddAdmin registers a reviewer: /add_admin <user_id> [username].
func (h *MessageHandler) HandleAddAdmin(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	args := commandArgs(message.Text)
	if len(args) == 0 {
		h.sendText(ctx, bot, message.Chat.ID, h.msg("MsgAdminAddUsage", nil))
		return nil
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || userID <= 0 {
		h.sendText(ctx, bot, message.Chat.ID, h.msg("MsgAdminBadUserID", nil))
		return nil
	}
	username := ""
	if len(args) > 1 {
		username = strings.TrimPrefix(args[1], "@")
	}

	if err := h.registry.Add(ctx, userID, username, message.From.ID); err != nil {
		return fmt.Errorf("failed to add admin %d: %w", userID, err)
	}
	h.sendText(ctx, bot, message.Chat.ID, h.msg("MsgAdminAdded", map[string]interface{}{
		"UserID": userID,
	}))
	return nil
}

// HandleRemoveAdmin deregisters a reviewer: /remove_admin <user_id>.
func (h *MessageHandler) HandleRemoveAdmin(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	args := commandArgs(message.Text)
	if len(args) == 0 {
		h.sendText(ctx, bot, message.Chat.ID, h.msg("MsgAdminRemoveUsage", nil))
		return nil
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || userID <= 0 {
		h.sendText(ctx, bot, message.Chat.ID, h.msg("MsgAdminBadUserID", nil))
		return nil
	}

	if err := h.registry.Remove(ctx, userID); err != nil {
		return fmt.Errorf("failed to remove admin %d: %w", userID, err)
	}
	h.sendText(ctx, bot, message.Chat.ID, h.msg("MsgAdminRemoved", map[string]interface{}{
		"UserID": userID,
	}))
	return nil
}

// HandleListAdmins lists the reviewer set, main admin first.
func (h *MessageHandler) HandleListAdmins(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	admins, err := h.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list admins: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(h.msg("MsgAdminListHeader", nil))
	sb.WriteString("\n")
	sb.WriteString(h.msg("MsgAdminListMain", map[string]interface{}{
		"UserID": message.From.ID,
	}))
	for _, admin := range admins {
		name := admin.Username
		if name == "" {
			name = "-"
		}
		sb.WriteString("\n")
		sb.WriteString(h.msg("MsgAdminListEntry", map[string]interface{}{
			"UserID":   admin.UserID,
			"Username": name,
		}))
	}

	h.sendText(ctx, bot, message.Chat.ID, sb.String())
	return nil
}
