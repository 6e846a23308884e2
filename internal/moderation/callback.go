package moderation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"toolocal-bot/internal/database"

	sentry "github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
)

// HandleCallbackQuery processes review keyboard presses. Unknown or stale
// callbacks are answered rather than ignored so the reviewer's client does
// not spin.
func (w *Workflow) HandleCallbackQuery(ctx context.Context, query telego.CallbackQuery) error {
	parts := strings.Split(query.Data, ":")

	switch parts[0] {
	case callbackPrefixReview:
		if len(parts) != 3 {
			return w.answer(ctx, query.ID, w.msg("MsgCallbackError", nil), true)
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return w.answer(ctx, query.ID, w.msg("MsgCallbackError", nil), true)
		}
		return w.handleReviewCallback(ctx, query, id, parts[2])

	case callbackPrefixView:
		if len(parts) != 2 {
			return w.answer(ctx, query.ID, w.msg("MsgCallbackError", nil), true)
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return w.answer(ctx, query.ID, w.msg("MsgCallbackError", nil), true)
		}
		return w.handleViewCallback(ctx, query, id)
	}

	log.Printf("[Callback User:%d] Unknown callback data: %q", query.From.ID, query.Data)
	return w.answer(ctx, query.ID, w.msg("MsgCallbackError", nil), false)
}

func (w *Workflow) handleReviewCallback(ctx context.Context, query telego.CallbackQuery, submissionID int64, action string) error {
	isReviewer, err := w.directory.IsReviewer(ctx, query.From.ID)
	if err != nil {
		sentry.CaptureException(err)
		return w.answer(ctx, query.ID, w.msg("MsgCallbackError", nil), true)
	}
	if !isReviewer {
		return w.answer(ctx, query.ID, w.msg("MsgCallbackNotReviewer", nil), true)
	}

	var approve bool
	switch action {
	case actionApprove:
		approve = true
	case actionReject:
		approve = false
	default:
		return w.answer(ctx, query.ID, w.msg("MsgCallbackError", nil), true)
	}

	_, err = w.Resolve(ctx, submissionID, query.From, approve)
	switch {
	case errors.Is(err, database.ErrSubmissionNotFound):
		return w.answer(ctx, query.ID, w.msg("MsgCallbackNotFound", nil), true)
	case errors.Is(err, database.ErrAlreadyResolved):
		// Another reviewer won the race. Drop this message's keyboard too.
		w.stripKeyboard(ctx, query)
		return w.answer(ctx, query.ID, w.msg("MsgCallbackAlreadyResolved", nil), true)
	case err != nil:
		log.Printf("[Callback Sub:%d] Error resolving: %v", submissionID, err)
		sentry.CaptureException(err)
		return w.answer(ctx, query.ID, w.msg("MsgCallbackError", nil), true)
	}

	w.stripKeyboard(ctx, query)
	key := "MsgCallbackRejected"
	if approve {
		key = "MsgCallbackApproved"
	}
	return w.answer(ctx, query.ID, w.msg(key, nil), false)
}

// handleViewCallback re-sends a pending submission with fresh review
// controls, used by the /pending listing.
func (w *Workflow) handleViewCallback(ctx context.Context, query telego.CallbackQuery, submissionID int64) error {
	isReviewer, err := w.directory.IsReviewer(ctx, query.From.ID)
	if err != nil {
		sentry.CaptureException(err)
		return w.answer(ctx, query.ID, w.msg("MsgCallbackError", nil), true)
	}
	if !isReviewer {
		return w.answer(ctx, query.ID, w.msg("MsgCallbackNotReviewer", nil), true)
	}

	sub, err := w.store.Get(ctx, submissionID)
	if errors.Is(err, database.ErrSubmissionNotFound) {
		return w.answer(ctx, query.ID, w.msg("MsgCallbackNotFound", nil), true)
	}
	if err != nil {
		sentry.CaptureException(err)
		return w.answer(ctx, query.ID, w.msg("MsgCallbackError", nil), true)
	}

	if err := w.sendReviewMessage(ctx, query.From.ID, sub); err != nil {
		log.Printf("[Callback Sub:%d] Error sending view to reviewer %d: %v", submissionID, query.From.ID, err)
		sentry.CaptureException(err)
		return w.answer(ctx, query.ID, w.msg("MsgCallbackError", nil), true)
	}
	return w.answer(ctx, query.ID, "", false)
}

// stripKeyboard removes the approve/reject buttons from the resolved review
// message. Best-effort: the decision is already committed.
func (w *Workflow) stripKeyboard(ctx context.Context, query telego.CallbackQuery) {
	message, ok := query.Message.(*telego.Message)
	if !ok || message == nil {
		return
	}
	_, err := w.bot.EditMessageReplyMarkup(ctx, &telego.EditMessageReplyMarkupParams{
		ChatID:      telego.ChatID{ID: message.Chat.ID},
		MessageID:   message.MessageID,
		ReplyMarkup: nil,
	})
	if err != nil {
		log.Printf("[Callback] Failed to remove keyboard from message %d: %v", message.MessageID, err)
	}
}

func (w *Workflow) answer(ctx context.Context, queryID, text string, alert bool) error {
	err := w.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: queryID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		return fmt.Errorf("failed to answer callback query: %w", err)
	}
	return nil
}
