package moderation

import (
	"context"
	"fmt"
	"toolocal-bot/internal/database/models"
	"toolocal-bot/pkg/utils"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Callback data carried by the review keyboard. Kept short: Telegram caps
// callback data at 64 bytes.
const (
	callbackPrefixReview = "review"
	callbackPrefixView   = "view"
	actionApprove        = "approve"
	actionReject         = "reject"
)

func reviewCallbackData(submissionID int64, action string) string {
	return fmt.Sprintf("%s:%d:%s", callbackPrefixReview, submissionID, action)
}

func (w *Workflow) reviewKeyboard(submissionID int64) *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(w.msg("BtnApprove", nil)).
				WithCallbackData(reviewCallbackData(submissionID, actionApprove)),
			tu.InlineKeyboardButton(w.msg("BtnReject", nil)).
				WithCallbackData(reviewCallbackData(submissionID, actionReject)),
		),
	)
}

func (w *Workflow) reviewInfoText(sub *models.Submission) string {
	text := w.msg("MsgReviewInfo", map[string]interface{}{
		"ID":          sub.ID,
		"Username":    sub.SubmitterName(),
		"UserID":      sub.SubmitterID,
		"Kind":        string(sub.Kind),
		"Items":       len(sub.FileIDs),
		"SubmittedAt": sub.SubmittedAt.Format("2006-01-02 15:04:05"),
	})
	if sub.Caption != "" {
		text += "\n" + w.msg("MsgNoticeCaption", map[string]interface{}{
			"Caption": sub.Caption,
		})
	}
	return utils.EscapeMarkdownV2(text)
}

// sendReviewMessage delivers the submission content plus approve/reject
// controls to one reviewer. Single items carry the info text as caption;
// media groups cannot carry a keyboard, so the group is followed by a
// separate control message.
func (w *Workflow) sendReviewMessage(ctx context.Context, reviewerID int64, sub *models.Submission) error {
	chatID := tu.ID(reviewerID)
	info := w.reviewInfoText(sub)
	keyboard := w.reviewKeyboard(sub.ID)

	if len(sub.FileIDs) > 1 && groupableKind(sub.Kind) {
		media := make([]telego.InputMedia, 0, len(sub.FileIDs))
		for _, fileID := range sub.FileIDs {
			media = append(media, reviewInputMedia(sub.Kind, fileID))
		}
		if _, err := w.bot.SendMediaGroup(ctx, &telego.SendMediaGroupParams{
			ChatID: chatID,
			Media:  media,
		}); err != nil {
			return fmt.Errorf("failed to send review media group: %w", err)
		}
		params := tu.Message(chatID, info).
			WithParseMode(telego.ModeMarkdownV2).
			WithReplyMarkup(keyboard)
		if _, err := w.bot.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send review controls: %w", err)
		}
		return nil
	}

	fileID := sub.FileIDs[0]
	file := telego.InputFile{FileID: fileID}
	markdown := telego.ModeMarkdownV2

	var err error
	switch sub.Kind {
	case models.KindPhoto:
		_, err = w.bot.SendPhoto(ctx, &telego.SendPhotoParams{
			ChatID: chatID, Photo: file, Caption: info, ParseMode: markdown, ReplyMarkup: keyboard,
		})
	case models.KindVideo:
		_, err = w.bot.SendVideo(ctx, &telego.SendVideoParams{
			ChatID: chatID, Video: file, Caption: info, ParseMode: markdown, ReplyMarkup: keyboard,
		})
	case models.KindAnimation:
		_, err = w.bot.SendAnimation(ctx, &telego.SendAnimationParams{
			ChatID: chatID, Animation: file, Caption: info, ParseMode: markdown, ReplyMarkup: keyboard,
		})
	case models.KindAudio:
		_, err = w.bot.SendAudio(ctx, &telego.SendAudioParams{
			ChatID: chatID, Audio: file, Caption: info, ParseMode: markdown, ReplyMarkup: keyboard,
		})
	case models.KindVoice:
		_, err = w.bot.SendVoice(ctx, &telego.SendVoiceParams{
			ChatID: chatID, Voice: file, Caption: info, ParseMode: markdown, ReplyMarkup: keyboard,
		})
	case models.KindDocument:
		_, err = w.bot.SendDocument(ctx, &telego.SendDocumentParams{
			ChatID: chatID, Document: file, Caption: info, ParseMode: markdown, ReplyMarkup: keyboard,
		})
	case models.KindVideoNote:
		// Video notes carry no caption, so the info goes out separately.
		if _, err = w.bot.SendVideoNote(ctx, &telego.SendVideoNoteParams{ChatID: chatID, VideoNote: file}); err == nil {
			params := tu.Message(chatID, info).
				WithParseMode(telego.ModeMarkdownV2).
				WithReplyMarkup(keyboard)
			_, err = w.bot.SendMessage(ctx, params)
		}
	default:
		return fmt.Errorf("unsupported content kind %q", sub.Kind)
	}
	if err != nil {
		return fmt.Errorf("failed to send review message: %w", err)
	}
	return nil
}

func groupableKind(kind models.ContentKind) bool {
	switch kind {
	case models.KindPhoto, models.KindVideo, models.KindDocument, models.KindAudio:
		return true
	}
	return false
}

func reviewInputMedia(kind models.ContentKind, fileID string) telego.InputMedia {
	file := telego.InputFile{FileID: fileID}
	switch kind {
	case models.KindVideo:
		return tu.MediaVideo(file)
	case models.KindDocument:
		return tu.MediaDocument(file)
	case models.KindAudio:
		return tu.MediaAudio(file)
	default:
		return tu.MediaPhoto(file)
	}
}
