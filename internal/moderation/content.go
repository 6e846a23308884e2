package moderation

import (
	"toolocal-bot/internal/database/models"

	"github.com/mymmrac/telego"
)

// extractContent picks the moderatable media out of a message. For photos
// Telegram sends multiple sizes; the last entry is the largest and the one
// worth keeping. Returns ok=false for messages without supported media.
func extractContent(message telego.Message) (models.ContentKind, string, bool) {
	switch {
	case len(message.Photo) > 0:
		return models.KindPhoto, message.Photo[len(message.Photo)-1].FileID, true
	case message.Video != nil:
		return models.KindVideo, message.Video.FileID, true
	case message.Animation != nil:
		return models.KindAnimation, message.Animation.FileID, true
	case message.VideoNote != nil:
		return models.KindVideoNote, message.VideoNote.FileID, true
	case message.Audio != nil:
		return models.KindAudio, message.Audio.FileID, true
	case message.Voice != nil:
		return models.KindVoice, message.Voice.FileID, true
	case message.Document != nil:
		return models.KindDocument, message.Document.FileID, true
	}
	return "", "", false
}
