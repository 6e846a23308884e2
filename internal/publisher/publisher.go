package publisher

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
	"toolocal-bot/internal/database/models"
	telegoapi "toolocal-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// ChannelPublisher posts approved content to the target channel and tracks
// the time of the last published post.
type ChannelPublisher struct {
	bot       telegoapi.BotAPI
	channelID int64

	mu         sync.Mutex
	lastPostAt time.Time
}

// New creates a channel publisher.
func New(bot telegoapi.BotAPI, channelID int64) (*ChannelPublisher, error) {
	if bot == nil {
		return nil, fmt.Errorf("bot instance cannot be nil")
	}
	if channelID == 0 {
		return nil, fmt.Errorf("channel ID cannot be zero")
	}
	return &ChannelPublisher{bot: bot, channelID: channelID}, nil
}

// Publish sends the submission content to the channel. Multi-item
// submissions of groupable kinds go out as one media group with the caption
// on the first item; everything else is sent item by item.
func (p *ChannelPublisher) Publish(ctx context.Context, sub *models.Submission) error {
	if len(sub.FileIDs) == 0 {
		return fmt.Errorf("submission %d has no content to publish", sub.ID)
	}

	if len(sub.FileIDs) > 1 && groupable(sub.Kind) {
		media := make([]telego.InputMedia, 0, len(sub.FileIDs))
		for i, fileID := range sub.FileIDs {
			caption := ""
			if i == 0 {
				caption = sub.Caption
			}
			media = append(media, inputMediaFor(sub.Kind, fileID, caption))
		}
		if _, err := p.bot.SendMediaGroup(ctx, &telego.SendMediaGroupParams{
			ChatID: tu.ID(p.channelID),
			Media:  media,
		}); err != nil {
			return fmt.Errorf("failed to send media group to channel: %w", err)
		}
	} else {
		for i, fileID := range sub.FileIDs {
			caption := ""
			if i == 0 {
				caption = sub.Caption
			}
			if err := p.sendSingle(ctx, sub.Kind, fileID, caption); err != nil {
				return err
			}
		}
	}

	p.mu.Lock()
	p.lastPostAt = time.Now()
	p.mu.Unlock()

	log.Printf("[Publisher] Published submission %d (%s, %d item(s)) to channel %d", sub.ID, sub.Kind, len(sub.FileIDs), p.channelID)
	return nil
}

// LastPostAt returns the time of the last published post, and false if
// nothing has been published since startup.
func (p *ChannelPublisher) LastPostAt() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPostAt, !p.lastPostAt.IsZero()
}

// groupable reports whether Telegram allows the kind inside a media group.
func groupable(kind models.ContentKind) bool {
	switch kind {
	case models.KindPhoto, models.KindVideo, models.KindDocument, models.KindAudio:
		return true
	}
	return false
}

func inputMediaFor(kind models.ContentKind, fileID, caption string) telego.InputMedia {
	file := telego.InputFile{FileID: fileID}
	switch kind {
	case models.KindVideo:
		m := tu.MediaVideo(file)
		if caption != "" {
			m.Caption = caption
		}
		return m
	case models.KindDocument:
		m := tu.MediaDocument(file)
		if caption != "" {
			m.Caption = caption
		}
		return m
	case models.KindAudio:
		m := tu.MediaAudio(file)
		if caption != "" {
			m.Caption = caption
		}
		return m
	default:
		m := tu.MediaPhoto(file)
		if caption != "" {
			m.Caption = caption
		}
		return m
	}
}

func (p *ChannelPublisher) sendSingle(ctx context.Context, kind models.ContentKind, fileID, caption string) error {
	chatID := tu.ID(p.channelID)
	file := telego.InputFile{FileID: fileID}

	var err error
	switch kind {
	case models.KindPhoto:
		_, err = p.bot.SendPhoto(ctx, &telego.SendPhotoParams{ChatID: chatID, Photo: file, Caption: caption})
	case models.KindVideo:
		_, err = p.bot.SendVideo(ctx, &telego.SendVideoParams{ChatID: chatID, Video: file, Caption: caption})
	case models.KindAnimation:
		_, err = p.bot.SendAnimation(ctx, &telego.SendAnimationParams{ChatID: chatID, Animation: file, Caption: caption})
	case models.KindAudio:
		_, err = p.bot.SendAudio(ctx, &telego.SendAudioParams{ChatID: chatID, Audio: file, Caption: caption})
	case models.KindVoice:
		_, err = p.bot.SendVoice(ctx, &telego.SendVoiceParams{ChatID: chatID, Voice: file, Caption: caption})
	case models.KindDocument:
		_, err = p.bot.SendDocument(ctx, &telego.SendDocumentParams{ChatID: chatID, Document: file, Caption: caption})
	case models.KindVideoNote:
		// Video notes carry no caption.
		_, err = p.bot.SendVideoNote(ctx, &telego.SendVideoNoteParams{ChatID: chatID, VideoNote: file})
	default:
		return fmt.Errorf("unsupported content kind %q", kind)
	}
	if err != nil {
		return fmt.Errorf("failed to send %s to channel: %w", kind, err)
	}
	return nil
}
