package social

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"postpilot/internal/core"
)

// telegramCaptionLimit is the longest caption Telegram accepts on a photo.
const telegramCaptionLimit = 1024

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramPoster publishes posts to a channel through the Bot API.
type TelegramPoster struct {
	api    telegramSender
	chatID int64
}

// NewTelegramPoster connects to the Bot API with token and posts to chatID.
func NewTelegramPoster(token string, chatID int64) (*TelegramPoster, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramPoster{api: api, chatID: chatID}, nil
}

func newTelegramPosterWithSender(api telegramSender, chatID int64) *TelegramPoster {
	return &TelegramPoster{api: api, chatID: chatID}
}

// Publish sends a photo with caption when the post has media and the text
// fits, otherwise a plain message. The Bot API call is not context aware, so
// ctx is only checked before sending.
func (t *TelegramPoster) Publish(ctx context.Context, _ core.AccountRef, content string, mediaURLs []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var msg tgbotapi.Chattable
	if len(mediaURLs) > 0 && len([]rune(content)) <= telegramCaptionLimit {
		photo := tgbotapi.NewPhoto(t.chatID, tgbotapi.FileURL(mediaURLs[0]))
		photo.Caption = content
		msg = photo
	} else {
		text := content
		if len(mediaURLs) > 0 {
			text += "\n\n" + mediaURLs[0]
		}
		msg = tgbotapi.NewMessage(t.chatID, text)
	}
	sent, err := t.api.Send(msg)
	if err != nil {
		return "", fmt.Errorf("telegram send: %w", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}
