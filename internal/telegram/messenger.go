package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// sender is the slice of the Bot API client the messenger uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Messenger delivers texts and artifacts to chats and resolves file IDs to
// download URLs. It satisfies the pipeline's messenger contract.
type Messenger struct {
	bot sender
}

// NewMessenger wraps an authorized Bot API client.
func NewMessenger(bot *tgbotapi.BotAPI) *Messenger {
	return &Messenger{bot: bot}
}

// SendText sends a plain text message to the chat.
func (m *Messenger) SendText(chatID int64, text string) error {
	_, err := m.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// SendImage uploads data as a photo.
func (m *Messenger) SendImage(chatID int64, data []byte) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "toonbot.jpg", Bytes: data})
	_, err := m.bot.Send(photo)
	return err
}

// SendVideo uploads data as a video.
func (m *Messenger) SendVideo(chatID int64, data []byte) error {
	video := tgbotapi.NewVideo(chatID, tgbotapi.FileBytes{Name: "toonbot.mp4", Bytes: data})
	_, err := m.bot.Send(video)
	return err
}

// ResolveSourceURL turns a file ID into a direct download URL.
func (m *Messenger) ResolveSourceURL(fileID string) (string, error) {
	return m.bot.GetFileDirectURL(fileID)
}
