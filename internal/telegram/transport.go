package telegram

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"toonbot/internal/domain"
	"toonbot/internal/i18n"
	"toonbot/internal/infra"
	"toonbot/internal/session"
)

const updateTimeoutSeconds = 30

// Runner executes one admitted job and releases its session when done.
type Runner interface {
	Run(ctx context.Context, job domain.Job)
}

// poller is the slice of the Bot API client the transport uses on top of
// the messenger surface.
type poller interface {
	sender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Options configures a Transport.
type Options struct {
	Bot      *tgbotapi.BotAPI
	Runner   Runner
	Sessions *session.Registry[int64]
	Logger   infra.Logger
}

// Transport consumes chat updates over long polling, admits one job per
// user through the session registry and hands admitted jobs to the runner.
type Transport struct {
	bot       poller
	messenger *Messenger
	runner    Runner
	sessions  *session.Registry[int64]
	logger    infra.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New constructs a Transport from its collaborators.
func New(opts Options) *Transport {
	return &Transport{
		bot:       opts.Bot,
		messenger: NewMessenger(opts.Bot),
		runner:    opts.Runner,
		sessions:  opts.Sessions,
		logger:    opts.Logger,
	}
}

// Run consumes updates until ctx is cancelled, then stops polling and waits
// for in-flight jobs to finish. Jobs run on a background context, so
// shutdown closes the intake without aborting work already promised to a
// user.
func (t *Transport) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = updateTimeoutSeconds
	updates := t.bot.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			t.Stop()
			t.wg.Wait()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				t.wg.Wait()
				return nil
			}
			t.handleUpdate(update)
		}
	}
}

// Stop halts update polling. Only the first call has an effect.
func (t *Transport) Stop() {
	t.stopOnce.Do(t.bot.StopReceivingUpdates)
}

func (t *Transport) handleUpdate(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	locale := msg.From.LanguageCode

	if msg.IsCommand() {
		t.handleCommand(msg, locale)
		return
	}
	if len(msg.Photo) == 0 {
		t.reply(msg.Chat.ID, i18n.Intro(locale))
		return
	}

	job := domain.Job{
		RunID:      uuid.NewString(),
		UserID:     msg.From.ID,
		ChatID:     msg.Chat.ID,
		FileID:     largestPhoto(msg.Photo).FileID,
		Locale:     locale,
		ReceivedAt: time.Now(),
	}
	if !t.sessions.TryAdmit(job.UserID) {
		t.logger.Info().Int64("user_id", job.UserID).Msg("telegram: duplicate job rejected")
		t.reply(job.ChatID, i18n.AlreadyQueued(locale))
		return
	}

	t.logger.Info().
		Int64("user_id", job.UserID).
		Str("run_id", job.RunID).
		Str("file_id", job.FileID).
		Msg("telegram: job admitted")
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.runner.Run(context.Background(), job)
	}()
}

func (t *Transport) handleCommand(msg *tgbotapi.Message, locale string) {
	switch msg.Command() {
	case "start", "help":
		t.reply(msg.Chat.ID, i18n.Intro(locale))
	}
}

func (t *Transport) reply(chatID int64, text string) {
	if err := t.messenger.SendText(chatID, text); err != nil {
		t.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("telegram: reply dropped")
	}
}

// largestPhoto picks the highest resolution rendition of the photo.
func largestPhoto(sizes []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := sizes[0]
	for _, size := range sizes[1:] {
		if size.Width*size.Height > best.Width*best.Height {
			best = size
		}
	}
	return best
}
