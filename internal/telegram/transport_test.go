package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"toonbot/internal/domain"
	"toonbot/internal/i18n"
	"toonbot/internal/infra"
	"toonbot/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestHandleUpdateAdmitsPhotoJob(t *testing.T) {
	sessions := session.New[int64]()
	bot := newFakeBot()
	runner := &fakeRunner{sessions: sessions}
	tr := newTestTransport(bot, runner, sessions)

	tr.handleUpdate(photoUpdate(42, "file-1"))
	tr.wg.Wait()

	jobs := runner.jobsCopy()
	if len(jobs) != 1 {
		t.Fatalf("runner saw %d jobs, want 1", len(jobs))
	}
	job := jobs[0]
	if job.UserID != 42 || job.ChatID != 42 {
		t.Fatalf("job identity mismatch: %+v", job)
	}
	if job.FileID != "file-1" {
		t.Fatalf("job should carry the largest rendition, got %q", job.FileID)
	}
	if job.RunID == "" {
		t.Fatalf("job should carry a run id")
	}
	if job.Locale != "en" {
		t.Fatalf("job locale = %q, want en", job.Locale)
	}
	if got := sessions.Len(); got != 0 {
		t.Fatalf("session should be released by the runner, len = %d", got)
	}
}

func TestHandleUpdateRejectsDuplicateUser(t *testing.T) {
	sessions := session.New[int64]()
	bot := newFakeBot()
	runner := &fakeRunner{sessions: sessions, block: make(chan struct{})}
	tr := newTestTransport(bot, runner, sessions)

	tr.handleUpdate(photoUpdate(42, "file-1"))
	tr.handleUpdate(photoUpdate(42, "file-2"))

	texts := bot.sentTexts()
	if len(texts) != 1 || texts[0] != i18n.AlreadyQueued("en") {
		t.Fatalf("duplicate should get the already queued notice, got %q", texts)
	}

	close(runner.block)
	tr.wg.Wait()
	if got := len(runner.jobsCopy()); got != 1 {
		t.Fatalf("runner saw %d jobs, want 1", got)
	}
	if got := sessions.Len(); got != 0 {
		t.Fatalf("session not released, len = %d", got)
	}

	tr.handleUpdate(photoUpdate(42, "file-3"))
	tr.wg.Wait()
	if got := len(runner.jobsCopy()); got != 2 {
		t.Fatalf("user should be admitted again after release, got %d jobs", got)
	}
}

func TestHandleUpdateAnswersTextWithIntro(t *testing.T) {
	sessions := session.New[int64]()
	bot := newFakeBot()
	runner := &fakeRunner{sessions: sessions}
	tr := newTestTransport(bot, runner, sessions)

	update := tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 42, LanguageCode: "id"},
		Chat: &tgbotapi.Chat{ID: 42},
		Text: "hello there",
	}}
	tr.handleUpdate(update)

	texts := bot.sentTexts()
	if len(texts) != 1 || texts[0] != i18n.Intro("id") {
		t.Fatalf("text message should get the intro, got %q", texts)
	}
	if len(runner.jobsCopy()) != 0 {
		t.Fatalf("no job should run for a text message")
	}
	if got := sessions.Len(); got != 0 {
		t.Fatalf("no session should be opened, len = %d", got)
	}
}

func TestStartCommandGetsIntro(t *testing.T) {
	sessions := session.New[int64]()
	bot := newFakeBot()
	runner := &fakeRunner{sessions: sessions}
	tr := newTestTransport(bot, runner, sessions)

	update := tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: 42, LanguageCode: "en"},
		Chat:     &tgbotapi.Chat{ID: 42},
		Text:     "/start",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
	}}
	tr.handleUpdate(update)

	texts := bot.sentTexts()
	if len(texts) != 1 || texts[0] != i18n.Intro("en") {
		t.Fatalf("/start should get the intro, got %q", texts)
	}
}

func TestHandleUpdateIgnoresNonMessageUpdates(t *testing.T) {
	sessions := session.New[int64]()
	bot := newFakeBot()
	runner := &fakeRunner{sessions: sessions}
	tr := newTestTransport(bot, runner, sessions)

	tr.handleUpdate(tgbotapi.Update{})

	if got := len(bot.sentTexts()); got != 0 {
		t.Fatalf("nothing should be sent, got %d texts", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	bot := newFakeBot()
	tr := newTestTransport(bot, &fakeRunner{}, session.New[int64]())

	tr.Stop()
	tr.Stop()

	if got := bot.stopCount(); got != 1 {
		t.Fatalf("stop count = %d, want 1", got)
	}
}

func TestRunStopsOnCancelAndDrainsJobs(t *testing.T) {
	sessions := session.New[int64]()
	bot := newFakeBot()
	runner := &fakeRunner{sessions: sessions}
	tr := newTestTransport(bot, runner, sessions)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	bot.updates <- photoUpdate(42, "file-1")
	waitFor(t, func() bool { return len(runner.jobsCopy()) == 1 })
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
	if got := bot.stopCount(); got != 1 {
		t.Fatalf("stop count = %d, want 1", got)
	}
	if got := sessions.Len(); got != 0 {
		t.Fatalf("in-flight job not drained, len = %d", got)
	}
}

func TestRunReturnsWhenUpdatesChannelCloses(t *testing.T) {
	bot := newFakeBot()
	tr := newTestTransport(bot, &fakeRunner{}, session.New[int64]())

	done := make(chan error, 1)
	go func() { done <- tr.Run(context.Background()) }()
	close(bot.updates)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after channel close")
	}
}

func TestLargestPhotoPicksByArea(t *testing.T) {
	sizes := []tgbotapi.PhotoSize{
		{FileID: "mid", Width: 320, Height: 320},
		{FileID: "big", Width: 1280, Height: 1280},
		{FileID: "small", Width: 90, Height: 90},
	}
	if got := largestPhoto(sizes); got.FileID != "big" {
		t.Fatalf("largestPhoto = %q, want big", got.FileID)
	}
}

func newTestTransport(bot *fakeBot, runner Runner, sessions *session.Registry[int64]) *Transport {
	return &Transport{
		bot:       bot,
		messenger: &Messenger{bot: bot},
		runner:    runner,
		sessions:  sessions,
		logger:    infra.Logger(zerolog.New(io.Discard)),
	}
}

func photoUpdate(userID int64, fileID string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: userID, LanguageCode: "en"},
		Chat:      &tgbotapi.Chat{ID: userID},
		Photo: []tgbotapi.PhotoSize{
			{FileID: fileID + "-thumb", Width: 90, Height: 90},
			{FileID: fileID, Width: 800, Height: 800},
		},
	}}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

type fakeRunner struct {
	mu       sync.Mutex
	jobs     []domain.Job
	sessions *session.Registry[int64]
	block    chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, job domain.Job) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.sessions != nil {
		f.sessions.Release(job.UserID)
	}
}

func (f *fakeRunner) jobsCopy() []domain.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Job, len(f.jobs))
	copy(out, f.jobs)
	return out
}

type fakeBot struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	updates chan tgbotapi.Update
	stops   int
	files   map[string]string
}

func newFakeBot() *fakeBot {
	return &fakeBot{
		updates: make(chan tgbotapi.Update, 8),
		files:   map[string]string{},
	}
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeBot) GetFileDirectURL(fileID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if url, ok := f.files[fileID]; ok {
		return url, nil
	}
	return "", fmt.Errorf("unknown file %s", fileID)
}

func (f *fakeBot) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeBot) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeBot) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var texts []string
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			texts = append(texts, msg.Text)
		}
	}
	return texts
}

func (f *fakeBot) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}
