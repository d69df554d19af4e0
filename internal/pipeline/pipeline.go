package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"toonbot/internal/domain"
	"toonbot/internal/i18n"
	"toonbot/internal/infra"
	"toonbot/internal/session"
	"toonbot/internal/storage"
	"toonbot/internal/toonapi"
)

// Submitter sends one image to the transformation service.
type Submitter interface {
	Submit(ctx context.Context, imageBase64 string) (*toonapi.Result, error)
}

// Fetcher downloads a binary asset.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Messenger is the slice of the chat transport a run needs to reach its
// user. Senders report delivery errors but never block on user state.
type Messenger interface {
	SendText(chatID int64, text string) error
	SendImage(chatID int64, data []byte) error
	SendVideo(chatID int64, data []byte) error
	ResolveSourceURL(fileID string) (string, error)
}

// Stats counts runs for the ops surface.
type Stats struct {
	Started   atomic.Int64
	Succeeded atomic.Int64
	Failed    atomic.Int64
}

// Options configures a Pipeline.
type Options struct {
	Sessions  *session.Registry[int64]
	Client    Submitter
	Fetcher   Fetcher
	Messenger Messenger
	Store     *storage.FileStore
	Logger    infra.Logger
}

// Pipeline drives one admitted job end to end: download the source photo,
// submit it, collect both artifacts and deliver them. Run owns the user's
// session and releases it on every exit path.
type Pipeline struct {
	sessions  *session.Registry[int64]
	client    Submitter
	fetcher   Fetcher
	messenger Messenger
	store     *storage.FileStore
	logger    infra.Logger
	stats     Stats
}

// New constructs a Pipeline from its collaborators.
func New(opts Options) *Pipeline {
	return &Pipeline{
		sessions:  opts.Sessions,
		client:    opts.Client,
		fetcher:   opts.Fetcher,
		messenger: opts.Messenger,
		store:     opts.Store,
		logger:    opts.Logger,
	}
}

// Stats exposes the run counters.
func (p *Pipeline) Stats() *Stats {
	return &p.stats
}

// Run executes the workflow for job. Failures are reported to the user and
// logged, never returned; the session is released whatever happens,
// including a panic in a collaborator.
func (p *Pipeline) Run(ctx context.Context, job domain.Job) {
	logger := p.logger.With().
		Str("run_id", job.RunID).
		Int64("user_id", job.UserID).
		Logger()

	p.stats.Started.Add(1)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.stats.Failed.Add(1)
			logger.Error().Interface("panic", r).Msg("pipeline: run panicked")
			p.notify(logger, job, i18n.Failure(job.Locale, domain.ErrUnavailable))
		}
		p.sessions.Release(job.UserID)
	}()

	if err := p.run(ctx, job, logger); err != nil {
		p.stats.Failed.Add(1)
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("pipeline: run failed")
		p.notify(logger, job, i18n.Failure(job.Locale, err))
		return
	}
	p.stats.Succeeded.Add(1)
	logger.Info().Dur("elapsed", time.Since(start)).Msg("pipeline: run finished")
}

func (p *Pipeline) run(ctx context.Context, job domain.Job, logger infra.Logger) error {
	p.notify(logger, job, i18n.Phase(job.Locale, domain.PhaseReceived))

	sourceURL, err := p.messenger.ResolveSourceURL(job.FileID)
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}
	source, err := p.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return fmt.Errorf("fetch source: %w", err)
	}
	p.keep(logger, job, "source.jpg", source)

	p.notify(logger, job, i18n.Phase(job.Locale, domain.PhaseUploading))
	result, err := p.client.Submit(ctx, base64.StdEncoding.EncodeToString(source))
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	p.notify(logger, job, i18n.Phase(job.Locale, domain.PhaseDownloading))
	var image, video []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := p.fetcher.Fetch(gctx, result.ImageURL)
		if err != nil {
			return fmt.Errorf("fetch image: %w", err)
		}
		image = data
		return nil
	})
	g.Go(func() error {
		data, err := p.fetcher.Fetch(gctx, result.VideoURL)
		if err != nil {
			return fmt.Errorf("fetch video: %w", err)
		}
		video = data
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	p.keep(logger, job, "result.jpg", image)
	p.keep(logger, job, "result.mp4", video)

	p.notify(logger, job, i18n.Phase(job.Locale, domain.PhaseDelivering))
	if err := p.messenger.SendImage(job.ChatID, image); err != nil {
		return fmt.Errorf("deliver image: %w", err)
	}
	if err := p.messenger.SendVideo(job.ChatID, video); err != nil {
		return fmt.Errorf("deliver video: %w", err)
	}

	p.notify(logger, job, i18n.Phase(job.Locale, domain.PhaseDone))
	return nil
}

// notify sends a status text. Delivery is best effort: a user whose status
// messages bounce still gets their artifacts.
func (p *Pipeline) notify(logger infra.Logger, job domain.Job, text string) {
	if text == "" {
		return
	}
	if err := p.messenger.SendText(job.ChatID, text); err != nil {
		logger.Debug().Err(err).Msg("pipeline: notification dropped")
	}
}

// keep stores an artifact copy when debug storage is configured.
func (p *Pipeline) keep(logger infra.Logger, job domain.Job, name string, data []byte) {
	if p.store == nil || len(data) == 0 {
		return
	}
	key, err := p.store.Write(fmt.Sprintf("jobs/%s/%s", job.RunID, name), data)
	if err != nil {
		logger.Warn().Err(err).Str("artifact", name).Msg("pipeline: artifact not kept")
		return
	}
	logger.Debug().Str("key", key).Msg("pipeline: artifact kept")
}
