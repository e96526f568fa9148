package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mangasync/internal/ingestion/mal"
	"mangasync/internal/ingestion/malsync"
	"mangasync/internal/microservices/http-api/dto"
	"mangasync/internal/mirror"
	"mangasync/internal/models"
	"mangasync/internal/reconcile"
	"mangasync/internal/syncworker"
	"mangasync/internal/workerpool"
)

var (
	ErrUnknownSyncKind = errors.New("unknown sync kind")
	ErrNoSync          = errors.New("no sync found")
)

// BookmarkService is everything the HTTP layer needs from the core.
type BookmarkService interface {
	Page(ctx context.Context, userID, token string, page int) (*dto.BookmarkPageResponse, error)
	Cache(ctx context.Context, userID string) ([]dto.CachedBookmark, error)
	Resync(ctx context.Context, userID, token string) (*syncworker.Handle, error)
	ExternalSync(ctx context.Context, userID string) (*syncworker.Handle, error)
	Sync(userID, kind string) (*syncworker.Handle, error)
	Status(ctx context.Context, userID string) (*dto.SyncStatusResponse, error)
	Enrichment(ctx context.Context, userID, identifier string, overwrite, useCache bool) *models.EnrichmentEntry
	Settings(ctx context.Context, userID string) (models.UserSettings, error)
	SaveSettings(ctx context.Context, userID string, settings models.UserSettings) error
}

// PageFetcher is the remote bookmark source.
type PageFetcher interface {
	FetchPage(ctx context.Context, token string, page int) (*models.BookmarkPage, error)
}

// Enricher looks up third-party metadata.
type Enricher interface {
	Fetch(ctx context.Context, userID, identifier string, opts malsync.FetchOptions) *models.EnrichmentEntry
}

// Options carry the tunables read from config.
type Options struct {
	// EnrichmentEnabled is the fetch_mal_image default for new users.
	EnrichmentEnabled   bool
	EnrichmentWorkers   int
	EnrichmentFetchOpts malsync.FetchOptions
	HistoryLimit        int
}

type bookmarkService struct {
	fetcher  PageFetcher
	engine   *reconcile.Engine
	resyncer *syncworker.Resyncer
	batch    *mal.BatchRunner
	registry *syncworker.Registry
	enricher Enricher
	mirror   *mirror.Mirror
	opts     Options
	logger   *slog.Logger
}

func NewBookmarkService(
	fetcher PageFetcher,
	engine *reconcile.Engine,
	resyncer *syncworker.Resyncer,
	batch *mal.BatchRunner,
	registry *syncworker.Registry,
	enricher Enricher,
	m *mirror.Mirror,
	opts Options,
	logger *slog.Logger,
) BookmarkService {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10
	}
	return &bookmarkService{
		fetcher:  fetcher,
		engine:   engine,
		resyncer: resyncer,
		batch:    batch,
		registry: registry,
		enricher: enricher,
		mirror:   m,
		opts:     opts,
		logger:   logger,
	}
}

// Page fetches one remote page and decorates it. Page 1 is then reconciled
// against the mirror, so a HIT stores the high quality covers.
func (s *bookmarkService) Page(ctx context.Context, userID, token string, page int) (*dto.BookmarkPageResponse, error) {
	remote, err := s.fetcher.FetchPage(ctx, token, page)
	if err != nil {
		return nil, err
	}

	resp := &dto.BookmarkPageResponse{
		Bookmarks:  remote.Bookmarks,
		Page:       remote.Page,
		TotalPages: remote.TotalPages,
	}
	if resp.Bookmarks == nil {
		resp.Bookmarks = []models.BookmarkRecord{}
	}

	s.decorate(ctx, userID, resp.Bookmarks)

	if remote.Page == 1 {
		report, err := s.engine.Run(ctx, userID, token, resp.Bookmarks)
		if err != nil {
			return nil, fmt.Errorf("reconcile: %w", err)
		}
		resp.Reconcile = &dto.ReconcileOutcome{
			Hit:    report.Hit,
			Offset: report.Offset,
			Width:  report.Width,
			Joined: report.Joined,
		}
		if report.Handle != nil {
			resp.Reconcile.SyncID = report.Handle.ID
		}
	}
	return resp, nil
}

// decorate swaps in the high quality cover and the up_to_date flag. Lookups
// fan out over a bounded pool; a failed lookup leaves the record as is.
func (s *bookmarkService) decorate(ctx context.Context, userID string, records []models.BookmarkRecord) {
	tasks := make([]workerpool.Task, 0, len(records))
	for i := range records {
		record := &records[i]
		identifier := record.Identifier()
		if identifier == "" {
			continue
		}
		tasks = append(tasks, func(ctx context.Context) error {
			entry := s.enricher.Fetch(ctx, userID, identifier, s.opts.EnrichmentFetchOpts)
			cached, err := s.mirror.Enrichment(ctx, userID, identifier)
			if err != nil {
				return err
			}
			if entry == nil {
				entry = cached
			}
			if entry != nil && entry.ImageURL != "" {
				record.Image = entry.ImageURL
			}
			if cached != nil && cached.UpToDate != nil {
				upToDate := *cached.UpToDate
				record.UpToDate = &upToDate
			}
			return nil
		})
	}
	workerpool.Run(ctx, s.opts.EnrichmentWorkers, s.logger, tasks)
}

func (s *bookmarkService) Cache(ctx context.Context, userID string) ([]dto.CachedBookmark, error) {
	entries, err := s.mirror.Entries(ctx, userID)
	if err != nil {
		return nil, err
	}
	enrichment, err := s.mirror.AllEnrichment(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := make([]dto.CachedBookmark, 0, len(entries))
	for _, entry := range entries {
		item := dto.CachedBookmark{MangaCacheEntry: entry}
		if e, ok := enrichment[entry.Identifier()]; ok {
			item.Enrichment = &e
		}
		items = append(items, item)
	}
	return items, nil
}

// Resync forces a full rebuild. A running rebuild is returned with
// syncworker.ErrSyncInProgress.
func (s *bookmarkService) Resync(ctx context.Context, userID, token string) (*syncworker.Handle, error) {
	return s.resyncer.Start(userID, token, nil)
}

func (s *bookmarkService) ExternalSync(ctx context.Context, userID string) (*syncworker.Handle, error) {
	return s.batch.Start(ctx, userID)
}

// Sync returns the running or most recent task of kind.
func (s *bookmarkService) Sync(userID, kind string) (*syncworker.Handle, error) {
	if kind != models.SyncKindResync && kind != models.SyncKindExternal {
		return nil, ErrUnknownSyncKind
	}
	h, ok := s.registry.Latest(userID, kind)
	if !ok {
		return nil, ErrNoSync
	}
	return h, nil
}

func (s *bookmarkService) Status(ctx context.Context, userID string) (*dto.SyncStatusResponse, error) {
	resp := &dto.SyncStatusResponse{
		Active: []syncworker.Status{},
		Latest: []syncworker.Status{},
	}
	for _, kind := range []string{models.SyncKindResync, models.SyncKindExternal} {
		if h, ok := s.registry.Active(userID, kind); ok {
			resp.Active = append(resp.Active, h.Status())
		}
		if h, ok := s.registry.Latest(userID, kind); ok {
			resp.Latest = append(resp.Latest, h.Status())
		}
	}

	history, err := s.registry.History(ctx, userID, s.opts.HistoryLimit)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []models.SyncRun{}
	}
	resp.History = history
	return resp, nil
}

func (s *bookmarkService) Enrichment(ctx context.Context, userID, identifier string, overwrite, useCache bool) *models.EnrichmentEntry {
	opts := s.opts.EnrichmentFetchOpts
	opts.Overwrite = overwrite
	opts.UseCache = useCache
	return s.enricher.Fetch(ctx, userID, identifier, opts)
}

func (s *bookmarkService) Settings(ctx context.Context, userID string) (models.UserSettings, error) {
	return s.mirror.Settings(ctx, userID, models.UserSettings{FetchMalImage: s.opts.EnrichmentEnabled})
}

func (s *bookmarkService) SaveSettings(ctx context.Context, userID string, settings models.UserSettings) error {
	return s.mirror.SaveSettings(ctx, userID, settings)
}
