// Package holiday answers "is this date a Japanese national holiday?" from
// a cached copy of the Cabinet Office CSV, refreshing it according to the
// configured policy.
package holiday

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"holidaysjp/internal/cache"
	"holidaysjp/internal/config"
	appLog "holidaysjp/internal/log"
	"holidaysjp/internal/model"
	"holidaysjp/internal/obs"
	"holidaysjp/internal/refresh"
	"holidaysjp/internal/source"
)

// Fetcher downloads the raw source document. *source.Client satisfies it
// together with refresh.Prober.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (source.FetchResult, error)
}

// RemoteSource is what the service needs from the network.
type RemoteSource interface {
	Fetcher
	refresh.Prober
}

// ServiceOptions overrides collaborators. Zero values are built from the
// config.
type ServiceOptions struct {
	Source  RemoteSource
	Store   *cache.Store
	Metrics *obs.Metrics
	// Parse converts the downloaded bytes; defaults to source.ParseCSV.
	Parse func([]byte) (model.HolidayMap, error)
	Now   func() time.Time
}

// Status is a point-in-time view of the service for diagnostics.
type Status struct {
	Initialized bool                `json:"initialized"`
	Holidays    int                 `json:"holidays"`
	Strategy    config.Strategy     `json:"strategy"`
	CacheFile   string              `json:"cache_file"`
	Metadata    model.CacheMetadata `json:"metadata"`
}

// Service owns the in-memory holiday map. Queries are safe for concurrent
// use; refreshes are collapsed so at most one download runs at a time and
// the map is replaced wholesale.
type Service struct {
	cfg     *config.Config
	source  RemoteSource
	store   *cache.Store
	policy  *refresh.Policy
	metrics *obs.Metrics
	parse   func([]byte) (model.HolidayMap, error)
	now     func() time.Time

	// group collapses identical concurrent refreshes; syncMu serializes
	// the rest so only one writer touches the cache file.
	group  singleflight.Group
	syncMu sync.Mutex

	mu       sync.RWMutex
	snapshot *model.Snapshot // nil until Initialize succeeds
}

// NewService wires a Service from cfg. cfg must already be normalized.
func NewService(cfg *config.Config, opts ServiceOptions) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", model.ErrConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		source:  opts.Source,
		store:   opts.Store,
		metrics: opts.Metrics,
		parse:   opts.Parse,
		now:     opts.Now,
	}
	if s.source == nil {
		s.source = source.NewClient(source.ClientOptions{
			DownloadTimeout: cfg.DownloadTimeout(),
			ProbeTimeout:    cfg.ProbeTimeout(),
			UserAgent:       cfg.HTTP.UserAgent,
		})
	}
	if s.store == nil {
		s.store = cache.NewStore(cfg.HolidayData.CacheFile)
	}
	if s.parse == nil {
		s.parse = source.ParseCSV
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.policy = refresh.FromConfig(cfg, probeRecorder{prober: s.source, metrics: s.metrics})
	s.policy.Now = s.now
	return s, nil
}

// probeRecorder counts probe outcomes on the way through.
type probeRecorder struct {
	prober  refresh.Prober
	metrics *obs.Metrics
}

func (r probeRecorder) Probe(ctx context.Context, url string) (string, error) {
	etag, err := r.prober.Probe(ctx, url)
	switch {
	case err != nil:
		r.metrics.ObserveProbe("error")
	case etag == "":
		r.metrics.ObserveProbe("no_etag")
	default:
		r.metrics.ObserveProbe("ok")
	}
	return etag, err
}

// Initialize loads the cached snapshot or downloads a fresh one, then
// installs it for queries. With force_refresh_on_startup set it always
// downloads.
func (s *Service) Initialize(ctx context.Context) error {
	return s.sync(ctx, s.cfg.Cache.ForceRefreshOnStartup, true)
}

// Refresh re-evaluates the policy against the current snapshot and
// downloads if it says so, or unconditionally when force is set. On
// failure the previous snapshot stays in place.
func (s *Service) Refresh(ctx context.Context, force bool) error {
	return s.sync(ctx, force, false)
}

func (s *Service) sync(ctx context.Context, force, fromDisk bool) error {
	key := "policy"
	if force {
		key = "force"
	}
	// The shared call outlives any single caller; each caller still stops
	// waiting when its own ctx ends. Remote calls stay bounded by the client
	// timeouts.
	ch := s.group.DoChan(key, func() (any, error) {
		return nil, s.syncOnce(context.WithoutCancel(ctx), force, fromDisk)
	})
	select {
	case res := <-ch:
		if res.Shared {
			appLog.Debug("holiday refresh joined in-flight call", "force", force)
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) syncOnce(ctx context.Context, force, fromDisk bool) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	if force {
		appLog.Info("holiday refresh forced")
		return s.download(ctx)
	}

	current, ok := s.current()
	if fromDisk || !ok {
		snap, err := s.store.Load()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				appLog.Info("holiday cache not found; downloading", "cache_file", s.store.Path())
			} else {
				appLog.Error("holiday cache unreadable; downloading", err, "cache_file", s.store.Path())
			}
			return s.download(ctx)
		}
		current = snap
	}

	decision, err := s.policy.Evaluate(ctx, current.Metadata)
	if err != nil {
		return err
	}
	s.metrics.ObserveDecision(s.cfg.Cache.Strategy.String(), decision.Refresh, decision.Reason)

	appLog.Info("holiday refresh decision",
		"strategy", s.cfg.Cache.Strategy,
		"refresh", decision.Refresh,
		"reason", decision.Reason,
		"age_hours", s.policy.AgeHours(current.Metadata),
	)

	if decision.Refresh {
		return s.download(ctx)
	}

	if decision.ETagChecked {
		checked := decision.CheckedAt
		current.Metadata.LastETagCheck = &checked
		// Probe bookkeeping only; the holidays are still valid if this fails.
		if err := s.store.Save(current); err != nil {
			appLog.Error("failed to record etag check time", err, "cache_file", s.store.Path())
		}
	}

	s.install(current)
	return nil
}

// download fetches, parses and persists a new snapshot, and installs it
// only after all three succeeded.
func (s *Service) download(ctx context.Context) error {
	url := s.cfg.HolidayData.SourceURL
	res, err := s.source.Fetch(ctx, url)
	if err != nil {
		s.metrics.ObserveDownload("network_error")
		appLog.Error("holiday download failed", err, "url", source.RedactURL(url))
		return fmt.Errorf("downloading holidays: %w", err)
	}

	holidays, err := s.parse(res.Body)
	if err != nil {
		s.metrics.ObserveDownload("parse_error")
		appLog.Error("holiday parse failed", err, "url", source.RedactURL(url))
		return fmt.Errorf("parsing holidays: %w", err)
	}

	now := s.now().UTC()
	snap := model.Snapshot{
		Metadata: model.CacheMetadata{
			LastUpdated:        now,
			ETag:               res.ETag,
			LastModified:       res.LastModified,
			LastETagCheck:      &now,
			SourceURL:          url,
			CacheDurationHours: s.cfg.Cache.MaxAgeHours,
		},
		Holidays: holidays,
	}

	if err := s.store.Save(snap); err != nil {
		s.metrics.ObserveDownload("cache_error")
		appLog.Error("holiday cache save failed", err, "cache_file", s.store.Path())
		return fmt.Errorf("saving holidays: %w", err)
	}

	s.metrics.ObserveDownload("success")
	s.metrics.SetLastDownload(now)
	appLog.Info("holiday data downloaded",
		"url", source.RedactURL(url),
		"holidays", len(holidays),
		"etag", res.ETag,
	)

	s.install(snap)
	return nil
}

func (s *Service) install(snap model.Snapshot) {
	s.mu.Lock()
	s.snapshot = &snap
	s.mu.Unlock()
	s.metrics.SetHolidays(len(snap.Holidays))
}

func (s *Service) current() (model.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return model.Snapshot{}, false
	}
	return *s.snapshot, true
}

func (s *Service) holidays() (model.HolidayMap, error) {
	snap, ok := s.current()
	if !ok {
		return nil, model.ErrNotInitialized
	}
	return snap.Holidays, nil
}

// GetHoliday reports whether date is a holiday and, if so, its name.
func (s *Service) GetHoliday(date string) (bool, string, error) {
	holidays, err := s.holidays()
	if err != nil {
		return false, "", err
	}

	key, err := NormalizeDate(date)
	if err != nil {
		return false, "", err
	}

	name, ok := holidays[key]
	return ok, name, nil
}

// GetHolidaysInRange returns every holiday in [start, end], ascending. The
// range is walked day by day so ordering never depends on map iteration.
func (s *Service) GetHolidaysInRange(start, end string) ([]model.Holiday, error) {
	holidays, err := s.holidays()
	if err != nil {
		return nil, err
	}

	from, err := ParseDate(start)
	if err != nil {
		return nil, err
	}
	to, err := ParseDate(end)
	if err != nil {
		return nil, err
	}
	if from.After(to) {
		return nil, fmt.Errorf("%w: start %s is after end %s", model.ErrInvalidRange, model.DateKey(from), model.DateKey(to))
	}

	out := make([]model.Holiday, 0)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		key := model.DateKey(d)
		if name, ok := holidays[key]; ok {
			out = append(out, model.Holiday{Date: key, Name: name})
		}
	}
	return out, nil
}

// Status reports what is currently loaded.
func (s *Service) Status() Status {
	st := Status{
		Strategy:  s.cfg.Cache.Strategy,
		CacheFile: s.store.Path(),
	}
	if snap, ok := s.current(); ok {
		st.Initialized = true
		st.Holidays = len(snap.Holidays)
		st.Metadata = snap.Metadata
	}
	return st
}
