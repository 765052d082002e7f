// Package refresh decides whether a cached holiday snapshot must be
// redownloaded. It never downloads anything itself; the only network call
// it may make is an ETag probe through the Prober.
//
// Strategies compose explicitly:
//
//	AlwaysRefresh -> true
//	NeverRefresh  -> false
//	TimeBased     -> age > max
//	EtagBased     -> no cached ETag, probe error or no remote ETag: TimeBased
//	                 otherwise: remote ETag != cached ETag
//	Hybrid        -> age > max: true
//	                 probe interval elapsed (or never probed): EtagBased
//	                 otherwise: false
package refresh

import (
	"context"
	"fmt"
	"time"

	"holidaysjp/internal/config"
	appLog "holidaysjp/internal/log"
	"holidaysjp/internal/model"
)

// Prober fetches the current remote ETag. An empty string with a nil error
// means the server answered without one.
type Prober interface {
	Probe(ctx context.Context, url string) (string, error)
}

// Reasons reported in Decision.Reason.
const (
	ReasonAlways        = "always_refresh"
	ReasonNever         = "never_refresh"
	ReasonExpired       = "age_exceeded"
	ReasonFresh         = "within_max_age"
	ReasonETagChanged   = "etag_changed"
	ReasonETagUnchanged = "etag_unchanged"
	ReasonCheckNotDue   = "etag_check_not_due"
)

// Decision is the outcome of one policy evaluation.
type Decision struct {
	Refresh bool
	Reason  string

	// ETagChecked is true when a probe round-trip completed. The caller
	// records CheckedAt as last_etag_check whether or not Refresh is set.
	ETagChecked bool
	CheckedAt   time.Time
	RemoteETag  string

	// FellBack is true when an ETag evaluation degraded to the time-based
	// rule (no cached ETag, probe failure, or no remote ETag).
	FellBack bool
}

// Policy evaluates one configured strategy. The zero Now means time.Now.
type Policy struct {
	Strategy               config.Strategy
	MaxAgeHours            int
	ETagCheckIntervalHours int
	SourceURL              string
	Prober                 Prober
	Now                    func() time.Time
}

// FromConfig builds a Policy from cfg, probing through p.
func FromConfig(cfg *config.Config, p Prober) *Policy {
	return &Policy{
		Strategy:               cfg.Cache.Strategy,
		MaxAgeHours:            cfg.Cache.MaxAgeHours,
		ETagCheckIntervalHours: cfg.Cache.ETagCheckIntervalHours,
		SourceURL:              cfg.HolidayData.SourceURL,
		Prober:                 p,
		Now:                    time.Now,
	}
}

// ShouldRefresh reports whether meta must be redownloaded.
func (p *Policy) ShouldRefresh(ctx context.Context, meta model.CacheMetadata) (bool, error) {
	d, err := p.Evaluate(ctx, meta)
	if err != nil {
		return false, err
	}
	return d.Refresh, nil
}

// Evaluate runs the configured strategy against meta. The only error it
// returns is model.ErrConfig for an unknown strategy; probe failures fail
// open to the time-based rule.
func (p *Policy) Evaluate(ctx context.Context, meta model.CacheMetadata) (Decision, error) {
	var d Decision
	switch p.Strategy {
	case config.StrategyAlwaysRefresh:
		d = Decision{Refresh: true, Reason: ReasonAlways}
	case config.StrategyNeverRefresh:
		d = Decision{Refresh: false, Reason: ReasonNever}
	case config.StrategyTimeBased:
		d = p.timeBased(meta)
	case config.StrategyETagBased:
		d = p.etagBased(ctx, meta)
	case config.StrategyHybrid:
		d = p.hybrid(ctx, meta)
	default:
		return Decision{}, fmt.Errorf("%w: unknown refresh strategy %q", model.ErrConfig, p.Strategy)
	}

	appLog.Debug("refresh decision",
		"strategy", p.Strategy,
		"refresh", d.Refresh,
		"reason", d.Reason,
		"etag_checked", d.ETagChecked,
		"fell_back", d.FellBack,
	)
	return d, nil
}

func (p *Policy) timeBased(meta model.CacheMetadata) Decision {
	if p.AgeHours(meta) > int64(p.MaxAgeHours) {
		return Decision{Refresh: true, Reason: ReasonExpired}
	}
	return Decision{Refresh: false, Reason: ReasonFresh}
}

func (p *Policy) etagBased(ctx context.Context, meta model.CacheMetadata) Decision {
	if meta.ETag == "" || p.Prober == nil {
		d := p.timeBased(meta)
		d.FellBack = true
		return d
	}

	remote, err := p.Prober.Probe(ctx, p.probeURL(meta))
	if err != nil {
		appLog.Warn("etag probe failed; falling back to time-based policy", "err", err)
		d := p.timeBased(meta)
		d.FellBack = true
		return d
	}

	// The round-trip completed, even if it brought back no ETag.
	checkedAt := p.now()
	if remote == "" {
		appLog.Warn("etag probe returned no ETag; falling back to time-based policy")
		d := p.timeBased(meta)
		d.FellBack = true
		d.ETagChecked = true
		d.CheckedAt = checkedAt
		return d
	}

	d := Decision{
		Refresh:     remote != meta.ETag,
		Reason:      ReasonETagUnchanged,
		ETagChecked: true,
		CheckedAt:   checkedAt,
		RemoteETag:  remote,
	}
	if d.Refresh {
		d.Reason = ReasonETagChanged
	}
	return d
}

func (p *Policy) hybrid(ctx context.Context, meta model.CacheMetadata) Decision {
	if p.AgeHours(meta) > int64(p.MaxAgeHours) {
		return Decision{Refresh: true, Reason: ReasonExpired}
	}
	if !p.etagCheckDue(meta) {
		return Decision{Refresh: false, Reason: ReasonCheckNotDue}
	}
	return p.etagBased(ctx, meta)
}

func (p *Policy) etagCheckDue(meta model.CacheMetadata) bool {
	if meta.LastETagCheck == nil {
		return true
	}
	return wholeHours(p.now().Sub(*meta.LastETagCheck)) > int64(p.ETagCheckIntervalHours)
}

// AgeHours is the snapshot age in whole hours, truncated.
func (p *Policy) AgeHours(meta model.CacheMetadata) int64 {
	return wholeHours(p.now().Sub(meta.LastUpdated))
}

func (p *Policy) probeURL(meta model.CacheMetadata) string {
	if p.SourceURL != "" {
		return p.SourceURL
	}
	return meta.SourceURL
}

func (p *Policy) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func wholeHours(d time.Duration) int64 {
	return int64(d / time.Hour)
}
