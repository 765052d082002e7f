package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"holidaysjp/internal/config"
	"holidaysjp/internal/model"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeProber struct {
	etag  string
	err   error
	calls int
}

func (f *fakeProber) Probe(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.etag, f.err
}

func newPolicy(s config.Strategy, p Prober) *Policy {
	return &Policy{
		Strategy:               s,
		MaxAgeHours:            168,
		ETagCheckIntervalHours: 24,
		SourceURL:              "https://example.com/syukujitsu.csv",
		Prober:                 p,
		Now:                    func() time.Time { return now },
	}
}

func metaAged(age time.Duration, etag string) model.CacheMetadata {
	return model.CacheMetadata{LastUpdated: now.Add(-age), ETag: etag}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestAlwaysAndNever(t *testing.T) {
	t.Parallel()

	fresh := metaAged(time.Hour, "abc")
	stale := metaAged(1000*time.Hour, "abc")
	for _, meta := range []model.CacheMetadata{fresh, stale} {
		prober := &fakeProber{etag: "zzz"}
		if got, _ := newPolicy(config.StrategyAlwaysRefresh, prober).ShouldRefresh(context.Background(), meta); !got {
			t.Error("AlwaysRefresh should refresh")
		}
		if got, _ := newPolicy(config.StrategyNeverRefresh, prober).ShouldRefresh(context.Background(), meta); got {
			t.Error("NeverRefresh should not refresh")
		}
		if prober.calls != 0 {
			t.Errorf("Always/Never must not probe, got %d calls", prober.calls)
		}
	}
}

func TestTimeBased(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"200h old", 200 * time.Hour, true},
		{"exactly max", 168 * time.Hour, false},
		{"max plus 59m floors to max", 168*time.Hour + 59*time.Minute, false},
		{"max plus 1h", 169 * time.Hour, true},
		{"one hour", time.Hour, false},
		{"future timestamp", -5 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPolicy(config.StrategyTimeBased, &fakeProber{})
			got, err := p.ShouldRefresh(context.Background(), metaAged(tt.age, ""))
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ShouldRefresh = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIdempotentWithoutElapsedTime(t *testing.T) {
	t.Parallel()

	for _, s := range []config.Strategy{config.StrategyNeverRefresh, config.StrategyTimeBased} {
		for _, age := range []time.Duration{time.Hour, 168 * time.Hour, 500 * time.Hour} {
			p := newPolicy(s, nil)
			meta := metaAged(age, "abc")
			first, _ := p.ShouldRefresh(context.Background(), meta)
			second, _ := p.ShouldRefresh(context.Background(), meta)
			if first != second {
				t.Errorf("%s age %v: %v then %v", s, age, first, second)
			}
		}
	}
}

func TestETagBased(t *testing.T) {
	t.Parallel()

	netErr := errors.New("dial tcp: connection refused")
	tests := []struct {
		name        string
		age         time.Duration
		cachedETag  string
		remote      string
		probeErr    error
		want        bool
		wantChecked bool
		wantFell    bool
		wantCalls   int
	}{
		{"same etag", time.Hour, "abc", "abc", nil, false, true, false, 1},
		{"changed etag", time.Hour, "abc", "def", nil, true, true, false, 1},
		{"etag compare is byte exact", time.Hour, `"abc"`, `W/"abc"`, nil, true, true, false, 1},
		{"same etag but expired still trusts etag", 500 * time.Hour, "abc", "abc", nil, false, true, false, 1},
		{"probe error fails open fresh", 167 * time.Hour, "abc", "", netErr, false, false, true, 1},
		{"probe error fails open stale", 200 * time.Hour, "abc", "", netErr, true, false, true, 1},
		{"no remote etag falls back", time.Hour, "abc", "", nil, false, true, true, 1},
		{"no cached etag skips probe", 200 * time.Hour, "", "abc", nil, true, false, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := &fakeProber{etag: tt.remote, err: tt.probeErr}
			p := newPolicy(config.StrategyETagBased, prober)

			d, err := p.Evaluate(context.Background(), metaAged(tt.age, tt.cachedETag))
			if err != nil {
				t.Fatalf("probe failures must not surface: %v", err)
			}
			if d.Refresh != tt.want {
				t.Errorf("Refresh = %v, want %v (reason %s)", d.Refresh, tt.want, d.Reason)
			}
			if d.ETagChecked != tt.wantChecked {
				t.Errorf("ETagChecked = %v, want %v", d.ETagChecked, tt.wantChecked)
			}
			if d.ETagChecked && !d.CheckedAt.Equal(now) {
				t.Errorf("CheckedAt = %v, want %v", d.CheckedAt, now)
			}
			if d.FellBack != tt.wantFell {
				t.Errorf("FellBack = %v, want %v", d.FellBack, tt.wantFell)
			}
			if prober.calls != tt.wantCalls {
				t.Errorf("probe calls = %d, want %d", prober.calls, tt.wantCalls)
			}
		})
	}
}

func TestHybrid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		age       time.Duration
		lastCheck *time.Time
		remote    string
		probeErr  error
		want      bool
		wantCalls int
		reason    string
	}{
		{"expired forces refresh without probe", 200 * time.Hour, nil, "abc", nil, true, 0, ReasonExpired},
		{"never checked probes unchanged", time.Hour, nil, "abc", nil, false, 1, ReasonETagUnchanged},
		{"never checked probes changed", time.Hour, nil, "new", nil, true, 1, ReasonETagChanged},
		{"checked recently skips probe", time.Hour, timePtr(now.Add(-2 * time.Hour)), "new", nil, false, 0, ReasonCheckNotDue},
		{"interval boundary is not due", time.Hour, timePtr(now.Add(-24 * time.Hour)), "new", nil, false, 0, ReasonCheckNotDue},
		{"interval elapsed probes", 30 * time.Hour, timePtr(now.Add(-25 * time.Hour)), "new", nil, true, 1, ReasonETagChanged},
		{"probe failure falls back to fresh", time.Hour, nil, "", errors.New("timeout"), false, 1, ReasonFresh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := &fakeProber{etag: tt.remote, err: tt.probeErr}
			p := newPolicy(config.StrategyHybrid, prober)
			meta := metaAged(tt.age, "abc")
			meta.LastETagCheck = tt.lastCheck

			d, err := p.Evaluate(context.Background(), meta)
			if err != nil {
				t.Fatal(err)
			}
			if d.Refresh != tt.want {
				t.Errorf("Refresh = %v, want %v", d.Refresh, tt.want)
			}
			if d.Reason != tt.reason {
				t.Errorf("Reason = %s, want %s", d.Reason, tt.reason)
			}
			if prober.calls != tt.wantCalls {
				t.Errorf("probe calls = %d, want %d", prober.calls, tt.wantCalls)
			}
		})
	}
}

func TestUnknownStrategyIsConfigError(t *testing.T) {
	t.Parallel()

	_, err := newPolicy("Weekly", nil).ShouldRefresh(context.Background(), metaAged(time.Hour, ""))
	if !errors.Is(err, model.ErrConfig) {
		t.Fatalf("want ErrConfig, got %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Cache.Strategy = config.StrategyTimeBased
	cfg.Cache.MaxAgeHours = 12
	p := FromConfig(cfg, nil)
	p.Now = func() time.Time { return now }

	got, err := p.ShouldRefresh(context.Background(), metaAged(13*time.Hour, ""))
	if err != nil || !got {
		t.Fatalf("ShouldRefresh = %v, %v; want true", got, err)
	}
}
