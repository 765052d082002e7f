package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"holidaysjp/internal/model"
)

func sampleSnapshot() model.Snapshot {
	updated := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	checked := updated.Add(2 * time.Hour)
	return model.Snapshot{
		Metadata: model.CacheMetadata{
			LastUpdated:        updated,
			ETag:               `"66a1-5f2"`,
			LastModified:       "Fri, 01 Mar 2024 00:00:00 GMT",
			LastETagCheck:      &checked,
			SourceURL:          "https://www8.cao.go.jp/chosei/shukujitsu/syukujitsu.csv",
			CacheDurationHours: 168,
		},
		Holidays: model.HolidayMap{
			"2024-01-01": "元日",
			"2024-01-08": "成人の日",
			"2024-02-11": "建国記念の日",
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "data", "sub", "holidays.json"))
	want := sampleSnapshot()

	if err := store.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(got.Holidays) != len(want.Holidays) {
		t.Fatalf("holidays = %v, want %v", got.Holidays, want.Holidays)
	}
	for k, v := range want.Holidays {
		if got.Holidays[k] != v {
			t.Errorf("holidays[%s] = %q, want %q", k, got.Holidays[k], v)
		}
	}
	if !got.Metadata.LastUpdated.Equal(want.Metadata.LastUpdated) {
		t.Errorf("last_updated = %v, want %v", got.Metadata.LastUpdated, want.Metadata.LastUpdated)
	}
	if got.Metadata.LastETagCheck == nil || !got.Metadata.LastETagCheck.Equal(*want.Metadata.LastETagCheck) {
		t.Errorf("last_etag_check = %v, want %v", got.Metadata.LastETagCheck, want.Metadata.LastETagCheck)
	}
	if got.Metadata.ETag != want.Metadata.ETag || got.Metadata.LastModified != want.Metadata.LastModified {
		t.Errorf("validators differ: %+v", got.Metadata)
	}

	// Saving what we loaded reproduces the same map.
	if err := store.Save(got); err != nil {
		t.Fatalf("re-save: %v", err)
	}
	again, err := store.Load()
	if err != nil {
		t.Fatalf("re-load: %v", err)
	}
	for k, v := range got.Holidays {
		if again.Holidays[k] != v {
			t.Errorf("after re-save holidays[%s] = %q, want %q", k, again.Holidays[k], v)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewStore(filepath.Join(t.TempDir(), "absent.json")).Load()
	if !errors.Is(err, model.ErrCacheIO) {
		t.Fatalf("want ErrCacheIO, got %v", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("want fs.ErrNotExist in chain, got %v", err)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"truncated":       `{"metadata": {"last_updated": "2024-`,
		"not json":        "holidays!",
		"no last_updated": `{"metadata": {}, "holidays": {"2024-01-01": "元日"}}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "holidays.json")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := NewStore(path).Load()
			if !errors.Is(err, model.ErrCacheIO) || !errors.Is(err, model.ErrParse) {
				t.Fatalf("want ErrCacheIO+ErrParse, got %v", err)
			}
		})
	}
}

func TestLoadNullHolidays(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "holidays.json")
	body := `{"metadata": {"last_updated": "2024-01-01T00:00:00Z"}, "holidays": null}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	snap, err := NewStore(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Holidays == nil {
		t.Error("holidays should be an empty map, not nil")
	}
}

func TestSaveFailureKeepsPreviousSnapshot(t *testing.T) {
	t.Parallel()
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "holidays.json"))
	if err := store.Save(sampleSnapshot()); err != nil {
		t.Fatal(err)
	}

	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	next := sampleSnapshot()
	next.Holidays = model.HolidayMap{"2025-01-01": "元日"}
	err := store.Save(next)
	if !errors.Is(err, model.ErrCacheIO) {
		t.Fatalf("want ErrCacheIO for unwritable dir, got %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("previous snapshot should still load: %v", err)
	}
	if _, ok := got.Holidays["2024-01-01"]; !ok {
		t.Errorf("previous snapshot was overwritten: %v", got.Holidays)
	}
}
