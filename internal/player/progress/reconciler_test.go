package progress

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeRemote struct {
	records map[int]ProgressRecord
	err     error
	calls   int
}

func (f *fakeRemote) ListProgress(_ context.Context, _, _ string) (map[int]ProgressRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

type fakeCache struct {
	items map[string]CachedRecord
}

func newFakeCache() *fakeCache { return &fakeCache{items: map[string]CachedRecord{}} }

func cacheKey(userID, courseID string, i int) string {
	return fmt.Sprintf("%s|%s|%d", userID, courseID, i)
}

func (f *fakeCache) Get(_ context.Context, userID, courseID string, i int) (CachedRecord, bool, error) {
	rec, ok := f.items[cacheKey(userID, courseID, i)]
	return rec, ok, nil
}

func (f *fakeCache) Put(_ context.Context, userID, courseID string, i int, rec CachedRecord) error {
	f.items[cacheKey(userID, courseID, i)] = rec
	return nil
}

var testModules = []ModuleDescriptor{
	{Order: 0, Kind: KindVideo, DurationHint: 600},
	{Order: 1, Kind: KindDocument},
	{Order: 2, Kind: KindVideo, DurationHint: 300},
}

func TestReconcilerMergesRemoteAndLocal(t *testing.T) {
	syncedAt := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	remote := &fakeRemote{records: map[int]ProgressRecord{
		0: {Percent: 100, LastPositionSeconds: 590, LastUpdatedAt: syncedAt.Add(-time.Hour)},
		1: {Percent: 100, LastUpdatedAt: syncedAt.Add(-time.Hour)},
	}}
	cache := newFakeCache()
	// Local rewatch of module 0 after the last sync: lower percent, fresher
	// position.
	_ = cache.Put(context.Background(), "u1", "c1", 0, CachedRecord{
		Record:   ProgressRecord{Percent: 40, LastPositionSeconds: 123, LastUpdatedAt: syncedAt.Add(time.Minute)},
		SyncedAt: syncedAt,
	})

	r := NewReconciler(remote, cache, zap.NewNop())
	st, merged := r.Load(context.Background(), "u1", "c1", testModules)

	if !st.Completed(0) || !st.Completed(1) {
		t.Fatalf("completed set wrong: %+v", st.CompletedModules)
	}
	if merged[0].Percent != 100 {
		t.Fatalf("module 0 percent = %d, want 100", merged[0].Percent)
	}
	if merged[0].LastPositionSeconds != 123 {
		t.Fatalf("module 0 position = %v, want fresher local 123", merged[0].LastPositionSeconds)
	}
	if st.ProgressPercent != 67 {
		t.Fatalf("course percent = %d, want 67", st.ProgressPercent)
	}
}

func TestReconcilerDegradedOnRemoteFailure(t *testing.T) {
	cache := newFakeCache()
	_ = cache.Put(context.Background(), "u1", "c1", 0, CachedRecord{
		Record: ProgressRecord{Percent: 95, LastPositionSeconds: 570, LastUpdatedAt: time.Now()},
	})

	r := NewReconciler(&fakeRemote{err: errors.New("remote down")}, cache, zap.NewNop())
	st, merged := r.Load(context.Background(), "u1", "c1", testModules)

	if !st.Completed(0) {
		t.Fatal("local cache alone should still complete module 0")
	}
	if merged[0].Percent != 95 {
		t.Fatalf("module 0 percent = %d, want 95", merged[0].Percent)
	}
	// Degraded load must not stamp entries as freshly synced.
	entry, _, _ := cache.Get(context.Background(), "u1", "c1", 0)
	if !entry.SyncedAt.IsZero() {
		t.Fatalf("SyncedAt should stay zero on degraded load, got %v", entry.SyncedAt)
	}
}

func TestReconcilerRepairsCorruptCacheEntries(t *testing.T) {
	cache := newFakeCache()
	_ = cache.Put(context.Background(), "u1", "c1", 2, CachedRecord{
		Record: ProgressRecord{Percent: 400, WatchTimeSeconds: -12, LastPositionSeconds: -3},
	})

	r := NewReconciler(&fakeRemote{}, cache, zap.NewNop())
	_, merged := r.Load(context.Background(), "u1", "c1", testModules)

	if merged[2].Percent != 100 {
		t.Fatalf("corrupt percent should clamp to 100, got %d", merged[2].Percent)
	}
	entry, _, _ := cache.Get(context.Background(), "u1", "c1", 2)
	if entry.Record.Percent != 100 || entry.Record.WatchTimeSeconds != 0 {
		t.Fatalf("cache writeback should hold the repaired record: %+v", entry.Record)
	}
}

func TestReconcilerIdempotent(t *testing.T) {
	remote := &fakeRemote{records: map[int]ProgressRecord{0: {Percent: 91, LastPositionSeconds: 550}}}
	cache := newFakeCache()
	r := NewReconciler(remote, cache, zap.NewNop())

	st1, merged1 := r.Load(context.Background(), "u1", "c1", testModules)
	st2, merged2 := r.Load(context.Background(), "u1", "c1", testModules)

	if len(st1.CompletedModules) != len(st2.CompletedModules) {
		t.Fatalf("completed sets differ: %v vs %v", st1.CompletedModules, st2.CompletedModules)
	}
	for i := range testModules {
		if merged1[i].Percent != merged2[i].Percent || merged1[i].LastPositionSeconds != merged2[i].LastPositionSeconds {
			t.Fatalf("module %d differs across loads: %+v vs %+v", i, merged1[i], merged2[i])
		}
	}
}

func TestReconcilerDocumentPositionStripped(t *testing.T) {
	remote := &fakeRemote{records: map[int]ProgressRecord{1: {Percent: 100, LastPositionSeconds: 88}}}
	r := NewReconciler(remote, newFakeCache(), zap.NewNop())
	_, merged := r.Load(context.Background(), "u1", "c1", testModules)
	if merged[1].LastPositionSeconds != 0 {
		t.Fatalf("document position should be stripped, got %v", merged[1].LastPositionSeconds)
	}
}
