package progress

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reconciler merges remote progress with the local cache into the
// authoritative per-module view on course load.
type Reconciler struct {
	Remote RemoteReader
	Cache  LocalStore
	Log    *zap.Logger

	now func() time.Time
}

func NewReconciler(remote RemoteReader, cache LocalStore, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{Remote: remote, Cache: cache, Log: log, now: time.Now}
}

// Load produces the merged record map and derived state for a course.
//
// A failed remote fetch degrades to local-cache-only state: the course still
// loads, progress just may be stale. Merged values are written back into the
// cache so a healthy reconciliation repairs any stale or corrupt entries.
// Merging is max-based on percent, so running Load twice on the same inputs
// yields the same result and never loses a recorded completion.
func (r *Reconciler) Load(ctx context.Context, userID, courseID string, modules []ModuleDescriptor) (CourseProgressState, map[int]ProgressRecord) {
	remote, err := r.Remote.ListProgress(ctx, userID, courseID)
	remoteOK := err == nil
	if err != nil {
		r.Log.Warn("progress: remote fetch failed, using local cache only",
			zap.String("course_id", courseID), zap.Error(err))
		remote = nil
	}

	merged := make(map[int]ProgressRecord, len(modules))
	for i, m := range modules {
		rec := Normalize(m.Kind, remote[i])

		local, ok, cerr := r.cacheGet(ctx, userID, courseID, i)
		if cerr != nil {
			r.Log.Warn("progress: local cache read failed",
				zap.Int("module_index", i), zap.Error(cerr))
		}
		if ok {
			rec = MergeRecords(m.Kind, rec, local)
		}
		merged[i] = rec

		entry := CachedRecord{Record: rec, SyncedAt: local.SyncedAt}
		if remoteOK {
			entry.SyncedAt = r.now()
		}
		if perr := r.cachePut(ctx, userID, courseID, i, entry); perr != nil {
			r.Log.Warn("progress: local cache write failed",
				zap.Int("module_index", i), zap.Error(perr))
		}
	}

	return DeriveState(modules, merged), merged
}

func (r *Reconciler) cacheGet(ctx context.Context, userID, courseID string, i int) (CachedRecord, bool, error) {
	if r.Cache == nil {
		return CachedRecord{}, false, nil
	}
	return r.Cache.Get(ctx, userID, courseID, i)
}

func (r *Reconciler) cachePut(ctx context.Context, userID, courseID string, i int, rec CachedRecord) error {
	if r.Cache == nil {
		return nil
	}
	return r.Cache.Put(ctx, userID, courseID, i, rec)
}
