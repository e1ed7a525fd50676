// Package progress holds the pure course-progress model: records, the
// max-merge rule, completion thresholds, the unlock gate and the reconciler.
// Everything except the reconciler is free of I/O so the state transitions
// can be tested without any network or storage.
package progress

import (
	"math"
	"time"
)

// ModuleKind is the content type of one course module.
type ModuleKind string

const (
	KindVideo    ModuleKind = "video"
	KindDocument ModuleKind = "document"
	KindAudio    ModuleKind = "audio"
)

// Valid reports whether k is one of the known module kinds.
func (k ModuleKind) Valid() bool {
	switch k {
	case KindVideo, KindDocument, KindAudio:
		return true
	}
	return false
}

// CompleteThresholdPercent marks a video or audio module complete. Documents
// have no partial-consumption signal and complete only at exactly 100,
// written in a single terminal write on first open.
const CompleteThresholdPercent = 90

// ModuleDescriptor is one orderable unit of course content. Authored
// externally, read-only here.
type ModuleDescriptor struct {
	Order        int
	Kind         ModuleKind
	Title        string
	ContentRef   string
	DurationHint float64 // seconds, 0 when unknown
}

// ProgressRecord is the persisted state of one user's consumption of one
// module. Percent is a ratchet: merging never decreases it.
// LastPositionSeconds is seek-consistent and overwritten, not maxed.
type ProgressRecord struct {
	Percent             int
	WatchTimeSeconds    float64
	LastPositionSeconds float64
	LastUpdatedAt       time.Time // display / tie-break only, never conflict resolution
}

// CachedRecord is a local cache entry: the record plus the time of the last
// successful remote sync for this module. Between sync intervals the local
// entry is provisionally fresher than the remote store.
type CachedRecord struct {
	Record   ProgressRecord
	SyncedAt time.Time
}

// ClampPercent forces a percent into [0,100]. Out-of-range values from bad
// writes must never reach the derived completed set.
func ClampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// PercentAt converts a playback position into a whole percent of duration.
// Unknown (zero) durations yield 0 rather than dividing by zero.
func PercentAt(positionSeconds, durationSeconds float64) int {
	if durationSeconds <= 0 || positionSeconds <= 0 {
		return 0
	}
	return ClampPercent(int(math.Round(100 * positionSeconds / durationSeconds)))
}

// Complete reports whether a module of kind k with the given percent counts
// as completed for unlock purposes.
func Complete(k ModuleKind, percent int) bool {
	percent = ClampPercent(percent)
	if k == KindDocument {
		return percent == 100
	}
	return percent >= CompleteThresholdPercent
}

// Normalize clamps a record read from either store and strips meaningless
// fields: a document module has no playback position.
func Normalize(k ModuleKind, r ProgressRecord) ProgressRecord {
	r.Percent = ClampPercent(r.Percent)
	if r.LastPositionSeconds < 0 {
		r.LastPositionSeconds = 0
	}
	if r.WatchTimeSeconds < 0 {
		r.WatchTimeSeconds = 0
	}
	if k == KindDocument {
		r.LastPositionSeconds = 0
	}
	return r
}

// MergeRecords merges a remote record with a local cache entry for the same
// module. Percent and watch time take the maximum (commutative, idempotent);
// the playback position follows the local entry only when it is newer than
// the module's last successful remote sync, otherwise the remote position
// wins. The returned LastUpdatedAt is the later of the two.
func MergeRecords(k ModuleKind, remote ProgressRecord, local CachedRecord) ProgressRecord {
	remote = Normalize(k, remote)
	loc := Normalize(k, local.Record)

	out := remote
	if loc.Percent > out.Percent {
		out.Percent = loc.Percent
	}
	if loc.WatchTimeSeconds > out.WatchTimeSeconds {
		out.WatchTimeSeconds = loc.WatchTimeSeconds
	}
	if loc.LastUpdatedAt.After(local.SyncedAt) {
		out.LastPositionSeconds = loc.LastPositionSeconds
	}
	if loc.LastUpdatedAt.After(out.LastUpdatedAt) {
		out.LastUpdatedAt = loc.LastUpdatedAt
	}
	return out
}
