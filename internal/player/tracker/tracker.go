// Package tracker turns the raw playback tick stream of one module session
// into local cache writes (every whole second) and throttled remote writes
// (every 10 seconds of playback time plus a terminal flush).
package tracker

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/studyhub/internal/player/progress"
)

// RemoteWriter receives throttled progress samples. Submit errors are logged
// and dropped: the next periodic write carries a fresher value, so lost
// samples self-heal.
type RemoteWriter interface {
	Submit(ctx context.Context, s progress.Sample) error
}

// State is the lifecycle of one playback session.
type State int

const (
	StateIdle State = iota
	StateLoaded
	StatePlaying
	StatePaused
	StateEnded
)

// DefaultRemoteIntervalSeconds is the playback time between periodic remote
// writes. Measured in playback time, not wall clock: pausing emits nothing.
const DefaultRemoteIntervalSeconds = 10

// maxTickStep bounds the position delta credited as continuous playback.
// Larger jumps are seeks and earn no watch time.
const maxTickStep = 2.0

type Config struct {
	Local          progress.LocalStore
	Remote         RemoteWriter
	Log            *zap.Logger
	IntervalSecond float64 // defaults to DefaultRemoteIntervalSeconds
	Now            func() time.Time
}

type Tracker struct {
	local    progress.LocalStore
	remote   RemoteWriter
	log      *zap.Logger
	interval float64
	now      func() time.Time
}

func New(cfg Config) *Tracker {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.IntervalSecond <= 0 {
		cfg.IntervalSecond = DefaultRemoteIntervalSeconds
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tracker{
		local:    cfg.Local,
		remote:   cfg.Remote,
		log:      cfg.Log,
		interval: cfg.IntervalSecond,
		now:      cfg.Now,
	}
}

// SessionParams describes the module session being started.
type SessionParams struct {
	UserID      string
	CourseID    string
	ModuleIndex int
	Module      progress.ModuleDescriptor

	// Resume is the merged record from reconciliation. The session seeks to
	// its position and seeds the displayed percent from it, so credit
	// already earned is never shown as lost.
	Resume progress.ProgressRecord

	// AlreadyComplete suppresses the completion signal for modules that
	// crossed the threshold in an earlier session.
	AlreadyComplete bool

	// OnComplete fires at most once per session, the first time the
	// ratcheted percent crosses the module's completion threshold.
	OnComplete func(moduleIndex int)
}

// Session tracks one active module. Not safe for concurrent use: ticks are a
// cooperative callback stream from a single playback loop, per the player's
// execution model.
type Session struct {
	t  *Tracker
	id string

	userID      string
	courseID    string
	moduleIndex int
	kind        progress.ModuleKind

	state    State
	duration float64

	displayPercent  int // ratchet: only ever raised
	position        float64
	watchTime       float64
	sessionPlayback float64 // playback seconds observed this session
	nextRemoteAt    float64
	lastWholeSec    int

	syncedAt        time.Time
	dirty           bool // progress not yet flushed remotely
	signaled        bool
	alreadyComplete bool
	onComplete      func(int)
}

// Start creates a session in StateLoaded with the resume seek applied.
// Document modules bypass continuous tracking entirely: they get a single
// terminal write of percent 100 and the session ends immediately.
func (t *Tracker) Start(ctx context.Context, p SessionParams) *Session {
	rec := progress.Normalize(p.Module.Kind, p.Resume)
	s := &Session{
		t:               t,
		id:              uuid.NewString(),
		userID:          p.UserID,
		courseID:        p.CourseID,
		moduleIndex:     p.ModuleIndex,
		kind:            p.Module.Kind,
		state:           StateLoaded,
		duration:        p.Module.DurationHint,
		displayPercent:  rec.Percent,
		position:        rec.LastPositionSeconds,
		watchTime:       rec.WatchTimeSeconds,
		nextRemoteAt:    t.interval,
		lastWholeSec:    int(math.Floor(rec.LastPositionSeconds)),
		alreadyComplete: p.AlreadyComplete,
		onComplete:      p.OnComplete,
	}

	if s.kind == progress.KindDocument {
		s.displayPercent = 100
		s.position = 0
		s.writeLocal(ctx)
		s.flushRemote(ctx)
		s.maybeSignalComplete()
		s.state = StateEnded
		return s
	}

	t.log.Debug("tracker: session loaded",
		zap.String("session_id", s.id),
		zap.Int("module_index", s.moduleIndex),
		zap.Float64("resume_position", s.position),
		zap.Int("display_percent", s.displayPercent))
	return s
}

func (s *Session) ID() string   { return s.id }
func (s *Session) State() State { return s.state }

// DisplayPercent is the ratcheted percent for rendering. Seeking backward to
// rewatch never lowers it.
func (s *Session) DisplayPercent() int { return s.displayPercent }

// Position is the live playback cursor, seek-consistent.
func (s *Session) Position() float64 { return s.position }

// WatchTime is the cumulative observed playback time, best-effort.
func (s *Session) WatchTime() float64 { return s.watchTime }

// SetDuration replaces the duration hint once real media metadata is known.
func (s *Session) SetDuration(seconds float64) {
	if seconds > 0 {
		s.duration = seconds
	}
}

// Play starts or resumes tick processing.
func (s *Session) Play() {
	if s.state == StateLoaded || s.state == StatePaused {
		s.state = StatePlaying
	}
}

// Pause suspends the session. No timer runs while paused; the tracker simply
// ignores everything until the next Play.
func (s *Session) Pause() {
	if s.state == StatePlaying {
		s.state = StatePaused
	}
}

// Tick consumes one raw playback-time update. High-frequency and cheap: a
// local write happens only when the whole-second boundary changes, a remote
// write only at the periodic playback-time cadence.
func (s *Session) Tick(ctx context.Context, positionSeconds float64) {
	if s.state != StatePlaying {
		return
	}
	if positionSeconds < 0 {
		return
	}

	delta := positionSeconds - s.position
	if delta > 0 && delta <= maxTickStep {
		s.watchTime += delta
		s.sessionPlayback += delta
	}
	s.position = positionSeconds

	if p := progress.PercentAt(s.position, s.duration); p > s.displayPercent {
		s.displayPercent = p
	}
	s.dirty = true

	if whole := int(math.Floor(s.position)); whole != s.lastWholeSec {
		s.lastWholeSec = whole
		s.writeLocal(ctx)
	}

	s.maybeSignalComplete()

	if s.sessionPlayback >= s.nextRemoteAt {
		s.nextRemoteAt += s.t.interval
		s.flushRemote(ctx)
	}
}

// End closes the session: one final local write and an unconditional remote
// flush of the last known values. Idempotent.
func (s *Session) End(ctx context.Context) {
	if s.state == StateEnded {
		return
	}
	s.maybeSignalComplete()
	s.writeLocal(ctx)
	s.flushRemote(ctx)
	s.state = StateEnded
}

// HasUnflushed reports whether progress was recorded since the last
// successful remote write.
func (s *Session) HasUnflushed() bool { return s.dirty }

// Snapshot is the session's current view of the module record.
func (s *Session) Snapshot() progress.ProgressRecord {
	return progress.ProgressRecord{
		Percent:             s.displayPercent,
		WatchTimeSeconds:    s.watchTime,
		LastPositionSeconds: s.position,
		LastUpdatedAt:       s.t.now(),
	}
}

func (s *Session) maybeSignalComplete() {
	if s.signaled || s.alreadyComplete {
		return
	}
	if !progress.Complete(s.kind, s.displayPercent) {
		return
	}
	s.signaled = true
	if s.onComplete != nil {
		s.onComplete(s.moduleIndex)
	}
}

func (s *Session) writeLocal(ctx context.Context) {
	if s.t.local == nil {
		return
	}
	err := s.t.local.Put(ctx, s.userID, s.courseID, s.moduleIndex, progress.CachedRecord{
		Record:   s.Snapshot(),
		SyncedAt: s.syncedAt,
	})
	if err != nil {
		s.t.log.Warn("tracker: local write failed",
			zap.String("session_id", s.id),
			zap.Int("module_index", s.moduleIndex),
			zap.Error(err))
	}
}

func (s *Session) flushRemote(ctx context.Context) {
	if s.t.remote == nil {
		return
	}
	sample := progress.Sample{
		UserID:              s.userID,
		CourseID:            s.courseID,
		ModuleIndex:         s.moduleIndex,
		Kind:                s.kind,
		Percent:             s.displayPercent,
		WatchTimeSeconds:    s.watchTime,
		LastPositionSeconds: s.position,
	}
	if err := s.t.remote.Submit(ctx, sample); err != nil {
		// Dropped, not retried: the next periodic write supersedes it.
		s.t.log.Warn("tracker: remote write failed",
			zap.String("session_id", s.id),
			zap.Int("module_index", s.moduleIndex),
			zap.Error(err))
		return
	}
	s.syncedAt = s.t.now()
	s.dirty = false
	// Refresh the cache entry so its sync marker matches the remote write.
	s.writeLocal(ctx)
}
