// Package controller orchestrates the playback view: reconciliation on load,
// unlock gating on module selection, and tracker session handoff.
package controller

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/studyhub/internal/platform/analytics"
	"github.com/example/studyhub/internal/player/progress"
	"github.com/example/studyhub/internal/player/tracker"
)

var (
	// ErrNotEnrolled means the enrollment check rejected the user before the
	// player engaged.
	ErrNotEnrolled = errors.New("player: user is not enrolled in this course")
	// ErrModuleLocked is a rejected operation, not a failure: the module's
	// predecessor is not complete yet.
	ErrModuleLocked = errors.New("player: module is locked")
	// ErrInvalidModule covers navigation races after course metadata changed.
	ErrInvalidModule = errors.New("player: no such module")
)

// Notifier surfaces user-facing messages. All methods are called from the
// player's own callback stream.
type Notifier interface {
	// ModuleCompleted fires once when a module first crosses its threshold.
	// nextUnlocked is true when this completion unlocked a later module.
	ModuleCompleted(moduleIndex int, nextUnlocked bool)
	Warning(message string)
}

// EnrollmentChecker is consulted once in Load, before the core engages.
type EnrollmentChecker interface {
	IsEnrolled(ctx context.Context, userID, courseID string) (bool, error)
}

type Config struct {
	UserID   string
	CourseID string
	Modules  []progress.ModuleDescriptor

	Reconciler *progress.Reconciler
	Tracker    *tracker.Tracker
	Enrollment EnrollmentChecker    // optional
	Analytics  *analytics.Publisher // nil-safe
	Notifier   Notifier             // optional
	Log        *zap.Logger
}

type Controller struct {
	cfg Config
	log *zap.Logger

	state   progress.CourseProgressState
	records map[int]progress.ProgressRecord

	active      *tracker.Session
	activeIndex int
}

func New(cfg Config) *Controller {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Controller{
		cfg:         cfg,
		log:         cfg.Log,
		state:       progress.CourseProgressState{CompletedModules: map[int]struct{}{}},
		records:     map[int]progress.ProgressRecord{},
		activeIndex: -1,
	}
}

// Load checks enrollment once, then reconciles local and remote progress
// into the authoritative view. A degraded (local-only) reconciliation is
// still a successful load.
func (c *Controller) Load(ctx context.Context) error {
	if c.cfg.Enrollment != nil {
		ok, err := c.cfg.Enrollment.IsEnrolled(ctx, c.cfg.UserID, c.cfg.CourseID)
		if err != nil {
			return fmt.Errorf("enrollment check: %w", err)
		}
		if !ok {
			return ErrNotEnrolled
		}
	}
	c.state, c.records = c.cfg.Reconciler.Load(ctx, c.cfg.UserID, c.cfg.CourseID, c.cfg.Modules)
	return nil
}

// State is the derived course progress, recomputed on every record change.
func (c *Controller) State() progress.CourseProgressState { return c.state }

// Record returns the merged record for one module.
func (c *Controller) Record(moduleIndex int) progress.ProgressRecord {
	return c.records[moduleIndex]
}

// CanAccess exposes the unlock gate for rendering lock icons.
func (c *Controller) CanAccess(moduleIndex int) bool {
	return progress.CanAccess(moduleIndex, c.state.CompletedModules)
}

// ActiveSession is the running tracker session, nil before the first select.
func (c *Controller) ActiveSession() *tracker.Session { return c.active }

// SelectModule switches the active module. Locked or unknown indices are
// rejected with a warning and leave every record untouched. Otherwise the
// outgoing session is flushed and stopped before the new one starts, so at
// most one session ever emits writes for this user and course.
func (c *Controller) SelectModule(ctx context.Context, moduleIndex int) (*tracker.Session, error) {
	if moduleIndex < 0 || moduleIndex >= len(c.cfg.Modules) {
		c.warn(fmt.Sprintf("That module is not available (module %d).", moduleIndex+1))
		return nil, ErrInvalidModule
	}
	if !progress.CanAccess(moduleIndex, c.state.CompletedModules) {
		c.warn(fmt.Sprintf("Please complete module %d first.", moduleIndex))
		return nil, ErrModuleLocked
	}

	c.teardown(ctx)

	mod := c.cfg.Modules[moduleIndex]
	merged := c.records[moduleIndex]
	session := c.cfg.Tracker.Start(ctx, tracker.SessionParams{
		UserID:          c.cfg.UserID,
		CourseID:        c.cfg.CourseID,
		ModuleIndex:     moduleIndex,
		Module:          mod,
		Resume:          merged,
		AlreadyComplete: c.state.Completed(moduleIndex),
		OnComplete:      c.onModuleComplete,
	})
	c.active = session
	c.activeIndex = moduleIndex

	c.cfg.Analytics.Publish(analytics.SubjectModuleWatched, "module_watched", c.cfg.UserID, map[string]any{
		"course_id":    c.cfg.CourseID,
		"module_index": moduleIndex,
		"module_kind":  string(mod.Kind),
	})

	// Document sessions end inside Start; fold their terminal write in.
	if session.State() == tracker.StateEnded {
		c.absorb(moduleIndex, session)
	}
	return session, nil
}

// Close ends any active session with a final flush. Call when the player
// navigates away.
func (c *Controller) Close(ctx context.Context) {
	c.teardown(ctx)
}

func (c *Controller) teardown(ctx context.Context) {
	if c.active == nil {
		return
	}
	if c.active.State() != tracker.StateEnded {
		c.active.End(ctx)
	}
	c.absorb(c.activeIndex, c.active)
	c.active = nil
	c.activeIndex = -1
}

// absorb folds a session's final snapshot into the in-memory record map and
// rederives course state.
func (c *Controller) absorb(moduleIndex int, s *tracker.Session) {
	c.records[moduleIndex] = s.Snapshot()
	c.state = progress.DeriveState(c.cfg.Modules, c.records)
}

func (c *Controller) onModuleComplete(moduleIndex int) {
	next := moduleIndex + 1
	nextWasReachable := next < len(c.cfg.Modules) &&
		(progress.CanAccess(next, c.state.CompletedModules) || c.state.Completed(next))

	if c.active != nil && c.activeIndex == moduleIndex {
		c.records[moduleIndex] = c.active.Snapshot()
	} else if rec := c.records[moduleIndex]; !progress.Complete(c.cfg.Modules[moduleIndex].Kind, rec.Percent) {
		// Document sessions complete inside Start, before the session is
		// registered as active.
		rec.Percent = 100
		c.records[moduleIndex] = rec
	}
	c.state = progress.DeriveState(c.cfg.Modules, c.records)

	// Unlocked means newly reachable: a next module the user could already
	// open, or had already finished, does not count.
	nextUnlocked := next < len(c.cfg.Modules) &&
		!nextWasReachable &&
		progress.CanAccess(next, c.state.CompletedModules)
	if c.cfg.Notifier != nil {
		c.cfg.Notifier.ModuleCompleted(moduleIndex, nextUnlocked)
	}

	props := map[string]any{
		"course_id":    c.cfg.CourseID,
		"module_index": moduleIndex,
	}
	c.cfg.Analytics.Publish(analytics.SubjectModuleCompleted, "module_completed", c.cfg.UserID, props)

	if len(c.state.CompletedModules) == len(c.cfg.Modules) && len(c.cfg.Modules) > 0 {
		c.cfg.Analytics.Publish(analytics.SubjectCourseCompleted, "course_completed", c.cfg.UserID, map[string]any{
			"course_id": c.cfg.CourseID,
		})
	}

	c.log.Info("module completed",
		zap.String("course_id", c.cfg.CourseID),
		zap.Int("module_index", moduleIndex),
		zap.Int("course_percent", c.state.ProgressPercent))
}

func (c *Controller) warn(msg string) {
	if c.cfg.Notifier != nil {
		c.cfg.Notifier.Warning(msg)
	}
	c.log.Warn("module selection rejected", zap.String("reason", msg))
}
