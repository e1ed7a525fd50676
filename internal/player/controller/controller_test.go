package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/studyhub/internal/player/progress"
	"github.com/example/studyhub/internal/player/tracker"
)

type stubRemote struct {
	records map[int]progress.ProgressRecord
	err     error
	samples []progress.Sample
}

func (s *stubRemote) ListProgress(_ context.Context, _, _ string) (map[int]progress.ProgressRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func (s *stubRemote) Submit(_ context.Context, sm progress.Sample) error {
	s.samples = append(s.samples, sm)
	return nil
}

type stubEnrollment struct {
	enrolled bool
	err      error
	calls    int
}

func (s *stubEnrollment) IsEnrolled(_ context.Context, _, _ string) (bool, error) {
	s.calls++
	return s.enrolled, s.err
}

type recordingNotifier struct {
	completed []int
	unlocked  []bool
	warnings  []string
}

func (n *recordingNotifier) ModuleCompleted(i int, nextUnlocked bool) {
	n.completed = append(n.completed, i)
	n.unlocked = append(n.unlocked, nextUnlocked)
}

func (n *recordingNotifier) Warning(msg string) { n.warnings = append(n.warnings, msg) }

var courseModules = []progress.ModuleDescriptor{
	{Order: 0, Kind: progress.KindVideo, DurationHint: 100},
	{Order: 1, Kind: progress.KindDocument},
	{Order: 2, Kind: progress.KindVideo, DurationHint: 100},
}

func newTestController(t *testing.T, remote *stubRemote, notifier Notifier, enrollment EnrollmentChecker) *Controller {
	t.Helper()
	tr := tracker.New(tracker.Config{
		Remote: remote,
		Log:    zap.NewNop(),
		Now:    func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) },
	})
	c := New(Config{
		UserID:     "u1",
		CourseID:   "c1",
		Modules:    courseModules,
		Reconciler: progress.NewReconciler(remote, nil, zap.NewNop()),
		Tracker:    tr,
		Enrollment: enrollment,
		Notifier:   notifier,
		Log:        zap.NewNop(),
	})
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return c
}

func TestLoadRejectsUnenrolledUser(t *testing.T) {
	enrollment := &stubEnrollment{enrolled: false}
	c := New(Config{
		UserID: "u1", CourseID: "c1", Modules: courseModules,
		Reconciler: progress.NewReconciler(&stubRemote{}, nil, zap.NewNop()),
		Tracker:    tracker.New(tracker.Config{Log: zap.NewNop()}),
		Enrollment: enrollment,
	})
	if err := c.Load(context.Background()); !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("err = %v, want ErrNotEnrolled", err)
	}
	if enrollment.calls != 1 {
		t.Fatalf("enrollment checks = %d, want 1", enrollment.calls)
	}
}

func TestSelectLockedModuleRejectedWithoutStateChange(t *testing.T) {
	notifier := &recordingNotifier{}
	c := newTestController(t, &stubRemote{}, notifier, nil)

	before := c.State()
	if _, err := c.SelectModule(context.Background(), 1); !errors.Is(err, ErrModuleLocked) {
		t.Fatalf("err = %v, want ErrModuleLocked", err)
	}
	if len(notifier.warnings) != 1 {
		t.Fatalf("warnings = %v, want one", notifier.warnings)
	}
	if c.ActiveSession() != nil {
		t.Fatal("rejected selection started a session")
	}
	after := c.State()
	if len(after.CompletedModules) != len(before.CompletedModules) || after.ProgressPercent != before.ProgressPercent {
		t.Fatal("rejected selection changed state")
	}
}

func TestSelectInvalidModule(t *testing.T) {
	c := newTestController(t, &stubRemote{}, nil, nil)
	if _, err := c.SelectModule(context.Background(), 7); !errors.Is(err, ErrInvalidModule) {
		t.Fatalf("err = %v, want ErrInvalidModule", err)
	}
	if _, err := c.SelectModule(context.Background(), -1); !errors.Is(err, ErrInvalidModule) {
		t.Fatalf("err = %v, want ErrInvalidModule", err)
	}
}

func TestCompletingModuleUnlocksNext(t *testing.T) {
	notifier := &recordingNotifier{}
	remote := &stubRemote{}
	c := newTestController(t, remote, notifier, nil)

	s, err := c.SelectModule(context.Background(), 0)
	if err != nil {
		t.Fatalf("select 0: %v", err)
	}
	s.Play()
	for pos := 0.5; pos <= 95; pos += 0.5 {
		s.Tick(context.Background(), pos)
	}

	if len(notifier.completed) != 1 || notifier.completed[0] != 0 {
		t.Fatalf("completed notifications = %v, want [0]", notifier.completed)
	}
	if !notifier.unlocked[0] {
		t.Fatal("completing module 0 should report module 1 as newly unlocked")
	}
	if !c.CanAccess(1) {
		t.Fatal("module 1 should be unlocked after completing 0")
	}
	if c.CanAccess(2) {
		t.Fatal("module 2 must stay locked behind the document")
	}

	// Switching to the unlocked document flushes and stops the video
	// session first.
	doc, err := c.SelectModule(context.Background(), 1)
	if err != nil {
		t.Fatalf("select 1: %v", err)
	}
	if s.State() != tracker.StateEnded {
		t.Fatal("outgoing session not ended on module switch")
	}
	if doc.State() != tracker.StateEnded {
		t.Fatal("document session should end immediately")
	}
	if !c.State().Completed(1) {
		t.Fatal("document open should complete it")
	}
	if !c.CanAccess(2) {
		t.Fatal("module 2 should unlock after the document")
	}
	if len(notifier.unlocked) != 2 || !notifier.unlocked[1] {
		t.Fatalf("unlock flags = %v, want document completion to unlock module 2", notifier.unlocked)
	}
}

func TestNoUnlockClaimWhenNextModuleAlreadyFinished(t *testing.T) {
	// Remote data has the document finished but not its predecessor, so
	// completing module 0 regains access to module 1 without unlocking
	// anything the user has not already been through.
	notifier := &recordingNotifier{}
	remote := &stubRemote{records: map[int]progress.ProgressRecord{
		1: {Percent: 100},
	}}
	c := newTestController(t, remote, notifier, nil)

	s, err := c.SelectModule(context.Background(), 0)
	if err != nil {
		t.Fatalf("select 0: %v", err)
	}
	s.Play()
	for pos := 0.5; pos <= 95; pos += 0.5 {
		s.Tick(context.Background(), pos)
	}

	if len(notifier.completed) != 1 || notifier.completed[0] != 0 {
		t.Fatalf("completed notifications = %v, want [0]", notifier.completed)
	}
	if notifier.unlocked[0] {
		t.Fatal("already finished next module reported as newly unlocked")
	}
}

func TestNoUnlockClaimOnLastModule(t *testing.T) {
	notifier := &recordingNotifier{}
	remote := &stubRemote{records: map[int]progress.ProgressRecord{
		0: {Percent: 100},
		1: {Percent: 100},
	}}
	c := newTestController(t, remote, notifier, nil)

	s, err := c.SelectModule(context.Background(), 2)
	if err != nil {
		t.Fatalf("select 2: %v", err)
	}
	s.Play()
	for pos := 0.5; pos <= 95; pos += 0.5 {
		s.Tick(context.Background(), pos)
	}

	if len(notifier.completed) != 1 || notifier.completed[0] != 2 {
		t.Fatalf("completed notifications = %v, want [2]", notifier.completed)
	}
	if notifier.unlocked[0] {
		t.Fatal("last module has nothing to unlock")
	}
}

func TestNoRepeatNotificationForCompletedModule(t *testing.T) {
	notifier := &recordingNotifier{}
	remote := &stubRemote{records: map[int]progress.ProgressRecord{
		0: {Percent: 100, LastPositionSeconds: 100},
	}}
	c := newTestController(t, remote, notifier, nil)

	s, err := c.SelectModule(context.Background(), 0)
	if err != nil {
		t.Fatalf("select 0: %v", err)
	}
	s.Play()
	for pos := 0.5; pos <= 100; pos += 0.5 {
		s.Tick(context.Background(), pos)
	}
	s.End(context.Background())

	if len(notifier.completed) != 0 {
		t.Fatalf("rewatch notified completion: %v", notifier.completed)
	}
}

func TestResumeUsesMergedPosition(t *testing.T) {
	remote := &stubRemote{records: map[int]progress.ProgressRecord{
		0: {Percent: 45, LastPositionSeconds: 45.5},
	}}
	c := newTestController(t, remote, nil, nil)

	s, err := c.SelectModule(context.Background(), 0)
	if err != nil {
		t.Fatalf("select 0: %v", err)
	}
	if s.Position() != 45.5 {
		t.Fatalf("resume position = %v, want 45.5", s.Position())
	}
	if s.DisplayPercent() != 45 {
		t.Fatalf("resume percent = %d, want 45", s.DisplayPercent())
	}
}

func TestCloseFlushesActiveSession(t *testing.T) {
	remote := &stubRemote{}
	c := newTestController(t, remote, nil, nil)

	s, _ := c.SelectModule(context.Background(), 0)
	s.Play()
	s.Tick(context.Background(), 0.5)
	s.Tick(context.Background(), 1.2)

	c.Close(context.Background())
	if s.State() != tracker.StateEnded {
		t.Fatal("close did not end the session")
	}
	if len(remote.samples) == 0 {
		t.Fatal("close did not flush progress remotely")
	}
	last := remote.samples[len(remote.samples)-1]
	if last.LastPositionSeconds != 1.2 {
		t.Fatalf("final flush position = %v, want 1.2", last.LastPositionSeconds)
	}
}
