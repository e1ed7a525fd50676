package tracker

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/example/studyhub/internal/player/progress"
)

type slowRemote struct {
	mu      sync.Mutex
	samples []progress.Sample
}

func (r *slowRemote) Submit(_ context.Context, s progress.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	return nil
}

func (r *slowRemote) all() []progress.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Sample(nil), r.samples...)
}

func TestAsyncWriterPreservesOrder(t *testing.T) {
	inner := &slowRemote{}
	w := NewAsyncWriter(inner, zap.NewNop(), 32)

	for i := 0; i < 20; i++ {
		if err := w.Submit(context.Background(), progress.Sample{ModuleIndex: 0, Percent: i}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	w.Close()

	got := inner.all()
	if len(got) != 20 {
		t.Fatalf("delivered = %d, want 20", len(got))
	}
	for i, s := range got {
		if s.Percent != i {
			t.Fatalf("sample %d has percent %d, order broken", i, s.Percent)
		}
	}
}

func TestAsyncWriterCloseDrains(t *testing.T) {
	inner := &slowRemote{}
	w := NewAsyncWriter(inner, zap.NewNop(), 8)

	_ = w.Submit(context.Background(), progress.Sample{Percent: 42})
	w.Close()
	w.Close() // safe to call twice

	got := inner.all()
	if len(got) != 1 || got[0].Percent != 42 {
		t.Fatalf("drained samples = %+v", got)
	}
}
