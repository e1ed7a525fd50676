package courseapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/example/studyhub/internal/player/progress"
)

// SubjectSamples is the JetStream subject the progress service consumes.
const SubjectSamples = "progress.samples"

// SampleEvent is the wire payload for one async progress sample.
type SampleEvent struct {
	EventID             string  `json:"event_id"`
	UserID              string  `json:"user_id"`
	CourseID            string  `json:"course_id"`
	ModuleIndex         int     `json:"module_index"`
	ModuleKind          string  `json:"module_kind"`
	Percent             int     `json:"percent"`
	WatchTimeSeconds    float64 `json:"watch_time_seconds"`
	LastPositionSeconds float64 `json:"last_position_seconds"`
	ClientTsMs          int64   `json:"client_ts_ms"`
	CreatedAt           string  `json:"created_at"`
}

// SampleWriter publishes progress samples to JetStream instead of POSTing
// them. Naturally non-blocking; per-subject publish order is preserved, which
// keeps writes for a single module in issue order.
type SampleWriter struct {
	js nats.JetStreamContext
}

func NewSampleWriter(js nats.JetStreamContext) *SampleWriter {
	return &SampleWriter{js: js}
}

func (w *SampleWriter) Submit(_ context.Context, s progress.Sample) error {
	now := time.Now().UTC()
	data, err := json.Marshal(SampleEvent{
		EventID:             uuid.NewString(),
		UserID:              s.UserID,
		CourseID:            s.CourseID,
		ModuleIndex:         s.ModuleIndex,
		ModuleKind:          string(s.Kind),
		Percent:             s.Percent,
		WatchTimeSeconds:    s.WatchTimeSeconds,
		LastPositionSeconds: s.LastPositionSeconds,
		ClientTsMs:          now.UnixMilli(),
		CreatedAt:           now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	_, err = w.js.PublishAsync(SubjectSamples, data)
	return err
}
