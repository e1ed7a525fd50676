// Package worker consumes playback samples published by players over NATS
// JetStream and folds them into the progress store.
package worker

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/studyhub/services/progress/internal/store"
)

const (
	sampleSubject = "progress.samples"
	durableName   = "progress_samples"
)

// SampleEvent is the payload players publish to progress.samples.
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

// StartSampleConsumer subscribes to progress.samples and applies idempotent
// batched upserts. Each batch is one transaction; event_id dedup via
// processed_events makes redelivery safe.
func StartSampleConsumer(ctx context.Context, nc *nats.Conn, pool *pgxpool.Pool, log *zap.Logger) {
	js, err := nc.JetStream()
	if err != nil {
		log.Error("sample consumer: jetstream", zap.Error(err))
		return
	}

	if _, err := js.AddStream(&nats.StreamConfig{
		Name:     "PROGRESS_SAMPLES",
		Subjects: []string{"progress.samples"},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	}); err != nil && err != nats.ErrStreamNameAlreadyInUse {
		log.Warn("sample consumer: add stream", zap.Error(err))
	}

	sub, err := js.PullSubscribe(sampleSubject, durableName)
	if err != nil {
		log.Error("sample consumer: subscribe", zap.Error(err))
		return
	}

	go func() {
		batchSize := envInt("WORKER_BATCH_SIZE", 100)
		batchInterval := envInt("WORKER_BATCH_INTERVAL_MS", 2000)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msgs, err := sub.Fetch(batchSize, nats.MaxWait(time.Duration(batchInterval)*time.Millisecond))
			if err != nil {
				if err == nats.ErrTimeout {
					continue
				}
				log.Warn("sample consumer: fetch", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}
			if len(msgs) == 0 {
				continue
			}

			if err := applyBatch(ctx, pool, msgs, log); err != nil {
				log.Warn("sample consumer: batch failed", zap.Error(err), zap.Int("size", len(msgs)))
				nakAll(msgs, log)
				continue
			}
			for _, m := range msgs {
				if err := m.Ack(); err != nil {
					log.Warn("sample consumer: ack", zap.Error(err))
				}
			}
		}
	}()
}

func applyBatch(ctx context.Context, pool *pgxpool.Pool, msgs []*nats.Msg, log *zap.Logger) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, m := range msgs {
		var ev SampleEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			// A poison message must not wedge the whole batch.
			log.Warn("sample consumer: invalid json, dropping", zap.Error(err))
			continue
		}

		ct, err := tx.Exec(ctx,
			`INSERT INTO processed_events (event_id, subject, created_at, payload)
			 VALUES ($1, $2, $3, $4) ON CONFLICT (event_id) DO NOTHING`,
			ev.EventID, sampleSubject, ev.CreatedAt, m.Data)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			// already processed
			continue
		}

		if _, _, err := store.ApplyUpsertTx(ctx, tx, sanitize(ev)); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// sanitize normalizes an event into a writable record. Out-of-range values
// are clamped rather than rejected: a nak'd batch would be redelivered with
// the same bad sample and never make progress.
func sanitize(ev SampleEvent) store.Record {
	rec := store.Record{
		UserID:              ev.UserID,
		CourseID:            ev.CourseID,
		ModuleIndex:         ev.ModuleIndex,
		ModuleKind:          ev.ModuleKind,
		Percent:             ev.Percent,
		WatchTimeSeconds:    ev.WatchTimeSeconds,
		LastPositionSeconds: ev.LastPositionSeconds,
	}
	if rec.Percent < 0 {
		rec.Percent = 0
	}
	if rec.Percent > 100 {
		rec.Percent = 100
	}
	if rec.WatchTimeSeconds < 0 {
		rec.WatchTimeSeconds = 0
	}
	if rec.LastPositionSeconds < 0 || rec.ModuleKind == store.KindDocument {
		rec.LastPositionSeconds = 0
	}
	return rec
}

func nakAll(msgs []*nats.Msg, log *zap.Logger) {
	for _, m := range msgs {
		if err := m.Nak(); err != nil {
			log.Warn("sample consumer: nak", zap.Error(err))
		}
	}
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
