package main

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/studyhub/internal/platform/analytics"
	"github.com/example/studyhub/internal/platform/auth"
	"github.com/example/studyhub/internal/platform/config"
	"github.com/example/studyhub/internal/platform/db"
	"github.com/example/studyhub/internal/platform/httpserver"
	"github.com/example/studyhub/internal/platform/logging"
	"github.com/example/studyhub/internal/platform/natsconn"
	"github.com/example/studyhub/internal/platform/run"
	"github.com/example/studyhub/internal/platform/signing"
	progressconfig "github.com/example/studyhub/services/progress/internal/config"
	"github.com/example/studyhub/services/progress/internal/handlers"
	progressstore "github.com/example/studyhub/services/progress/internal/store"
	"github.com/example/studyhub/services/progress/internal/worker"
)

func main() {
	config.LoadDotenv()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	svcCfg, err := progressconfig.Load()
	if err != nil {
		log.Error("progress config", zap.Error(err))
		run.Exit(1)
	}

	pool, err := db.Open(context.Background(), svcCfg.DatabaseURL)
	if err != nil {
		log.Error("db open", zap.Error(err))
		run.Exit(1)
	}
	defer pool.Close()

	if err := progressstore.Migrate(context.Background(), pool); err != nil {
		log.Error("migrate", zap.Error(err))
		run.Exit(1)
	}

	progressRepo := progressstore.NewPostgresProgressRepository(pool)
	courseRepo := progressstore.NewPostgresCourseRepository(pool)

	var js nats.JetStreamContext
	nc, err := natsconn.Connect(natsconn.Options{URL: svcCfg.NATSURL})
	if err != nil {
		log.Warn("nats unavailable, samples and analytics disabled", zap.Error(err))
	} else {
		defer nc.Close()
		if js, err = nc.JetStream(); err != nil {
			log.Warn("jetstream unavailable", zap.Error(err))
		}
	}
	events := analytics.New(js, log)

	sign := handlers.CourseSigning{Gateway: svcCfg.ContentGatewayURL, TTL: svcCfg.SignedURLTTL}
	if svcCfg.ContentSigningSecret != "" {
		sign.Signer = signing.New(svcCfg.ContentSigningSecret)
	} else {
		log.Warn("CONTENT_SIGNING_SECRET not set, serving raw content URLs")
	}

	verifier := auth.JWTVerifier{Secret: []byte(svcCfg.JWTSecret)}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func() error { return pool.Ping(context.Background()) },
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Get("/v1/progress/{user_id}/{course_id}", handlers.ListProgress(progressRepo, log))
		r.Get("/v1/progress/{user_id}/{course_id}/{module_index}", handlers.GetModuleProgress(progressRepo, log))
		r.Post("/v1/progress", handlers.SubmitProgress(progressRepo, courseRepo, events, log))
		r.Get("/v1/courses/{course_id}", handlers.GetCourse(courseRepo, sign, log))
		r.Get("/v1/enrollments/{user_id}/{course_id}", handlers.GetEnrollment(courseRepo, log))
		r.With(auth.RequireTutor).Get("/v1/courses/{course_id}/rollup", handlers.CourseRollup(progressRepo, log))
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		if nc != nil {
			worker.StartSampleConsumer(ctx, nc, pool, log)
		}
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}
