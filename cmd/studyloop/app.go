package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/conorfennell/studyloop/internal/auth"
	"github.com/conorfennell/studyloop/internal/cache"
	"github.com/conorfennell/studyloop/internal/config"
	"github.com/conorfennell/studyloop/internal/dashboard"
	"github.com/conorfennell/studyloop/internal/documents"
	"github.com/conorfennell/studyloop/internal/fsrs"
	"github.com/conorfennell/studyloop/internal/logger"
	"github.com/conorfennell/studyloop/internal/mastery"
	"github.com/conorfennell/studyloop/internal/objectstore"
	"github.com/conorfennell/studyloop/internal/processing"
	"github.com/conorfennell/studyloop/internal/quiz"
	"github.com/conorfennell/studyloop/internal/realtime"
	"github.com/conorfennell/studyloop/internal/storage"
	"github.com/conorfennell/studyloop/internal/study"
)

// app is the wired service graph shared by the commands.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	db        *storage.DB
	objects   objectstore.Store
	cache     cache.Cache
	hub       *realtime.Hub
	client    *processing.Client
	auth      *auth.Service
	documents *documents.Service
	quizzes   *quiz.Service
	study     *study.Service
	dashboard *dashboard.Service
}

func reviewPolicy(name string) (mastery.ReviewPolicy, error) {
	switch name {
	case "", "exponential":
		return mastery.DefaultPolicy(), nil
	case "fixed":
		return mastery.FixedInterval{Every: mastery.DefaultPolicy().Base}, nil
	case "fsrs":
		return fsrs.NewPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown review policy %q", name)
	}
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if a.db, err = storage.Open(cfg.Database.Path); err != nil {
		return nil, err
	}
	log.Info("Database opened", "path", cfg.Database.Path)

	a.objects, err = objectstore.New(ctx, objectstore.Options{
		Driver:    cfg.Storage.Driver,
		LocalDir:  cfg.Storage.LocalDir,
		GCSBucket: cfg.Storage.GCSBucket,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open object storage: %w", err)
	}

	switch cfg.Cache.Driver {
	case "redis":
		if a.cache, err = cache.NewRedis(ctx, cfg.Redis.Addr, cfg.Cache.TTL); err != nil {
			return nil, err
		}
	default:
		a.cache = cache.NewMemory(cfg.Cache.TTL)
	}

	var bus realtime.Bus
	if cfg.Realtime.Driver == "redis" {
		if bus, err = realtime.NewRedisBus(ctx, log, cfg.Redis.Addr, cfg.Redis.Channel); err != nil {
			return nil, err
		}
	}
	a.hub = realtime.NewHub(log, bus)
	a.db.SetPublisher(a.hub)

	a.client = processing.New(processing.Options{
		BaseURL:    cfg.Processing.BaseURL,
		Timeout:    cfg.Processing.Timeout,
		MaxRetries: cfg.Processing.MaxRetries,
		BaseDelay:  cfg.Processing.BaseDelay,
		MaxDelay:   cfg.Processing.MaxDelay,
		Logger:     log,
	})

	policy, err := reviewPolicy(cfg.Study.ReviewPolicy)
	if err != nil {
		return nil, err
	}

	a.auth = auth.NewService(a.db, nil, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, log)
	a.documents = documents.NewService(a.db, a.objects, a.client, a.cache, log)
	a.quizzes = quiz.NewService(a.db, a.client, a.cache, log)
	a.study = study.NewService(a.db, mastery.NewTracker(policy), a.cache, log)
	a.dashboard = dashboard.NewService(a.db, a.cache, log)
	return a, nil
}

func (a *app) close() {
	var errs []error
	if a.hub != nil {
		errs = append(errs, a.hub.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.objects != nil {
		errs = append(errs, a.objects.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("Shutdown left resources open", "error", err)
	}
}
