package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"vidsafe/config"
	"vidsafe/database"
	"vidsafe/events"
	"vidsafe/ffmpeg"
	"vidsafe/handlers"
	"vidsafe/media"
	"vidsafe/pipeline"
	"vidsafe/sensitivity"
	"vidsafe/stream"
	"vidsafe/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// the logger's level comes from the config
		initLogger("info")
		log.Fatalln(err)
	}

	initLogger(cfg.LogLevel)

	log.Infof("GitSHA: %s", config.GetGitSHA())
	log.Infof("BuildDate: %s", config.GetBuildDate())

	ffmpeg.Init(log)
	if err := handlers.Init(log, cfg); err != nil {
		log.Fatalln(err)
	}
	defer handlers.Fini()

	if err := os.MkdirAll(cfg.UploadDir(), 0700); err != nil {
		log.Panicf("failed to create upload dir %s", cfg.UploadDir())
	}

	db, err := database.Open(cfg.DatabasePath())
	if err != nil {
		log.Panicln(err)
	}
	defer database.Close(db)

	// Migrate the schema
	videos := media.NewGormStore(db, log)
	if err := videos.Migrate(); err != nil {
		log.Panicf("failed to migrate videos: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}); err != nil {
		log.Panicf("failed to migrate users: %v", err)
	}

	created, err := users.EnsureAdmin(db, cfg.AdminInitialPassword)
	if err != nil {
		log.Panicf("failed to create admin user: %v", err)
	} else if created {
		log.Infof("created %q account", users.AdminUsername)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go database.PeriodicVacuum(ctx, db, time.Hour, log)

	broker := events.NewBroker(log)
	inspector := ffmpeg.NewInspector(cfg.FfprobePath)
	scorer := sensitivity.NewHeuristic(sensitivity.WithSleep(sensitivity.Sleep, cfg.ScoreDelay))
	pool := pipeline.NewPool(cfg.Workers, cfg.QueueSize, log)
	runner := pipeline.NewRunner(videos, inspector, scorer, broker, pool, log)
	defer runner.Shutdown()

	// Resubmitting pending videos can wait on a full queue; serve meanwhile.
	go func() {
		if err := runner.Recover(ctx); err != nil {
			log.Errorf("startup recovery: %v", err)
		}
	}()

	api := handlers.New(handlers.Deps{
		DB:             db,
		Videos:         videos,
		Runner:         runner,
		Broker:         broker,
		Streamer:       stream.NewServer(log),
		Inspector:      inspector,
		UploadDir:      cfg.UploadDir(),
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	api.Register(e)

	go func() {
		if err := e.Start(cfg.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorln(err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Infoln("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorln(err)
	}
}
