package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"vidsafe/config"
	"vidsafe/events"
	"vidsafe/media"
	"vidsafe/pipeline"
	"vidsafe/stream"
)

var log = logrus.NewEntry(logrus.StandardLogger())
var store *sessions.CookieStore

func Init(logger *logrus.Logger, cfg *config.Config) error {
	log = logger.WithFields(logrus.Fields{
		"component": "handlers",
	})

	if len(cfg.SessionAuthKey) < 16 {
		return fmt.Errorf("session auth key must be at least 16 bytes")
	}
	store = sessions.NewCookieStore([]byte(cfg.SessionAuthKey))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60, // seconds
		HttpOnly: true,
		Secure:   cfg.Secure,
	}

	return nil
}

func Fini() {}

// Processor schedules and cancels pipeline runs.
type Processor interface {
	Submit(ctx context.Context, id string) (*pipeline.Handle, error)
	Cancel(id string) (done <-chan struct{}, ok bool)
}

// Versioner reports the version of an external tool.
type Versioner interface {
	Version(ctx context.Context) (string, error)
}

type Deps struct {
	DB        *gorm.DB
	Videos    media.Store
	Runner    Processor
	Broker    *events.Broker
	Streamer  *stream.Server
	Inspector Versioner

	UploadDir      string
	MaxUploadBytes int64
}

// API holds the collaborators shared by the HTTP handlers.
type API struct {
	Deps

	// how long DELETE waits for an in-flight run to stop
	cancelWait time.Duration
}

func New(deps Deps) *API {
	return &API{Deps: deps, cancelWait: 10 * time.Second}
}
