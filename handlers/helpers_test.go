package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vidsafe/config"
	"vidsafe/events"
	"vidsafe/media"
	"vidsafe/pipeline"
	"vidsafe/stream"
	"vidsafe/users"
)

// a minimal ISO base media header that sniffs as video/mp4
var mp4Header = []byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isomiso2avc1mp41")

const testPassword = "correct horse"

type fakeRunner struct {
	mu        sync.Mutex
	submitted []string
	cancelled []string
	active    map[string]chan struct{}

	// submitErr, when set, is returned by every Submit.
	submitErr error
	deadlines []bool
}

func (r *fakeRunner) Submit(ctx context.Context, id string) (*pipeline.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, id)
	_, ok := ctx.Deadline()
	r.deadlines = append(r.deadlines, ok)
	return nil, r.submitErr
}

// Cancel stops a run registered with start immediately.
func (r *fakeRunner) Cancel(id string) (<-chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	done, ok := r.active[id]
	if !ok {
		return nil, false
	}
	r.cancelled = append(r.cancelled, id)
	delete(r.active, id)
	close(done)
	return done, true
}

func (r *fakeRunner) start(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		r.active = make(map[string]chan struct{})
	}
	r.active[id] = make(chan struct{})
}

func (r *fakeRunner) submissions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.submitted...)
}

type fakeVersioner string

func (v fakeVersioner) Version(context.Context) (string, error) { return string(v), nil }

type testEnv struct {
	e      *echo.Echo
	db     *gorm.DB
	videos *media.GormStore
	runner *fakeRunner
	broker *events.Broker
	dir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)
	require.NoError(t, Init(log, &config.Config{SessionAuthKey: "0123456789abcdef0123456789abcdef"}))

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&users.User{}))

	videos := media.NewGormStore(db, log)
	require.NoError(t, videos.Migrate())

	env := &testEnv{
		e:      echo.New(),
		db:     db,
		videos: videos,
		runner: &fakeRunner{},
		broker: events.NewBroker(log),
		dir:    t.TempDir(),
	}
	api := New(Deps{
		DB:             db,
		Videos:         videos,
		Runner:         env.runner,
		Broker:         env.broker,
		Streamer:       stream.NewServer(log),
		Inspector:      fakeVersioner("ffprobe version 6.1.1"),
		UploadDir:      env.dir,
		MaxUploadBytes: 1 << 20,
	})
	api.Register(env.e)
	return env
}

func (env *testEnv) addUser(t *testing.T, username string, role users.Role, org string) *users.User {
	t.Helper()
	user, err := users.Create(env.db, username, testPassword, role, org)
	require.NoError(t, err)
	return user
}

// login returns the session cookie for username.
func (env *testEnv) login(t *testing.T, username string) *http.Cookie {
	t.Helper()
	form := url.Values{"username": {username}, "password": {testPassword}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, c := range rec.Result().Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	t.Fatal("login did not set a session cookie")
	return nil
}

func (env *testEnv) do(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

// addVideo stores a record owned by owner, with content written to disk.
func (env *testEnv) addVideo(t *testing.T, id string, owner *users.User, status media.Status, content []byte) *media.Video {
	t.Helper()
	path := filepath.Join(env.dir, id+".mp4")
	require.NoError(t, os.WriteFile(path, content, 0600))
	video := &media.Video{
		ID:                id,
		Title:             id,
		Filename:          id + ".mp4",
		Filepath:          path,
		Filesize:          int64(len(content)),
		MimeType:          "video/mp4",
		UploadedBy:        owner.ID,
		Organization:      owner.Organization,
		Status:            status,
		SensitivityStatus: media.SensitivityPending,
	}
	require.NoError(t, env.videos.Create(context.Background(), video))
	return video
}
