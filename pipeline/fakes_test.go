package pipeline

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"vidsafe/events"
	"vidsafe/media"
	"vidsafe/sensitivity"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// memStore is an in-memory media.Store that records every patch it applies.
type memStore struct {
	mu      sync.Mutex
	videos  map[string]media.Video
	patches []media.Patch

	// saveErr, when set, is consulted before every Save.
	saveErr func(id string, patch media.Patch) error
}

func newMemStore(videos ...media.Video) *memStore {
	s := &memStore{videos: make(map[string]media.Video)}
	for _, v := range videos {
		s.videos[v.ID] = v
	}
	return s
}

func (s *memStore) Create(_ context.Context, video *media.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[video.ID] = *video
	return nil
}

func (s *memStore) FindByID(_ context.Context, id string) (*media.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, media.ErrNotFound
	}
	return &v, nil
}

func (s *memStore) Save(_ context.Context, id string, patch media.Patch) error {
	if s.saveErr != nil {
		if err := s.saveErr(id, patch); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return media.ErrNotFound
	}
	patch.Apply(&v)
	s.videos[id] = v
	s.patches = append(s.patches, patch)
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[id]; !ok {
		return media.ErrNotFound
	}
	delete(s.videos, id)
	return nil
}

func (s *memStore) List(_ context.Context, _ media.Filter) ([]media.Video, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []media.Video
	for _, v := range s.videos {
		out = append(out, v)
	}
	return out, int64(len(out)), nil
}

func (s *memStore) ListByStatus(_ context.Context, status media.Status) ([]media.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []media.Video
	for _, v := range s.videos {
		if v.Status == status {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *memStore) UpdateDetails(_ context.Context, id string, title, description *string) error {
	return nil
}

func (s *memStore) get(id string) (media.Video, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	return v, ok
}

// statuses returns the sequence of status values written.
func (s *memStore) statuses() []media.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []media.Status
	for _, p := range s.patches {
		if p.Status != nil {
			out = append(out, *p.Status)
		}
	}
	return out
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ev events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *recordingBus) all() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Event(nil), b.events...)
}

func (b *recordingBus) progress() []int {
	var out []int
	for _, ev := range b.all() {
		out = append(out, ev.Progress)
	}
	return out
}

func (b *recordingBus) errorEvents() []events.Event {
	var out []events.Event
	for _, ev := range b.all() {
		if ev.Error {
			out = append(out, ev)
		}
	}
	return out
}

type mockInspector struct {
	mock.Mock
}

func (m *mockInspector) Probe(ctx context.Context, path string) (float64, error) {
	args := m.Called(path)
	return args.Get(0).(float64), args.Error(1)
}

type mockScorer struct {
	mock.Mock
}

func (m *mockScorer) Score(ctx context.Context, video *media.Video) (sensitivity.Result, error) {
	args := m.Called(video.ID)
	return args.Get(0).(sensitivity.Result), args.Error(1)
}

// blockingInspector waits for release or for the run to be cancelled.
type blockingInspector struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingInspector() *blockingInspector {
	return &blockingInspector{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingInspector) Probe(ctx context.Context, _ string) (float64, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return 10, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

func fixedScorer(v float64) sensitivity.Scorer {
	return sensitivity.NewHeuristic(
		sensitivity.WithSource(fixedSource(v)),
		sensitivity.WithSleep(sensitivity.NoSleep, 0),
	)
}

var epoch = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func uploading(id string) media.Video {
	return media.Video{
		ID:                id,
		Filepath:          "/data/uploads/" + id + ".mp4",
		Filesize:          1000,
		MimeType:          "video/mp4",
		Status:            media.StatusUploading,
		SensitivityStatus: media.SensitivityPending,
	}
}
