package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"vidsafe/events"
	"vidsafe/media"
	"vidsafe/sensitivity"
)

var (
	ErrAlreadyRunning = errors.New("a pipeline run is already active for this video")
	ErrInvalidState   = errors.New("video is not awaiting processing")
)

// Progress checkpoints published by a run.
const (
	ProgressStarted  = 0
	ProgressMetadata = 30
	ProgressScored   = 70
	ProgressComplete = 100
)

// failureWriteTimeout bounds the Failed status write made after a run's own
// context has been cancelled.
const failureWriteTimeout = 5 * time.Second

// Inspector extracts the duration, in seconds, of a media file.
type Inspector interface {
	Probe(ctx context.Context, path string) (float64, error)
}

type activeRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner drives videos through Uploading -> Processing -> Completed|Failed.
// It is the only writer of the pipeline-owned fields of a video and allows
// at most one active run per video.
type Runner struct {
	store     media.Store
	inspector Inspector
	scorer    sensitivity.Scorer
	bus       events.Bus
	pool      *Pool
	now       func() time.Time
	log       *logrus.Entry

	ctx  context.Context
	stop context.CancelFunc

	mu     sync.Mutex
	active map[string]*activeRun
}

type RunnerOption func(*Runner)

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

func NewRunner(store media.Store, inspector Inspector, scorer sensitivity.Scorer, bus events.Bus, pool *Pool, logger *logrus.Logger, opts ...RunnerOption) *Runner {
	ctx, stop := context.WithCancel(context.Background())
	r := &Runner{
		store:     store,
		inspector: inspector,
		scorer:    scorer,
		bus:       bus,
		pool:      pool,
		now:       time.Now,
		log:       logger.WithField("component", "pipeline"),
		ctx:       ctx,
		stop:      stop,
		active:    make(map[string]*activeRun),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit schedules a run for id on the worker pool and returns without
// waiting for it. The returned handle reports the run's outcome.
func (r *Runner) Submit(ctx context.Context, id string) (*Handle, error) {
	runCtx, run, err := r.acquire(id)
	if err != nil {
		return nil, err
	}

	handle, err := r.pool.Submit(ctx, id, func() error {
		defer r.release(id, run)
		start := time.Now()
		err := r.execute(runCtx, id)
		observeRun(start, err)
		return err
	})
	if err != nil {
		r.release(id, run)
		return nil, fmt.Errorf("submit video %s: %w", id, err)
	}
	return handle, nil
}

// Run executes the pipeline for id on the calling goroutine.
func (r *Runner) Run(ctx context.Context, id string) error {
	runCtx, run, err := r.acquire(id)
	if err != nil {
		return err
	}
	defer r.release(id, run)
	if err := ctx.Err(); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, run.cancel)
	defer stop()
	start := time.Now()
	err = r.execute(runCtx, id)
	observeRun(start, err)
	return err
}

// Cancel requests that the active run for id stops. The returned channel is
// closed once the run has exited. ok is false when no run is active.
func (r *Runner) Cancel(id string) (done <-chan struct{}, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.active[id]
	if !ok {
		return nil, false
	}
	run.cancel()
	return run.done, true
}

// Active reports whether a run for id is in flight.
func (r *Runner) Active(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[id]
	return ok
}

// Shutdown cancels every active run and waits for the worker pool to drain.
func (r *Runner) Shutdown() {
	r.stop()
	r.pool.Close()
}

func (r *Runner) acquire(id string) (context.Context, *activeRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[id]; ok {
		return nil, nil, ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(r.ctx)
	run := &activeRun{cancel: cancel, done: make(chan struct{})}
	r.active[id] = run
	activeRuns.Inc()
	return ctx, run, nil
}

func (r *Runner) release(id string, run *activeRun) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active[id] == run {
		delete(r.active, id)
		activeRuns.Dec()
	}
	run.cancel()
	close(run.done)
}

func (r *Runner) publish(id string, progress int, message string, failed bool) {
	r.bus.Publish(events.Event{
		VideoID:   id,
		Progress:  progress,
		Message:   message,
		Error:     failed,
		Timestamp: r.now(),
	})
}

func (r *Runner) execute(ctx context.Context, id string) error {
	log := r.log.WithField("video", id)

	// Runs still queued at shutdown leave their video Uploading for Recover.
	if err := ctx.Err(); err != nil {
		return err
	}
	video, err := r.store.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load video %s: %w", id, err)
	}
	if video.Status != media.StatusUploading {
		return fmt.Errorf("video %s is %s: %w", id, video.Status, ErrInvalidState)
	}

	log.Infof("processing %s", video.Filepath)
	progress := ProgressStarted
	marked := false
	fail := func(err error) error {
		return r.fail(ctx, video, progress, marked, err)
	}

	processing := media.StatusProcessing
	if err := r.store.Save(ctx, id, media.Patch{Status: &processing, Progress: &progress}); err != nil {
		return fail(err)
	}
	marked = true
	r.publish(id, progress, "Starting video processing...", false)

	duration, err := r.inspector.Probe(ctx, video.Filepath)
	if err != nil {
		return fail(classify(ctx, media.ExtractionFailure, err))
	}
	checkpoint := ProgressMetadata
	if err := r.store.Save(ctx, id, media.Patch{Duration: &duration, Progress: &checkpoint}); err != nil {
		return fail(err)
	}
	progress = checkpoint
	video.Duration = duration
	log.Debugf("duration %.0fs", duration)
	r.publish(id, progress, "Metadata extracted...", false)

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	result, err := r.scorer.Score(ctx, video)
	if err != nil {
		return fail(classify(ctx, media.ScoringFailure, err))
	}
	if result.Score < 0 || result.Score >= 100 {
		return fail(media.Failuref(media.ScoringFailure, "score %.2f outside [0, 100)", result.Score))
	}
	status := media.Classify(result.Score)
	if status != result.Status {
		return fail(media.Failuref(media.ScoringFailure, "scorer classified %.2f as %s", result.Score, result.Status))
	}
	checkpoint = ProgressScored
	if err := r.store.Save(ctx, id, media.Patch{
		SensitivityScore:  &result.Score,
		SensitivityStatus: &status,
		Progress:          &checkpoint,
	}); err != nil {
		return fail(err)
	}
	progress = checkpoint
	log.Debugf("sensitivity %s (%.2f)", status, result.Score)
	r.publish(id, progress, "Sensitivity analysis complete...", false)

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	completed := media.StatusCompleted
	checkpoint = ProgressComplete
	if err := r.store.Save(ctx, id, media.Patch{Status: &completed, Progress: &checkpoint}); err != nil {
		return fail(err)
	}
	r.publish(id, checkpoint, "Processing complete!", false)
	log.Infoln("processing complete")
	return nil
}

// classify tags err with kind unless it is already tagged or is a context error.
func classify(ctx context.Context, kind media.FailureKind, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	if media.KindOf(err) != media.UnknownFailure {
		return err
	}
	return media.NewFailure(kind, err)
}

// fail marks the video Failed, publishes one error event, and returns err.
// A video that no longer exists is left alone, and one that never reached
// Processing stays Uploading so Recover resubmits it.
func (r *Runner) fail(ctx context.Context, video *media.Video, progress int, marked bool, err error) error {
	log := r.log.WithField("video", video.ID)

	if errors.Is(err, media.ErrNotFound) {
		log.Warnf("video removed during processing: %v", err)
		r.publish(video.ID, progress, "Processing aborted: video was deleted", true)
		return fmt.Errorf("process video %s: %w", video.ID, err)
	}

	log.Errorf("processing failed at %d%%: %v", progress, err)

	if !marked {
		r.publish(video.ID, progress, fmt.Sprintf("Processing failed: %v", err), true)
		return fmt.Errorf("process video %s: %w", video.ID, err)
	}

	if saveErr := r.markFailed(ctx, video.ID); saveErr != nil {
		err = errors.Join(err, saveErr)
	}

	r.publish(video.ID, progress, fmt.Sprintf("Processing failed: %v", err), true)
	return fmt.Errorf("process video %s: %w", video.ID, err)
}

// markFailed writes the Failed status even when ctx is already cancelled.
// A video that no longer exists is not an error.
func (r *Runner) markFailed(ctx context.Context, id string) error {
	log := r.log.WithField("video", id)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()
	failed := media.StatusFailed
	err := r.store.Save(writeCtx, id, media.Patch{Status: &failed})
	if errors.Is(err, media.ErrNotFound) {
		log.Warnln("video removed before it could be marked failed")
		return nil
	} else if err != nil {
		log.Errorf("could not mark video failed: %v", err)
		return fmt.Errorf("mark video %s failed: %w", id, err)
	}
	return nil
}

// Recover fails runs that were interrupted mid-flight by a restart and
// resubmits videos still waiting for their first run.
func (r *Runner) Recover(ctx context.Context) error {
	var errs []error

	stuck, err := r.store.ListByStatus(ctx, media.StatusProcessing)
	if err != nil {
		return fmt.Errorf("list interrupted runs: %w", err)
	}
	for i := range stuck {
		v := &stuck[i]
		if r.Active(v.ID) {
			continue
		}
		r.log.WithField("video", v.ID).Errorf("processing interrupted by restart at %d%%", v.Progress)
		if err := r.markFailed(ctx, v.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		r.publish(v.ID, v.Progress, "Processing failed: processing interrupted by restart", true)
	}

	pending, err := r.store.ListByStatus(ctx, media.StatusUploading)
	if err != nil {
		return fmt.Errorf("list pending videos: %w", err)
	}
	for _, v := range pending {
		if _, err := r.Submit(ctx, v.ID); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			errs = append(errs, err)
		}
	}

	if len(stuck) > 0 || len(pending) > 0 {
		r.log.Infof("recovered %d interrupted and %d pending videos", len(stuck), len(pending))
	}
	return errors.Join(errs...)
}
