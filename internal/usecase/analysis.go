package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"Pattas/internal/domain/models"
	domrepo "Pattas/internal/domain/repository"
	"Pattas/internal/runner"
	"Pattas/internal/stream"
	applogger "Pattas/pkg/logger"

	"github.com/google/uuid"
)

// ErrRunInProgress is returned by Trigger when runs are exclusive and one
// is already active.
var ErrRunInProgress = errors.New("analysis already running")

const persistTimeout = 10 * time.Second

type AnalysisConfig struct {
	Exclusive    bool
	LockTTL      time.Duration
	CompleteHold time.Duration
}

// AnalysisService owns the lifecycle of analysis runs: admission, spawn,
// streaming, and the bookkeeping after the stream ends.
type AnalysisService struct {
	runner  *runner.Runner
	lock    domrepo.RunLock
	runs    domrepo.RunStore
	last    domrepo.LastRunStore
	events  domrepo.RunEventPublisher
	metrics domrepo.Metrics
	log     *applogger.Logger
	cfg     AnalysisConfig
	now     func() time.Time

	mu        sync.Mutex
	active    map[string]models.Run
	localLast *models.Run
}

func NewAnalysisService(
	r *runner.Runner,
	lock domrepo.RunLock,
	runs domrepo.RunStore,
	last domrepo.LastRunStore,
	events domrepo.RunEventPublisher,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	cfg AnalysisConfig,
) *AnalysisService {
	if l == nil {
		l = applogger.NewNop()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	return &AnalysisService{
		runner:  r,
		lock:    lock,
		runs:    runs,
		last:    last,
		events:  events,
		metrics: metrics,
		log:     l,
		cfg:     cfg,
		now:     time.Now,
		active:  make(map[string]models.Run),
	}
}

// Trigger runs the analysis command once and streams its output to sink.
// The process is killed when ctx ends. A nonzero exit or a spawn failure is
// reported in the stream and in the returned Run, not as an error.
func (s *AnalysisService) Trigger(ctx context.Context, trigger models.Trigger, sink stream.Sink) (*models.Run, error) {
	run := &models.Run{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Command:   s.runner.Command().String(),
		StartedAt: s.now(),
	}
	log := s.log.With(applogger.String("run_id", run.ID), applogger.String("trigger", string(trigger)))

	if s.cfg.Exclusive {
		ok, err := s.lock.Acquire(ctx, run.ID)
		if err != nil {
			s.metrics.RecordError("run_lock")
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			return nil, ErrRunInProgress
		}
		stop := s.keepLock(ctx, run.ID, log)
		defer func() {
			stop()
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
			defer cancel()
			if err := s.lock.Release(rctx, run.ID); err != nil {
				log.Warn("release run lock failed", applogger.Error(err))
			}
		}()
	}

	if o, ok := sink.(stream.Opener); ok {
		if err := o.Open(); err != nil {
			return nil, fmt.Errorf("open stream: %w", err)
		}
	}

	s.begin(run)
	s.metrics.RunStarted()
	defer s.metrics.RunFinished()
	s.publish(ctx, models.RunStarted, run, log)
	log.Info("analysis run started", applogger.String("command", run.Command))

	proc, err := s.runner.Start(ctx)
	if err != nil {
		run.FatalError = err.Error()
		if serr := stream.Fatal(sink, err); serr != nil {
			log.Debug("fatal marker not delivered", applogger.Error(serr))
		}
		log.Error("analysis spawn failed", applogger.Error(err))
	} else {
		res := stream.Copy(sink, proc)
		code := res.ExitCode
		run.ExitCode = &code
		run.Canceled = res.Canceled
		run.StdoutBytes = res.StdoutBytes
		run.StderrBytes = res.StderrBytes
		run.Chunks = res.Chunks()

		s.metrics.RecordOutput(string(models.Stdout), res.StdoutBytes, res.StdoutChunks)
		s.metrics.RecordOutput(string(models.Stderr), res.StderrBytes, res.StderrChunks)
		if res.WaitErr != nil {
			s.metrics.RecordError("process_wait")
			log.Error("analysis wait failed", applogger.Error(res.WaitErr))
		}
		if res.SinkErr != nil {
			log.Warn("client went away, output discarded", applogger.Error(res.SinkErr))
		}
	}

	finished := s.now()
	run.FinishedAt = &finished
	s.finish(ctx, run, log)
	return run, nil
}

// keepLock extends the run lock every LockTTL/3 until the returned stop
// function is called.
func (s *AnalysisService) keepLock(ctx context.Context, owner string, log *applogger.Logger) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.cfg.LockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := s.lock.Refresh(ctx, owner)
				switch {
				case err != nil:
					log.Warn("refresh run lock failed", applogger.Error(err))
				case !ok:
					log.Warn("run lock lost before the run finished")
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (s *AnalysisService) begin(run *models.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[run.ID] = *run
}

func (s *AnalysisService) finish(ctx context.Context, run *models.Run, log *applogger.Logger) {
	result := run.Result()
	s.metrics.RecordRun(string(run.Trigger), result, run.Duration())

	s.mu.Lock()
	delete(s.active, run.ID)
	done := *run
	s.localLast = &done
	s.mu.Unlock()

	// The client may be gone; bookkeeping still has to land.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := s.runs.Save(pctx, run); err != nil {
		s.metrics.RecordError("run_store")
		log.Error("save run failed", applogger.Error(err))
	}
	if err := s.last.SaveLast(pctx, run); err != nil {
		s.metrics.RecordError("last_run")
		log.Warn("save last run failed", applogger.Error(err))
	}

	eventType := models.RunCompleted
	if result == models.ResultSpawnFailed {
		eventType = models.RunFailed
	}
	s.publish(pctx, eventType, run, log)

	fields := []applogger.Field{
		applogger.String("result", result),
		applogger.Duration("duration_ms", run.Duration()),
		applogger.Int64("stdout_bytes", run.StdoutBytes),
		applogger.Int64("stderr_bytes", run.StderrBytes),
	}
	if run.ExitCode != nil {
		fields = append(fields, applogger.Int("exit_code", *run.ExitCode))
	}
	log.Info("analysis run finished", fields...)
}

func (s *AnalysisService) publish(ctx context.Context, t models.RunEventType, run *models.Run, log *applogger.Logger) {
	event := models.RunEvent{Type: t, Run: *run, At: s.now()}
	if err := s.events.Publish(ctx, event); err != nil {
		s.metrics.RecordError("run_event")
		log.Warn("publish run event failed", applogger.String("event", string(t)), applogger.Error(err))
	}
}

// Status reports the trigger button state. A run held by another instance
// (shared Redis lock) also counts as ANALYZING.
func (s *AnalysisService) Status(ctx context.Context) (models.RunStatus, error) {
	s.mu.Lock()
	var current *models.Run
	if len(s.active) > 0 {
		runs := make([]models.Run, 0, len(s.active))
		for _, r := range s.active {
			runs = append(runs, r)
		}
		sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
		current = &runs[0]
	}
	last := s.localLast
	s.mu.Unlock()

	if shared, err := s.last.Last(ctx); err != nil {
		s.log.Warn("load last run failed", applogger.Error(err))
	} else if shared != nil && (last == nil || shared.StartedAt.After(last.StartedAt)) {
		last = shared
	}

	status := models.RunStatus{State: models.StateIdle, Current: current, Last: last}
	switch {
	case current != nil:
		status.State = models.StateAnalyzing
	case s.cfg.Exclusive && s.heldElsewhere(ctx):
		status.State = models.StateAnalyzing
	case last != nil && last.FinishedAt != nil && s.now().Sub(*last.FinishedAt) < s.cfg.CompleteHold:
		status.State = models.StateComplete
	}
	return status, nil
}

func (s *AnalysisService) heldElsewhere(ctx context.Context) bool {
	held, err := s.lock.Held(ctx)
	if err != nil {
		s.log.Warn("check run lock failed", applogger.Error(err))
		return false
	}
	return held
}

// Recent returns run history, newest first.
func (s *AnalysisService) Recent(ctx context.Context, limit int) ([]models.Run, error) {
	runs, err := s.runs.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	return runs, nil
}
