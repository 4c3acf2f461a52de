package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stockalert/stockalert/internal/database"
	"github.com/stockalert/stockalert/internal/services"
	"github.com/stockalert/stockalert/internal/utils"
)

// DefaultPassTimeout bounds one evaluation pass when no timeout is configured
const DefaultPassTimeout = 60 * time.Second

// finalizeTimeout bounds the write that records a run's outcome
const finalizeTimeout = 10 * time.Second

// DefaultOverrunGrace is how long an overrun pass may take to report its partial result
const DefaultOverrunGrace = 5 * time.Second

// PassRunner evaluates one check kind
type PassRunner interface {
	RunPass(ctx context.Context, kind database.HealthCheckKind) (services.PassResult, error)
}

// HealthCheckScheduler is the single entry point for health-check passes.
// Every trigger goes through MaybeRunHealthCheck so that at most one pass
// per check kind is accepted per interval.
type HealthCheckScheduler struct {
	store  *database.Store
	runner PassRunner

	overrunGrace time.Duration

	mu        sync.Mutex
	timeout   time.Duration
	lastLocal map[database.HealthCheckKind]time.Time
}

// NewHealthCheckScheduler creates a scheduler
func NewHealthCheckScheduler(store *database.Store, runner PassRunner, timeout time.Duration) *HealthCheckScheduler {
	if timeout <= 0 {
		timeout = DefaultPassTimeout
	}
	return &HealthCheckScheduler{
		store:        store,
		runner:       runner,
		overrunGrace: DefaultOverrunGrace,
		timeout:      timeout,
		lastLocal:    make(map[database.HealthCheckKind]time.Time),
	}
}

// SetTimeout changes the pass time budget
func (s *HealthCheckScheduler) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = timeout
}

func (s *HealthCheckScheduler) passTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout
}

// MaybeRunHealthCheck runs a pass of kind unless one ran within interval.
// It returns whether this call ran the pass. Errors are recorded on the run, not returned.
func (s *HealthCheckScheduler) MaybeRunHealthCheck(ctx context.Context, kind database.HealthCheckKind, interval time.Duration) bool {
	now := s.store.Now()

	run, claimed, err := s.store.TryStartHealthCheckRun(ctx, kind, interval, now)
	if err != nil {
		log.Printf("Warning: HealthCheck: store claim failed for %s, using local debounce: %v", kind, err)
		if !s.claimLocal(kind, interval, now) {
			return false
		}
		started := time.Now()
		result, runErr := s.execute(ctx, kind)
		s.record(kind, now, result, runErr, time.Since(started))
		return true
	}
	if !claimed {
		return false
	}
	s.markLocal(kind, now)

	started := time.Now()
	result, runErr := s.execute(ctx, kind)
	s.finish(run, result, runErr, time.Since(started))
	return true
}

// claimLocal is the process-local check-and-set used when the store is unavailable
func (s *HealthCheckScheduler) claimLocal(kind database.HealthCheckKind, interval time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastLocal[kind]; ok {
		d := now.Sub(last)
		if d < 0 {
			d = -d
		}
		if d < interval {
			return false
		}
	}
	s.lastLocal[kind] = now
	return true
}

func (s *HealthCheckScheduler) markLocal(kind database.HealthCheckKind, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLocal[kind] = now
}

type passOutcome struct {
	result services.PassResult
	err    error
}

// execute runs the pass under the time budget. A pass that panics or overruns is reported as an error.
func (s *HealthCheckScheduler) execute(ctx context.Context, kind database.HealthCheckKind) (services.PassResult, error) {
	timeout := s.passTimeout()
	passCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan passOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- passOutcome{err: fmt.Errorf("health check %s panicked: %v", kind, r)}
			}
		}()
		result, err := s.runner.RunPass(passCtx, kind)
		done <- passOutcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-passCtx.Done():
	}

	overrun := fmt.Errorf("health check %s did not finish within %v: %w", kind, timeout, passCtx.Err())

	// The runner stops at its next context check and reports what it stored so far.
	grace := time.NewTimer(s.overrunGrace)
	defer grace.Stop()
	select {
	case out := <-done:
		return out.result, overrun
	case <-grace.C:
		log.Printf("Warning: HealthCheck: %s pass ignored cancellation for %v, its notification count is lost", kind, s.overrunGrace)
		return services.PassResult{}, overrun
	}
}

// finish finalizes a claimed run; it uses its own context so a cancelled pass is still recorded
func (s *HealthCheckScheduler) finish(run *database.HealthCheckRun, result services.PassResult, runErr error, elapsed time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if err := s.store.FinishHealthCheckRun(ctx, run.ID, result.Created, result.Evaluated, runErr); err != nil {
		log.Printf("Warning: HealthCheck: failed to finalize run %d: %v", run.ID, err)
	}
	logOutcome(run.CheckKind, result, runErr, elapsed)
}

// record writes an unclaimed run after a local-debounce pass
func (s *HealthCheckScheduler) record(kind database.HealthCheckKind, ranAt time.Time, result services.PassResult, runErr error, elapsed time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if _, err := s.store.RecordHealthCheckRun(ctx, kind, ranAt, result.Created, result.Evaluated, runErr); err != nil {
		log.Printf("Warning: HealthCheck: failed to record %s run: %v", kind, err)
	}
	logOutcome(kind, result, runErr, elapsed)
}

func logOutcome(kind database.HealthCheckKind, result services.PassResult, runErr error, elapsed time.Duration) {
	if runErr != nil {
		log.Printf("HealthCheck: %s pass failed after %s and %d notifications: %v",
			kind, utils.FormatDuration(elapsed), result.Created, runErr)
		return
	}
	log.Printf("HealthCheck: %s pass evaluated %d candidates in %s, created %d, suppressed %d",
		kind, result.Evaluated, utils.FormatDuration(elapsed), result.Created, result.Suppressed)
}

// HealthCheckJob drives the scheduler from a ticker
type HealthCheckJob struct {
	scheduler *HealthCheckScheduler
	store     *database.Store
	done      chan struct{}
}

// NewHealthCheckJob creates a periodic trigger for scheduler
func NewHealthCheckJob(scheduler *HealthCheckScheduler, store *database.Store) *HealthCheckJob {
	return &HealthCheckJob{scheduler: scheduler, store: store, done: make(chan struct{})}
}

// Done is closed once Start has returned and no pass is in flight
func (j *HealthCheckJob) Done() <-chan struct{} {
	return j.done
}

// RunOnce triggers every check kind with the current settings and returns how many ran
func (j *HealthCheckJob) RunOnce(ctx context.Context) (int, error) {
	settings, err := database.GetOrCreateAlertSettings(j.store.DB().WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("failed to load alert settings: %w", err)
	}
	if !settings.Enabled {
		return 0, nil
	}
	j.scheduler.SetTimeout(settings.HealthCheckTimeout())

	ran := 0
	for _, kind := range database.ValidHealthCheckKinds() {
		if j.scheduler.MaybeRunHealthCheck(ctx, kind, settings.HealthCheckInterval()) {
			ran++
		}
	}
	return ran, nil
}

// Start begins the periodic health checks, triggering once immediately.
// Closing stop cancels the pass in flight; Start returns after it has been recorded.
func (j *HealthCheckJob) Start(tick time.Duration, stop <-chan struct{}) {
	defer close(j.done)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	j.trigger(ctx)
	for {
		select {
		case <-ticker.C:
			j.trigger(ctx)
		case <-stop:
			log.Println("Health check job stopped")
			return
		}
	}
}

func (j *HealthCheckJob) trigger(ctx context.Context) {
	if _, err := j.RunOnce(ctx); err != nil {
		log.Printf("Health check job error: %v", err)
	}
}
