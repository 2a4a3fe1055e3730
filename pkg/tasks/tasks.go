// Package tasks implements the async task framework (C8, spec.md §4.8):
// every cross-process action against a tserver is a RetryingTSRpcTask that
// issues its RPC with bounded exponential backoff until success, permanent
// failure, cancellation, or the owning table transitions to DELETING.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warren/pkg/catalogerr"
	"github.com/cuemby/warren/pkg/entity"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/tserverset"
)

// task is a single in-flight RetryingTSRpcTask. It implements
// entity.TaskHandle so the owning TableInfo can abort or wait on it without
// importing this package.
type task struct {
	kind   string
	cancel context.CancelFunc
	doneCh chan struct{}
	once   sync.Once
}

func (t *task) Abort() { t.once.Do(t.cancel) }
func (t *task) Done() <-chan struct{} { return t.doneCh }
func (t *task) Kind() string { return t.kind }

// Runner dispatches RetryingTSRpcTask instances against a tserverset.TSProxy
// out of a bounded worker pool, the async pool ScheduleTask submits into per
// §4.8.
type Runner struct {
	proxy  tserverset.TSProxy
	logger zerolog.Logger
	sem    chan struct{}

	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxAttempts    int // 0 = retry until cancelled/permanent/table deleting
}

// NewRunner builds a task runner bounded to poolSize concurrent in-flight
// RPCs, backed by proxy. proxy may be nil in tests; the Schedule* fan-out
// helpers then schedule nothing, GetTabletSplitKey returns
// ServiceUnavailable, and ScheduleTask still runs the function it is given.
func NewRunner(proxy tserverset.TSProxy, poolSize int) *Runner {
	if poolSize <= 0 {
		poolSize = 32
	}
	return &Runner{
		proxy:          proxy,
		logger:         log.WithComponent("tasks"),
		sem:            make(chan struct{}, poolSize),
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     30 * time.Second,
	}
}

// ScheduleTask submits run for retrying execution against tserverID. kind
// labels the task (for logging and entity.TaskHandle.Kind); owningTable, if
// non-nil, registers the handle so AbortTasks/WaitTasksCompletion can manage
// it and so the retry loop stops once the table enters DELETING.
// The handle is returned at once; a task aborted while it still waits for
// a pool slot ends without running.
func (r *Runner) ScheduleTask(kind string, owningTable *entity.TableInfo, run func(ctx context.Context) error) entity.TaskHandle {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{kind: kind, cancel: cancel, doneCh: make(chan struct{})}
	if owningTable != nil {
		owningTable.AddTask(t)
	}

	go func() {
		defer close(t.doneCh)
		select {
		case r.sem <- struct{}{}:
			defer func() { <-r.sem }()
		case <-ctx.Done():
			return
		}
		metrics.TasksInFlight.WithLabelValues(kind).Inc()
		defer metrics.TasksInFlight.WithLabelValues(kind).Dec()
		r.runWithBackoff(ctx, owningTable, kind, run)
	}()

	return t
}

func (r *Runner) runWithBackoff(ctx context.Context, owningTable *entity.TableInfo, kind string, run func(ctx context.Context) error) {
	backoff := r.initialBackoff
	for attempt := 1; ; attempt++ {
		if owningTable != nil && owningTable.LockForRead().State == entity.TableDeleting {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := run(ctx)
		if err == nil {
			return
		}
		if isPermanent(err) {
			r.logger.Error().Err(err).Str("kind", kind).Msg("task failed permanently")
			return
		}
		if r.maxAttempts > 0 && attempt >= r.maxAttempts {
			r.logger.Warn().Err(err).Str("kind", kind).Int("attempts", attempt).Msg("task exhausted retry budget")
			return
		}
		r.logger.Debug().Err(err).Str("kind", kind).Int("attempt", attempt).Dur("backoff", backoff).Msg("task retrying")
		metrics.TaskRetriesTotal.WithLabelValues(kind).Inc()

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}
}

// isPermanent reports whether err should never be retried: malformed
// requests and states the tserver will never resolve on its own by being
// retried unchanged.
func isPermanent(err error) bool {
	switch catalogerr.CodeOf(err) {
	case catalogerr.InvalidArgument, catalogerr.NotSupported:
		return true
	default:
		return false
	}
}
