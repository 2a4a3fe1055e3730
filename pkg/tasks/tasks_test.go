package tasks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/pkg/catalogerr"
	"github.com/cuemby/warren/pkg/entity"
)

func TestScheduleTaskRetriesUntilSuccess(t *testing.T) {
	r := NewRunner(nil, 4)
	r.initialBackoff = time.Millisecond
	r.maxBackoff = 2 * time.Millisecond

	var attempts int32
	h := r.ScheduleTask("unit-test", nil, func(ctx context.Context) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return catalogerr.New(catalogerr.TryAgain, "not yet")
		}
		return nil
	})

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not complete in time")
	}
	require.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(3))
	require.Equal(t, "unit-test", h.Kind())
}

func TestScheduleTaskStopsOnPermanentFailure(t *testing.T) {
	r := NewRunner(nil, 4)
	r.initialBackoff = time.Millisecond

	var attempts int32
	h := r.ScheduleTask("unit-test", nil, func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return catalogerr.New(catalogerr.InvalidArgument, "bad request")
	})

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not complete in time")
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestScheduleTaskAbortStopsRetryLoop(t *testing.T) {
	r := NewRunner(nil, 4)
	r.initialBackoff = 50 * time.Millisecond
	r.maxBackoff = 50 * time.Millisecond

	var attempts int32
	h := r.ScheduleTask("unit-test", nil, func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return catalogerr.New(catalogerr.TryAgain, "not yet")
	})

	time.Sleep(10 * time.Millisecond)
	h.Abort()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not complete after abort")
	}
}

func TestScheduleTaskStopsWhenTableDeleting(t *testing.T) {
	r := NewRunner(nil, 4)
	r.initialBackoff = time.Millisecond

	table := entity.NewTableInfo(&entity.TablePB{ID: "t1", State: entity.TableDeleting})

	var attempts int32
	h := r.ScheduleTask("unit-test", table, func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return catalogerr.New(catalogerr.TryAgain, "not yet")
	})

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not complete in time")
	}
	require.Equal(t, int32(0), atomic.LoadInt32(&attempts))
}

func TestScheduleCreateReplicaNoopWithoutProxy(t *testing.T) {
	r := NewRunner(nil, 4)
	tl := entity.NewTabletInfo(&entity.TabletPB{ID: "tablet-1", TableID: "t1"})
	r.ScheduleCreateReplica(tl, []string{"ts1", "ts2", "ts3"})
}
