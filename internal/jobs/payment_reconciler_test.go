package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReconciler struct {
	calls atomic.Int32
	err   error
}

func (c *countingReconciler) ReconcileAwaiting(ctx context.Context, limit int) (int, error) {
	c.calls.Add(1)
	if limit != reconcileBatch {
		return 0, errors.New("unexpected batch size")
	}
	return 1, c.err
}

func TestPaymentReconcileJobSweepsOnInterval(t *testing.T) {
	r := &countingReconciler{}
	job := NewPaymentReconcileJob(r, 10*time.Millisecond)
	job.Start(context.Background())
	defer job.Stop()

	require.Eventually(t, func() bool { return r.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestPaymentReconcileJobKeepsRunningAfterError(t *testing.T) {
	r := &countingReconciler{err: errors.New("provider down")}
	job := NewPaymentReconcileJob(r, 10*time.Millisecond)
	job.Start(context.Background())
	defer job.Stop()

	require.Eventually(t, func() bool { return r.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestPaymentReconcileJobStopIsFinal(t *testing.T) {
	r := &countingReconciler{}
	job := NewPaymentReconcileJob(r, 5*time.Millisecond)
	job.Start(context.Background())
	require.Eventually(t, func() bool { return r.calls.Load() >= 1 }, time.Second, time.Millisecond)

	job.Stop()
	job.Stop()
	after := r.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, r.calls.Load())
}
