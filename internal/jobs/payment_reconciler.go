package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// Reconciler confirms payments the provider knows about but whose webhook
// never reached us.
type Reconciler interface {
	ReconcileAwaiting(ctx context.Context, limit int) (int, error)
}

const reconcileBatch = 50

// PaymentReconcileJob periodically sweeps accepted, unpaid requests.
type PaymentReconcileJob struct {
	reconciler Reconciler
	interval   time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func NewPaymentReconcileJob(reconciler Reconciler, interval time.Duration) *PaymentReconcileJob {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &PaymentReconcileJob{
		reconciler: reconciler,
		interval:   interval,
		done:       make(chan struct{}),
	}
}

// Start launches the sweep loop. It returns immediately.
func (j *PaymentReconcileJob) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	go j.run(ctx)
	log.Printf("[JOBS] payment reconciler started interval=%s", j.interval)
}

// Stop ends the loop and waits for an in-flight sweep to return.
func (j *PaymentReconcileJob) Stop() {
	j.once.Do(func() {
		if j.cancel == nil {
			close(j.done)
			return
		}
		j.cancel()
		<-j.done
		log.Println("[JOBS] payment reconciler stopped")
	})
}

func (j *PaymentReconcileJob) run(ctx context.Context) {
	defer close(j.done)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *PaymentReconcileJob) sweep(ctx context.Context) {
	n, err := j.reconciler.ReconcileAwaiting(ctx, reconcileBatch)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[JOBS] payment reconcile: %v", err)
		}
		return
	}
	if n > 0 {
		log.Printf("[JOBS] payment reconcile confirmed %d request(s)", n)
	}
}
