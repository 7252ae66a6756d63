package maintenance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-token-broker/adapters/gojob"
	"github.com/goliatone/go-token-broker/core"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	defaultWorkerMaxAttempts    = 3
	defaultWorkerInitialBackoff = 500 * time.Millisecond
	defaultWorkerMaxBackoff     = 10 * time.Second
)

// CredentialRefresher is the slice of the broker service the worker needs.
type CredentialRefresher interface {
	RefreshCredential(ctx context.Context, principalID string) (core.CredentialRecord, error)
}

type BackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultWorkerInitialBackoff
	}
	max := s.Max
	if max <= 0 {
		max = defaultWorkerMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

type WorkerOption func(*RefreshWorker)

func WithWorkerLogger(logger core.Logger) WorkerOption {
	return func(w *RefreshWorker) {
		if logger != nil {
			w.logger = glog.Ensure(logger)
		}
	}
}

func WithWorkerMaxAttempts(attempts int) WorkerOption {
	return func(w *RefreshWorker) {
		if attempts > 0 {
			w.maxAttempts = attempts
		}
	}
}

func WithWorkerBackoff(scheduler BackoffScheduler) WorkerOption {
	return func(w *RefreshWorker) {
		if scheduler != nil {
			w.backoff = scheduler
		}
	}
}

// RefreshWorker consumes refresh jobs and renews credentials through the
// broker service. Retries stay inside a single delivery: only transient
// upstream faults are retried, and only until the attempt budget runs out.
type RefreshWorker struct {
	dequeuer    core.JobDequeuer
	refresher   CredentialRefresher
	backoff     BackoffScheduler
	logger      core.Logger
	maxAttempts int
}

func NewRefreshWorker(dequeuer core.JobDequeuer, refresher CredentialRefresher, opts ...WorkerOption) (*RefreshWorker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("maintenance: job dequeuer is required")
	}
	if refresher == nil {
		return nil, fmt.Errorf("maintenance: credential refresher is required")
	}

	_, logger := glog.Resolve("token-broker-maintenance", nil, nil)
	worker := &RefreshWorker{
		dequeuer:    dequeuer,
		refresher:   refresher,
		backoff:     ExponentialBackoff{Initial: defaultWorkerInitialBackoff, Max: defaultWorkerMaxBackoff},
		logger:      glog.Ensure(logger),
		maxAttempts: defaultWorkerMaxAttempts,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(worker)
	}
	return worker, nil
}

// Run dequeues and handles deliveries until the context is cancelled.
func (w *RefreshWorker) Run(ctx context.Context) error {
	if w == nil {
		return fmt.Errorf("maintenance: worker is nil")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delivery, err := w.dequeuer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("dequeue refresh job failed", "error", err)
			if waitErr := waitWithContext(ctx, w.backoff.NextDelay(1)); waitErr != nil {
				return waitErr
			}
			continue
		}
		if delivery == nil {
			if waitErr := waitWithContext(ctx, w.backoff.NextDelay(1)); waitErr != nil {
				return waitErr
			}
			continue
		}
		if err := w.HandleDelivery(ctx, delivery); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("refresh job handling failed", "error", err)
		}
	}
}

// HandleDelivery processes one refresh job to a terminal ack or nack.
func (w *RefreshWorker) HandleDelivery(ctx context.Context, delivery core.JobDelivery) error {
	if w == nil {
		return fmt.Errorf("maintenance: worker is nil")
	}
	if delivery == nil {
		return fmt.Errorf("maintenance: delivery is required")
	}

	message := delivery.Message()
	principalID := gojob.MessagePrincipal(message)
	if principalID == "" {
		w.logger.Warn("refresh job carries no principal id", "job_id", jobIDOf(message))
		return delivery.Ack(ctx)
	}

	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		_, err := w.refresher.RefreshCredential(ctx, principalID)
		if err == nil {
			w.logger.Debug("proactive refresh completed",
				"principal_id", principalID,
				"attempts", attempt,
			)
			return delivery.Ack(ctx)
		}
		lastErr = err

		if !core.IsRetryable(err) {
			// Rejections and bad input are final verdicts, not transient
			// faults. The job is consumed either way.
			w.logger.Error("proactive refresh failed",
				"principal_id", principalID,
				"error", err,
			)
			return delivery.Ack(ctx)
		}
		if attempt == w.maxAttempts {
			break
		}
		if waitErr := waitWithContext(ctx, w.backoff.NextDelay(attempt)); waitErr != nil {
			_ = delivery.Nack(context.WithoutCancel(ctx), core.JobNackOptions{
				Requeue: true,
				Reason:  "worker stopped",
			})
			return waitErr
		}
	}

	w.logger.Warn("proactive refresh exhausted retries",
		"principal_id", principalID,
		"attempts", w.maxAttempts,
		"error", lastErr,
	)
	return delivery.Nack(ctx, core.JobNackOptions{
		Delay:   w.backoff.NextDelay(w.maxAttempts),
		Requeue: true,
		Reason:  strings.TrimSpace(fmt.Sprint(lastErr)),
	})
}

func jobIDOf(message *core.JobExecutionMessage) string {
	if message == nil {
		return ""
	}
	return message.JobID
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
