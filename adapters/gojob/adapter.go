// Package gojob bridges the broker's queue contracts onto go-job. Core and
// maintenance code only see the core.Job* types; everything go-job specific
// stays behind this package.
package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-token-broker/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

// Queue vocabulary shared by the refresh planner, the refresh worker, and
// host schedulers that enqueue broker jobs on their own.
const (
	JobIDRefresh     = "broker.credential.refresh"
	ParamPrincipalID = "principal_id"
	DedupDrop        = "drop"
)

// RefreshMessage builds the canonical refresh job for a principal. The
// idempotency key folds in the credential expiry so replanning the same
// stale credential collapses into one queued job, while a renewed
// credential enqueues under a fresh key.
func RefreshMessage(principalID string, expiresAt time.Time) *core.JobExecutionMessage {
	key := principalID
	if !expiresAt.IsZero() {
		key = fmt.Sprintf("%s::%d", principalID, expiresAt.UTC().Unix())
	}
	return &core.JobExecutionMessage{
		JobID:          JobIDRefresh,
		Parameters:     map[string]any{ParamPrincipalID: principalID},
		IdempotencyKey: key,
		DedupPolicy:    DedupDrop,
	}
}

// MessagePrincipal extracts the principal parameter from a queue message.
func MessagePrincipal(msg *core.JobExecutionMessage) string {
	if msg == nil {
		return ""
	}
	principal, _ := msg.Parameters[ParamPrincipalID].(string)
	return strings.TrimSpace(principal)
}

// RetryPolicy bounds how deliveries may be nacked back onto the queue.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func (p RetryPolicy) bound(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	next := opts
	next.Reason = strings.TrimSpace(next.Reason)
	if next.Delay < 0 {
		next.Delay = 0
	}
	if p.MaxDelay > 0 && next.Delay > p.MaxDelay {
		next.Delay = p.MaxDelay
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		next.Requeue = false
		next.DeadLetter = next.DeadLetter || p.DeadLetterOnMax
	}
	if next.DeadLetter {
		next.Requeue = false
	}
	if !next.Requeue && !next.DeadLetter {
		// A nack has to land somewhere. Without a dead letter target the
		// delivery goes back on the queue.
		next.Requeue = true
	}
	return next
}

// Enqueuer presents a go-job producer as core.JobEnqueuer.
type Enqueuer struct {
	queue queue.Enqueuer
}

func NewEnqueuer(q queue.Enqueuer) *Enqueuer {
	return &Enqueuer{queue: q}
}

func (e *Enqueuer) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if e == nil || e.queue == nil {
		return fmt.Errorf("gojob: no queue producer configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	return e.queue.Enqueue(ctx, toJobMessage(msg))
}

// Dequeuer presents a go-job consumer as core.JobDequeuer. Every delivery it
// hands out nacks through the configured retry policy.
type Dequeuer struct {
	queue  queue.Dequeuer
	policy RetryPolicy
}

func NewDequeuer(q queue.Dequeuer, policy RetryPolicy) *Dequeuer {
	return &Dequeuer{queue: q, policy: policy}
}

func (d *Dequeuer) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if d == nil || d.queue == nil {
		return nil, fmt.Errorf("gojob: no queue consumer configured")
	}
	delivery, err := d.queue.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	return NewDelivery(delivery, d.policy), nil
}

// Delivery wraps one in-flight go-job delivery.
type Delivery struct {
	delivery queue.Delivery
	policy   RetryPolicy
}

func NewDelivery(delivery queue.Delivery, policy RetryPolicy) *Delivery {
	return &Delivery{delivery: delivery, policy: policy}
}

func (d *Delivery) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return fromJobMessage(d.delivery.Message())
}

func (d *Delivery) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: no delivery in flight")
	}
	return d.delivery.Ack(ctx)
}

func (d *Delivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.NackForAttempt(ctx, opts, 0)
}

// NackForAttempt nacks with the retry policy applied for the given attempt
// count, so exhausted deliveries stop requeueing.
func (d *Delivery) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: no delivery in flight")
	}
	return d.delivery.Nack(ctx, toJobNack(d.policy.bound(opts, attempt)))
}

// WorkerHook forwards go-job worker lifecycle events to a broker hook.
type WorkerHook struct {
	hook core.JobWorkerHook
}

func NewWorkerHook(hook core.JobWorkerHook) *WorkerHook {
	return &WorkerHook{hook: hook}
}

func (h *WorkerHook) OnStart(ctx context.Context, event worker.Event) {
	if h == nil || h.hook == nil {
		return
	}
	h.hook.OnStart(ctx, workerEvent(event))
}

func (h *WorkerHook) OnSuccess(ctx context.Context, event worker.Event) {
	if h == nil || h.hook == nil {
		return
	}
	h.hook.OnSuccess(ctx, workerEvent(event))
}

func (h *WorkerHook) OnFailure(ctx context.Context, event worker.Event) {
	if h == nil || h.hook == nil {
		return
	}
	h.hook.OnFailure(ctx, workerEvent(event))
}

func (h *WorkerHook) OnRetry(ctx context.Context, event worker.Event) {
	if h == nil || h.hook == nil {
		return
	}
	h.hook.OnRetry(ctx, workerEvent(event))
}

func workerEvent(event worker.Event) core.JobWorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return core.JobWorkerEvent{
		Message:   fromJobMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

func toJobMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		Parameters:     cloneParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func fromJobMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		Parameters:     cloneParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

func toJobNack(opts core.JobNackOptions) queue.NackOptions {
	return queue.NackOptions{
		Delay:      opts.Delay,
		Requeue:    opts.Requeue,
		DeadLetter: opts.DeadLetter,
		Reason:     opts.Reason,
	}
}

func cloneParams(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer = (*Enqueuer)(nil)
	_ core.JobDelivery = (*Delivery)(nil)
	_ core.JobDequeuer = (*Dequeuer)(nil)
	_ worker.Hook      = (*WorkerHook)(nil)
)
