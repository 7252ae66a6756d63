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
	DefaultPlanInterval = time.Minute
	DefaultScanLimit    = 100
)

// ExpiringCredentialSource surfaces active records whose expiry falls at or
// before a cutoff, soonest first. The SQL credential store satisfies it.
type ExpiringCredentialSource interface {
	ListExpiring(ctx context.Context, before time.Time, limit int) ([]core.CredentialRecord, error)
}

type PlanResult struct {
	Scanned  int
	Enqueued int
}

type PlannerOption func(*RefreshPlanner)

func WithPlannerLogger(logger core.Logger) PlannerOption {
	return func(p *RefreshPlanner) {
		if logger != nil {
			p.logger = glog.Ensure(logger)
		}
	}
}

func WithPlannerWindow(window time.Duration) PlannerOption {
	return func(p *RefreshPlanner) {
		if window > 0 {
			p.window = window
		}
	}
}

func WithPlannerScanLimit(limit int) PlannerOption {
	return func(p *RefreshPlanner) {
		if limit > 0 {
			p.limit = limit
		}
	}
}

func WithPlannerInterval(interval time.Duration) PlannerOption {
	return func(p *RefreshPlanner) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

func WithPlannerClock(now func() time.Time) PlannerOption {
	return func(p *RefreshPlanner) {
		if now != nil {
			p.nowFn = now
		}
	}
}

// RefreshPlanner walks credentials that are about to expire and enqueues a
// refresh job for each so workers can renew them ahead of interactive
// traffic. Planning is read-only: the actual refresh happens in the worker.
type RefreshPlanner struct {
	source   ExpiringCredentialSource
	enqueuer core.JobEnqueuer
	logger   core.Logger
	window   time.Duration
	limit    int
	interval time.Duration
	nowFn    func() time.Time
}

func NewRefreshPlanner(source ExpiringCredentialSource, enqueuer core.JobEnqueuer, opts ...PlannerOption) (*RefreshPlanner, error) {
	if source == nil {
		return nil, fmt.Errorf("maintenance: expiring credential source is required")
	}
	if enqueuer == nil {
		return nil, fmt.Errorf("maintenance: job enqueuer is required")
	}

	_, logger := glog.Resolve("token-broker-maintenance", nil, nil)
	planner := &RefreshPlanner{
		source:   source,
		enqueuer: enqueuer,
		logger:   glog.Ensure(logger),
		window:   core.DefaultExpiringSoonWindow,
		limit:    DefaultScanLimit,
		interval: DefaultPlanInterval,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(planner)
	}
	return planner, nil
}

// PlanOnce runs a single planning pass. Enqueue failures are logged and
// skipped so one bad job does not starve the remaining candidates.
func (p *RefreshPlanner) PlanOnce(ctx context.Context) (PlanResult, error) {
	if p == nil {
		return PlanResult{}, fmt.Errorf("maintenance: planner is nil")
	}

	now := p.nowFn()
	records, err := p.source.ListExpiring(ctx, now.Add(p.window), p.limit)
	if err != nil {
		return PlanResult{}, fmt.Errorf("maintenance: list expiring credentials: %w", err)
	}

	result := PlanResult{Scanned: len(records)}
	for _, record := range records {
		message := refreshJobMessage(record)
		if message == nil {
			continue
		}
		if err := p.enqueuer.Enqueue(ctx, message); err != nil {
			p.logger.Error("enqueue refresh job failed",
				"principal_id", record.PrincipalID,
				"error", err,
			)
			continue
		}
		result.Enqueued++
	}

	if result.Scanned > 0 {
		p.logger.Debug("refresh plan pass completed",
			"scanned", result.Scanned,
			"enqueued", result.Enqueued,
		)
	}
	return result, nil
}

// Run plans on a fixed interval until the context is cancelled.
func (p *RefreshPlanner) Run(ctx context.Context) error {
	if p == nil {
		return fmt.Errorf("maintenance: planner is nil")
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.PlanOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error("refresh plan pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// refreshJobMessage skips records without a principal rather than enqueue
// jobs the worker cannot route.
func refreshJobMessage(record core.CredentialRecord) *core.JobExecutionMessage {
	principalID := strings.TrimSpace(record.PrincipalID)
	if principalID == "" {
		return nil
	}
	return gojob.RefreshMessage(principalID, record.ExpiresAt)
}
