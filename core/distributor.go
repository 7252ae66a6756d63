package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultBatchConcurrency = 8

// BatchJoin issues one scoped token per participant for the given resource.
// The host token is minted first as a gate: if the host cannot start the
// session the whole batch fails. Participant failures are recorded per item
// and never abort the rest of the batch.
func (s *Service) BatchJoin(ctx context.Context, req BatchJoinRequest) (result BatchResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"principal_id": req.HostPrincipalID,
		"resource_id":  req.ResourceID,
		"participants": len(req.Participants),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "batch_join", err, fields)
	}()

	if s == nil {
		return BatchResult{}, fmt.Errorf("core: service is nil")
	}
	_, result, err = s.distributeBatch(ctx, req.HostPrincipalID, req.ResourceID, req.Participants)
	if err != nil {
		return BatchResult{}, err
	}
	fields["batch_id"] = result.BatchID
	fields["failed"] = len(result.Failed)
	return result, nil
}

// SetupSession combines StartSession and BatchJoin in one call: the host
// token from the gate issuance is returned alongside the batch outcome.
func (s *Service) SetupSession(ctx context.Context, req SetupSessionRequest) (setup SessionSetup, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"principal_id": req.HostPrincipalID,
		"resource_id":  req.ResourceID,
		"participants": len(req.Participants),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "setup_session", err, fields)
	}()

	if s == nil {
		return SessionSetup{}, fmt.Errorf("core: service is nil")
	}
	host, batch, err := s.distributeBatch(ctx, req.HostPrincipalID, req.ResourceID, req.Participants)
	if err != nil {
		return SessionSetup{}, err
	}
	fields["batch_id"] = batch.BatchID
	fields["failed"] = len(batch.Failed)
	return SessionSetup{Host: host, Batch: batch}, nil
}

func (s *Service) distributeBatch(ctx context.Context, hostPrincipalID string, resourceID string, participants []string) (SessionToken, BatchResult, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return SessionToken{}, BatchResult{}, s.mapError(ErrEmptyResourceID)
	}

	host, err := s.issueHostToken(ctx, hostPrincipalID)
	if err != nil {
		return SessionToken{}, BatchResult{}, err
	}

	result := BatchResult{
		BatchID:   uuid.NewString(),
		Succeeded: []BatchToken{},
		Failed:    []BatchFailure{},
	}
	if len(participants) == 0 {
		return host, result, nil
	}

	type outcome struct {
		principalID string
		token       SessionToken
		err         error
	}

	outcomes := make(chan outcome, len(participants))
	sem := make(chan struct{}, s.batchConcurrency())
	var wg sync.WaitGroup
	for _, participantID := range participants {
		wg.Add(1)
		go func(pid string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			token, issueErr := s.issueScopedToken(ctx, pid, resourceID)
			outcomes <- outcome{principalID: pid, token: token, err: issueErr}
		}(participantID)
	}
	wg.Wait()
	close(outcomes)

	// Collected in completion order; every requested participant lands in
	// exactly one of the two lists.
	for item := range outcomes {
		if item.err != nil {
			result.Failed = append(result.Failed, BatchFailure{
				PrincipalID: item.principalID,
				Kind:        FailureKind(item.err),
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, BatchToken{
			PrincipalID: item.principalID,
			Token:       item.token,
		})
	}
	return host, result, nil
}

func (s *Service) batchConcurrency() int {
	if s == nil || s.config.Batch.MaxConcurrency <= 0 {
		return DefaultBatchConcurrency
	}
	return s.config.Batch.MaxConcurrency
}
