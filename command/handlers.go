package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-token-broker/core"
)

type MutatingService interface {
	RefreshCredential(ctx context.Context, principalID string) (core.CredentialRecord, error)
	CompleteAuthorization(ctx context.Context, req core.CompleteAuthorizationRequest) (core.CredentialRecord, error)
	SaveCredential(ctx context.Context, record core.CredentialRecord) error
	RevokeCredential(ctx context.Context, principalID string) error
}

type RefreshCommand struct {
	service MutatingService
}

func NewRefreshCommand(service MutatingService) *RefreshCommand {
	return &RefreshCommand{service: service}
}

func (c *RefreshCommand) Execute(ctx context.Context, msg RefreshMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refresh service is required")
	}
	out, err := c.service.RefreshCredential(ctx, msg.PrincipalID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RevokeCommand struct {
	service MutatingService
}

func NewRevokeCommand(service MutatingService) *RevokeCommand {
	return &RevokeCommand{service: service}
}

func (c *RevokeCommand) Execute(ctx context.Context, msg RevokeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: revoke service is required")
	}
	return c.service.RevokeCredential(ctx, msg.PrincipalID)
}

type SaveCredentialCommand struct {
	service MutatingService
}

func NewSaveCredentialCommand(service MutatingService) *SaveCredentialCommand {
	return &SaveCredentialCommand{service: service}
}

func (c *SaveCredentialCommand) Execute(ctx context.Context, msg SaveCredentialMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	return c.service.SaveCredential(ctx, msg.Record)
}

type CompleteAuthorizationCommand struct {
	service MutatingService
}

func NewCompleteAuthorizationCommand(service MutatingService) *CompleteAuthorizationCommand {
	return &CompleteAuthorizationCommand{service: service}
}

func (c *CompleteAuthorizationCommand) Execute(ctx context.Context, msg CompleteAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorization service is required")
	}
	out, err := c.service.CompleteAuthorization(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
