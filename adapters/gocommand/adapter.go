// Package gocommand wires broker command and query handlers into the
// go-command runtime. Handlers land in a command.Registry so queue resolvers
// can mirror mutations into go-job, and subscribe on the global dispatcher
// for in-process traffic.
package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	brokercommand "github.com/goliatone/go-token-broker/command"
	brokerquery "github.com/goliatone/go-token-broker/query"
)

// ValidateMessageContract checks a message carries a non-blank Type() and
// passes its own Validate() when it has one.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	typed, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(typed.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

// HandlerRegistry owns the command.Registry broker handlers land in. Queue
// resolvers added here mirror registered mutations into go-job registries.
type HandlerRegistry struct {
	base *command.Registry
}

func NewHandlerRegistry(base *command.Registry) *HandlerRegistry {
	if base == nil {
		base = command.NewRegistry()
	}
	return &HandlerRegistry{base: base}
}

// Base exposes the underlying registry for hosts wiring go-command directly.
func (r *HandlerRegistry) Base() *command.Registry {
	if r == nil {
		return nil
	}
	return r.base
}

func (r *HandlerRegistry) RegisterCommand(cmd any) error {
	if r == nil || r.base == nil {
		return fmt.Errorf("gocommand: handler registry is not initialized")
	}
	return r.base.RegisterCommand(cmd)
}

// RegisterQuery funnels through RegisterCommand: go-command keeps one
// handler catalog for both shapes.
func (r *HandlerRegistry) RegisterQuery(qry any) error {
	return r.RegisterCommand(qry)
}

func (r *HandlerRegistry) AddResolver(key string, resolver command.Resolver) error {
	if r == nil || r.base == nil {
		return fmt.Errorf("gocommand: handler registry is not initialized")
	}
	return r.base.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors registered handlers into a go-job queue registry
// under the given resolver key.
func (r *HandlerRegistry) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return r.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (r *HandlerRegistry) HasResolver(key string) bool {
	if r == nil || r.base == nil {
		return false
	}
	return r.base.HasResolver(strings.TrimSpace(key))
}

// Initialize runs the resolvers so mirrored registries see every handler
// registered so far.
func (r *HandlerRegistry) Initialize() error {
	if r == nil || r.base == nil {
		return fmt.Errorf("gocommand: handler registry is not initialized")
	}
	return r.base.Initialize()
}

// Dispatch sends a command message through the global dispatcher.
func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

// Query sends a query message through the global dispatcher.
func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// AttachCommand registers a command handler and subscribes it on the
// dispatcher. Registration runs first so a rejected handler never receives
// dispatched messages.
func AttachCommand[T any](
	reg *HandlerRegistry,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if reg == nil || reg.base == nil {
		return nil, fmt.Errorf("gocommand: handler registry is not initialized")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command handler is required")
	}
	if err := reg.RegisterCommand(cmd); err != nil {
		return nil, err
	}
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...), nil
}

// AttachQuery is AttachCommand for query handlers.
func AttachQuery[T any, R any](
	reg *HandlerRegistry,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if reg == nil || reg.base == nil {
		return nil, fmt.Errorf("gocommand: handler registry is not initialized")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query handler is required")
	}
	if err := reg.RegisterQuery(qry); err != nil {
		return nil, err
	}
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...), nil
}

// SubscribeBrokerCommands attaches every broker mutation handler to one
// registry. On failure the subscriptions made so far are rolled back before
// the error is returned.
func SubscribeBrokerCommands(
	reg *HandlerRegistry,
	service brokercommand.MutatingService,
	runnerOpts ...runner.Option,
) ([]commanddispatcher.Subscription, error) {
	if service == nil {
		return nil, fmt.Errorf("gocommand: mutating service is required")
	}
	return attachAll([]attachFunc{
		func() (commanddispatcher.Subscription, error) {
			return AttachCommand(reg, brokercommand.NewRefreshCommand(service), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return AttachCommand(reg, brokercommand.NewRevokeCommand(service), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return AttachCommand(reg, brokercommand.NewSaveCredentialCommand(service), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return AttachCommand(reg, brokercommand.NewCompleteAuthorizationCommand(service), runnerOpts...)
		},
	})
}

// SubscribeBrokerQueries attaches every broker read handler. Session
// issuance goes through issuer, credential reads through reader.
func SubscribeBrokerQueries(
	reg *HandlerRegistry,
	issuer brokerquery.SessionIssuer,
	reader brokerquery.CredentialReader,
	runnerOpts ...runner.Option,
) ([]commanddispatcher.Subscription, error) {
	if issuer == nil {
		return nil, fmt.Errorf("gocommand: session issuer is required")
	}
	if reader == nil {
		return nil, fmt.Errorf("gocommand: credential reader is required")
	}
	return attachAll([]attachFunc{
		func() (commanddispatcher.Subscription, error) {
			return AttachQuery(reg, brokerquery.NewStartSessionQuery(issuer), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return AttachQuery(reg, brokerquery.NewJoinSessionQuery(issuer), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return AttachQuery(reg, brokerquery.NewBatchJoinQuery(issuer), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return AttachQuery(reg, brokerquery.NewSetupSessionQuery(issuer), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return AttachQuery(reg, brokerquery.NewResolveAccessTokenQuery(reader), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return AttachQuery(reg, brokerquery.NewCredentialStatusQuery(reader), runnerOpts...)
		},
	})
}

type attachFunc func() (commanddispatcher.Subscription, error)

// attachAll stops at the first failure and detaches everything attached
// before it, so a partial bundle never serves traffic.
func attachAll(attachers []attachFunc) ([]commanddispatcher.Subscription, error) {
	subscriptions := make([]commanddispatcher.Subscription, 0, len(attachers))
	for _, attach := range attachers {
		sub, err := attach()
		if err != nil {
			Unsubscribe(subscriptions)
			return nil, err
		}
		subscriptions = append(subscriptions, sub)
	}
	return subscriptions, nil
}

// Unsubscribe detaches every subscription in the slice, skipping nils.
func Unsubscribe(subscriptions []commanddispatcher.Subscription) {
	for _, sub := range subscriptions {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}
