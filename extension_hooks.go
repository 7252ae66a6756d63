package tokenbroker

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/goliatone/go-token-broker/adapters/gojob"
	"github.com/goliatone/go-token-broker/core"

	"github.com/goliatone/go-job/queue/worker"
)

// WorkerHookPack is a named set of observation hooks a host hangs on the
// refresh job pipeline.
type WorkerHookPack struct {
	Name  string
	Hooks []core.JobWorkerHook
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks collects host-supplied extensions before the broker is
// assembled: worker hook packs for the job pipeline and named command/query
// bundles built over the facade service.
type ExtensionHooks struct {
	mu sync.RWMutex

	workerHookPacks map[string]WorkerHookPack
	bundles         map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		workerHookPacks: map[string]WorkerHookPack{},
		bundles:         map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterWorkerHookPack(pack WorkerHookPack) error {
	if h == nil {
		return fmt.Errorf("tokenbroker: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("tokenbroker: worker hook pack name is required")
	}
	if len(pack.Hooks) == 0 {
		return fmt.Errorf("tokenbroker: worker hook pack %q has no hooks", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.workerHookPacks[name]; exists {
		return fmt.Errorf("tokenbroker: worker hook pack %q already registered", name)
	}
	h.workerHookPacks[name] = WorkerHookPack{
		Name:  name,
		Hooks: slices.Clone(pack.Hooks),
	}
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("tokenbroker: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("tokenbroker: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("tokenbroker: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("tokenbroker: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// WorkerHooks flattens every registered pack into go-job worker hooks in
// deterministic pack-name order.
func (h *ExtensionHooks) WorkerHooks() ([]worker.Hook, error) {
	if h == nil {
		return nil, nil
	}

	packs := h.WorkerHookPacks()
	out := make([]worker.Hook, 0, len(packs))
	for _, pack := range packs {
		for _, hook := range pack.Hooks {
			if hook == nil {
				return nil, fmt.Errorf("tokenbroker: worker hook pack %q contains nil hook", pack.Name)
			}
			out = append(out, gojob.NewWorkerHook(hook))
		}
	}
	return out, nil
}

// BuildCommandQueryBundles runs every registered factory against the given
// service in bundle-name order. Factories run outside the lock, so a slow
// bundle build never blocks registration.
func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("tokenbroker: command/query service is required")
	}

	h.mu.RLock()
	factories := maps.Clone(h.bundles)
	h.mu.RUnlock()

	result := make(map[string]any, len(factories))
	for _, name := range slices.Sorted(maps.Keys(factories)) {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) WorkerHookPacks() []WorkerHookPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]WorkerHookPack, 0, len(h.workerHookPacks))
	for _, name := range slices.Sorted(maps.Keys(h.workerHookPacks)) {
		pack := h.workerHookPacks[name]
		out = append(out, WorkerHookPack{
			Name:  pack.Name,
			Hooks: slices.Clone(pack.Hooks),
		})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Sorted(maps.Keys(h.bundles))
}
