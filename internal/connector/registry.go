// Package connector is the seam between the engine and its per-service
// adapters. Concrete connectors live outside this repository; they register
// a factory here (usually from an init func) and are selected by name in the
// engine's configuration.
package connector

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"sync_engine/internal/config"
	"sync_engine/internal/domain"
	"sync_engine/internal/engine"
)

// Factory builds one connector from its configuration section.
type Factory func(cfg config.ConnectorConfig, logger *slog.Logger) (engine.Connector, error)

var (
	mu        sync.Mutex
	factories = make(map[string]Factory)
)

// Register installs a factory under a connector name. Registering the same
// name twice panics; it is a wiring bug, not a runtime condition.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("connector %q registered twice", name))
	}
	factories[name] = f
}

// Open builds the connector named in cfg.
func Open(cfg config.ConnectorConfig, logger *slog.Logger) (engine.Connector, error) {
	mu.Lock()
	f, ok := factories[cfg.Name]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", domain.ErrUnknownConnector, cfg.Name, Names())
	}
	return f(cfg, logger)
}

// Names lists the registered connector names, sorted.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
