package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/traits/adapters/metrics"
	"github.com/artpar/traits/core/events"
	"github.com/artpar/traits/core/manifest"
	"github.com/artpar/traits/core/registry"
)

// Runtime holds the world built from the current manifest. Every load
// builds into a fresh registry, so a reload never mixes old and new roles.
type Runtime struct {
	// loadMu serializes Load from parse to swap
	loadMu sync.Mutex

	mu       sync.RWMutex
	world    *manifest.World
	path     string
	loadedAt time.Time

	ctx     context.Context
	bus     *events.Bus
	metrics *metrics.Collector
	logger  zerolog.Logger
}

// NewRuntime creates an empty runtime. bus and m may be nil.
func NewRuntime(ctx context.Context, bus *events.Bus, m *metrics.Collector, logger zerolog.Logger) *Runtime {
	return &Runtime{
		ctx:     ctx,
		bus:     bus,
		metrics: m,
		logger:  logger,
	}
}

// Load parses and builds the manifest at path and makes it current.
//
// A manifest that cannot be read or parsed leaves the current world in
// place. A manifest that parses but has build problems still replaces it;
// the problems are returned and remain visible in World().Results.
func (rt *Runtime) Load(path string) (*manifest.World, error) {
	rt.loadMu.Lock()
	defer rt.loadMu.Unlock()

	m, err := manifest.Load(path)
	if err != nil {
		rt.recordBuild(err)
		rt.logger.Error().Err(err).Str("path", path).Msg("manifest load failed, keeping current roles")
		return nil, err
	}

	if rt.metrics != nil {
		rt.metrics.ResetRoles()
	}
	world, buildErr := m.Build(rt.newRegistry())
	rt.recordBuild(buildErr)

	rt.mu.Lock()
	rt.world = world
	rt.path = path
	rt.loadedAt = time.Now()
	rt.mu.Unlock()

	var be *manifest.BuildError
	if errors.As(buildErr, &be) {
		rt.logger.Warn().
			Str("path", path).
			Int("problems", len(be.Problems)).
			Msg("manifest built with problems")
		return world, buildErr
	}
	if buildErr != nil {
		return world, fmt.Errorf("build manifest: %w", buildErr)
	}

	rt.logger.Info().
		Str("path", path).
		Int("classes", len(world.ClassNames())).
		Int("roles", len(world.RoleNames())).
		Msg("manifest loaded")
	return world, nil
}

// World returns the current world, or nil before the first load.
func (rt *Runtime) World() *manifest.World {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.world
}

// Path returns the path of the current manifest.
func (rt *Runtime) Path() string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.path
}

// LoadedAt returns when the current world was built.
func (rt *Runtime) LoadedAt() time.Time {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.loadedAt
}

func (rt *Runtime) newRegistry() *registry.Registry {
	opts := []registry.Option{registry.WithLogger(rt.logger)}
	if rt.metrics != nil {
		opts = append(opts, registry.WithObserver(rt.metrics))
	}
	if rt.bus != nil {
		opts = append(opts, registry.WithObserver(events.NewForwarder(rt.ctx, rt.bus)))
	}
	return registry.New(opts...)
}

func (rt *Runtime) recordBuild(err error) {
	if rt.metrics != nil {
		rt.metrics.RecordBuild(err)
	}
}
