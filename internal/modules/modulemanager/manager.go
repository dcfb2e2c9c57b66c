package modulemanager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/coursevault/internal/events"
	"github.com/mantonx/coursevault/internal/logger"
	"gorm.io/gorm"
)

// Module defines the interface that all modules must implement
type Module interface {
	ID() string                // Unique identifier for the module
	Name() string              // Display name for the module
	Core() bool                // Whether this is a core module (cannot be disabled)
	Migrate(db *gorm.DB) error // Run database migrations
	Init() error               // Initialize the module
}

// RouteRegistrar is an optional interface for modules that need to register routes
type RouteRegistrar interface {
	RegisterRoutes(router *gin.Engine)
}

// ModuleRegistry manages module registration and initialization
type ModuleRegistry struct {
	modules         map[string]Module
	disabledModules map[string]bool
	initOrder       []Module
	mu              sync.RWMutex
	initialized     bool
	eventBus        events.EventBus
}

// NewRegistry creates an empty registry
func NewRegistry() *ModuleRegistry {
	return &ModuleRegistry{
		modules:         make(map[string]Module),
		disabledModules: make(map[string]bool),
	}
}

// SetEventBus announces module lifecycle changes on bus
func (r *ModuleRegistry) SetEventBus(bus events.EventBus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventBus = bus
}

// Register adds a module to the registry
func (r *ModuleRegistry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		logger.Warn("Module registered after initialization", "module", m.ID())
	}

	r.modules[m.ID()] = m
	logger.Debug("Module registered", "module", m.ID(), "name", m.Name())
}

// LoadAll migrates and initializes every enabled module in dependency order
func (r *ModuleRegistry) LoadAll(db *gorm.DB) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		logger.Warn("Module system already initialized")
		return nil
	}

	enabledModules := make(map[string]Module)
	for id, module := range r.modules {
		if r.disabledModules[id] {
			if module.Core() {
				return fmt.Errorf("attempted to disable core module: %s", id)
			}
			logger.Warn("Skipping disabled module", "module", id)
			continue
		}
		enabledModules[id] = module
	}

	depGraph, err := BuildDependencyGraph(enabledModules)
	if err != nil {
		return fmt.Errorf("failed to build dependency graph: %w", err)
	}

	initOrder, err := depGraph.GetInitializationOrder()
	if err != nil {
		return fmt.Errorf("failed to determine initialization order: %w", err)
	}

	for i, module := range initOrder {
		logger.Info("Initializing module", "step", fmt.Sprintf("%d/%d", i+1, len(initOrder)), "module", module.Name())

		if err := module.Migrate(db); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", module.Name(), err)
		}
		if err := module.Init(); err != nil {
			events.PublishAsync(r.eventBus, events.NewModuleErrorEvent(module.ID(), module.Name(), err))
			return fmt.Errorf("failed to initialize %s: %w", module.Name(), err)
		}
		events.PublishAsync(r.eventBus, events.NewModuleLifecycleEvent(events.EventModuleInitialized, module.ID(), module.Name(), "initialized"))
	}

	r.initOrder = initOrder
	r.initialized = true
	return nil
}

// DisableModule marks a non-core module as disabled
func (r *ModuleRegistry) DisableModule(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	module, exists := r.modules[id]
	if !exists {
		logger.Warn("Attempted to disable non-existent module", "module", id)
		return
	}
	if module.Core() {
		logger.Error("Cannot disable core module", "module", id)
		return
	}

	r.disabledModules[id] = true
}

// EnableModule enables a previously disabled module
func (r *ModuleRegistry) EnableModule(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.disabledModules, id)
}

// GetModule returns a module by ID
func (r *ModuleRegistry) GetModule(id string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	module, exists := r.modules[id]
	return module, exists
}

// ListModules returns the initialized modules in init order, or every
// registered module before LoadAll.
func (r *ModuleRegistry) ListModules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.initialized {
		return append([]Module(nil), r.initOrder...)
	}
	modules := make([]Module, 0, len(r.modules))
	for _, module := range r.modules {
		modules = append(modules, module)
	}
	return modules
}

// RegisterRoutes registers routes for all modules that implement RouteRegistrar
func (r *ModuleRegistry) RegisterRoutes(router *gin.Engine) {
	for _, module := range r.ListModules() {
		if routeRegistrar, ok := module.(RouteRegistrar); ok {
			logger.Debug("Registering routes", "module", module.ID())
			routeRegistrar.RegisterRoutes(router)
		}
	}
}

// HealthCheck collects the health of every module implementing HealthChecker
func (r *ModuleRegistry) HealthCheck(ctx context.Context) map[string]HealthStatus {
	results := make(map[string]HealthStatus)
	for _, module := range r.ListModules() {
		if checker, ok := module.(HealthChecker); ok {
			results[module.ID()] = checker.HealthCheck(ctx)
		}
	}
	return results
}

// Shutdown stops modules in reverse init order and joins their errors
func (r *ModuleRegistry) Shutdown(ctx context.Context) error {
	modules := r.ListModules()

	var errs []error
	for i := len(modules) - 1; i >= 0; i-- {
		stopper, ok := modules[i].(Shutdowner)
		if !ok {
			continue
		}
		if err := stopper.Shutdown(ctx); err != nil {
			logger.Error("Module shutdown failed", "module", modules[i].ID(), "error", err)
			events.PublishAsync(r.eventBus, events.NewModuleErrorEvent(modules[i].ID(), modules[i].Name(), err))
			errs = append(errs, fmt.Errorf("%s: %w", modules[i].ID(), err))
			continue
		}
		events.PublishAsync(r.eventBus, events.NewModuleLifecycleEvent(events.EventModuleStopped, modules[i].ID(), modules[i].Name(), "stopped"))
	}
	return errors.Join(errs...)
}
