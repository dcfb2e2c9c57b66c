// Package server assembles the modules, the event bus and the HTTP router
// into a runnable application.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/coursevault/internal/config"
	"github.com/mantonx/coursevault/internal/events"
	"github.com/mantonx/coursevault/internal/logger"
	"github.com/mantonx/coursevault/internal/middleware"
	"github.com/mantonx/coursevault/internal/modules/catalogmodule"
	"github.com/mantonx/coursevault/internal/modules/databasemodule"
	"github.com/mantonx/coursevault/internal/modules/modulemanager"
	"github.com/mantonx/coursevault/internal/modules/scannermodule"
	"gorm.io/gorm"
)

// Server owns the module registry, the system event bus and the HTTP listener
type Server struct {
	cfg      *config.Config
	db       *gorm.DB
	eventBus events.EventBus
	registry *modulemanager.ModuleRegistry

	scanner *scannermodule.Module
	catalog *catalogmodule.Module

	router     *gin.Engine
	httpServer *http.Server
	startedAt  time.Time
}

// New creates a server over an open, migrated database connection
func New(cfg *config.Config, db *gorm.DB) *Server {
	return &Server{
		cfg:      cfg,
		db:       db,
		registry: modulemanager.NewRegistry(),
	}
}

// Init starts the event bus, loads every module and builds the router
func (s *Server) Init(ctx context.Context) error {
	if err := s.initializeEventBus(ctx); err != nil {
		return err
	}

	s.scanner = scannermodule.NewModule(s.db, s.eventBus, s.cfg.Scanner)
	s.catalog = catalogmodule.NewModule(s.db, s.eventBus, s.cfg.Storage, s.scanner)

	s.registry.SetEventBus(s.eventBus)
	s.registry.Register(databasemodule.NewModule(s.db))
	s.registry.Register(s.scanner)
	s.registry.Register(s.catalog)

	if err := s.registry.LoadAll(s.db); err != nil {
		return fmt.Errorf("failed to initialize modules: %w", err)
	}
	s.logModuleStatus()

	s.router = s.SetupRouter()
	s.startedAt = time.Now()

	events.PublishAsync(s.eventBus, events.Event{
		Type:    events.EventSystemStarted,
		Source:  "server",
		Title:   "System Started",
		Message: fmt.Sprintf("%d modules loaded", len(s.registry.ListModules())),
	})
	return nil
}

// SetupRouter configures the middleware stack and every route
func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.ErrorLogger())
	if s.cfg.Server.EnableCORS {
		r.Use(middleware.CORS())
	}
	if len(s.cfg.Server.TrustedProxies) > 0 {
		if err := r.SetTrustedProxies(s.cfg.Server.TrustedProxies); err != nil {
			logger.Warn("Ignoring invalid trusted proxies", "error", err)
		}
	}

	s.setupRoutes(r)
	s.registry.RegisterRoutes(r)
	return r
}

// Router returns the router built by Init
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Scanner returns the scan dispatch module
func (s *Server) Scanner() *scannermodule.Module {
	return s.scanner
}

// Catalog returns the course catalog module
func (s *Server) Catalog() *catalogmodule.Module {
	return s.catalog
}

// EventBus returns the system event bus
func (s *Server) EventBus() events.EventBus {
	return s.eventBus
}

// ListenAndServe serves HTTP until Shutdown is called
func (s *Server) ListenAndServe() error {
	addr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
	s.httpServer = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    s.cfg.Server.ReadTimeout,
		WriteTimeout:   s.cfg.Server.WriteTimeout,
		MaxHeaderBytes: s.cfg.Server.MaxHeaderBytes,
	}

	logger.Info("HTTP server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains HTTP connections, then stops modules and the event bus
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if s.httpServer != nil {
		logger.Info("Shutting down HTTP server")
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}

	if err := s.registry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	if s.eventBus != nil {
		events.PublishAsync(s.eventBus, events.Event{
			Type:   events.EventSystemStopped,
			Source: "server",
			Title:  "System Stopped",
		})
		logger.Info("Shutting down event bus")
		if err := s.eventBus.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("event bus: %w", err))
		}
		events.SetGlobalEventBus(nil)
	}
	return errors.Join(errs...)
}

// initializeEventBus sets up the system-wide event bus
func (s *Server) initializeEventBus(ctx context.Context) error {
	cfg := events.DefaultEventBusConfig()
	cfg.BufferSize = 1000

	s.eventBus = events.NewEventBus(cfg, logger.Named("events"))
	if err := s.eventBus.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}
	events.SetGlobalEventBus(s.eventBus)

	logger.Info("System event bus started", "buffer_size", cfg.BufferSize)
	return nil
}

// logModuleStatus logs the loaded modules in init order
func (s *Server) logModuleStatus() {
	modules := s.registry.ListModules()
	logger.Info("Module system initialized", "modules", len(modules))
	for _, module := range modules {
		logger.Debug("Module loaded", "id", module.ID(), "name", module.Name(), "core", module.Core())
	}
}
