package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations

	"github.com/taskorchestrator/engine/pkg/config"
	"github.com/taskorchestrator/engine/pkg/database"
	"github.com/taskorchestrator/engine/pkg/handlers"
	"github.com/taskorchestrator/engine/pkg/logging"
	"github.com/taskorchestrator/engine/pkg/mcp"
	"github.com/taskorchestrator/engine/pkg/mcp/tools"
	"github.com/taskorchestrator/engine/pkg/middleware"
	"github.com/taskorchestrator/engine/pkg/repositories"
	"github.com/taskorchestrator/engine/pkg/services"
	"go.uber.org/zap"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("bind_addr", cfg.BindAddr),
		zap.String("port", cfg.Port),
		zap.String("workdir", cfg.Workdir),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.DSN())),
	)

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.DSN(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database",
			zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations",
			zap.String("error", logging.SanitizeError(err)))
	}

	// Repositories
	projects := repositories.NewProjectRepository(db)
	features := repositories.NewFeatureRepository(db)
	taskRepo := repositories.NewTaskRepository(db)
	sections := repositories.NewSectionRepository(db)
	deps := repositories.NewDependencyRepository(db)
	roleTransitions := repositories.NewRoleTransitionRepository(db)

	// Workflow services
	flows := config.NewWorkflowConfigLoader(cfg.Workdir, logger)
	validator := services.NewStatusValidator(flows, taskRepo, features, deps, logger)
	progression := services.NewStatusProgressionService(flows, validator, taskRepo, deps, logger)
	gate := services.NewVerificationGate(sections, logger)
	cascades := services.NewCascadeService(flows, validator, progression, gate, projects, features, taskRepo, deps, logger)
	orchestrator := services.NewTransitionOrchestrator(
		flows, validator, progression, gate, cascades,
		projects, features, taskRepo, roleTransitions, logger)

	// MCP server and tools
	mcpServer := mcp.NewServer("taskorchestrator-engine", cfg.Version, logger)
	tools.RegisterWorkflowTools(mcpServer.MCP(), &tools.WorkflowToolDeps{
		Orchestrator: orchestrator,
		Progression:  progression,
		Validator:    validator,
		Entities:     services.NewEntityReader(projects, features, taskRepo),
		Logger:       logger,
	})

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting taskorchestrator-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version),
	)
	if err := http.ListenAndServe(addr, middleware.RequestLogger(logger)(mux)); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

// runMigrations applies pending schema migrations over a short-lived
// database/sql connection, as golang-migrate requires.
func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return database.RunMigrations(sqlDB, cfg.MigrationsPath, logger)
}
