// Package app wires configuration, storage, the model runtime, and the HTTP
// server into a runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatewise/gatewise/db"
	"github.com/gatewise/gatewise/internal/agent"
	"github.com/gatewise/gatewise/internal/api"
	"github.com/gatewise/gatewise/internal/catalog"
	"github.com/gatewise/gatewise/internal/chat"
	"github.com/gatewise/gatewise/internal/config"
	"github.com/gatewise/gatewise/internal/identity"
	"github.com/gatewise/gatewise/internal/registry"
)

// shutdownTimeout bounds session disposal at shutdown.
const shutdownTimeout = 10 * time.Second

// App holds the wired application.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Pool     *pgxpool.Pool
	Genkit   *genkit.Genkit
	Registry *registry.Registry

	server *api.Server
}

// Setup builds the full dependency graph: runs migrations, connects the
// pool, initializes Genkit with the Google AI plugin, and wires catalog,
// factory, registry, pipeline, and HTTP server.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)

	store := catalog.NewStore(pool)
	searcher := catalog.NewSearcher(store, embedder, logger)

	factory, err := agent.NewFactory(agent.FactoryConfig{
		Genkit:    g,
		Retriever: searcher,
		Logger:    logger,
		ModelName: cfg.ModelName,
		MaxTurns:  cfg.MaxTurns,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating agent factory: %w", err)
	}

	reg := registry.New(factory, logger)
	pipeline := chat.NewPipeline(reg, logger)
	verifier := identity.NewJWTVerifier(cfg.ClientID, []byte(cfg.CookieSecret))

	server, err := api.NewServer(api.ServerConfig{
		Logger:       logger,
		Sessions:     reg,
		Chat:         pipeline,
		Search:       searcher,
		Verifier:     verifier,
		ClientID:     cfg.ClientID,
		CookieSecret: []byte(cfg.CookieSecret),
		IsDev:        cfg.IsDev(),
		TrustProxy:   cfg.TrustProxy,
		RateBurst:    cfg.RateBurst,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating http server: %w", err)
	}

	logger.Info("application wired",
		"model", cfg.ModelName,
		"embedder", cfg.EmbedderModel,
		"addr", cfg.Addr(),
	)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Pool:     pool,
		Genkit:   g,
		Registry: reg,
		server:   server,
	}, nil
}

// Handler returns the HTTP handler for serving.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Close releases all sessions and the database pool. Disposal is bounded;
// release failures are logged, never propagated, so shutdown always
// completes.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.Registry.DisposeAll(ctx); err != nil {
		a.Logger.Warn("disposing sessions at shutdown", "error", err)
	}
	a.Pool.Close()
	a.Logger.Info("application closed")
}

// newPool creates the pgx connection pool and verifies connectivity.
func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}
