// Package app builds the dependency graph shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/voss-go/internal/config"
	"github.com/raphaelgruber/voss-go/internal/db"
	"github.com/raphaelgruber/voss-go/internal/llm"
	"github.com/raphaelgruber/voss-go/internal/memory"
	"github.com/raphaelgruber/voss-go/internal/metrics"
	"github.com/raphaelgruber/voss-go/internal/prompt"
	"github.com/raphaelgruber/voss-go/internal/service"
)

// Options selects which provider clients to build. Commands that only read
// the store skip both.
type Options struct {
	Embeddings bool
	Completion bool
}

// App holds the wired dependencies. Fields for providers not requested in
// Options are nil.
type App struct {
	Config       config.Config
	DB           *db.Client
	Metrics      *metrics.Collector
	Identity     *service.IdentityService
	Memory       *memory.Store
	Conversation *service.ConversationService
	Vocabulary   *service.Vocabulary
}

// DBConfig maps the environment config onto the store client config.
func DBConfig(cfg config.Config) db.Config {
	return db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
		Timeout:   cfg.StoreTimeout,
	}
}

// New connects to the store, applies the schema and builds the services.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mc := metrics.NewCollector()

	vocab, err := service.LoadVocabulary(cfg.SymbolsFile)
	if err != nil {
		return nil, err
	}

	dbClient, err := db.NewClient(ctx, DBConfig(cfg), logger, mc)
	if err != nil {
		return nil, err
	}

	if err := dbClient.InitSchema(ctx, cfg.EmbedDimension); err != nil {
		_ = dbClient.Close(ctx)
		return nil, fmt.Errorf("init schema: %w", err)
	}

	a := &App{
		Config:     cfg,
		DB:         dbClient,
		Metrics:    mc,
		Identity:   service.NewIdentityService(dbClient, cfg.SessionTTL, logger),
		Vocabulary: vocab,
	}

	if opts.Embeddings || opts.Completion {
		embedder, err := llm.NewEmbedder(cfg, mc)
		if err != nil {
			_ = dbClient.Close(ctx)
			return nil, err
		}
		a.Memory = memory.NewStore(embedder, dbClient, memory.Config{
			TopK:       cfg.EchoLimit,
			Candidates: cfg.MemoryCandidates,
		}, logger, mc)
	}

	if opts.Completion {
		model, err := llm.NewModel(ctx, cfg, mc)
		if err != nil {
			_ = dbClient.Close(ctx)
			return nil, err
		}
		a.Conversation = service.NewConversationService(dbClient, a.Memory, model, service.ConversationConfig{
			EchoLimit: cfg.EchoLimit,
			Assembler: prompt.Assembler{
				Order:         prompt.ParseEchoOrder(cfg.EchoOrder),
				HistoryWindow: cfg.HistoryWindow,
			},
			Vocabulary: vocab,
		}, logger)
	}

	return a, nil
}

// Close closes all connections.
func (a *App) Close(ctx context.Context) error {
	if a.DB != nil {
		return a.DB.Close(ctx)
	}
	return nil
}

// WipeData deletes all data from the database. Use for testing only.
func (a *App) WipeData(ctx context.Context) error {
	return a.DB.WipeData(ctx)
}
