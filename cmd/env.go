package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/doclab/labrepair-cli/internal/extractor"
	"github.com/doclab/labrepair-cli/internal/reconcile"
	"github.com/doclab/labrepair-cli/internal/repair"
	"github.com/doclab/labrepair-cli/internal/resilience"
	"github.com/doclab/labrepair-cli/internal/store"
	"github.com/doclab/labrepair-cli/pkg/anthropic"
)

// env bundles the wired components commands operate on.
type env struct {
	Store     store.Store
	Coord     *repair.Coordinator
	Engine    *reconcile.Engine
	Pipeline  *extractor.Pipeline
	Reprocess *reconcile.Reprocessor
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "labrepair.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	repairCfg := repair.DefaultConfig()
	if cfg.Repair.KeywordsFile != "" {
		repairCfg, err = repair.LoadConfig(cfg.Repair.KeywordsFile)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	coord := repair.New(repairCfg)
	parser := extractor.NewParser(coord)

	var structurer extractor.Structurer
	if cfg.Anthropic.Key != "" {
		client := anthropic.NewClient(cfg.Anthropic.Key)
		retry := resilience.FromRetryConfig(cfg.Anthropic.MaxRetries)
		retry.OnRetry = resilience.RetryLogger("anthropic", "create_message")
		structurer = extractor.NewLLMStructurer(client, parser, extractor.LLMOptions{
			Model:             cfg.Anthropic.Model,
			MaxTokens:         cfg.Anthropic.MaxTokens,
			RequestsPerMinute: cfg.Anthropic.RequestsPerMinute,
			Retry:             retry,
			Breaker:           resilience.DefaultCircuitBreakerConfig(),
		})
	} else {
		zap.L().Info("no anthropic key configured, using deterministic parser")
		structurer = extractor.NewParserStructurer(parser)
	}

	pipeline := extractor.NewPipeline(st, structurer, coord.Cleaner())

	return &env{
		Store:     st,
		Coord:     coord,
		Engine:    reconcile.NewEngine(st, coord),
		Pipeline:  pipeline,
		Reprocess: reconcile.NewReprocessor(st, pipeline),
	}, nil
}
