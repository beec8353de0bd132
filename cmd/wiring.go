package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/verify-cli/internal/extractor"
	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/store"
	"github.com/sells-group/verify-cli/internal/strategy"
	"github.com/sells-group/verify-cli/internal/verify"
	"github.com/sells-group/verify-cli/pkg/anthropic"
	"github.com/sells-group/verify-cli/pkg/emailcheck"
	"github.com/sells-group/verify-cli/pkg/reader"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "verify.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initGate(fields *model.FieldRegistry) *verify.Gate {
	opts := []verify.GateOption{
		verify.WithUnverifiedPenalty(cfg.Gate.UnverifiedPenalty),
	}
	if cfg.Gate.JudgeEnabled && cfg.Anthropic.Key != "" {
		judge := verify.NewModelJudge(
			anthropic.NewClient(cfg.Anthropic.Key),
			cfg.Anthropic.JudgeModel,
			30*time.Second,
		)
		opts = append(opts, verify.WithJudge(judge))
	}
	return verify.NewGate(fields, opts...)
}

func initSelector(st store.Store) (*strategy.Selector, error) {
	table := strategy.DefaultTable()
	if cfg.Strategy.TablePath != "" {
		loaded, err := strategy.LoadTable(cfg.Strategy.TablePath)
		if err != nil {
			return nil, eris.Wrap(err, "load strategy table")
		}
		table = loaded
	}
	return strategy.NewSelector(table, st), nil
}

func initMethods() *extractor.Registry {
	registry := extractor.NewRegistry()
	if cfg.EmailCheck.Key != "" {
		client := emailcheck.NewClient(cfg.EmailCheck.Key, emailcheck.WithBaseURL(cfg.EmailCheck.BaseURL))
		registry.Register(extractor.NewEmailVerifier(client))
	}
	if cfg.Reader.Key != "" {
		client := reader.NewClient(cfg.Reader.Key, reader.WithBaseURL(cfg.Reader.BaseURL))
		registry.Register(extractor.NewSiteCrawler(client))
	}
	registry.Register(extractor.NewResearcher(
		anthropic.NewClient(cfg.Anthropic.Key),
		cfg.Anthropic.ResearchModel,
		time.Duration(cfg.Retry.ResearchSecs)*time.Second,
	))
	return registry
}
