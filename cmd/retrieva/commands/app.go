package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/haivivi/retrieva/go/pkg/answer"
	"github.com/haivivi/retrieva/go/pkg/cli"
	"github.com/haivivi/retrieva/go/pkg/embed"
	"github.com/haivivi/retrieva/go/pkg/ingest"
	"github.com/haivivi/retrieva/go/pkg/kv"
	"github.com/haivivi/retrieva/go/pkg/session"
	"github.com/haivivi/retrieva/go/pkg/storage"
)

// app is the set of resources a command works with, opened from the
// configuration.
type app struct {
	cfg      *cli.Config
	layout   cli.DataLayout
	logger   *slog.Logger
	meta     kv.Store
	embedder embed.Embedder
	registry *session.Registry
}

// openApp opens the session table, snapshot storage, embedder and
// registry. The caller must Close the app.
func openApp(ctx context.Context) (_ *app, err error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:    cfg,
		layout: cli.DataLayout{Root: cfg.ResolveDataDir()},
		logger: slog.Default(),
	}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	if err := a.layout.Ensure(); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if a.meta, err = openMeta(cfg, a.layout, a.logger); err != nil {
		return nil, err
	}
	files, err := openFiles(cfg, a.layout)
	if err != nil {
		return nil, err
	}
	if a.embedder, err = newEmbedder(cfg); err != nil {
		return nil, err
	}
	a.registry, err = session.Open(ctx, session.Config{
		Meta:     a.meta,
		Files:    files,
		Embedder: a.embedder,
		Logger:   a.logger,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debug("opened data dir", "dir", a.layout.Root,
		"metadata", cfg.Metadata.Backend, "storage", cfg.Storage.Backend)
	return a, nil
}

// Close flushes the registry, then releases the embedder and the session
// table.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.registry != nil {
		errs = append(errs, a.registry.Close(ctx))
	}
	errs = append(errs, a.closeResources())
	return errors.Join(errs...)
}

func (a *app) closeResources() error {
	var errs []error
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.meta != nil {
		errs = append(errs, a.meta.Close())
	}
	return errors.Join(errs...)
}

func openMeta(cfg *cli.Config, layout cli.DataLayout, logger *slog.Logger) (kv.Store, error) {
	switch cfg.Metadata.Backend {
	case "", cli.BackendBadger:
		db, err := kv.NewBadger(kv.BadgerOptions{Dir: layout.MetadataDir(), Logger: logger})
		if err != nil {
			return nil, err
		}
		return db, nil
	case cli.BackendBolt:
		db, err := kv.NewBolt(kv.BoltOptions{Path: layout.MetadataFile()})
		if err != nil {
			return nil, err
		}
		return db, nil
	case cli.BackendMemory:
		return kv.NewMemory(nil), nil
	default:
		return nil, fmt.Errorf("unknown metadata backend %q", cfg.Metadata.Backend)
	}
}

func openFiles(cfg *cli.Config, layout cli.DataLayout) (storage.FileStore, error) {
	s := cfg.Storage
	switch s.Backend {
	case "", cli.StorageLocal:
		return storage.NewLocal(layout.SessionsDir())
	case cli.StorageS3:
		client := storage.NewS3Client(storage.S3Config{
			Region:          s.Region,
			Endpoint:        s.Endpoint,
			AccessKeyID:     s.AccessKeyID,
			SecretAccessKey: s.SecretAccessKey,
			PathStyle:       s.PathStyle,
		})
		return storage.NewS3(client, s.Bucket, s.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", s.Backend)
	}
}

func newEmbedder(cfg *cli.Config) (embed.Embedder, error) {
	e := cfg.Embedder
	var opts []embed.Option
	if e.Model != "" {
		opts = append(opts, embed.WithModel(e.Model))
	}
	if e.Dimension > 0 {
		opts = append(opts, embed.WithDimension(e.Dimension))
	}
	if e.BaseURL != "" {
		opts = append(opts, embed.WithBaseURL(e.BaseURL))
	}
	if (e.Provider == embed.ProviderOpenAI || e.Provider == embed.ProviderDashScope) && e.APIKey == "" {
		return nil, fmt.Errorf("embedder %s needs an API key", e.Provider)
	}
	return embed.New(e.Provider, e.APIKey, opts...)
}

// newGenerator returns nil, without error, when no provider key is set.
func newGenerator(ctx context.Context, cfg *cli.Config, logger *slog.Logger) (answer.Generator, error) {
	g := cfg.Generation
	gen, err := answer.New(ctx, answer.Config{
		GeminiAPIKey: g.GeminiAPIKey,
		GeminiModel:  g.GeminiModel,
		OpenAIAPIKey: g.OpenAIAPIKey,
		OpenAIModel:  g.OpenAIModel,
		MaxAttempts:  g.MaxRetries,
		Logger:       logger,
	})
	if errors.Is(err, answer.ErrNoProvider) {
		return nil, nil
	}
	return gen, err
}

func splitOptions(cfg *cli.Config) []ingest.SplitOption {
	var opts []ingest.SplitOption
	if cfg.Chunk.Size > 0 {
		opts = append(opts, ingest.WithChunkSize(cfg.Chunk.Size))
	}
	if cfg.Chunk.Overlap > 0 {
		opts = append(opts, ingest.WithOverlap(cfg.Chunk.Overlap))
	}
	return opts
}

func searchK(cfg *cli.Config, flag int) int {
	if flag > 0 {
		return flag
	}
	if cfg.Search.K > 0 {
		return cfg.Search.K
	}
	return session.DefaultK
}
