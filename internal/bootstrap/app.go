package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"content-indexer/internal/ai"
	"content-indexer/internal/app"
	"content-indexer/internal/cache"
	"content-indexer/internal/config"
	"content-indexer/internal/platform/database"
	rabbitmqClient "content-indexer/internal/platform/rabbitmq"
	redisClient "content-indexer/internal/platform/redis"
	"content-indexer/internal/repository"
	"content-indexer/internal/worker"
)

type App struct {
	Config       *config.Config
	Log          *zap.Logger
	DB           *gorm.DB
	Redis        *redis.Client
	MQConn       *amqp.Connection
	Publisher    *rabbitmqClient.Publisher
	Chunks       *repository.ChunkRepository
	Indexer      *app.IndexService
	ReloadWorker *worker.ReloadWorker

	StartedAt time.Time
}

type Options struct {
	// StartWorker consumes reload requests when RabbitMQ is enabled.
	StartWorker bool
}

// New connects the configured infrastructure and assembles the index service.
// Redis and RabbitMQ are optional and stay nil when disabled.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (a *App, err error) {
	a = &App{
		Config:    cfg,
		Log:       log,
		StartedAt: time.Now(),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	a.DB, err = database.New(ctx, cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		return a, err
	}
	a.Chunks = repository.NewChunkRepository(a.DB)

	var embedOpts []ai.Option
	if cfg.Redis.Enabled {
		a.Redis, err = redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return a, err
		}
		embedOpts = append(embedOpts, ai.WithCache(cache.NewEmbeddingCache(a.Redis, cfg.Redis.EmbeddingTTL)))
	}

	var publisher app.ReloadPublisher
	if cfg.RabbitMQ.Enabled {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.ReloadQueue, cfg.RabbitMQ.EventsQueue)
		if err != nil {
			return a, err
		}
		a.Publisher = rabbitmqClient.NewPublisher(a.MQConn, cfg.RabbitMQ.ReloadQueue, cfg.RabbitMQ.EventsQueue)
		publisher = a.Publisher
	}

	embedder := ai.NewEmbeddingClient(ai.EmbeddingConfig{
		BaseURL:         cfg.Embedding.BaseURL,
		APIKey:          cfg.Embedding.APIKey,
		Model:           cfg.Embedding.Model,
		Dimensions:      cfg.Embedding.Dimensions,
		BatchSize:       cfg.Embedding.BatchSize,
		RateLimitDelay:  cfg.Embedding.RateLimitDelay,
		InterBatchDelay: cfg.Embedding.InterBatchDelay,
		Timeout:         cfg.Embedding.Timeout,
	}, log.Named("embedding"), embedOpts...)

	loader := app.NewLoader(a.Chunks, app.LoaderConfig{
		Kind:            cfg.Index.Kind,
		SourceFile:      cfg.Source.SourceFile,
		Dimensions:      cfg.Embedding.Dimensions,
		InsertBatchSize: cfg.Index.InsertBatchSize,
		Transactional:   cfg.Index.Transactional,
	}, log.Named("loader"))
	validator := app.NewValidator(a.Chunks, cfg.Index.Kind, log.Named("validator"))

	a.Indexer = app.NewIndexService(app.IndexConfig{
		SourcePath:       cfg.Source.Path,
		Kind:             cfg.Index.Kind,
		StrictSectionIDs: cfg.Index.StrictSectionIDs,
	}, embedder, loader, validator, publisher, log.Named("indexer"))

	if opts.StartWorker && a.MQConn != nil {
		a.ReloadWorker = worker.NewReloadWorker(a.MQConn, a.Indexer, cfg.RabbitMQ.ReloadQueue, log.Named("worker"))
		if err = a.ReloadWorker.Start(ctx); err != nil {
			return a, fmt.Errorf("start reload worker failed: %w", err)
		}
	}

	return a, nil
}

func (a *App) Close() error {
	var errs []error
	if a.ReloadWorker != nil {
		a.ReloadWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if err := database.Close(a.DB); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
