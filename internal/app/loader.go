package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"content-indexer/internal/model"
	"content-indexer/internal/repository"
)

type LoaderConfig struct {
	Kind            string
	SourceFile      string
	Dimensions      int
	InsertBatchSize int
	// Transactional wraps the delete and all inserts in one transaction so
	// readers never see an empty or partial index.
	Transactional bool
}

type LoadResult struct {
	Deleted  int64 `json:"deleted"`
	Inserted int64 `json:"inserted"`
}

// Loader replaces every row of its kind with a fresh set on each run.
type Loader struct {
	repo *repository.ChunkRepository
	cfg  LoaderConfig
	log  *zap.Logger
}

func NewLoader(repo *repository.ChunkRepository, cfg LoaderConfig, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{
		repo: repo,
		cfg:  cfg,
		log:  log,
	}
}

func (l *Loader) EnsureSchema(ctx context.Context) error {
	return l.repo.EnsureSchema(ctx, l.cfg.Dimensions)
}

// Load performs the full reload for the given sections and their vectors.
func (l *Loader) Load(ctx context.Context, sections []model.Section, contentVectors, questionVectors [][]float32) (LoadResult, error) {
	chunks, err := Assemble(sections, contentVectors, questionVectors, ChunkMeta{
		Kind:       l.cfg.Kind,
		SourceFile: l.cfg.SourceFile,
	})
	if err != nil {
		return LoadResult{}, err
	}

	if err := l.EnsureSchema(ctx); err != nil {
		return LoadResult{}, err
	}

	var result LoadResult
	if l.cfg.Transactional {
		err = l.repo.Transaction(ctx, func(tx *repository.ChunkRepository) error {
			var txErr error
			result, txErr = l.replace(ctx, tx, chunks)
			return txErr
		})
		if err != nil {
			// rolled back, nothing changed
			result = LoadResult{}
		}
	} else {
		result, err = l.replace(ctx, l.repo, chunks)
	}
	if err != nil {
		return result, fmt.Errorf("reload chunks failed: %w", err)
	}

	l.log.Info("chunks reloaded",
		zap.String("kind", l.cfg.Kind),
		zap.Int64("deleted", result.Deleted),
		zap.Int64("inserted", result.Inserted),
		zap.Bool("transactional", l.cfg.Transactional),
	)
	return result, nil
}

func (l *Loader) replace(ctx context.Context, repo *repository.ChunkRepository, chunks []model.Chunk) (LoadResult, error) {
	var result LoadResult

	deleted, err := repo.DeleteByKind(ctx, l.cfg.Kind)
	if err != nil {
		return result, err
	}
	result.Deleted = deleted
	l.log.Debug("previous chunks cleared", zap.Int64("deleted", deleted))

	inserted, err := repo.CreateBatch(ctx, chunks, l.cfg.InsertBatchSize)
	result.Inserted = inserted
	if err != nil {
		return result, err
	}
	return result, nil
}
