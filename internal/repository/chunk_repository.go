package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"content-indexer/internal/model"
)

// TitleShape is the per-title row tally used by the validator.
type TitleShape struct {
	Title            string
	RowCount         int64
	QuestionRowCount int64
}

// FollowUpPayload is a stored follow_ups column as raw text, left undecoded
// so the caller can check that it round-trips.
type FollowUpPayload struct {
	ID        string
	Title     string
	FollowUps *string
}

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) Dialect() string {
	return r.db.Dialector.Name()
}

// EnsureSchema creates the chunks table and its indexes when missing, then adds
// the follow_ups column to tables created before it existed. Safe to rerun.
func (r *ChunkRepository) EnsureSchema(ctx context.Context, dimensions int) error {
	db := r.db.WithContext(ctx)
	for _, stmt := range schemaStatements(r.Dialect(), dimensions) {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("ensure chunk schema failed: %w", err)
		}
	}

	migrator := db.Migrator()
	if !migrator.HasColumn(&model.Chunk{}, "FollowUps") {
		if err := migrator.AddColumn(&model.Chunk{}, "FollowUps"); err != nil {
			return fmt.Errorf("add follow_ups column failed: %w", err)
		}
	}
	return nil
}

// Transaction runs fn against a repository bound to a single transaction.
func (r *ChunkRepository) Transaction(ctx context.Context, fn func(tx *ChunkRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ChunkRepository{db: tx})
	})
}

func (r *ChunkRepository) DeleteByKind(ctx context.Context, kind string) (int64, error) {
	result := r.db.WithContext(ctx).Where("chunk_type = ?", kind).Delete(&model.Chunk{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete chunks by kind failed: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []model.Chunk, batchSize int) (int64, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	result := r.db.WithContext(ctx).CreateInBatches(&chunks, batchSize)
	if result.Error != nil {
		return 0, fmt.Errorf("create chunks batch failed: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *ChunkRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Chunk{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count chunks failed: %w", err)
	}
	return total, nil
}

// CountOtherKinds returns how many rows carry a kind other than kind, and which kinds those are.
func (r *ChunkRepository) CountOtherKinds(ctx context.Context, kind string) (int64, []string, error) {
	db := r.db.WithContext(ctx).Model(&model.Chunk{}).Where("chunk_type <> ?", kind)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, nil, fmt.Errorf("count foreign chunk kinds failed: %w", err)
	}
	if total == 0 {
		return 0, nil, nil
	}

	var kinds []string
	if err := r.db.WithContext(ctx).Model(&model.Chunk{}).
		Where("chunk_type <> ?", kind).
		Distinct().
		Order("chunk_type").
		Pluck("chunk_type", &kinds).Error; err != nil {
		return 0, nil, fmt.Errorf("list foreign chunk kinds failed: %w", err)
	}
	return total, kinds, nil
}

func (r *ChunkRepository) DistinctTitles(ctx context.Context) ([]string, error) {
	var titles []string
	if err := r.db.WithContext(ctx).Model(&model.Chunk{}).
		Distinct().
		Order("title").
		Pluck("title", &titles).Error; err != nil {
		return nil, fmt.Errorf("list chunk titles failed: %w", err)
	}
	return titles, nil
}

func (r *ChunkRepository) ShapeByTitle(ctx context.Context) ([]TitleShape, error) {
	var shapes []TitleShape
	if err := r.db.WithContext(ctx).Model(&model.Chunk{}).
		Select("title, COUNT(*) AS row_count, COUNT(question_embedding) AS question_row_count").
		Group("title").
		Order("title").
		Scan(&shapes).Error; err != nil {
		return nil, fmt.Errorf("group chunks by title failed: %w", err)
	}
	return shapes, nil
}

func (r *ChunkRepository) CountQuestionRows(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Chunk{}).
		Where("question_embedding IS NOT NULL").
		Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count question chunks failed: %w", err)
	}
	return total, nil
}

func (r *ChunkRepository) ListFollowUps(ctx context.Context, kind string) ([]FollowUpPayload, error) {
	var payloads []FollowUpPayload
	if err := r.db.WithContext(ctx).Model(&model.Chunk{}).
		Select("id, title, follow_ups").
		Where("chunk_type = ?", kind).
		Order("id").
		Scan(&payloads).Error; err != nil {
		return nil, fmt.Errorf("list chunk follow-ups failed: %w", err)
	}
	return payloads, nil
}

// ListByKind returns rows without their vectors, ordered by id.
func (r *ChunkRepository) ListByKind(ctx context.Context, kind string) ([]model.Chunk, error) {
	var chunks []model.Chunk
	if err := r.db.WithContext(ctx).
		Select("id", "chunk_type", "title", "content", "question_text", "source_file", "tags").
		Where("chunk_type = ?", kind).
		Order("id").
		Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by kind failed: %w", err)
	}
	return chunks, nil
}

func schemaStatements(dialect string, dimensions int) []string {
	switch dialect {
	case "postgres":
		return []string{
			"CREATE EXTENSION IF NOT EXISTS vector",
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
    id VARCHAR(255) PRIMARY KEY,
    chunk_type VARCHAR(20) NOT NULL,
    title VARCHAR(200),
    content TEXT NOT NULL,
    embedding vector(%d) NOT NULL,
    question_text TEXT,
    question_embedding vector(%d),
    tags JSONB NOT NULL DEFAULT '[]'::jsonb,
    source_file VARCHAR(100),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, dimensions, dimensions),
			"CREATE INDEX IF NOT EXISTS idx_chunks_type ON chunks (chunk_type)",
			"CREATE INDEX IF NOT EXISTS idx_chunks_title ON chunks (title)",
			"CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops)",
			"CREATE INDEX IF NOT EXISTS idx_chunks_question_embedding ON chunks USING hnsw (question_embedding vector_cosine_ops) WHERE question_embedding IS NOT NULL",
		}
	case "mysql":
		// No native vector type; vectors are kept as their text literal.
		return []string{
			`CREATE TABLE IF NOT EXISTS chunks (
    id VARCHAR(255) PRIMARY KEY,
    chunk_type VARCHAR(20) NOT NULL,
    title VARCHAR(200),
    content LONGTEXT NOT NULL,
    embedding LONGTEXT NOT NULL,
    question_text TEXT,
    question_embedding LONGTEXT,
    tags JSON,
    source_file VARCHAR(100),
    created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    INDEX idx_chunks_type (chunk_type),
    INDEX idx_chunks_title (title)
) DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return []string{
			`CREATE TABLE IF NOT EXISTS chunks (
    id TEXT PRIMARY KEY,
    chunk_type TEXT NOT NULL,
    title TEXT,
    content TEXT NOT NULL,
    embedding TEXT NOT NULL,
    question_text TEXT,
    question_embedding TEXT,
    tags TEXT,
    source_file TEXT,
    created_at DATETIME
)`,
			"CREATE INDEX IF NOT EXISTS idx_chunks_type ON chunks (chunk_type)",
			"CREATE INDEX IF NOT EXISTS idx_chunks_title ON chunks (title)",
		}
	}
}
