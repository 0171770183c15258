package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

const (
	ChunkVariantContent = "content"
	chunkIDSeparator    = "#"
)

// Chunk is one retrievable row in the index table. Content-only chunks leave
// QuestionText and QuestionVector nil.
type Chunk struct {
	ID             string           `gorm:"primaryKey;size:255" json:"id"`
	Kind           string           `gorm:"column:chunk_type;size:20;not null;index" json:"kind"`
	Title          string           `gorm:"size:200;index" json:"title"`
	Content        string           `gorm:"type:text;not null" json:"content"`
	ContentVector  pgvector.Vector  `gorm:"column:embedding;not null" json:"-"`
	QuestionText   *string          `gorm:"type:text" json:"question_text,omitempty"`
	QuestionVector *pgvector.Vector `gorm:"column:question_embedding" json:"-"`
	Tags           StringList       `gorm:"column:tags" json:"tags"`
	SourceFile     string           `gorm:"size:100" json:"source_file"`
	FollowUps      FollowUps        `gorm:"column:follow_ups" json:"follow_ups"`
	CreatedAt      time.Time        `json:"created_at"`
}

func (Chunk) TableName() string {
	return "chunks"
}

// ChunkID derives the row id for a section variant. Variant is either
// ChunkVariantContent or "q<n>" with n starting at 1.
func ChunkID(sectionID, variant string) string {
	return sectionID + chunkIDSeparator + variant
}
