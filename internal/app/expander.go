package app

import (
	"fmt"

	"github.com/pgvector/pgvector-go"

	"content-indexer/internal/model"
)

// Expansion holds the texts for the two embedding passes. QuestionOwners[i]
// is the index of the section that QuestionTexts[i] belongs to.
type Expansion struct {
	ContentTexts   []string
	QuestionTexts  []string
	QuestionOwners []int
}

// ExpectedRows is the number of chunks the sections expand into.
func (e Expansion) ExpectedRows() int {
	return len(e.ContentTexts) + len(e.QuestionTexts)
}

// Expand collects one content text per section and one text per question,
// in section order.
func Expand(sections []model.Section) Expansion {
	exp := Expansion{
		ContentTexts: make([]string, 0, len(sections)),
	}
	for i, section := range sections {
		exp.ContentTexts = append(exp.ContentTexts, section.Body)
		for _, q := range section.Questions {
			exp.QuestionTexts = append(exp.QuestionTexts, q)
			exp.QuestionOwners = append(exp.QuestionOwners, i)
		}
	}
	return exp
}

// ChunkMeta is stamped on every chunk of a run.
type ChunkMeta struct {
	Kind       string
	SourceFile string
}

// Assemble reattaches vectors to their sections and builds the rows. Each
// section yields its question chunks first, then its content-only chunk.
func Assemble(sections []model.Section, contentVectors, questionVectors [][]float32, meta ChunkMeta) ([]model.Chunk, error) {
	exp := Expand(sections)
	if len(contentVectors) != len(exp.ContentTexts) {
		return nil, fmt.Errorf("%w: %d content vectors for %d sections", ErrVectorMismatch, len(contentVectors), len(exp.ContentTexts))
	}
	if len(questionVectors) != len(exp.QuestionTexts) {
		return nil, fmt.Errorf("%w: %d question vectors for %d questions", ErrVectorMismatch, len(questionVectors), len(exp.QuestionTexts))
	}

	chunks := make([]model.Chunk, 0, exp.ExpectedRows())
	next := 0
	for i, section := range sections {
		contentVector := pgvector.NewVector(contentVectors[i])
		base := model.Chunk{
			Kind:          meta.Kind,
			Title:         section.ID,
			Content:       section.Body,
			ContentVector: contentVector,
			Tags:          model.StringList(section.CrossRefs),
			SourceFile:    meta.SourceFile,
			FollowUps:     model.FollowUps(section.FollowUps),
		}

		for n := range section.Questions {
			question := exp.QuestionTexts[next]
			questionVector := pgvector.NewVector(questionVectors[next])
			next++

			c := base
			c.ID = model.ChunkID(section.ID, fmt.Sprintf("q%d", n+1))
			c.QuestionText = &question
			c.QuestionVector = &questionVector
			chunks = append(chunks, c)
		}

		c := base
		c.ID = model.ChunkID(section.ID, model.ChunkVariantContent)
		chunks = append(chunks, c)
	}
	return chunks, nil
}
