package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-indexer/internal/model"
)

func sampleSections() []model.Section {
	target := "B"
	return []model.Section{
		{
			ID:        "A",
			Body:      "hello",
			Questions: []string{"what is a?", "tell me about a"},
			FollowUps: []model.FollowUp{{Text: "more on b", Target: &target}, {Text: "go deeper"}},
			CrossRefs: []string{"B"},
		},
		{
			ID:   "B",
			Body: "world",
		},
		{
			ID:        "C",
			Body:      "again",
			Questions: []string{"what is c?"},
		},
	}
}

func vectorsFor(n int, base float32) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{base, float32(i)}
	}
	return out
}

func TestExpand(t *testing.T) {
	exp := Expand(sampleSections())

	assert.Equal(t, []string{"hello", "world", "again"}, exp.ContentTexts)
	assert.Equal(t, []string{"what is a?", "tell me about a", "what is c?"}, exp.QuestionTexts)
	assert.Equal(t, []int{0, 0, 2}, exp.QuestionOwners)
	assert.Equal(t, 6, exp.ExpectedRows())
}

func TestExpand_Empty(t *testing.T) {
	exp := Expand(nil)
	assert.Empty(t, exp.ContentTexts)
	assert.Empty(t, exp.QuestionTexts)
	assert.Zero(t, exp.ExpectedRows())
}

func TestAssemble(t *testing.T) {
	sections := sampleSections()
	chunks, err := Assemble(sections, vectorsFor(3, 1), vectorsFor(3, 2), ChunkMeta{Kind: "content", SourceFile: "content.md"})
	require.NoError(t, err)

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		assert.Equal(t, "content", c.Kind)
		assert.Equal(t, "content.md", c.SourceFile)
	}
	assert.Equal(t, []string{"A#q1", "A#q2", "A#content", "B#content", "C#q1", "C#content"}, ids)

	q2 := chunks[1]
	assert.Equal(t, "A", q2.Title)
	assert.Equal(t, "hello", q2.Content)
	require.NotNil(t, q2.QuestionText)
	assert.Equal(t, "tell me about a", *q2.QuestionText)
	require.NotNil(t, q2.QuestionVector)
	assert.Equal(t, []float32{2, 1}, q2.QuestionVector.Slice())
	assert.Equal(t, []float32{1, 0}, q2.ContentVector.Slice())
	assert.Equal(t, model.StringList{"B"}, q2.Tags)
	assert.Len(t, q2.FollowUps, 2)

	content := chunks[2]
	assert.Nil(t, content.QuestionText)
	assert.Nil(t, content.QuestionVector)
	assert.Equal(t, []float32{1, 0}, content.ContentVector.Slice())

	cq := chunks[4]
	assert.Equal(t, "what is c?", *cq.QuestionText)
	assert.Equal(t, []float32{2, 2}, cq.QuestionVector.Slice())
	assert.Equal(t, []float32{1, 2}, cq.ContentVector.Slice())
}

func TestAssemble_VectorMismatch(t *testing.T) {
	sections := sampleSections()

	_, err := Assemble(sections, vectorsFor(2, 1), vectorsFor(3, 2), ChunkMeta{Kind: "content"})
	assert.ErrorIs(t, err, ErrVectorMismatch)

	_, err = Assemble(sections, vectorsFor(3, 1), vectorsFor(4, 2), ChunkMeta{Kind: "content"})
	assert.ErrorIs(t, err, ErrVectorMismatch)
}
