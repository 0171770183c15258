package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-indexer/internal/model"
	"content-indexer/internal/repository"
)

type fakeRow struct {
	id        string
	kind      string
	title     string
	question  bool
	followUps *string
}

// fakeStore answers the validator's queries from an in-memory row list.
type fakeStore struct {
	rows []fakeRow
	err  map[string]error
}

func (f *fakeStore) fail(op string) error { return f.err[op] }

func (f *fakeStore) Count(context.Context) (int64, error) {
	if err := f.fail("count"); err != nil {
		return 0, err
	}
	return int64(len(f.rows)), nil
}

func (f *fakeStore) CountOtherKinds(_ context.Context, kind string) (int64, []string, error) {
	if err := f.fail("kinds"); err != nil {
		return 0, nil, err
	}
	var n int64
	seen := map[string]bool{}
	var kinds []string
	for _, r := range f.rows {
		if r.kind != kind {
			n++
			if !seen[r.kind] {
				seen[r.kind] = true
				kinds = append(kinds, r.kind)
			}
		}
	}
	return n, kinds, nil
}

func (f *fakeStore) DistinctTitles(context.Context) ([]string, error) {
	if err := f.fail("titles"); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var titles []string
	for _, r := range f.rows {
		if !seen[r.title] {
			seen[r.title] = true
			titles = append(titles, r.title)
		}
	}
	return titles, nil
}

func (f *fakeStore) ShapeByTitle(context.Context) ([]repository.TitleShape, error) {
	if err := f.fail("shape"); err != nil {
		return nil, err
	}
	index := map[string]int{}
	var shapes []repository.TitleShape
	for _, r := range f.rows {
		i, ok := index[r.title]
		if !ok {
			i = len(shapes)
			index[r.title] = i
			shapes = append(shapes, repository.TitleShape{Title: r.title})
		}
		shapes[i].RowCount++
		if r.question {
			shapes[i].QuestionRowCount++
		}
	}
	return shapes, nil
}

func (f *fakeStore) CountQuestionRows(context.Context) (int64, error) {
	var n int64
	for _, r := range f.rows {
		if r.question {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListFollowUps(_ context.Context, kind string) ([]repository.FollowUpPayload, error) {
	if err := f.fail("followups"); err != nil {
		return nil, err
	}
	var out []repository.FollowUpPayload
	for _, r := range f.rows {
		if r.kind == kind {
			out = append(out, repository.FollowUpPayload{ID: r.id, Title: r.title, FollowUps: r.followUps})
		}
	}
	return out, nil
}

func strPtr(s string) *string { return &s }

// storeFor builds the rows a correct load of sections would leave behind.
func storeFor(sections []model.Section) *fakeStore {
	store := &fakeStore{err: map[string]error{}}
	for _, s := range sections {
		payload := strPtr(`[]`)
		if len(s.FollowUps) > 0 {
			payload = strPtr(`[{"text":"more","target":"B"}]`)
		}
		for range s.Questions {
			store.rows = append(store.rows, fakeRow{id: s.ID + "#q", kind: "content", title: s.ID, question: true, followUps: payload})
		}
		store.rows = append(store.rows, fakeRow{id: s.ID + "#content", kind: "content", title: s.ID, followUps: payload})
	}
	return store
}

func checkPassed(t *testing.T, report *ValidationReport, name string) bool {
	t.Helper()
	c, ok := report.Check(name)
	require.True(t, ok, name)
	return c.Passed
}

func TestValidator_AllPass(t *testing.T) {
	sections := sampleSections()
	store := storeFor(sections)

	report := NewValidator(store, "content", nil).Validate(context.Background(), sections, 6)

	assert.True(t, report.Passed)
	require.Len(t, report.Checks, 5)
	for _, c := range report.Checks {
		assert.True(t, c.Passed, c.Name+": "+c.Detail)
	}
	assert.Empty(t, report.Failed())
	assert.Equal(t, int64(6), report.Summary.TotalRows)
	assert.Equal(t, int64(3), report.Summary.QuestionRows)
	assert.Equal(t, int64(3), report.Summary.ContentOnlyRows)
	assert.Equal(t, int64(3), report.Summary.RowsWithFollowUps)
	assert.Equal(t, []SectionCount{
		{Title: "A", Rows: 3, Questions: 2},
		{Title: "B", Rows: 1, Questions: 0},
		{Title: "C", Rows: 2, Questions: 1},
	}, report.Summary.Sections)
}

func TestValidator_DeletedRowFailsCountAndShape(t *testing.T) {
	sections := sampleSections()
	store := storeFor(sections)
	// drop A#q2
	store.rows = append(store.rows[:1], store.rows[2:]...)

	report := NewValidator(store, "content", nil).Validate(context.Background(), sections, 6)

	assert.False(t, report.Passed)
	assert.False(t, checkPassed(t, report, CheckRowCount))
	assert.True(t, checkPassed(t, report, CheckKindTagging))
	assert.True(t, checkPassed(t, report, CheckSectionCoverage))
	assert.False(t, checkPassed(t, report, CheckSectionShape))

	shape, _ := report.Check(CheckSectionShape)
	assert.Contains(t, shape.Detail, "A: expected 3 rows (2 questions), got 2 rows (1 questions)")
	assert.Len(t, report.Failed(), 2)
}

func TestValidator_ForeignKindAndExtraSection(t *testing.T) {
	sections := sampleSections()
	store := storeFor(sections)
	store.rows = append(store.rows, fakeRow{id: "legacy", kind: "story", title: "LEGACY", followUps: strPtr("[]")})

	report := NewValidator(store, "content", nil).Validate(context.Background(), sections, 6)

	assert.False(t, report.Passed)
	assert.False(t, checkPassed(t, report, CheckRowCount))
	assert.False(t, checkPassed(t, report, CheckKindTagging))
	assert.False(t, checkPassed(t, report, CheckSectionCoverage))
	assert.True(t, checkPassed(t, report, CheckSectionShape))

	kind, _ := report.Check(CheckKindTagging)
	assert.Contains(t, kind.Detail, "story")
	coverage, _ := report.Check(CheckSectionCoverage)
	assert.Contains(t, coverage.Detail, "1 unexpected: LEGACY")
}

func TestValidator_MissingSection(t *testing.T) {
	sections := sampleSections()
	store := storeFor(sections[:2])

	report := NewValidator(store, "content", nil).Validate(context.Background(), sections, 4)

	assert.False(t, report.Passed)
	assert.True(t, checkPassed(t, report, CheckRowCount))
	coverage, _ := report.Check(CheckSectionCoverage)
	assert.False(t, coverage.Passed)
	assert.Contains(t, coverage.Detail, "1 missing: C")
	assert.False(t, checkPassed(t, report, CheckSectionShape))
}

func TestValidator_MalformedFollowUpsIsAdvisory(t *testing.T) {
	sections := sampleSections()
	store := storeFor(sections)
	store.rows[0].followUps = strPtr(`"[{\"text\":\"double encoded\"}]"`)
	store.rows[3].followUps = nil

	report := NewValidator(store, "content", nil).Validate(context.Background(), sections, 6)

	assert.True(t, report.Passed)
	follow, ok := report.Check(CheckFollowUps)
	require.True(t, ok)
	assert.False(t, follow.Passed)
	assert.False(t, follow.Blocking)
	assert.Contains(t, follow.Detail, "2 of 6 rows")
	assert.Empty(t, report.Failed())
}

func TestValidator_StoreErrorFailsOnlyThatCheck(t *testing.T) {
	sections := sampleSections()
	store := storeFor(sections)
	store.err["titles"] = errors.New("connection reset")

	report := NewValidator(store, "content", nil).Validate(context.Background(), sections, 6)

	assert.False(t, report.Passed)
	require.Len(t, report.Checks, 5)
	coverage, _ := report.Check(CheckSectionCoverage)
	assert.False(t, coverage.Passed)
	assert.Equal(t, "connection reset", coverage.Detail)
	assert.True(t, checkPassed(t, report, CheckRowCount))
	assert.True(t, checkPassed(t, report, CheckSectionShape))
}
