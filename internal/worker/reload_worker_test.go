package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"content-indexer/internal/app"
)

type fakeRunner struct {
	opts []app.RunOptions
	err  error
}

func (f *fakeRunner) Run(_ context.Context, opts app.RunOptions) (*app.RunResult, error) {
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return &app.RunResult{RunID: "run-1"}, f.err
	}
	return &app.RunResult{RunID: "run-1", Load: app.LoadResult{Inserted: 3}}, nil
}

func TestReloadWorker_Handle(t *testing.T) {
	runner := &fakeRunner{}
	w := NewReloadWorker(nil, runner, "index.reload.request", zaptest.NewLogger(t))

	require.NoError(t, w.handle(context.Background(), []byte(`{"request_id":"r1","source_path":"docs/other.md"}`)))
	require.NoError(t, w.handle(context.Background(), nil))

	assert.Equal(t, []app.RunOptions{{SourcePath: "docs/other.md"}, {}}, runner.opts)
}

func TestReloadWorker_HandleErrors(t *testing.T) {
	runner := &fakeRunner{}
	w := NewReloadWorker(nil, runner, "q", zaptest.NewLogger(t))

	err := w.handle(context.Background(), []byte(`{not json`))
	assert.ErrorIs(t, err, errBadRequest)
	assert.Empty(t, runner.opts)

	runner.err = app.ErrValidationFailed
	err = w.handle(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, app.ErrValidationFailed)
}
