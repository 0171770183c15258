package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-indexer/internal/app"
	"content-indexer/internal/model"
	"content-indexer/internal/pkg/jwtutil"
	"content-indexer/internal/transport/http/middleware"
	"content-indexer/internal/transport/http/response"
)

const testSecret = "test-secret"

type fakeRunner struct {
	result *app.RunResult
	err    error
	opts   []app.RunOptions
	last   *app.RunResult
}

func (f *fakeRunner) TryRun(_ context.Context, opts app.RunOptions) (*app.RunResult, error) {
	f.opts = append(f.opts, opts)
	return f.result, f.err
}

func (f *fakeRunner) LastRun() (*app.RunResult, bool) {
	return f.last, f.last != nil
}

type fakeRequester struct {
	requests []model.ReloadRequest
}

func (f *fakeRequester) PublishReloadRequest(_ context.Context, req model.ReloadRequest) error {
	f.requests = append(f.requests, req)
	return nil
}

func newTestRouter(h *IndexHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/report", h.Report)
	r.POST("/reload", middleware.AuthJWT(testSecret), h.Reload)
	return r
}

func doRequest(t *testing.T, r http.Handler, method, path, body string, auth bool) (*httptest.ResponseRecorder, response.APIResponse) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		token, err := jwtutil.GenerateToken(testSecret, "ops", time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var resp response.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestIndexHandler_Report(t *testing.T) {
	runner := &fakeRunner{}
	r := newTestRouter(NewIndexHandler(runner, nil))

	rec, resp := doRequest(t, r, http.MethodGet, "/report", "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, response.CodeReportNotFound, resp.Code)

	runner.last = &app.RunResult{RunID: "run-1"}
	rec, resp = doRequest(t, r, http.MethodGet, "/report", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-1", resp.Data.(map[string]interface{})["run_id"])
}

func TestIndexHandler_ReloadRequiresToken(t *testing.T) {
	runner := &fakeRunner{}
	r := newTestRouter(NewIndexHandler(runner, nil))

	rec, resp := doRequest(t, r, http.MethodPost, "/reload", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, response.CodeUnauthorized, resp.Code)
	assert.Empty(t, runner.opts)
}

func TestIndexHandler_ReloadOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{name: "passed", wantStatus: http.StatusOK, wantCode: response.CodeOK},
		{name: "busy", err: app.ErrRunInProgress, wantStatus: http.StatusConflict, wantCode: response.CodeRunInProgress},
		{name: "validation failed", err: app.ErrValidationFailed, wantStatus: http.StatusUnprocessableEntity, wantCode: response.CodeValidationFailed},
		{name: "fatal", err: errors.New("embed content failed"), wantStatus: http.StatusInternalServerError, wantCode: response.CodeRunFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{result: &app.RunResult{RunID: "run-1"}, err: tt.err}
			r := newTestRouter(NewIndexHandler(runner, nil))

			rec, resp := doRequest(t, r, http.MethodPost, "/reload", `{"source_path":"docs/x.md","dry_run":true}`, true)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, resp.Code)
			require.Len(t, runner.opts, 1)
			assert.Equal(t, app.RunOptions{SourcePath: "docs/x.md", DryRun: true}, runner.opts[0])
		})
	}
}

func TestIndexHandler_ReloadAsync(t *testing.T) {
	runner := &fakeRunner{}

	rec, resp := doRequest(t, newTestRouter(NewIndexHandler(runner, nil)), http.MethodPost, "/reload", `{"async":true}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.CodeBadRequest, resp.Code)

	requester := &fakeRequester{}
	rec, _ = doRequest(t, newTestRouter(NewIndexHandler(runner, requester)), http.MethodPost, "/reload", `{"async":true}`, true)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, requester.requests, 1)
	assert.Equal(t, "ops", requester.requests[0].RequestedBy)
	assert.NotEmpty(t, requester.requests[0].RequestID)
	assert.Empty(t, runner.opts)
}

func TestIndexHandler_ReloadBadBody(t *testing.T) {
	runner := &fakeRunner{}
	r := newTestRouter(NewIndexHandler(runner, nil))

	rec, resp := doRequest(t, r, http.MethodPost, "/reload", `{"dry_run":`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.CodeBadRequest, resp.Code)
	assert.Empty(t, runner.opts)
}
