package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"content-indexer/internal/app"
	"content-indexer/internal/model"
	"content-indexer/internal/transport/http/middleware"
	"content-indexer/internal/transport/http/response"
)

type IndexRunner interface {
	TryRun(ctx context.Context, opts app.RunOptions) (*app.RunResult, error)
	LastRun() (*app.RunResult, bool)
}

type ReloadRequester interface {
	PublishReloadRequest(ctx context.Context, req model.ReloadRequest) error
}

type IndexHandler struct {
	runner    IndexRunner
	requester ReloadRequester
}

// NewIndexHandler builds the handler. requester may be nil, in which case
// asynchronous reloads are rejected.
func NewIndexHandler(runner IndexRunner, requester ReloadRequester) *IndexHandler {
	return &IndexHandler{
		runner:    runner,
		requester: requester,
	}
}

type reloadRequest struct {
	SourcePath string `json:"source_path"`
	DryRun     bool   `json:"dry_run"`
	Async      bool   `json:"async"`
}

func (h *IndexHandler) Report(c *gin.Context) {
	last, ok := h.runner.LastRun()
	if !ok {
		response.Error(c, http.StatusNotFound, response.CodeReportNotFound, "no index run yet")
		return
	}
	response.OK(c, last)
}

func (h *IndexHandler) Reload(c *gin.Context) {
	var req reloadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request body")
			return
		}
	}

	if req.Async {
		h.enqueue(c, req)
		return
	}

	// a reload runs to completion even if the caller goes away
	ctx := context.WithoutCancel(c.Request.Context())
	result, err := h.runner.TryRun(ctx, app.RunOptions{
		SourcePath: req.SourcePath,
		DryRun:     req.DryRun,
	})
	switch {
	case err == nil:
		response.OK(c, result)
	case errors.Is(err, app.ErrRunInProgress):
		response.Error(c, http.StatusConflict, response.CodeRunInProgress, err.Error())
	case errors.Is(err, app.ErrValidationFailed):
		response.ErrorWithData(c, http.StatusUnprocessableEntity, response.CodeValidationFailed, err.Error(), result)
	default:
		response.ErrorWithData(c, http.StatusInternalServerError, response.CodeRunFailed, err.Error(), result)
	}
}

func (h *IndexHandler) enqueue(c *gin.Context, req reloadRequest) {
	if h.requester == nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "asynchronous reload requires rabbitmq")
		return
	}
	if req.DryRun {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "dry run cannot be queued")
		return
	}

	msg := model.ReloadRequest{
		RequestID:   uuid.NewString(),
		SourcePath:  req.SourcePath,
		RequestedBy: c.GetString(middleware.ContextOperatorKey),
	}
	if err := h.requester.PublishReloadRequest(c.Request.Context(), msg); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "enqueue reload request failed")
		return
	}
	response.Accepted(c, msg)
}
