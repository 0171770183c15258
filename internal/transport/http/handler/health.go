package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"content-indexer/internal/bootstrap"
)

type HealthHandler struct {
	app *bootstrap.App
}

type dependencyStatus struct {
	OK       bool   `json:"ok"`
	Disabled bool   `json:"disabled,omitempty"`
	Message  string `json:"message,omitempty"`
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return &HealthHandler{app: app}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := h.checkDatabase(ctx)
	redisStatus := h.checkRedis(ctx)
	rmqStatus := h.checkRabbitMQ()

	allOK := dbStatus.OK && redisStatus.OK && rmqStatus.OK
	statusCode := http.StatusOK
	if !allOK {
		statusCode = http.StatusServiceUnavailable
	}

	body := gin.H{
		"app":        h.app.Config.App.Name,
		"env":        h.app.Config.App.Env,
		"uptime_sec": int(time.Since(h.app.StartedAt).Seconds()),
		"dependencies": gin.H{
			"database": dbStatus,
			"redis":    redisStatus,
			"rabbitmq": rmqStatus,
		},
	}
	if h.app.Indexer != nil {
		if last, ok := h.app.Indexer.LastRun(); ok {
			body["last_run"] = gin.H{
				"run_id":      last.RunID,
				"passed":      last.Passed(),
				"finished_at": last.FinishedAt,
			}
		}
	}
	c.JSON(statusCode, body)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) dependencyStatus {
	if h.app.DB == nil {
		return dependencyStatus{OK: false, Message: "not connected"}
	}
	sqlDB, err := h.app.DB.DB()
	if err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) checkRedis(ctx context.Context) dependencyStatus {
	if !h.app.Config.Redis.Enabled {
		return dependencyStatus{OK: true, Disabled: true}
	}
	if h.app.Redis == nil {
		return dependencyStatus{OK: false, Message: "not connected"}
	}
	if err := h.app.Redis.Ping(ctx).Err(); err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) checkRabbitMQ() dependencyStatus {
	if !h.app.Config.RabbitMQ.Enabled {
		return dependencyStatus{OK: true, Disabled: true}
	}
	if h.app.MQConn == nil || h.app.MQConn.IsClosed() {
		return dependencyStatus{OK: false, Message: "connection closed"}
	}
	return dependencyStatus{OK: true}
}
