package http

import (
	"github.com/gin-gonic/gin"

	"content-indexer/internal/bootstrap"
	"content-indexer/internal/transport/http/handler"
	"content-indexer/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	var requester handler.ReloadRequester
	if app.Publisher != nil {
		requester = app.Publisher
	}
	indexHandler := handler.NewIndexHandler(app.Indexer, requester)

	v1 := router.Group("/api/v1")
	indexGroup := v1.Group("/index")
	indexGroup.GET("/report", indexHandler.Report)
	indexGroup.POST("/reload", middleware.AuthJWT(app.Config.Auth.JWTSecret), indexHandler.Reload)

	return router
}
