package handlers

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Register mounts every route on e.
func (a *API) Register(e *echo.Echo) {
	e.POST("/login", a.LoginPost)
	e.POST("/logout", a.LogoutPost)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api", a.AuthMiddleware)
	api.GET("/me", a.Me)
	api.GET("/status", a.StatusGet)
	api.GET("/events", a.VideosEvents)
	api.GET("/ws", a.ProgressSocket)

	api.GET("/videos", a.VideosList)
	api.POST("/videos", a.VideoUpload, RequireEditor)
	api.GET("/videos/:id", a.VideoGet)
	api.PATCH("/videos/:id", a.VideoPatch, RequireEditor)
	api.DELETE("/videos/:id", a.VideoDelete, RequireEditor)
	api.GET("/videos/:id/stream", a.VideoStream)
	api.HEAD("/videos/:id/stream", a.VideoStream)
}
