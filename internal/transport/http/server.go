package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Arnovii/Webchat/internal/config"
	"github.com/Arnovii/Webchat/internal/core"
)

// NewServer builds the HTTP server: health, a read-only client snapshot for
// observability, and the websocket endpoint.
func NewServer(reg *core.Registry, rt *core.Router, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery(), LoggerMiddleware(logger))

	engine.GET("/healthz", healthHandler)
	engine.GET("/api/v1/clients", clientsHandler(reg))
	engine.GET("/ws", gin.WrapH(NewWSHandler(reg, rt, cfg, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

// clientsHandler exposes the registry snapshot with the same fields as the
// list envelope.
func clientsHandler(reg *core.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, gin.H{"clients": reg.InfoSnapshot()})
	}
}
