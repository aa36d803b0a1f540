// Package routes is the Streaming Handler: the HTTP entry point that turns
// an opaque file reference into a byte stream, the only layer in this
// module that writes to an http.ResponseWriter apart from the CORS preflight
// handler (policy.CORSGate.Preflight) it registers.
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/streambridge/fsb/internal/service"
)

// Route carries the gin engine being configured. Each loadX function names
// its own sub-logger from allRoutes.log.
type Route struct {
	Engine *gin.Engine
}

type allRoutes struct {
	svc *service.Service
	log *zap.Logger
}

// Register wires every HTTP entry point spec.md §6 names onto engine.
func Register(engine *gin.Engine, svc *service.Service, log *zap.Logger) {
	routes := &allRoutes{svc: svc, log: log}
	r := &Route{Engine: engine}
	routes.loadStream(r)
	routes.loadInfo(r)
}

func clientIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return c.ClientIP()
}

func writePlain(c *gin.Context, status int, msg string) {
	c.Header("Cache-Control", "no-store")
	c.String(status, msg)
}

func writeNoBody(c *gin.Context, status int) {
	c.Header("Cache-Control", "no-store")
	c.Status(status)
}
