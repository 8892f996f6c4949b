package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facewatch/internal/api/handlers"
	"github.com/your-org/facewatch/internal/api/ws"
	"github.com/your-org/facewatch/internal/auth"
)

type RouterConfig struct {
	APIKey     string
	System     *handlers.SystemHandler
	Identities *handlers.IdentityHandler
	Resolve    *handlers.ResolveHandler
	Detections *handlers.DetectionHandler
	Videos     *handlers.VideoHandler
	Artifacts  *handlers.ArtifactHandler
	Hub        *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	r.GET("/healthz", cfg.System.Healthz)
	r.GET("/readyz", cfg.System.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket alerts
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Gallery
	idH := cfg.Identities
	v1.POST("/identities", idH.Create)
	v1.GET("/identities", idH.List)
	v1.GET("/identities/:id", idH.Get)
	v1.PATCH("/identities/:id", idH.SetStatus)
	v1.DELETE("/identities/:id", idH.Delete)
	v1.POST("/identities/:id/references", idH.AddReference)
	v1.GET("/identities/:id/references", idH.ListReferences)
	v1.DELETE("/identities/:id/references/:refId", idH.DeleteReference)
	v1.POST("/search", idH.Search)

	// Still images
	v1.POST("/resolve", cfg.Resolve.Resolve)
	v1.GET("/detections", cfg.Detections.List)
	v1.GET("/detections/:id", cfg.Detections.Get)
	v1.PUT("/detections/:id/verify", cfg.Detections.Review)

	// Videos
	vidH := cfg.Videos
	v1.POST("/videos", vidH.Upload)
	v1.GET("/videos", vidH.List)
	v1.GET("/videos/:id", vidH.Get)
	v1.DELETE("/videos/:id", vidH.Delete)
	v1.POST("/videos/:id/process", vidH.Process)
	v1.GET("/videos/:id/frames", vidH.Frames)

	v1.GET("/artifacts/*key", cfg.Artifacts.Get)

	return r
}
