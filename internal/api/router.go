package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"hostel-allocation-backend/config"
	"hostel-allocation-backend/internal/mw"
)

func corsConfig(origins []string) cors.Config {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	allowCredentials := true
	for _, origin := range origins {
		if origin == "*" {
			allowCredentials = false
			break
		}
	}

	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", mw.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", mw.RequestIDHeader, mw.CacheStatusHeader},
		AllowCredentials: allowCredentials,
		MaxAge:           12 * time.Hour,
	}
}

// NewRouter creates and configures a new Gin router. metrics may be nil to
// leave the metrics endpoint out.
func NewRouter(h *Handler, cfg *config.Config, metrics http.Handler, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger(logger), cors.New(corsConfig(cfg.Server.CORSOrigins)))

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst, cfg.Server.RequestIPHeader)

	cacheStore := mw.NewResponseStore(cache.New(cfg.Server.CacheTTL, 2*cfg.Server.CacheTTL))
	caching := mw.Cache(cacheStore, cfg.Server.CacheTTL)

	r.GET("/healthz", h.Healthz)
	if metrics != nil {
		r.GET(cfg.Metrics.Path, gin.WrapH(metrics))
	}

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter, mw.Invalidate(cacheStore))
	{
		api.GET("/rooms", caching, h.ListRooms)
		api.POST("/rooms", h.CreateRoom)
		api.GET("/rooms/:room_id", caching, h.GetRoom)
		api.PATCH("/rooms/:room_id", h.UpdateRoom)
		api.DELETE("/rooms/:room_id", h.DeleteRoom)
		api.GET("/rooms/:room_id/allocations", caching, h.ListRoomAllocations)

		api.GET("/registrations", caching, h.ListRegistrations)
		api.POST("/registrations", h.CreateRegistration)
		api.GET("/registrations/:registration_id", caching, h.GetRegistration)
		api.PUT("/registrations/:registration_id", h.UpdateRegistration)
		api.DELETE("/registrations/:registration_id", h.DeleteRegistration)
		api.POST("/registrations/:registration_id/end", h.EndRegistration)

		api.GET("/students", caching, h.SearchStudents)
	}

	return r
}
