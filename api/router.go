package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ddevcap/rollfeed/api/handler"
	"github.com/ddevcap/rollfeed/api/middleware"
	"github.com/ddevcap/rollfeed/cache"
	"github.com/ddevcap/rollfeed/config"
	"github.com/ddevcap/rollfeed/engagement"
	"github.com/ddevcap/rollfeed/feed"
	"github.com/ddevcap/rollfeed/health"
	"github.com/ddevcap/rollfeed/store"
)

// Deps are the collaborators the routes are built on.
type Deps struct {
	Store        store.Store
	Assembler    *feed.Assembler
	Engagement   *engagement.Service
	FeedCache    *cache.Cache
	ListingCache *cache.Cache
	// Health backs /ready.
	Health *health.Monitor
	// Limiter throttles mutations. Nil disables rate limiting.
	Limiter middleware.Limiter
}

// corsMiddleware allows credentialed requests from the configured origins.
// With no origins configured every origin is allowed without credentials.
func corsMiddleware(cfg config.Config) gin.HandlerFunc {
	allowed := make(map[string]bool, len(cfg.CORSOrigins))
	for _, o := range cfg.CORSOrigins {
		allowed[strings.ToLower(strings.TrimSpace(o))] = true
	}

	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return len(allowed) == 0 || allowed[strings.ToLower(origin)]
		},
		AllowMethods:     []string{"GET", "POST", "OPTIONS", "HEAD"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", middleware.ViewerIDHeader, "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", "X-Request-ID"},
		AllowCredentials: len(allowed) > 0,
		MaxAge:           12 * time.Hour,
	})
}

// NewRouter builds the HTTP handler.
func NewRouter(deps Deps, cfg config.Config) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(), corsMiddleware(cfg), middleware.Identify(cfg.JWTSecret))

	feedH := handler.NewFeedHandler(deps.Assembler)
	engH := handler.NewEngagementHandler(deps.Engagement)
	catalogH := handler.NewCatalogHandler(deps.Store, deps.FeedCache, deps.ListingCache, cfg.StoreTimeout)
	systemH := handler.NewSystemHandler(deps.Health)

	r.GET("/feed", feedH.ListRolls)
	r.GET("/shops", feedH.ListShops)
	r.GET("/ads", feedH.ListAds)
	r.GET("/items/:id", feedH.GetRoll)
	r.GET("/items/:id/comments", feedH.ListComments)

	// Mutations require a viewer and bypass the response caches.
	mut := r.Group("/")
	mut.Use(middleware.RequireViewer(), middleware.MutationRateLimit(deps.Limiter))
	{
		mut.POST("/items/:id/like", engH.Mutate(store.ActionLike, store.Add))
		mut.POST("/items/:id/unlike", engH.Mutate(store.ActionLike, store.Remove))
		mut.POST("/items/:id/save", engH.Mutate(store.ActionSave, store.Add))
		mut.POST("/items/:id/unsave", engH.Mutate(store.ActionSave, store.Remove))
		mut.POST("/items/:id/share", engH.Mutate(store.ActionShare, store.Add))
		mut.POST("/items/:id/comments", engH.PostComment)
		mut.POST("/shops/:id/favorite", engH.Mutate(store.ActionFavorite, store.Add))
		mut.POST("/shops/:id/unfavorite", engH.Mutate(store.ActionFavorite, store.Remove))

		mut.POST("/items", catalogH.CreateRoll)
		mut.POST("/shops", catalogH.CreateShop)
		mut.POST("/ads", catalogH.CreateAd)
	}

	// Probes and metrics, unauthenticated.
	r.GET("/health", systemH.HealthLive)
	r.GET("/ready", systemH.HealthReady)
	r.GET("/metrics", systemH.Metrics())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found", "code": "not_found"})
	})

	return r
}
