package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ddevcap/rollfeed/api/middleware"
	"github.com/ddevcap/rollfeed/feed"
	"github.com/ddevcap/rollfeed/store"
)

// clearer drops cached pages. *cache.Cache satisfies it.
type clearer interface {
	Clear()
}

// CatalogHandler creates rolls, shops and ads so they show up in the feeds.
// Creation clears the cache namespace the new entity appears in.
type CatalogHandler struct {
	store     store.Store
	feedCache clearer
	listings  clearer
	timeout   time.Duration
}

func NewCatalogHandler(st store.Store, feedCache, listings clearer, timeout time.Duration) *CatalogHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CatalogHandler{store: st, feedCache: feedCache, listings: listings, timeout: timeout}
}

type createRollRequest struct {
	ShopID   string `json:"shopId" binding:"required"`
	Category string `json:"category" binding:"max=64"`
	Caption  string `json:"caption" binding:"max=2048"`
}

type createShopRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	Category string `json:"category" binding:"max=64"`
	Country  string `json:"country" binding:"max=8"`
	Language string `json:"language" binding:"max=16"`
}

type createAdRequest struct {
	ShopID   string `json:"shopId" binding:"required"`
	Title    string `json:"title" binding:"required,max=255"`
	Priority int    `json:"priority"`
	Country  string `json:"country" binding:"max=8"`
	Language string `json:"language" binding:"max=16"`
}

func (h *CatalogHandler) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

// CreateRoll handles POST /items.
func (h *CatalogHandler) CreateRoll(c *gin.Context) {
	var req createRollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_body"})
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if _, err := h.store.GetShop(ctx, req.ShopID); err != nil {
		respondError(c, err)
		return
	}
	roll, err := h.store.CreateRoll(ctx, store.Roll{
		ShopID:    req.ShopID,
		CreatorID: middleware.ViewerFrom(c).ID,
		Category:  strings.TrimSpace(req.Category),
		Caption:   req.Caption,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.feedCache.Clear()
	c.JSON(http.StatusCreated, feed.NewRollView(roll, nil, nil))
}

// CreateShop handles POST /shops.
func (h *CatalogHandler) CreateShop(c *gin.Context) {
	var req createShopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_body"})
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	shop, err := h.store.CreateShop(ctx, store.Shop{
		OwnerID:  middleware.ViewerFrom(c).ID,
		Name:     strings.TrimSpace(req.Name),
		Category: strings.TrimSpace(req.Category),
		Country:  strings.ToUpper(strings.TrimSpace(req.Country)),
		Language: strings.ToLower(strings.TrimSpace(req.Language)),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.listings.Clear()
	c.JSON(http.StatusCreated, feed.NewShopView(shop, nil))
}

// CreateAd handles POST /ads.
func (h *CatalogHandler) CreateAd(c *gin.Context) {
	var req createAdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_body"})
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if _, err := h.store.GetShop(ctx, req.ShopID); err != nil {
		respondError(c, err)
		return
	}
	ad, err := h.store.CreateAd(ctx, store.Ad{
		ShopID:   req.ShopID,
		Title:    strings.TrimSpace(req.Title),
		Priority: req.Priority,
		Country:  strings.ToUpper(strings.TrimSpace(req.Country)),
		Language: strings.ToLower(strings.TrimSpace(req.Language)),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.listings.Clear()
	c.JSON(http.StatusCreated, feed.NewAdView(feed.AdCandidate{Ad: ad}))
}
