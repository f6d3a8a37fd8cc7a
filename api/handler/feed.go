package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ddevcap/rollfeed/api/middleware"
	"github.com/ddevcap/rollfeed/feed"
)

const jsonContentType = "application/json; charset=utf-8"

type FeedHandler struct {
	asm *feed.Assembler
}

func NewFeedHandler(asm *feed.Assembler) *FeedHandler {
	return &FeedHandler{asm: asm}
}

// ListRolls handles GET /feed.
func (h *FeedHandler) ListRolls(c *gin.Context) {
	payload, err := h.asm.Rolls(c.Request.Context(), feed.RollQuery{
		Category: c.Query("category"),
		ShopID:   c.Query("shopId"),
		Cursor:   c.Query("cursor"),
		Limit:    c.Query("limit"),
		ViewerID: middleware.ViewerFrom(c).ID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, jsonContentType, payload)
}

// ListShops handles GET /shops. Country and language default to the viewer's.
func (h *FeedHandler) ListShops(c *gin.Context) {
	v := middleware.ViewerFrom(c)
	payload, err := h.asm.Shops(c.Request.Context(), feed.ShopQuery{
		Category: c.Query("category"),
		Cursor:   c.Query("cursor"),
		Limit:    c.Query("limit"),
		ViewerID: v.ID,
		Country:  c.DefaultQuery("country", v.Country),
		Language: c.DefaultQuery("language", v.Language),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, jsonContentType, payload)
}

// ListAds handles GET /ads.
func (h *FeedHandler) ListAds(c *gin.Context) {
	v := middleware.ViewerFrom(c)
	payload, err := h.asm.Ads(c.Request.Context(), feed.AdQuery{
		ViewerID: v.ID,
		Country:  c.DefaultQuery("country", v.Country),
		Language: c.DefaultQuery("language", v.Language),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, jsonContentType, payload)
}

// GetRoll handles GET /items/:id. It reads through to storage.
func (h *FeedHandler) GetRoll(c *gin.Context) {
	roll, err := h.asm.Roll(c.Request.Context(), c.Param("id"), middleware.ViewerFrom(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, roll)
}

// ListComments handles GET /items/:id/comments.
func (h *FeedHandler) ListComments(c *gin.Context) {
	payload, err := h.asm.Comments(c.Request.Context(), c.Param("id"), c.Query("cursor"), c.Query("limit"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, jsonContentType, payload)
}
