package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ddevcap/rollfeed/api/middleware"
	"github.com/ddevcap/rollfeed/engagement"
	"github.com/ddevcap/rollfeed/feed"
	"github.com/ddevcap/rollfeed/store"
)

type EngagementHandler struct {
	svc *engagement.Service
}

func NewEngagementHandler(svc *engagement.Service) *EngagementHandler {
	return &EngagementHandler{svc: svc}
}

// mutationFields names the flag and counter of each action in responses.
var mutationFields = map[store.Action][2]string{
	store.ActionLike:     {"isLiked", "likesCount"},
	store.ActionSave:     {"isSaved", "savesCount"},
	store.ActionShare:    {"", "sharesCount"},
	store.ActionFavorite: {"isFavorite", "favoritesCount"},
}

// Mutate returns the handler for POST /items/:id/<verb> and
// POST /shops/:id/<verb>. The body carries the item id, the viewer's new
// membership flag and the new count, e.g. {"id":..,"isLiked":true,"likesCount":3}.
func (h *EngagementHandler) Mutate(action store.Action, dir store.Direction) gin.HandlerFunc {
	fields := mutationFields[action]
	return func(c *gin.Context) {
		res, err := h.svc.Apply(c.Request.Context(), action, c.Param("id"), middleware.ViewerFrom(c).ID, dir)
		if err != nil {
			respondError(c, err)
			return
		}
		body := gin.H{"id": res.ItemID, fields[1]: res.Count}
		if fields[0] != "" {
			body[fields[0]] = res.Active
		}
		c.JSON(http.StatusOK, body)
	}
}

type createCommentRequest struct {
	Body string `json:"body" binding:"required,max=2048"`
}

// PostComment handles POST /items/:id/comments.
func (h *EngagementHandler) PostComment(c *gin.Context) {
	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_body"})
		return
	}
	comment, err := h.svc.Comment(c.Request.Context(), c.Param("id"), middleware.ViewerFrom(c).ID, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, feed.NewCommentView(comment))
}
