package feed

import (
	"time"

	"github.com/ddevcap/rollfeed/store"
)

// RollView is a roll as rendered in a feed page.
type RollView struct {
	ID            string    `json:"id"`
	ShopID        string    `json:"shopId"`
	CreatorID     string    `json:"creatorId"`
	Category      string    `json:"category"`
	Caption       string    `json:"caption"`
	CreatedAt     time.Time `json:"createdAt"`
	LikesCount    int64     `json:"likesCount"`
	SavesCount    int64     `json:"savesCount"`
	SharesCount   int64     `json:"sharesCount"`
	CommentsCount int64     `json:"commentsCount"`
	IsLiked       bool      `json:"isLiked"`
	IsSaved       bool      `json:"isSaved"`
}

// NewRollView renders r with the viewer flags taken from the membership sets.
func NewRollView(r store.Roll, liked, saved map[string]struct{}) RollView {
	_, isLiked := liked[r.ID]
	_, isSaved := saved[r.ID]
	return RollView{
		ID:            r.ID,
		ShopID:        r.ShopID,
		CreatorID:     r.CreatorID,
		Category:      r.Category,
		Caption:       r.Caption,
		CreatedAt:     r.CreatedAt,
		LikesCount:    r.LikesCount,
		SavesCount:    r.SavesCount,
		SharesCount:   r.SharesCount,
		CommentsCount: r.CommentsCount,
		IsLiked:       isLiked,
		IsSaved:       isSaved,
	}
}

type ShopView struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"ownerId"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	Country        string    `json:"country,omitempty"`
	Language       string    `json:"language,omitempty"`
	FavoritesCount int64     `json:"favoritesCount"`
	CreatedAt      time.Time `json:"createdAt"`
	IsFavorite     bool      `json:"isFavorite"`
}

func NewShopView(s store.Shop, favorites map[string]struct{}) ShopView {
	_, fav := favorites[s.ID]
	return ShopView{
		ID:             s.ID,
		OwnerID:        s.OwnerID,
		Name:           s.Name,
		Category:       s.Category,
		Country:        s.Country,
		Language:       s.Language,
		FavoritesCount: s.FavoritesCount,
		CreatedAt:      s.CreatedAt,
		IsFavorite:     fav,
	}
}

type AdView struct {
	ID        string    `json:"id"`
	ShopID    string    `json:"shopId"`
	Title     string    `json:"title"`
	Priority  int       `json:"priority"`
	Country   string    `json:"country,omitempty"`
	Language  string    `json:"language,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Tier      int       `json:"tier"`
}

// NewAdView renders a ranked candidate.
func NewAdView(c AdCandidate) AdView {
	return AdView{
		ID:        c.Ad.ID,
		ShopID:    c.Ad.ShopID,
		Title:     c.Ad.Title,
		Priority:  c.Ad.Priority,
		Country:   c.Ad.Country,
		Language:  c.Ad.Language,
		CreatedAt: c.Ad.CreatedAt,
		Tier:      c.Tier(),
	}
}

type CommentView struct {
	ID        string    `json:"id"`
	RollID    string    `json:"rollId"`
	AuthorID  string    `json:"authorId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewCommentView(c store.Comment) CommentView {
	return CommentView{ID: c.ID, RollID: c.RollID, AuthorID: c.AuthorID, Body: c.Body, CreatedAt: c.CreatedAt}
}

// PageResponse is the envelope of every paginated endpoint. Cursor is null
// when the page is empty.
type PageResponse[T any] struct {
	Data    []T     `json:"data"`
	Cursor  *string `json:"cursor"`
	HasMore bool    `json:"hasMore"`
}

// AdsResponse carries a ranked ad slate.
type AdsResponse struct {
	Data []AdView `json:"data"`
}
