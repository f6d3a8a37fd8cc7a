package feed

import (
	"sort"
	"strings"

	"github.com/ddevcap/rollfeed/store"
)

// Affinity is what the ranking knows about a viewer.
type Affinity struct {
	FavoriteShops map[string]struct{}
	Country       string
	Language      string
}

func (a Affinity) favorite(shopID string) bool {
	_, ok := a.FavoriteShops[shopID]
	return ok
}

func sameCode(viewer, item string) bool {
	return viewer != "" && item != "" && strings.EqualFold(viewer, item)
}

// AdCandidate is an ad together with its per-viewer affinity flags.
type AdCandidate struct {
	Ad              store.Ad
	IsFavoriteShop  bool
	MatchesCountry  bool
	MatchesLanguage bool
}

// Tier is the candidate's bucket, 1 (best) to 8.
func (c AdCandidate) Tier() int {
	return AdTier(c.IsFavoriteShop, c.MatchesCountry, c.MatchesLanguage)
}

// Candidate computes the affinity flags of ad for this viewer.
func (a Affinity) Candidate(ad store.Ad) AdCandidate {
	return AdCandidate{
		Ad:              ad,
		IsFavoriteShop:  a.favorite(ad.ShopID),
		MatchesCountry:  sameCode(a.Country, ad.Country),
		MatchesLanguage: sameCode(a.Language, ad.Language),
	}
}

// AdTier maps the affinity triple to a tier. Favorite shop outranks country,
// which outranks language:
//
//	1 fav+country+lang  2 fav+country  3 fav+lang  4 fav
//	5 country+lang      6 country      7 lang      8 none
func AdTier(favorite, country, language bool) int {
	switch {
	case favorite && country && language:
		return 1
	case favorite && country:
		return 2
	case favorite && language:
		return 3
	case favorite:
		return 4
	case country && language:
		return 5
	case country:
		return 6
	case language:
		return 7
	}
	return 8
}

// RankAds orders candidates by tier, then priority (higher first), then
// creation time (newer first), then id, and keeps the first limit. The id
// tie-break makes the order independent of input order.
func RankAds(cands []AdCandidate, limit int) []AdCandidate {
	out := make([]AdCandidate, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ta, tb := a.Tier(), b.Tier(); ta != tb {
			return ta < tb
		}
		if a.Ad.Priority != b.Ad.Priority {
			return a.Ad.Priority > b.Ad.Priority
		}
		if !a.Ad.CreatedAt.Equal(b.Ad.CreatedAt) {
			return a.Ad.CreatedAt.After(b.Ad.CreatedAt)
		}
		return a.Ad.ID < b.Ad.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ShopTier applies the ad tiers to a shop listing entry. For shops the tier
// is only a boost inside an already filtered, time-ordered page.
func (a Affinity) ShopTier(sh store.Shop) int {
	return AdTier(a.favorite(sh.ID), sameCode(a.Country, sh.Country), sameCode(a.Language, sh.Language))
}

// BoostShops reorders a page so that shops closer to the viewer come first.
// Within a tier the original time order is kept, then id breaks ties.
func BoostShops(shops []store.Shop, a Affinity) []store.Shop {
	out := make([]store.Shop, len(shops))
	copy(out, shops)
	sort.SliceStable(out, func(i, j int) bool {
		if ti, tj := a.ShopTier(out[i]), a.ShopTier(out[j]); ti != tj {
			return ti < tj
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
