package feed_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ddevcap/rollfeed/feed"
	"github.com/ddevcap/rollfeed/store"
)

func adIDs(cands []feed.AdCandidate) []string {
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.Ad.ID
	}
	return ids
}

var _ = Describe("AdTier", func() {
	DescribeTable("maps the affinity triple",
		func(fav, country, lang bool, tier int) {
			Expect(feed.AdTier(fav, country, lang)).To(Equal(tier))
		},
		Entry("all three", true, true, true, 1),
		Entry("favorite and country", true, true, false, 2),
		Entry("favorite and language", true, false, true, 3),
		Entry("favorite only", true, false, false, 4),
		Entry("country and language", false, true, true, 5),
		Entry("country only", false, true, false, 6),
		Entry("language only", false, false, true, 7),
		Entry("none", false, false, false, 8),
	)
})

var _ = Describe("RankAds", func() {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	first := feed.AdCandidate{Ad: store.Ad{ID: "first", Priority: 1, CreatedAt: now}, IsFavoriteShop: true, MatchesCountry: true, MatchesLanguage: true}
	second := feed.AdCandidate{Ad: store.Ad{ID: "second", Priority: 5, CreatedAt: now}, IsFavoriteShop: true, MatchesCountry: true}
	third := feed.AdCandidate{Ad: store.Ad{ID: "third", Priority: 10, CreatedAt: now}}

	DescribeTable("lets tier dominate priority regardless of input order",
		func(in []feed.AdCandidate) {
			Expect(adIDs(feed.RankAds(in, 20))).To(Equal([]string{"first", "second", "third"}))
		},
		Entry("sorted", []feed.AdCandidate{first, second, third}),
		Entry("reversed", []feed.AdCandidate{third, second, first}),
		Entry("shuffled", []feed.AdCandidate{second, third, first}),
	)

	It("orders within a tier by priority, then recency, then id", func() {
		in := []feed.AdCandidate{
			{Ad: store.Ad{ID: "old-low", Priority: 1, CreatedAt: now.Add(-time.Hour)}},
			{Ad: store.Ad{ID: "b-tie", Priority: 3, CreatedAt: now}},
			{Ad: store.Ad{ID: "new-high", Priority: 3, CreatedAt: now.Add(time.Hour)}},
			{Ad: store.Ad{ID: "a-tie", Priority: 3, CreatedAt: now}},
		}
		Expect(adIDs(feed.RankAds(in, 20))).To(Equal([]string{"new-high", "a-tie", "b-tie", "old-low"}))
	})

	It("truncates to the limit", func() {
		var in []feed.AdCandidate
		for i := 0; i < 30; i++ {
			in = append(in, feed.AdCandidate{Ad: store.Ad{ID: string(rune('A' + i)), CreatedAt: now}})
		}
		Expect(feed.RankAds(in, 20)).To(HaveLen(20))
	})
})

var _ = Describe("Affinity", func() {
	aff := feed.Affinity{
		FavoriteShops: map[string]struct{}{"fav": {}},
		Country:       "NL",
		Language:      "nl",
	}

	It("computes candidate flags case-insensitively", func() {
		c := aff.Candidate(store.Ad{ShopID: "fav", Country: "nl", Language: "NL"})
		Expect(c.Tier()).To(Equal(1))
	})

	It("does not match empty codes", func() {
		c := feed.Affinity{}.Candidate(store.Ad{ShopID: "x"})
		Expect(c.Tier()).To(Equal(8))
	})

	It("boosts shops without losing time order inside a tier", func() {
		now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		shops := []store.Shop{
			{ID: "plain-new", CreatedAt: now.Add(2 * time.Minute)},
			{ID: "local", Country: "NL", CreatedAt: now.Add(time.Minute)},
			{ID: "plain-old", CreatedAt: now},
			{ID: "fav", CreatedAt: now.Add(-time.Minute)},
		}
		boosted := feed.BoostShops(shops, aff)
		ids := make([]string, len(boosted))
		for i, s := range boosted {
			ids[i] = s.ID
		}
		Expect(ids).To(Equal([]string{"fav", "local", "plain-new", "plain-old"}))
	})
})
