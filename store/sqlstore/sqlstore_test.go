package sqlstore_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ddevcap/rollfeed/store"
	"github.com/ddevcap/rollfeed/store/sqlstore"
)

var _ = Describe("Store", func() {
	var (
		ctx  context.Context
		st   *sqlstore.Store
		base time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		st = newTestStore()
		base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	})

	newRoll := func(category string, at time.Time) store.Roll {
		r, err := st.CreateRoll(ctx, store.Roll{ShopID: "shop-1", CreatorID: "creator-1", Category: category, CreatedAt: at})
		Expect(err).NotTo(HaveOccurred())
		return r
	}

	Describe("rolls", func() {
		It("round-trips a roll with microsecond timestamps", func() {
			at := base.Add(1234567 * time.Nanosecond)
			r := newRoll("shoes", at)
			Expect(r.ID).NotTo(BeEmpty())

			got, err := st.GetRoll(ctx, r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Category).To(Equal("shoes"))
			Expect(got.CreatedAt).To(Equal(at.Truncate(time.Microsecond)))
		})

		It("reports a missing roll", func() {
			_, err := st.GetRoll(ctx, "missing")
			Expect(err).To(MatchError(store.ErrNotFound))
		})

		It("finds rolls newest first before a cursor", func() {
			for i := 0; i < 5; i++ {
				newRoll("", base.Add(time.Duration(i)*time.Minute))
			}
			cursor := base.Add(3 * time.Minute)
			rs, err := st.FindRolls(ctx, store.RollFilter{Before: &cursor, Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(rs).To(HaveLen(2))
			Expect(rs[0].CreatedAt).To(Equal(base.Add(2 * time.Minute)))
			Expect(rs[1].CreatedAt).To(Equal(base.Add(time.Minute)))
		})

		It("filters by category and shop", func() {
			newRoll("shoes", base)
			newRoll("hats", base.Add(time.Second))
			_, err := st.CreateRoll(ctx, store.Roll{ShopID: "shop-2", CreatorID: "c", Category: "hats", CreatedAt: base.Add(2 * time.Second)})
			Expect(err).NotTo(HaveOccurred())

			rs, err := st.FindRolls(ctx, store.RollFilter{Category: "hats", ShopID: "shop-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(rs).To(HaveLen(1))
			Expect(rs[0].Category).To(Equal("hats"))
		})
	})

	Describe("ConditionalSetUpdate", func() {
		var roll store.Roll

		BeforeEach(func() {
			roll = newRoll("", base)
		})

		It("applies an add once", func() {
			res, err := st.ConditionalSetUpdate(ctx, store.ActionLike, roll.ID, "v1", store.Add)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(store.Applied))
			Expect(res.Count).To(BeEquivalentTo(1))

			res, err = st.ConditionalSetUpdate(ctx, store.ActionLike, roll.ID, "v1", store.Add)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(store.AlreadyDone))
			Expect(res.Count).To(BeEquivalentTo(1))
		})

		It("reports NotDone for a remove without membership", func() {
			res, err := st.ConditionalSetUpdate(ctx, store.ActionSave, roll.ID, "v1", store.Remove)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(store.NotDone))
			Expect(res.Count).To(BeEquivalentTo(0))
		})

		It("reports NotFound for a missing item", func() {
			res, err := st.ConditionalSetUpdate(ctx, store.ActionLike, "missing", "v1", store.Add)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(store.NotFound))
		})

		It("clamps a drifted counter at zero", func() {
			_, err := st.ConditionalSetUpdate(ctx, store.ActionLike, roll.ID, "v1", store.Add)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.WriteBackCount(ctx, roll.ID, store.CounterLikes, 0)).To(Succeed())

			res, err := st.ConditionalSetUpdate(ctx, store.ActionLike, roll.ID, "v1", store.Remove)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(store.Applied))
			Expect(res.Clamped).To(BeTrue())
			Expect(res.Count).To(BeEquivalentTo(0))

			ids, err := st.FindMembershipIDs(ctx, store.ActionLike, "v1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(BeEmpty())
		})

		It("keeps the counter equal to the set size under concurrent viewers", func() {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				viewer := fmt.Sprintf("v%d", i)
				for j := 0; j < 3; j++ {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()
						_, err := st.ConditionalSetUpdate(ctx, store.ActionLike, roll.ID, viewer, store.Add)
						Expect(err).NotTo(HaveOccurred())
					}()
				}
			}
			wg.Wait()

			got, err := st.GetRoll(ctx, roll.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.LikesCount).To(BeEquivalentTo(20))
		})

		It("tracks shop favorites", func() {
			sh, err := st.CreateShop(ctx, store.Shop{OwnerID: "o", Name: "shop"})
			Expect(err).NotTo(HaveOccurred())
			res, err := st.ConditionalSetUpdate(ctx, store.ActionFavorite, sh.ID, "v1", store.Add)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Count).To(BeEquivalentTo(1))

			ids, err := st.FindMembershipIDs(ctx, store.ActionFavorite, "v1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(HaveKey(sh.ID))
		})

		It("rejects actions without a membership set", func() {
			_, err := st.ConditionalSetUpdate(ctx, store.ActionShare, roll.ID, "v1", store.Add)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("IncrementCounter", func() {
		It("increments shares", func() {
			roll := newRoll("", base)
			n, err := st.IncrementCounter(ctx, store.ActionShare, roll.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeEquivalentTo(1))
		})

		It("reports a missing item", func() {
			_, err := st.IncrementCounter(ctx, store.ActionShare, "missing")
			Expect(err).To(MatchError(store.ErrNotFound))
		})
	})

	Describe("comments", func() {
		It("counts comments per roll in one grouped query", func() {
			a := newRoll("", base)
			b := newRoll("", base.Add(time.Second))
			c := newRoll("", base.Add(2*time.Second))
			for i := 0; i < 7; i++ {
				_, err := st.CreateComment(ctx, store.Comment{RollID: a.ID, AuthorID: "u", Body: "x"})
				Expect(err).NotTo(HaveOccurred())
			}
			_, err := st.CreateComment(ctx, store.Comment{RollID: b.ID, AuthorID: "u", Body: "x"})
			Expect(err).NotTo(HaveOccurred())

			counts, err := st.CountGrouped(ctx, []string{a.ID, b.ID, c.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(counts).To(Equal(map[string]int64{a.ID: 7, b.ID: 1}))

			got, err := st.GetRoll(ctx, a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.CommentsCount).To(BeEquivalentTo(0))
		})

		It("refuses comments on a missing roll", func() {
			_, err := st.CreateComment(ctx, store.Comment{RollID: "missing", AuthorID: "u", Body: "x"})
			Expect(err).To(MatchError(store.ErrNotFound))
		})

		It("lists comments newest first", func() {
			r := newRoll("", base)
			for i := 0; i < 3; i++ {
				_, err := st.CreateComment(ctx, store.Comment{RollID: r.ID, AuthorID: "u", Body: fmt.Sprintf("c%d", i), CreatedAt: base.Add(time.Duration(i) * time.Second)})
				Expect(err).NotTo(HaveOccurred())
			}
			cs, err := st.ListComments(ctx, store.CommentFilter{RollID: r.ID, Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(cs).To(HaveLen(2))
			Expect(cs[0].Body).To(Equal("c2"))
		})
	})

	Describe("WriteBackCount", func() {
		It("overwrites the counter", func() {
			r := newRoll("", base)
			Expect(st.WriteBackCount(ctx, r.ID, store.CounterComments, 7)).To(Succeed())
			got, err := st.GetRoll(ctx, r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.CommentsCount).To(BeEquivalentTo(7))
		})

		It("recounts comments from the comment rows", func() {
			r := newRoll("", base)
			other := newRoll("", base.Add(time.Second))
			for i := 0; i < 3; i++ {
				_, err := st.CreateComment(ctx, store.Comment{RollID: r.ID, AuthorID: "u", Body: "x"})
				Expect(err).NotTo(HaveOccurred())
			}
			_, err := st.CreateComment(ctx, store.Comment{RollID: other.ID, AuthorID: "u", Body: "x"})
			Expect(err).NotTo(HaveOccurred())
			Expect(st.WriteBackCount(ctx, r.ID, store.CounterComments, 1)).To(Succeed())

			Expect(st.RecountComments(ctx, r.ID)).To(Succeed())
			got, err := st.GetRoll(ctx, r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.CommentsCount).To(BeEquivalentTo(3))
		})

		It("reports a missing roll on recount", func() {
			Expect(st.RecountComments(ctx, "missing")).To(MatchError(store.ErrNotFound))
		})
	})

	Describe("shops and ads", func() {
		It("lists shops by category newest first", func() {
			_, err := st.CreateShop(ctx, store.Shop{OwnerID: "o", Name: "a", Category: "food", CreatedAt: base})
			Expect(err).NotTo(HaveOccurred())
			_, err = st.CreateShop(ctx, store.Shop{OwnerID: "o", Name: "b", Category: "food", CreatedAt: base.Add(time.Second)})
			Expect(err).NotTo(HaveOccurred())
			_, err = st.CreateShop(ctx, store.Shop{OwnerID: "o", Name: "c", Category: "toys", CreatedAt: base})
			Expect(err).NotTo(HaveOccurred())

			shops, err := st.FindShops(ctx, store.ShopFilter{Category: "food"})
			Expect(err).NotTo(HaveOccurred())
			Expect(shops).To(HaveLen(2))
			Expect(shops[0].Name).To(Equal("b"))
		})

		It("returns every ad when no limit is given", func() {
			for i := 0; i < 25; i++ {
				_, err := st.CreateAd(ctx, store.Ad{ShopID: "s", Title: fmt.Sprintf("ad %d", i), Priority: i})
				Expect(err).NotTo(HaveOccurred())
			}
			ads, err := st.FindAds(ctx, store.AdFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ads).To(HaveLen(25))
		})
	})

	It("pings the database", func() {
		Expect(st.Ping(ctx)).To(Succeed())
	})
})
