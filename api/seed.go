package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ddevcap/rollfeed/config"
	"github.com/ddevcap/rollfeed/store"
)

var demoShops = []store.Shop{
	{Name: "Canal Coffee", Category: "food", Country: "NL", Language: "nl"},
	{Name: "Berlin Bikes", Category: "sport", Country: "DE", Language: "de"},
	{Name: "Lisbon Tiles", Category: "home", Country: "PT", Language: "pt"},
	{Name: "Brooklyn Vinyl", Category: "music", Country: "US", Language: "en"},
}

// SeedDemo fills an empty store with a few shops, rolls and ads so the feeds
// have something to show. It is a no-op when shops already exist, so it is
// safe to call on every startup.
func SeedDemo(ctx context.Context, st store.Store, cfg config.Config) {
	if !cfg.SeedDemo {
		return
	}
	existing, err := st.FindShops(ctx, store.ShopFilter{Limit: 1})
	if err != nil {
		slog.Error("seed: failed to list shops", "error", err)
		return
	}
	if len(existing) > 0 {
		return
	}

	base := time.Now().Add(-time.Duration(len(demoShops)*10) * time.Minute)
	var rolls, ads int
	for i, sh := range demoShops {
		sh.OwnerID = "demo"
		sh.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		shop, err := st.CreateShop(ctx, sh)
		if err != nil {
			slog.Error("seed: failed to create shop", "name", sh.Name, "error", err)
			return
		}
		for j := 0; j < 5; j++ {
			_, err := st.CreateRoll(ctx, store.Roll{
				ShopID:    shop.ID,
				CreatorID: "demo",
				Category:  shop.Category,
				Caption:   fmt.Sprintf("%s #%d", shop.Name, j+1),
				CreatedAt: base.Add(time.Duration(i*10+j) * time.Minute),
			})
			if err != nil {
				slog.Error("seed: failed to create roll", "shop", shop.Name, "error", err)
				return
			}
			rolls++
		}
		_, err = st.CreateAd(ctx, store.Ad{
			ShopID:   shop.ID,
			Title:    "Visit " + shop.Name,
			Priority: i,
			Country:  shop.Country,
			Language: shop.Language,
		})
		if err != nil {
			slog.Error("seed: failed to create ad", "shop", shop.Name, "error", err)
			return
		}
		ads++
	}

	slog.Info("seed: created demo data", "shops", len(demoShops), "rolls", rolls, "ads", ads)
}
