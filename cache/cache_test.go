package cache_test

import (
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ddevcap/rollfeed/cache"
)

var _ = Describe("Cache", func() {
	var c *cache.Cache

	BeforeEach(func() {
		c = cache.New("test", time.Minute)
		c.Start()
		DeferCleanup(c.Stop)
	})

	It("returns byte-identical payloads for repeated reads within the TTL", func() {
		c.Set("feed:a", []byte(`{"data":[1,2,3]}`), 0)

		first, ok := c.Get("feed:a")
		Expect(ok).To(BeTrue())
		second, ok := c.Get("feed:a")
		Expect(ok).To(BeTrue())
		Expect(second).To(Equal(first))
		Expect(string(first)).To(Equal(`{"data":[1,2,3]}`))
	})

	It("treats an entry as absent once its TTL has elapsed", func() {
		c.Set("short", []byte("x"), 50*time.Millisecond)
		Expect(c.Has("short")).To(BeTrue())

		time.Sleep(80 * time.Millisecond)

		_, ok := c.Get("short")
		Expect(ok).To(BeFalse())
		Expect(c.Has("short")).To(BeFalse())
	})

	It("keeps Has consistent with Get", func() {
		Expect(c.Has("missing")).To(BeFalse())
		c.Set("present", []byte("v"), 0)
		Expect(c.Has("present")).To(BeTrue())
	})

	It("drops everything on Clear", func() {
		c.Set("a", []byte("1"), 0)
		c.Set("b", []byte("2"), 0)

		c.Clear()

		Expect(c.Has("a")).To(BeFalse())
		Expect(c.Has("b")).To(BeFalse())
		Expect(c.Len()).To(BeZero())
	})

	It("overwrites an existing entry", func() {
		c.Set("k", []byte("old"), 0)
		c.Set("k", []byte("new"), 0)

		v, ok := c.Get("k")
		Expect(ok).To(BeTrue())
		Expect(string(v)).To(Equal("new"))
	})

	Context("with invalid input", func() {
		It("ignores empty keys", func() {
			c.Set("", []byte("v"), 0)
			Expect(c.Len()).To(BeZero())
		})

		It("ignores negative TTLs", func() {
			c.Set("neg", []byte("v"), -time.Second)
			Expect(c.Has("neg")).To(BeFalse())
		})
	})

	It("survives concurrent readers, writers and clears", func() {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer GinkgoRecover()
				defer wg.Done()
				for j := 0; j < 200; j++ {
					key := fmt.Sprintf("k%d", j%10)
					want := []byte(fmt.Sprintf("value-%d", j%10))
					c.Set(key, want, 0)
					if got, ok := c.Get(key); ok {
						Expect(got).To(Equal(want))
					}
					if i == 0 && j%50 == 0 {
						c.Clear()
					}
				}
			}(i)
		}
		wg.Wait()
	})

	It("can be stopped without having been started", func() {
		idle := cache.New("idle", 0)
		Expect(idle.Stop).NotTo(Panic())
	})
})
