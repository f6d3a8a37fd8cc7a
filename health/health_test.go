package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ddevcap/rollfeed/health"
	"github.com/ddevcap/rollfeed/metrics"
)

var errDown = errors.New("connection refused")

var _ = Describe("Monitor", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("treats an unchecked dependency as available", func() {
		m := health.NewMonitor(time.Minute)
		m.Register("store", func(context.Context) error { return errDown })

		Expect(m.Available("store")).To(BeTrue())
		Expect(m.Available("unknown")).To(BeTrue())
	})

	It("marks a healthy dependency as available in the background", func() {
		var calls atomic.Int32
		m := health.NewMonitor(20 * time.Millisecond)
		m.Register("store", func(context.Context) error {
			calls.Add(1)
			return nil
		})
		m.Start(ctx)
		defer m.Stop()

		Eventually(calls.Load, time.Second, 10*time.Millisecond).Should(BeNumerically(">=", 2))
		Expect(m.Available("store")).To(BeTrue())
	})

	It("reports the latest failure without marking the dependency down", func() {
		m := health.NewMonitor(time.Minute)
		m.Register("store", func(context.Context) error { return errDown })

		st := m.CheckNow(ctx)
		Expect(st).To(HaveLen(1))
		Expect(st[0].OK()).To(BeFalse())
		Expect(st[0].LastError).To(Equal("connection refused"))
		Expect(st[0].FailureCount).To(Equal(1))
		Expect(m.Available("store")).To(BeTrue())
	})

	It("keeps the check error out of the JSON snapshot", func() {
		m := health.NewMonitor(time.Minute)
		m.Register("store", func(context.Context) error { return errDown })

		b, err := json.Marshal(m.CheckNow(ctx))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(ContainSubstring(`"name":"store"`))
		Expect(string(b)).NotTo(ContainSubstring("connection refused"))
	})

	It("marks a dependency unavailable after consecutive failures", func() {
		m := health.NewMonitor(time.Minute)
		m.Register("redis_down", func(context.Context) error { return errDown })

		m.CheckNow(ctx)
		m.CheckNow(ctx)
		Expect(m.Available("redis_down")).To(BeFalse())
		Expect(testutil.ToFloat64(metrics.DependencyUp.WithLabelValues("redis_down"))).To(Equal(0.0))
	})

	It("recovers on the first success", func() {
		var fail atomic.Bool
		fail.Store(true)
		m := health.NewMonitor(time.Minute)
		m.Register("flaky", func(context.Context) error {
			if fail.Load() {
				return errDown
			}
			return nil
		})

		m.CheckNow(ctx)
		m.CheckNow(ctx)
		Expect(m.Available("flaky")).To(BeFalse())

		fail.Store(false)
		st := m.CheckNow(ctx)
		Expect(st[0].OK()).To(BeTrue())
		Expect(st[0].FailureCount).To(BeZero())
		Expect(m.Available("flaky")).To(BeTrue())
		Expect(testutil.ToFloat64(metrics.DependencyUp.WithLabelValues("flaky"))).To(Equal(1.0))
	})

	It("bounds each check with a timeout", func() {
		m := health.NewMonitor(time.Minute)
		m.Register("slow", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

		st := m.CheckNow(ctx)
		Expect(st[0].OK()).To(BeFalse())
	})

	It("returns statuses sorted by name", func() {
		m := health.NewMonitor(time.Minute)
		m.Register("store", func(context.Context) error { return nil })
		m.Register("redis", func(context.Context) error { return nil })

		st := m.CheckNow(ctx)
		Expect(st[0].Name).To(Equal("redis"))
		Expect(st[1].Name).To(Equal("store"))
	})

	It("stops cleanly when never started", func() {
		Expect(health.NewMonitor(time.Second).Stop).NotTo(Panic())
	})
})
