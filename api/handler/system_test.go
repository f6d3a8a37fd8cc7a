package handler_test

import (
	"errors"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SystemHandler", func() {
	var h *harness

	BeforeEach(func() {
		h = newHarness()
	})

	It("reports liveness", func() {
		w := doGet(h.engine, "/health")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(MatchJSON(`{"status":"ok"}`))
	})

	It("reports readiness when the store answers", func() {
		w := doGet(h.engine, "/ready")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(MatchJSON(`{"status":"ok","dependencies":[{"name":"store","ok":true}]}`))
	})

	It("returns 503 without exposing the driver error", func() {
		h.st.FailNext("Ping", errors.New("dial tcp 10.0.0.7:5432: connection refused"))

		w := doGet(h.engine, "/ready")
		Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
		Expect(w.Body.String()).To(MatchJSON(`{"status":"unavailable","dependencies":[{"name":"store","ok":false}]}`))
		Expect(w.Body.String()).NotTo(ContainSubstring("connection refused"))
		Expect(w.Body.String()).NotTo(ContainSubstring("10.0.0.7"))

		// The next probe succeeds again.
		Expect(doGet(h.engine, "/ready").Code).To(Equal(http.StatusOK))
	})

	It("exposes prometheus metrics", func() {
		// Touch a counter so the rollfeed families are present.
		Expect(doPost(h.engine, "/items/missing/like", nil, as("alice")).Code).To(Equal(http.StatusNotFound))

		w := doGet(h.engine, "/metrics")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring("rollfeed_"))
	})
})
