package registry_test

import (
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/reverse-proxy/internal/registry"
)

var _ = Describe("Registry", func() {
	var reg *registry.Registry

	newRegistry := func(healthyAfter, unhealthyAfter int, rawURLs ...string) *registry.Registry {
		urls := make([]*url.URL, len(rawURLs))
		for i, raw := range rawURLs {
			urls[i] = mustParseURL(raw)
		}
		r, err := registry.New(urls, healthyAfter, unhealthyAfter)
		Expect(err).NotTo(HaveOccurred())
		return r
	}

	BeforeEach(func() {
		reg = newRegistry(2, 3,
			"http://localhost:9001",
			"http://localhost:9002",
			"http://localhost:9003",
		)
	})

	Describe("New", func() {
		It("should reject an empty pool", func() {
			_, err := registry.New(nil, 2, 3)
			Expect(err).To(MatchError(registry.ErrEmptyPool))
		})

		It("should start all backends healthy", func() {
			Expect(reg.HealthySet()).To(HaveLen(3))
		})

		It("should keep pool order and indices", func() {
			backends := reg.Backends()
			for i, b := range backends {
				Expect(b.Index()).To(Equal(i))
			}
			Expect(backends[1].URL().String()).To(Equal("http://localhost:9002"))
		})
	})

	Describe("HealthySet", func() {
		It("should exclude unhealthy backends in pool order", func() {
			reg.Backends()[1].SetHealthy(false)

			healthy := reg.HealthySet()
			Expect(healthy).To(HaveLen(2))
			Expect(healthy[0].Index()).To(Equal(0))
			Expect(healthy[1].Index()).To(Equal(2))
		})
	})

	Describe("Advance", func() {
		Context("with all healthy backends", func() {
			It("should rotate in cyclic pool order", func() {
				for _, want := range []int{0, 1, 2, 0, 1, 2} {
					b, err := reg.Advance()
					Expect(err).NotTo(HaveOccurred())
					Expect(b.Index()).To(Equal(want))
				}
			})

			It("should distribute load exactly evenly", func() {
				counts := make(map[int]int)
				for i := 0; i < 300; i++ {
					b, err := reg.Advance()
					Expect(err).NotTo(HaveOccurred())
					counts[b.Index()]++
				}
				Expect(counts[0]).To(Equal(100))
				Expect(counts[1]).To(Equal(100))
				Expect(counts[2]).To(Equal(100))
			})
		})

		Context("with an unhealthy backend", func() {
			BeforeEach(func() {
				reg.Backends()[1].SetHealthy(false)
			})

			It("should never return the unhealthy backend", func() {
				for i := 0; i < 30; i++ {
					b, err := reg.Advance()
					Expect(err).NotTo(HaveOccurred())
					Expect(b.Index()).NotTo(Equal(1))
				}
			})

			It("should return the recovered backend at its original slot", func() {
				b, _ := reg.Advance()
				Expect(b.Index()).To(Equal(0))

				reg.Backends()[1].SetHealthy(true)

				b, _ = reg.Advance()
				Expect(b.Index()).To(Equal(1))
				b, _ = reg.Advance()
				Expect(b.Index()).To(Equal(2))
			})
		})

		Context("with no healthy backends", func() {
			It("should fail with ErrNoHealthyBackend", func() {
				for _, b := range reg.Backends() {
					b.SetHealthy(false)
				}

				_, err := reg.Advance()
				Expect(err).To(MatchError(registry.ErrNoHealthyBackend))
			})
		})
	})

	Describe("MarkResult", func() {
		var b *registry.Backend

		BeforeEach(func() {
			b = reg.Backends()[0]
		})

		failure := registry.ProbeResult{Success: false, StatusCode: 503}
		success := registry.ProbeResult{Success: true, StatusCode: 200}

		It("should keep a backend healthy below the failure threshold", func() {
			reg.MarkResult(b, failure)
			reg.MarkResult(b, failure)
			Expect(b.IsHealthy()).To(BeTrue())
		})

		It("should demote a backend on the threshold failure", func() {
			reg.MarkResult(b, failure)
			reg.MarkResult(b, failure)
			state, changed := reg.MarkResult(b, failure)
			Expect(changed).To(BeTrue())
			Expect(state).To(Equal(registry.Unhealthy))
		})

		It("should reset the failure streak on an interleaved success", func() {
			reg.MarkResult(b, failure)
			reg.MarkResult(b, failure)
			reg.MarkResult(b, success)
			reg.MarkResult(b, failure)
			reg.MarkResult(b, failure)
			Expect(b.IsHealthy()).To(BeTrue())
		})

		It("should promote an unhealthy backend only after the success threshold", func() {
			b.SetHealthy(false)

			_, changed := reg.MarkResult(b, success)
			Expect(changed).To(BeFalse())
			Expect(b.IsHealthy()).To(BeFalse())

			state, changed := reg.MarkResult(b, success)
			Expect(changed).To(BeTrue())
			Expect(state).To(Equal(registry.Healthy))
		})

		It("should reset the success streak on an interleaved failure", func() {
			b.SetHealthy(false)

			reg.MarkResult(b, success)
			reg.MarkResult(b, failure)
			_, changed := reg.MarkResult(b, success)
			Expect(changed).To(BeFalse())
			Expect(b.IsHealthy()).To(BeFalse())
		})

		It("should record the probe time", func() {
			before := b.LastProbe()
			reg.MarkResult(b, success)
			Expect(b.LastProbe().After(before)).To(BeTrue())
		})
	})

	Describe("Inflight tracking", func() {
		It("should increment and decrement", func() {
			b := reg.Backends()[0]

			b.IncrementInflight()
			b.IncrementInflight()
			Expect(b.Inflight()).To(Equal(2))

			b.DecrementInflight()
			Expect(b.Inflight()).To(Equal(1))
		})

		It("should not go below zero", func() {
			b := reg.Backends()[0]
			b.DecrementInflight()
			Expect(b.Inflight()).To(Equal(0))
		})
	})
})

func mustParseURL(rawURL string) *url.URL {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	return u
}
