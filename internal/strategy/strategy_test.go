package strategy_test

import (
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/reverse-proxy/internal/registry"
	"github.com/angeloszaimis/reverse-proxy/internal/strategy"
)

func newRegistry(rawURLs ...string) *registry.Registry {
	urls := make([]*url.URL, len(rawURLs))
	for i, raw := range rawURLs {
		u, err := url.Parse(raw)
		Expect(err).NotTo(HaveOccurred())
		urls[i] = u
	}
	reg, err := registry.New(urls, 2, 3)
	Expect(err).NotTo(HaveOccurred())
	return reg
}

var _ = Describe("RoundRobin", func() {
	var (
		strat strategy.Strategy
		reg   *registry.Registry
	)

	BeforeEach(func() {
		strat = strategy.NewRoundRobinStrategy()
		reg = newRegistry(
			"http://localhost:9001",
			"http://localhost:9002",
			"http://localhost:9003",
		)
	})

	Context("with all healthy backends", func() {
		It("should cycle through backends in order", func() {
			for _, want := range []int{0, 1, 2, 0} {
				b, err := strat.Next(reg)
				Expect(err).NotTo(HaveOccurred())
				Expect(b.Index()).To(Equal(want))
			}
		})

		It("should distribute load evenly", func() {
			counts := make(map[string]int)
			for i := 0; i < 300; i++ {
				b, err := strat.Next(reg)
				Expect(err).NotTo(HaveOccurred())
				counts[b.URL().String()]++
			}
			Expect(counts["http://localhost:9001"]).To(Equal(100))
			Expect(counts["http://localhost:9002"]).To(Equal(100))
			Expect(counts["http://localhost:9003"]).To(Equal(100))
		})
	})

	Context("with an unhealthy backend", func() {
		It("should skip it", func() {
			reg.Backends()[0].SetHealthy(false)

			for i := 0; i < 20; i++ {
				b, err := strat.Next(reg)
				Expect(err).NotTo(HaveOccurred())
				Expect(b.Index()).NotTo(Equal(0))
			}
		})
	})

	Context("with no healthy backends", func() {
		It("should fail with ErrNoHealthyBackend", func() {
			for _, b := range reg.Backends() {
				b.SetHealthy(false)
			}

			_, err := strat.Next(reg)
			Expect(err).To(MatchError(registry.ErrNoHealthyBackend))
		})
	})
})

var _ = Describe("LeastConn", func() {
	var (
		strat strategy.Strategy
		reg   *registry.Registry
	)

	BeforeEach(func() {
		strat = strategy.NewLeastConnStrategy()
		reg = newRegistry(
			"http://localhost:9001",
			"http://localhost:9002",
			"http://localhost:9003",
		)
	})

	It("should select the backend with fewest in-flight requests", func() {
		reg.Backends()[0].IncrementInflight()
		reg.Backends()[0].IncrementInflight()
		reg.Backends()[2].IncrementInflight()

		b, err := strat.Next(reg)
		Expect(err).NotTo(HaveOccurred())
		Expect(b.Index()).To(Equal(1))
	})

	It("should select the first backend on a tie", func() {
		b, err := strat.Next(reg)
		Expect(err).NotTo(HaveOccurred())
		Expect(b.Index()).To(Equal(0))
	})

	It("should ignore unhealthy backends", func() {
		reg.Backends()[0].SetHealthy(false)

		b, err := strat.Next(reg)
		Expect(err).NotTo(HaveOccurred())
		Expect(b.Index()).To(Equal(1))
	})

	It("should fail when nothing is healthy", func() {
		for _, b := range reg.Backends() {
			b.SetHealthy(false)
		}

		_, err := strat.Next(reg)
		Expect(err).To(MatchError(registry.ErrNoHealthyBackend))
	})
})

var _ = Describe("Random", func() {
	var (
		strat strategy.Strategy
		reg   *registry.Registry
	)

	BeforeEach(func() {
		strat = strategy.NewRandomStrategy()
		reg = newRegistry(
			"http://localhost:9001",
			"http://localhost:9002",
			"http://localhost:9003",
		)
	})

	It("should select a healthy backend", func() {
		b, err := strat.Next(reg)
		Expect(err).NotTo(HaveOccurred())
		Expect(reg.Backends()).To(ContainElement(b))
	})

	It("should distribute across backends over multiple calls", func() {
		seen := make(map[int]bool)
		for i := 0; i < 100; i++ {
			b, err := strat.Next(reg)
			Expect(err).NotTo(HaveOccurred())
			seen[b.Index()] = true
		}
		Expect(len(seen)).To(BeNumerically(">=", 2))
	})

	It("should only pick among healthy backends", func() {
		reg.Backends()[0].SetHealthy(false)
		reg.Backends()[2].SetHealthy(false)

		for i := 0; i < 20; i++ {
			b, err := strat.Next(reg)
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Index()).To(Equal(1))
		}
	})

	It("should fail when nothing is healthy", func() {
		for _, b := range reg.Backends() {
			b.SetHealthy(false)
		}

		_, err := strat.Next(reg)
		Expect(err).To(MatchError(registry.ErrNoHealthyBackend))
	})
})
