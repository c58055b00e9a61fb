package strategy

import (
	"github.com/angeloszaimis/reverse-proxy/internal/registry"
)

type leastConnStrategy struct{}

func (l *leastConnStrategy) Next(reg *registry.Registry) (*registry.Backend, error) {
	healthy := reg.HealthySet()
	if len(healthy) == 0 {
		return nil, registry.ErrNoHealthyBackend
	}

	best := healthy[0]
	bestConns := best.Inflight()

	for _, b := range healthy[1:] {
		if conns := b.Inflight(); conns < bestConns {
			bestConns = conns
			best = b
		}
	}

	return best, nil
}

func NewLeastConnStrategy() Strategy {
	return &leastConnStrategy{}
}
