package strategy

import (
	"github.com/angeloszaimis/reverse-proxy/internal/registry"
)

type roundRobinStrategy struct{}

// Next delegates to the registry's rotation cursor, which advances by one on
// every call and skips unhealthy backends without disturbing pool order.
func (rb *roundRobinStrategy) Next(reg *registry.Registry) (*registry.Backend, error) {
	return reg.Advance()
}

func NewRoundRobinStrategy() Strategy {
	return &roundRobinStrategy{}
}
