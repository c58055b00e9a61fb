package strategy

import (
	"math/rand"

	"github.com/angeloszaimis/reverse-proxy/internal/registry"
)

type randomStrategy struct{}

func (r *randomStrategy) Next(reg *registry.Registry) (*registry.Backend, error) {
	healthy := reg.HealthySet()
	if len(healthy) == 0 {
		return nil, registry.ErrNoHealthyBackend
	}

	return healthy[rand.Intn(len(healthy))], nil
}

func NewRandomStrategy() Strategy {
	return &randomStrategy{}
}
