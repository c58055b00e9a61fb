package strategy

import (
	"github.com/angeloszaimis/reverse-proxy/internal/registry"
)

// Strategy picks the next backend for a request from the registry's current
// healthy set. Implementations return registry.ErrNoHealthyBackend when
// nothing is eligible.
type Strategy interface {
	Next(reg *registry.Registry) (*registry.Backend, error)
}
