package adapter

import (
	"fmt"

	"github.com/maheshrc27/postflow/internal/models"
)

type Registry struct {
	adapters map[models.PlatformKind]Adapter
}

// NewRegistry indexes adapters by platform. Every kind in
// models.PlatformKinds must be covered exactly once.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[models.PlatformKind]Adapter, len(adapters))}

	for _, a := range adapters {
		kind := a.Platform()
		if _, dup := r.adapters[kind]; dup {
			return nil, fmt.Errorf("duplicate adapter for %s", kind)
		}
		r.adapters[kind] = a
	}

	for _, kind := range models.PlatformKinds {
		if _, ok := r.adapters[kind]; !ok {
			return nil, fmt.Errorf("no adapter registered for %s", kind)
		}
	}

	return r, nil
}

func (r *Registry) Get(kind models.PlatformKind) (Adapter, bool) {
	a, ok := r.adapters[kind]
	return a, ok
}
