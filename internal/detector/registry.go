package detector

import (
	"sync"

	"github.com/sha1n/structured-relation/internal/domain"
)

// Registry holds the detectors consulted by the indexing engine. Detectors are
// registered once at startup.
type Registry struct {
	mu        sync.RWMutex
	detectors []Detector
}

// NewRegistry creates a registry holding the given detectors.
func NewRegistry(detectors ...Detector) *Registry {
	r := &Registry{}
	for _, d := range detectors {
		r.Register(d)
	}
	return r
}

// Register adds a detector. Panics on nil.
func (r *Registry) Register(d Detector) {
	if d == nil {
		panic("detector registry: nil detector")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detectors = append(r.detectors, d)
}

// Len returns the number of registered detectors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.detectors)
}

// IsSerializedValue reports whether any registered detector claims fieldName.
func (r *Registry) IsSerializedValue(cfg domain.IndexingConfiguration, fieldName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.detectors {
		if d.IsSerializedValue(cfg, fieldName) {
			return true
		}
	}
	return false
}
