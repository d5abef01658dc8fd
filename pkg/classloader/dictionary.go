// Package classloader resolves class names to loaded, linked Klasses:
// locating bytes via an external classpath reader, parsing them,
// building the Klass in pkg/oop, synthesizing array classes, linking,
// and driving JLS §5.5 initialization.
package classloader

import (
	"sync"

	"github.com/corvusvm/corvus/pkg/oop"
)

// Dictionary is the process-wide system dictionary (§3.2, C5): the
// source of truth for class identity, keyed by defining loader plus
// class name. Two Require calls for the same (loader, name) pair
// always return the same *oop.Klass pointer.
type Dictionary struct {
	mu      sync.RWMutex
	classes map[string]*oop.Klass
}

func NewDictionary() *Dictionary {
	return &Dictionary{classes: make(map[string]*oop.Klass)}
}

func dictKey(loader, name string) string { return loader + "\x00" + name }

// Find returns the already-registered Klass for (loader, name), or nil.
func (d *Dictionary) Find(loader, name string) *oop.Klass {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.classes[dictKey(loader, name)]
}

// Put registers k under (loader, name). Callers must hold no other
// lock that could deadlock against a concurrent Find of the same key;
// Put is idempotent-safe for the same Klass pointer but panics on an
// attempt to overwrite one (loader, name) with a different Klass,
// which would violate class identity.
func (d *Dictionary) Put(loader, name string, k *oop.Klass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := dictKey(loader, name)
	if existing, ok := d.classes[key]; ok && existing != k {
		panic("classloader: attempted to redefine class " + name)
	}
	d.classes[key] = k
}

// All returns a snapshot of every registered Klass, for diagnostics
// and heap-walking native methods (e.g. instrumentation stubs).
func (d *Dictionary) All() []*oop.Klass {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*oop.Klass, 0, len(d.classes))
	for _, k := range d.classes {
		out = append(out, k)
	}
	return out
}
