package driver

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a backend's Driver. Opening the native API is deferred to
// the call so merely compiling a backend in has no side effects.
type Factory func() (Driver, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register registers a backend factory under a name. Backends call this from
// init(), following the database/sql driver pattern:
//
//	func init() {
//	    driver.Register("soft", func() (driver.Driver, error) {
//	        return New(), nil
//	    })
//	}
//
// Register panics on a nil factory or a duplicate name so misconfiguration
// is caught during program initialization.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("driver: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("driver: Register called twice for " + name)
	}
	factories[name] = factory
}

// Open instantiates the named backend.
func Open(name string) (Driver, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("driver: unknown backend %q (forgotten import?)", name)
	}
	return factory()
}

// List returns the registered backend names, sorted.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registered reports whether a backend with the given name is available.
func Registered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}
