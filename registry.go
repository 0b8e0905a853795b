package portability

import (
	"sync"
)

// The registry is the single owner of every object behind a handle. Slots
// are arena-style: a handle is a slot index plus the generation the slot had
// when the object was created. Destroying an object bumps the generation, so
// the old handle stops resolving the moment the slot is reclaimed.
//
// Objects referenced by an in-flight submission are not reclaimed on
// destroy; the slot is marked retired and the release runs when the last
// referencing submission completes.
type registry struct {
	mu      sync.Mutex
	entries []regEntry
	free    []uint32
}

type regEntry struct {
	gen      uint32
	kind     ObjectKind
	obj      any
	live     bool
	retired  bool
	inFlight int
	release  func()
}

func newRegistry() *registry {
	// Slot 0 is reserved so NullHandle never resolves.
	return &registry{entries: make([]regEntry, 1, 64)}
}

// allocate binds obj to a fresh handle of the given kind.
func (r *registry) allocate(kind ObjectKind, obj any) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	var slot uint32
	if n := len(r.free); n > 0 {
		slot = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.entries = append(r.entries, regEntry{})
		slot = uint32(len(r.entries) - 1)
	}

	e := &r.entries[slot]
	if e.gen == 0 {
		e.gen = 1
	}
	e.kind = kind
	e.obj = obj
	e.live = true
	e.retired = false
	e.inFlight = 0
	e.release = nil

	return makeHandle(slot, e.gen)
}

// resolve performs the generation- and kind-checked lookup. A stale or
// mistyped handle is a caller-contract violation per the target API's
// external-synchronization rules; the registry stays consistent and the
// caller gets a defined failure instead of a dangling object.
func (r *registry) resolve(h Handle, kind ObjectKind) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.lookupLocked(h, kind)
	if e == nil {
		return nil, false
	}
	return e.obj, true
}

func (r *registry) lookupLocked(h Handle, kind ObjectKind) *regEntry {
	slot := h.slot()
	if slot == 0 || int(slot) >= len(r.entries) {
		return nil
	}
	e := &r.entries[slot]
	if !e.live || e.gen != h.generation() || e.kind != kind {
		return nil
	}
	return e
}

// destroy invalidates the handle. The generation advances immediately so
// further resolves fail, but the backend release is deferred while any
// submission still references the slot.
func (r *registry) destroy(h Handle, kind ObjectKind, release func()) bool {
	r.mu.Lock()
	e := r.lookupLocked(h, kind)
	if e == nil {
		r.mu.Unlock()
		return false
	}

	e.live = false
	e.gen++

	if e.inFlight > 0 {
		e.retired = true
		e.release = release
		r.mu.Unlock()
		return true
	}

	obj := e.obj
	e.obj = nil
	r.free = append(r.free, h.slot())
	r.mu.Unlock()

	_ = obj
	if release != nil {
		release()
	}
	return true
}

// addRef marks the slot as referenced by a pending submission.
func (r *registry) addRef(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := h.slot()
	if slot == 0 || int(slot) >= len(r.entries) {
		return
	}
	r.entries[slot].inFlight++
}

// releaseRef drops one submission reference, running a deferred release if
// the slot was destroyed while in flight.
func (r *registry) releaseRef(h Handle) {
	r.mu.Lock()

	slot := h.slot()
	if slot == 0 || int(slot) >= len(r.entries) {
		r.mu.Unlock()
		return
	}
	e := &r.entries[slot]
	if e.inFlight > 0 {
		e.inFlight--
	}
	if e.inFlight > 0 || !e.retired {
		r.mu.Unlock()
		return
	}

	release := e.release
	e.retired = false
	e.release = nil
	e.obj = nil
	r.free = append(r.free, slot)
	r.mu.Unlock()

	if release != nil {
		release()
	}
}

// Process-wide registry, created with the first Instance and torn down with
// the last. The target API has no explicit loader teardown call, so the
// instance count is the lifecycle anchor.
var (
	globalMu     sync.Mutex
	globalReg    *registry
	instanceRefs int
)

func acquireRegistry() *registry {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalReg == nil {
		globalReg = newRegistry()
	}
	instanceRefs++
	return globalReg
}

func releaseRegistry() {
	globalMu.Lock()
	defer globalMu.Unlock()
	if instanceRefs > 0 {
		instanceRefs--
	}
	if instanceRefs == 0 {
		globalReg = nil
	}
}

func currentRegistry() *registry {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalReg
}

// resolve is the typed lookup every entry point funnels through.
func resolve[T any](h Handle, kind ObjectKind) (T, error) {
	var zero T
	r := currentRegistry()
	if r == nil {
		return zero, Error(ErrorInitializationFailed)
	}
	obj, ok := r.resolve(h, kind)
	if !ok {
		return zero, Error(ErrorInvalidExternalHandle)
	}
	t, ok := obj.(T)
	if !ok {
		return zero, Error(ErrorInvalidExternalHandle)
	}
	return t, nil
}
