// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
)

// Registry errors.
var (
	// ErrDuplicateName is returned by Register when a live resource with the
	// same name exists or is being constructed.
	ErrDuplicateName = errors.New("resource: duplicate name")

	// ErrCategoryIDExhausted is returned when a registry has issued every
	// non-zero category id.
	ErrCategoryIDExhausted = errors.New("resource: category id space exhausted")

	// ErrEmptyName is returned when registering under an empty name.
	ErrEmptyName = errors.New("resource: empty name")
)

// Option configures a Registry.
type Option func(*registryOptions)

type registryOptions struct {
	ids *IDAllocator
}

// WithIDAllocator makes the registry draw global ids from a.
// Registries of different kinds that share an allocator issue globally
// unique ids among themselves.
func WithIDAllocator(a *IDAllocator) Option {
	return func(o *registryOptions) {
		o.ids = a
	}
}

// Registry indexes resources of one kind by name and category id.
//
// Registry is safe for concurrent use.
type Registry[T Managed] struct {
	kind string
	ids  *IDAllocator

	mu           sync.Mutex
	lastCategory uint32
	byName       map[string]uint32
	byID         map[uint32]*entry[T]

	// pending holds names reserved by a Register call whose constructor is
	// still running. The channel is closed when it finishes.
	pending map[string]chan struct{}
}

// NewRegistry creates an empty registry. kind names the resource type in
// errors and log output ("texture", "mesh", ...).
func NewRegistry[T Managed](kind string, opts ...Option) *Registry[T] {
	o := registryOptions{ids: GlobalIDs()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry[T]{
		kind:    kind,
		ids:     o.ids,
		byName:  make(map[string]uint32),
		byID:    make(map[uint32]*entry[T]),
		pending: make(map[string]chan struct{}),
	}
}

// Kind returns the resource kind this registry holds.
func (r *Registry[T]) Kind() string { return r.kind }

// Get returns a new strong reference to the live resource named name.
//
// Get reports false when the name is unknown or its resource has expired.
// Expired entries stay indexed until their deleter runs; Get never removes
// them.
func (r *Registry[T]) Get(name string) (*Ref[T], bool) {
	r.mu.Lock()
	e := r.lookupLocked(name)
	r.mu.Unlock()

	if e == nil || !e.tryRetain() {
		return nil, false
	}
	return newRef(e), true
}

// GetByID returns a new strong reference to the live resource with the given
// category id.
func (r *Registry[T]) GetByID(categoryID uint32) (*Ref[T], bool) {
	r.mu.Lock()
	e := r.byID[categoryID]
	r.mu.Unlock()

	if e == nil || !e.tryRetain() {
		return nil, false
	}
	return newRef(e), true
}

// Register constructs and indexes a resource named name and returns its
// first strong reference.
//
// Register fails with ErrDuplicateName, without calling construct and
// without consuming ids, when a live resource named name exists or another
// goroutine is constructing one. construct runs outside the registry lock
// and must return a non-nil resource. A resource whose registration fails
// after construction is destroyed before Register returns.
func (r *Registry[T]) Register(name string, construct func() (T, error)) (*Ref[T], error) {
	if name == "" {
		return nil, fmt.Errorf("%w (%s)", ErrEmptyName, r.kind)
	}

	r.mu.Lock()
	if _, busy := r.pending[name]; busy {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s %q is being created", ErrDuplicateName, r.kind, name)
	}
	if e := r.lookupLocked(name); e != nil && e.strong.Load() > 0 {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s %q already exists", ErrDuplicateName, r.kind, name)
	}
	done := make(chan struct{})
	r.pending[name] = done
	r.mu.Unlock()

	return r.publish(name, done, construct)
}

// Acquire returns the live resource named name, registering it with
// construct when absent. If another goroutine is constructing the same name,
// Acquire waits for it and returns its result.
func (r *Registry[T]) Acquire(name string, construct func() (T, error)) (*Ref[T], error) {
	if name == "" {
		return nil, fmt.Errorf("%w (%s)", ErrEmptyName, r.kind)
	}

	for {
		r.mu.Lock()
		if e := r.lookupLocked(name); e != nil && e.tryRetain() {
			r.mu.Unlock()
			return newRef(e), nil
		}
		if wait, busy := r.pending[name]; busy {
			r.mu.Unlock()
			<-wait
			continue
		}
		done := make(chan struct{})
		r.pending[name] = done
		r.mu.Unlock()

		return r.publish(name, done, construct)
	}
}

// publish runs construct for a reserved name, assigns ids and indexes the
// result. It always clears the reservation.
func (r *Registry[T]) publish(name string, done chan struct{}, construct func() (T, error)) (*Ref[T], error) {
	value, err := construct()
	if err != nil {
		r.unreserve(name, done)
		return nil, fmt.Errorf("resource: create %s %q: %w", r.kind, name, err)
	}

	r.mu.Lock()
	if r.lastCategory == math.MaxUint32 {
		r.unreserveLocked(name, done)
		r.mu.Unlock()
		value.Destroy()
		return nil, fmt.Errorf("%w (%s)", ErrCategoryIDExhausted, r.kind)
	}
	globalID, err := r.ids.Next()
	if err != nil {
		r.unreserveLocked(name, done)
		r.mu.Unlock()
		value.Destroy()
		return nil, fmt.Errorf("resource: register %s %q: %w", r.kind, name, err)
	}
	r.lastCategory++
	categoryID := r.lastCategory

	value.base().bind(name, categoryID, globalID)
	e := &entry[T]{
		value:      value,
		reg:        r,
		name:       name,
		categoryID: categoryID,
		globalID:   globalID,
	}
	e.strong.Store(1)
	r.byName[name] = categoryID
	r.byID[categoryID] = e
	r.unreserveLocked(name, done)
	r.mu.Unlock()

	slogger().Debug("resource registered",
		"kind", r.kind, "name", name, "category_id", categoryID, "global_id", globalID)

	return newRef(e), nil
}

func (r *Registry[T]) unreserve(name string, done chan struct{}) {
	r.mu.Lock()
	r.unreserveLocked(name, done)
	r.mu.Unlock()
}

func (r *Registry[T]) unreserveLocked(name string, done chan struct{}) {
	delete(r.pending, name)
	close(done)
}

// release is the deleter. It runs once per entry, when the strong count
// reaches zero: both index entries are erased under the lock before the
// resource is destroyed.
func (r *Registry[T]) release(e *entry[T]) {
	r.mu.Lock()
	if id, ok := r.byName[e.name]; ok && id == e.categoryID {
		delete(r.byName, e.name)
	}
	delete(r.byID, e.categoryID)
	e.value.base().registered.Store(false)
	r.mu.Unlock()

	slogger().Debug("resource freed",
		"kind", r.kind, "name", e.name, "category_id", e.categoryID, "global_id", e.globalID)

	e.value.Destroy()
}

func (r *Registry[T]) lookupLocked(name string) *entry[T] {
	id, ok := r.byName[name]
	if !ok {
		return nil
	}
	return r.byID[id]
}

// Len returns the number of indexed entries, including expired entries whose
// deleter has not finished yet.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Names returns the sorted names of all indexed entries.
func (r *Registry[T]) Names() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	r.mu.Unlock()

	slices.Sort(names)
	return names
}

// LastCategoryID returns the most recently issued category id.
func (r *Registry[T]) LastCategoryID() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastCategory
}
