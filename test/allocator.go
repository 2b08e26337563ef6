package test

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/outofforest/scull/alloc"
	"github.com/outofforest/scull/types"
)

// Counters stores allocation counters of one kind of record.
type Counters struct {
	Used        uint64
	Allocated   uint64
	Deallocated uint64
}

// NewAllocator creates allocator used in tests.
func NewAllocator() *Allocator {
	return &Allocator{
		quanta:            map[types.QuantumAddress][]byte{},
		quantaUsed:        map[types.QuantumAddress]struct{}{},
		quantaAllocated:   map[types.QuantumAddress]struct{}{},
		quantaDeallocated: map[types.QuantumAddress]struct{}{},
		pagesUsed:         map[*types.Page]struct{}{},
		qSetsUsed:         map[*types.QuantumSet]struct{}{},
	}
}

// Allocator is the allocator implementation used in tests.
// It tracks every allocation and deallocation and might be told to fail chosen allocation.
type Allocator struct {
	mu sync.Mutex

	lastQuantum       types.QuantumAddress
	quanta            map[types.QuantumAddress][]byte
	quantaUsed        map[types.QuantumAddress]struct{}
	quantaAllocated   map[types.QuantumAddress]struct{}
	quantaDeallocated map[types.QuantumAddress]struct{}

	pagesUsed map[*types.Page]struct{}
	pages     Counters
	qSetsUsed map[*types.QuantumSet]struct{}
	qSets     Counters

	pageAttempts, qSetAttempts, quantumAttempts uint64
	failPageAt, failQSetAt, failQuantumAt       uint64

	doubleFrees uint64
}

// FailPageAt makes the n-th (counting from 1) page allocation fail.
func (a *Allocator) FailPageAt(n uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.failPageAt = a.pageAttempts + n
}

// FailQuantumSetAt makes the n-th (counting from 1) quantum set allocation fail.
func (a *Allocator) FailQuantumSetAt(n uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.failQSetAt = a.qSetAttempts + n
}

// FailQuantumAt makes the n-th (counting from 1) quantum allocation fail.
func (a *Allocator) FailQuantumAt(n uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.failQuantumAt = a.quantumAttempts + n
}

// AllocatePage allocates empty page record.
func (a *Allocator) AllocatePage() (*types.Page, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pageAttempts++
	if a.pageAttempts == a.failPageAt {
		return nil, errors.Wrap(alloc.ErrOutOfMemory, "page allocation failed on purpose")
	}

	page := &types.Page{}
	a.pagesUsed[page] = struct{}{}
	a.pages.Allocated++
	return page, nil
}

// DeallocatePage deallocates page record.
func (a *Allocator) DeallocatePage(page *types.Page) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.pagesUsed[page]; !exists {
		a.doubleFrees++
		return
	}
	delete(a.pagesUsed, page)
	a.pages.Deallocated++
}

// AllocateQuantumSet allocates quantum set.
func (a *Allocator) AllocateQuantumSet() (*types.QuantumSet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.qSetAttempts++
	if a.qSetAttempts == a.failQSetAt {
		return nil, errors.Wrap(alloc.ErrOutOfMemory, "quantum set allocation failed on purpose")
	}

	qSet := &types.QuantumSet{}
	a.qSetsUsed[qSet] = struct{}{}
	a.qSets.Allocated++
	return qSet, nil
}

// DeallocateQuantumSet deallocates quantum set.
func (a *Allocator) DeallocateQuantumSet(qSet *types.QuantumSet) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.qSetsUsed[qSet]; !exists {
		a.doubleFrees++
		return
	}
	delete(a.qSetsUsed, qSet)
	a.qSets.Deallocated++
}

// AllocateQuantum allocates zeroed quantum.
func (a *Allocator) AllocateQuantum() (types.QuantumAddress, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.quantumAttempts++
	if a.quantumAttempts == a.failQuantumAt {
		return types.FreeQuantumAddress, errors.Wrap(alloc.ErrOutOfMemory, "quantum allocation failed on purpose")
	}

	a.lastQuantum++
	a.quanta[a.lastQuantum] = make([]byte, types.QuantumLength)
	a.quantaAllocated[a.lastQuantum] = struct{}{}
	a.quantaUsed[a.lastQuantum] = struct{}{}

	return a.lastQuantum, nil
}

// DeallocateQuantum deallocates quantum.
func (a *Allocator) DeallocateQuantum(address types.QuantumAddress) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.quantaUsed[address]; !exists {
		a.doubleFrees++
		return
	}
	a.quantaDeallocated[address] = struct{}{}
	delete(a.quantaUsed, address)
	delete(a.quanta, address)
}

// Quantum returns bytes of the quantum.
func (a *Allocator) Quantum(address types.QuantumAddress) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.quanta[address]
}

// Quanta returns touched quanta. Allocated and deallocated sets are cleared.
func (a *Allocator) Quanta() (
	used []types.QuantumAddress,
	allocated []types.QuantumAddress,
	deallocated []types.QuantumAddress,
) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return mapToSlice(a.quantaUsed, false),
		mapToSlice(a.quantaAllocated, true),
		mapToSlice(a.quantaDeallocated, true)
}

// Pages returns page record counters.
func (a *Allocator) Pages() Counters {
	a.mu.Lock()
	defer a.mu.Unlock()

	c := a.pages
	c.Used = uint64(len(a.pagesUsed))
	return c
}

// QuantumSets returns quantum set counters.
func (a *Allocator) QuantumSets() Counters {
	a.mu.Lock()
	defer a.mu.Unlock()

	c := a.qSets
	c.Used = uint64(len(a.qSetsUsed))
	return c
}

// DoubleFrees returns the number of deallocations of records which were not in use.
func (a *Allocator) DoubleFrees() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.doubleFrees
}

func mapToSlice(m map[types.QuantumAddress]struct{}, empty bool) []types.QuantumAddress {
	s := make([]types.QuantumAddress, 0, len(m))
	for k := range m {
		s = append(s, k)
	}

	if empty {
		clear(m)
	}

	sort.Slice(s, func(i, j int) bool {
		return s[i] < s[j]
	})

	return s
}

var _ alloc.Allocator = &Allocator{}
