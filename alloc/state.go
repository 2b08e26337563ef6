package alloc

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/outofforest/mass"
	"github.com/outofforest/parallel"
	"github.com/outofforest/photon"
	"github.com/outofforest/scull/types"
)

const recordsPerChunk = 128

// Config stores configuration of the allocator state.
type Config struct {
	// Capacity is the size of the quantum arena in bytes.
	Capacity uint64

	// UseHugePages tells to back the arena with huge pages.
	UseHugePages bool

	// NumOfEraseWorkers is the number of goroutines zeroing deallocated quanta.
	NumOfEraseWorkers uint64

	// EraseQueueSize is the number of deallocated quanta waiting for erasure before they are erased inline.
	EraseQueueSize uint64
}

// DefaultConfig is the default allocator configuration.
var DefaultConfig = Config{
	Capacity:          64 * 1024 * 1024,
	NumOfEraseWorkers: 2,
	EraseQueueSize:    1024,
}

// NewState creates new allocator state.
func NewState(config Config) (*State, func(), error) {
	numOfQuanta := config.Capacity / types.QuantumLength
	// Quantum 0 is reserved, so at least one full quantum set must fit on top of it.
	if numOfQuanta <= types.QuantumSetLength {
		return nil, nil, errors.Errorf("capacity %d is too small", config.Capacity)
	}

	origin, deallocateFunc, err := Allocate(numOfQuanta*types.QuantumLength, types.QuantumLength,
		config.UseHugePages)
	if err != nil {
		return nil, nil, err
	}

	return &State{
		config:         config,
		numOfQuanta:    numOfQuanta,
		origin:         origin,
		nextQuantum:    1,
		freeQuanta:     newRing[types.QuantumAddress](numOfQuanta),
		eraseCh:        make(chan types.QuantumAddress, config.EraseQueueSize),
		massPage:       mass.New[types.Page](recordsPerChunk),
		massQuantumSet: mass.New[types.QuantumSet](recordsPerChunk),
	}, deallocateFunc, nil
}

// State is the allocator backed by the anonymous memory mapping.
type State struct {
	config      Config
	numOfQuanta uint64
	origin      unsafe.Pointer
	eraseCh     chan types.QuantumAddress

	mu              sync.Mutex
	nextQuantum     types.QuantumAddress
	freeQuanta      *ring[types.QuantumAddress]
	quantaInUse     uint64
	massPage        *mass.Mass[types.Page]
	massQuantumSet  *mass.Mass[types.QuantumSet]
	freePages       []*types.Page
	freeQuantumSets []*types.QuantumSet
}

// Stats stores allocator counters.
type Stats struct {
	Capacity    uint64
	QuantaInUse uint64
}

// Stats returns allocator counters.
func (s *State) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		// Quantum 0 is never handed out.
		Capacity:    s.numOfQuanta - 1,
		QuantaInUse: s.quantaInUse,
	}
}

// AllocatePage allocates empty page record.
func (s *State) AllocatePage() (*types.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.freePages); n > 0 {
		page := s.freePages[n-1]
		s.freePages = s.freePages[:n-1]
		return page, nil
	}
	return s.massPage.New(), nil
}

// DeallocatePage returns page record to the allocator.
func (s *State) DeallocatePage(page *types.Page) {
	*page = types.Page{}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.freePages = append(s.freePages, page)
}

// AllocateQuantumSet allocates quantum set with all the slots free.
func (s *State) AllocateQuantumSet() (*types.QuantumSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.freeQuantumSets); n > 0 {
		qSet := s.freeQuantumSets[n-1]
		s.freeQuantumSets = s.freeQuantumSets[:n-1]
		return qSet, nil
	}
	return s.massQuantumSet.New(), nil
}

// DeallocateQuantumSet returns quantum set to the allocator.
func (s *State) DeallocateQuantumSet(qSet *types.QuantumSet) {
	clear(qSet[:])

	s.mu.Lock()
	defer s.mu.Unlock()

	s.freeQuantumSets = append(s.freeQuantumSets, qSet)
}

// AllocateQuantum allocates zeroed quantum.
func (s *State) AllocateQuantum() (types.QuantumAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	address, ok := s.freeQuanta.Get()
	if !ok {
		if uint64(s.nextQuantum) == s.numOfQuanta {
			return types.FreeQuantumAddress, errors.Wrapf(ErrOutOfMemory, "all %d quanta are in use",
				s.numOfQuanta-1)
		}
		address = s.nextQuantum
		s.nextQuantum++
	}

	s.quantaInUse++
	return address, nil
}

// DeallocateQuantum schedules quantum for erasure after which it might be allocated again.
func (s *State) DeallocateQuantum(address types.QuantumAddress) {
	if address == types.FreeQuantumAddress {
		return
	}

	s.mu.Lock()
	s.quantaInUse--
	s.mu.Unlock()

	select {
	case s.eraseCh <- address:
	default:
		s.release(address)
	}
}

// Quantum returns bytes of the quantum.
func (s *State) Quantum(address types.QuantumAddress) []byte {
	return photon.SliceFromPointer[byte](unsafe.Add(s.origin, uintptr(address)*types.QuantumLength),
		types.QuantumLength)
}

// Run runs quantum erasers.
func (s *State) Run(ctx context.Context) error {
	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		for i := range s.config.NumOfEraseWorkers {
			spawn(fmt.Sprintf("eraser-%02d", i), parallel.Fail, func(ctx context.Context) error {
				for {
					select {
					case <-ctx.Done():
						return errors.WithStack(ctx.Err())
					case address := <-s.eraseCh:
						s.release(address)
					}
				}
			})
		}
		return nil
	})
}

func (s *State) release(address types.QuantumAddress) {
	clear(s.Quantum(address))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.freeQuanta.Put(address)
}
