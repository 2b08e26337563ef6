package alloc

import (
	"github.com/pkg/errors"

	"github.com/outofforest/scull/types"
)

// ErrOutOfMemory is returned when storage for the page chain cannot be allocated.
var ErrOutOfMemory = errors.New("out of memory")

// Allocator hands out storage for pages, quantum sets and quanta.
type Allocator interface {
	// AllocatePage allocates empty page record.
	AllocatePage() (*types.Page, error)

	// DeallocatePage returns page record to the allocator.
	DeallocatePage(page *types.Page)

	// AllocateQuantumSet allocates quantum set with all the slots free.
	AllocateQuantumSet() (*types.QuantumSet, error)

	// DeallocateQuantumSet returns quantum set to the allocator.
	DeallocateQuantumSet(qSet *types.QuantumSet)

	// AllocateQuantum allocates zeroed quantum.
	AllocateQuantum() (types.QuantumAddress, error)

	// DeallocateQuantum returns quantum to the allocator.
	DeallocateQuantum(address types.QuantumAddress)

	// Quantum returns bytes of the quantum.
	Quantum(address types.QuantumAddress) []byte
}
