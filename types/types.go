package types

const (
	// PageSize is the number of bytes addressed by one page.
	PageSize = 4096

	// QuantumSetLength is the number of quanta in one quantum set.
	QuantumSetLength = 32

	// QuantumLength is the number of bytes in one quantum.
	QuantumLength = PageSize / QuantumSetLength
)

type (
	// QuantumAddress is the address of a quantum inside the quantum arena.
	QuantumAddress uint64

	// PageAddress is the address of a page record in the page table of a chain.
	PageAddress uint64
)

const (
	// FreeQuantumAddress means there is no quantum.
	FreeQuantumAddress QuantumAddress = 0

	// FreePageAddress means there is no page. It terminates the chain.
	FreePageAddress PageAddress = 0
)

// QuantumSet is the fixed-length collection of quanta allocated as a unit.
type QuantumSet [QuantumSetLength]QuantumAddress

// Page is the chain node owning one quantum set.
type Page struct {
	QuantumSet *QuantumSet
	Next       PageAddress
}
