package address

import "github.com/outofforest/scull/types"

// Coordinates locate a byte inside the page chain.
type Coordinates struct {
	// Page is the index of the page in the chain.
	Page uint64

	// Slot is the index of the quantum inside the page's quantum set.
	Slot uint64

	// Index is the index of the byte inside the quantum.
	Index uint64
}

// Translate maps flat offset to page chain coordinates.
func Translate(offset uint64) Coordinates {
	inPage := offset % types.PageSize
	return Coordinates{
		Page:  offset / types.PageSize,
		Slot:  inPage / types.QuantumLength,
		Index: inPage % types.QuantumLength,
	}
}

// Offset returns the flat offset of the coordinates.
func (c Coordinates) Offset() uint64 {
	return c.Page*types.PageSize + c.Slot*types.QuantumLength + c.Index
}

// Room returns the number of bytes left in the quantum, starting at the coordinates.
func (c Coordinates) Room() uint64 {
	return types.QuantumLength - c.Index
}
