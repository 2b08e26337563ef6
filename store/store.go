package store

import (
	"github.com/outofforest/scull/address"
	"github.com/outofforest/scull/chain"
)

// New creates new empty store.
func New(config chain.Config) *Store {
	return &Store{
		chain: chain.New(config),
	}
}

// Store is the sparse byte-addressable storage of one device.
// It is not safe for concurrent use, callers serialize access.
type Store struct {
	chain *chain.Chain
}

// Read copies data stored at offset into p. Copying stops at the end of the quantum or at the first zero byte,
// whichever comes first. Zero is returned if there is no data at offset.
func (s *Store) Read(p []byte, offset uint64) (int, uint64) {
	coordinates := address.Translate(offset)
	page, exists := s.chain.Page(coordinates.Page)
	if !exists {
		return 0, offset
	}

	boundary := min(uint64(len(p)), coordinates.Room())
	src := s.chain.Quantum(page, coordinates.Slot)[coordinates.Index : coordinates.Index+boundary]

	var n int
	for ; n < len(src) && src[n] != 0x00; n++ {
		p[n] = src[n]
	}

	return n, offset + uint64(n)
}

// Write copies data to offset. Data never spans more than one quantum so fewer bytes than requested might be
// written. The caller is expected to write the rest at the returned offset.
func (s *Store) Write(data []byte, offset uint64) (int, uint64, error) {
	coordinates := address.Translate(offset)
	page, err := s.chain.EnsurePage(coordinates.Page)
	if err != nil {
		return 0, offset, err
	}

	n := copy(s.chain.Quantum(page, coordinates.Slot)[coordinates.Index:], data)
	return n, offset + uint64(n), nil
}

// Pages returns the number of pages allocated by the store.
func (s *Store) Pages() uint64 {
	return s.chain.Len()
}

// Teardown deallocates all the storage.
func (s *Store) Teardown() {
	s.chain.Teardown()
}
