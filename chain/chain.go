package chain

import (
	"github.com/pkg/errors"

	"github.com/outofforest/scull/alloc"
	"github.com/outofforest/scull/types"
)

// Config stores chain configuration.
type Config struct {
	Allocator alloc.Allocator

	// MaxPages limits the number of pages in the chain. Zero means there is no limit.
	MaxPages uint64
}

// New creates new empty chain.
func New(config Config) *Chain {
	return &Chain{
		config: config,
		// Address 0 is reserved for FreePageAddress.
		pages: []*types.Page{nil},
	}
}

// Chain is the singly-linked chain of pages storing the data of one device.
// Pages are kept in the page table where page with index i has address i+1.
type Chain struct {
	config Config

	head, tail types.PageAddress
	pages      []*types.Page
}

// Len returns the number of pages in the chain.
func (c *Chain) Len() uint64 {
	return uint64(len(c.pages) - 1)
}

// Page returns existing page. It never allocates.
func (c *Chain) Page(index uint64) (*types.Page, bool) {
	if index >= c.Len() {
		return nil, false
	}
	return c.pages[index+1], true
}

// EnsurePage returns page, creating all the missing pages up to and including the requested one.
// If any allocation fails, the chain is left as it was before the call.
func (c *Chain) EnsurePage(index uint64) (_ *types.Page, retErr error) {
	length := c.Len()
	if index < length {
		return c.pages[index+1], nil
	}

	defer func() {
		if retErr != nil {
			c.truncate(length)
		}
	}()

	for c.Len() <= index {
		if err := c.appendPage(); err != nil {
			return nil, err
		}
	}

	return c.pages[index+1], nil
}

// Quantum returns bytes of the quantum stored in the slot of the page.
func (c *Chain) Quantum(page *types.Page, slot uint64) []byte {
	return c.config.Allocator.Quantum(page.QuantumSet[slot])
}

// Iterator iterates over pages, from head to tail.
func (c *Chain) Iterator() func(func(types.PageAddress, *types.Page) bool) {
	return func(yield func(types.PageAddress, *types.Page) bool) {
		for address := c.head; address != types.FreePageAddress; {
			page := c.pages[address]
			if !yield(address, page) {
				return
			}
			address = page.Next
		}
	}
}

// Teardown deallocates all the pages, from head to tail.
func (c *Chain) Teardown() {
	for address := c.head; address != types.FreePageAddress; {
		page := c.pages[address]
		// Page is zeroed when deallocated, so next address must be taken first.
		next := page.Next
		deallocatePage(c.config.Allocator, page)
		address = next
	}

	c.head = types.FreePageAddress
	c.tail = types.FreePageAddress
	clear(c.pages)
	c.pages = c.pages[:1]
}

func (c *Chain) appendPage() error {
	if c.config.MaxPages > 0 && c.Len() >= c.config.MaxPages {
		return errors.Wrapf(alloc.ErrOutOfMemory, "chain reached the limit of %d pages", c.config.MaxPages)
	}

	page, err := newPage(c.config.Allocator)
	if err != nil {
		return err
	}

	address := types.PageAddress(len(c.pages))
	c.pages = append(c.pages, page)
	if c.tail == types.FreePageAddress {
		c.head = address
	} else {
		c.pages[c.tail].Next = address
	}
	c.tail = address

	return nil
}

// truncate deallocates pages starting from the one with the provided index.
func (c *Chain) truncate(length uint64) {
	if length >= c.Len() {
		return
	}

	for address := types.PageAddress(length + 1); address != types.FreePageAddress; {
		page := c.pages[address]
		next := page.Next
		deallocatePage(c.config.Allocator, page)
		address = next
	}

	clear(c.pages[length+1:])
	c.pages = c.pages[:length+1]

	if length == 0 {
		c.head = types.FreePageAddress
		c.tail = types.FreePageAddress
		return
	}

	c.tail = types.PageAddress(length)
	c.pages[c.tail].Next = types.FreePageAddress
}

// newPage allocates page together with its quantum set and all the quanta.
// Either everything is allocated or nothing is left behind.
func newPage(allocator alloc.Allocator) (_ *types.Page, retErr error) {
	page, err := allocator.AllocatePage()
	if err != nil {
		return nil, err
	}
	defer func() {
		if retErr != nil {
			allocator.DeallocatePage(page)
		}
	}()

	qSet, err := allocator.AllocateQuantumSet()
	if err != nil {
		return nil, err
	}
	defer func() {
		if retErr != nil {
			allocator.DeallocateQuantumSet(qSet)
		}
	}()

	for i := range qSet {
		qSet[i], err = allocator.AllocateQuantum()
		if err != nil {
			deallocateQuanta(allocator, qSet[:i])
			return nil, err
		}
	}

	page.QuantumSet = qSet
	page.Next = types.FreePageAddress

	return page, nil
}

func deallocatePage(allocator alloc.Allocator, page *types.Page) {
	deallocateQuanta(allocator, page.QuantumSet[:])
	allocator.DeallocateQuantumSet(page.QuantumSet)
	allocator.DeallocatePage(page)
}

func deallocateQuanta(allocator alloc.Allocator, quanta []types.QuantumAddress) {
	for i := len(quanta) - 1; i >= 0; i-- {
		allocator.DeallocateQuantum(quanta[i])
		quanta[i] = types.FreeQuantumAddress
	}
}
