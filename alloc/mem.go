package alloc

import (
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Allocate reserves aligned, zeroed memory. Physical pages are assigned by the kernel on first touch.
func Allocate(size, alignment uint64, useHugePages bool) (unsafe.Pointer, func(), error) {
	opts := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS | unix.MAP_NORESERVE
	if useHugePages {
		// When using huge pages, the size must be a multiple of the hugepage size. Otherwise, munmap fails.
		opts |= unix.MAP_HUGETLB
	}
	alignmentUintptr := uintptr(alignment)
	allocatedSize := uintptr(size) + alignmentUintptr
	dataP, err := unix.MmapPtr(-1, 0, nil, allocatedSize, unix.PROT_READ|unix.PROT_WRITE, opts)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "memory allocation failed")
	}

	dataPOrig := dataP

	diff := uint64((uintptr(dataP)+alignmentUintptr-1)/alignmentUintptr*alignmentUintptr - uintptr(dataP))
	dataP = unsafe.Add(dataP, diff)

	return dataP, func() {
		// munmap requires the size rounded up to the page size used by the mapping.
		if useHugePages {
			// 2MB hugepages.
			if err := unmap(dataPOrig, allocatedSize, 2*1024*1024); err == nil {
				return
			}

			// 1GB hugepages.
			_ = unmap(dataPOrig, allocatedSize, 1024*1024*1024)
		}

		// Standard pages.
		_ = unmap(dataPOrig, allocatedSize, uintptr(os.Getpagesize()))
	}, nil
}

func unmap(ptr unsafe.Pointer, size, pageSize uintptr) error {
	return unix.MunmapPtr(ptr, (size+pageSize-1)/pageSize*pageSize)
}
