package device

import (
	"io"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/outofforest/scull/seek"
)

// ErrClosed is returned when closed handle is used.
var ErrClosed = errors.New("handle is closed")

// Handle keeps the offset of a caller using the device.
// The offset is read and updated under the device lock, so handle might be shared between goroutines.
type Handle struct {
	device *Device
	offset uint64
	closed atomic.Bool
}

// Read reads data at the current offset. io.EOF is returned if there is no data there.
func (h *Handle) Read(p []byte) (int, error) {
	if h.closed.Load() {
		return 0, errors.WithStack(ErrClosed)
	}
	if len(p) == 0 {
		return 0, nil
	}

	if n := h.device.Read(p, &h.offset); n > 0 {
		return n, nil
	}
	return 0, io.EOF
}

// Write writes all the data at the current offset, continuing after each short write.
func (h *Handle) Write(data []byte) (int, error) {
	if h.closed.Load() {
		return 0, errors.WithStack(ErrClosed)
	}

	var written int
	for written < len(data) {
		n, err := h.device.Write(data[written:], &h.offset)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Seek sets the offset for the next read or write.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	if h.closed.Load() {
		return 0, errors.WithStack(ErrClosed)
	}

	newOffset, err := h.device.Seek(&h.offset, offset, seek.Mode(whence))
	if err != nil {
		return 0, err
	}
	return int64(newOffset), nil
}

// Offset returns the current offset.
func (h *Handle) Offset() uint64 {
	h.device.mu.Lock()
	defer h.device.mu.Unlock()

	return h.offset
}

// Close releases the handle.
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return errors.WithStack(ErrClosed)
	}
	h.device.log.Info("Device closed")
	return nil
}

var (
	_ io.ReadWriteSeeker = &Handle{}
	_ io.Closer         = &Handle{}
)
