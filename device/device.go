package device

import (
	"math"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/scull/chain"
	"github.com/outofforest/scull/seek"
	"github.com/outofforest/scull/store"
)

// Config stores device configuration.
type Config struct {
	Name  string
	Chain chain.Config
}

// New creates new device with empty storage.
func New(config Config, log *zap.Logger) *Device {
	return &Device{
		name:  config.Name,
		log:   log.With(zap.String("device", config.Name)),
		store: store.New(config.Chain),
	}
}

// Device pairs the storage with the lock serializing all the operations executed on it.
type Device struct {
	name string
	log  *zap.Logger

	mu    sync.Mutex
	store *store.Store
}

// Name returns the name of the device.
func (d *Device) Name() string {
	return d.name
}

// Open binds new handle to the device.
func (d *Device) Open() *Handle {
	d.log.Info("Device opened")
	return &Handle{device: d}
}

// Read reads data stored at offset into p and moves offset by the number of bytes read.
// Zero means there is no data at offset.
func (d *Device) Read(p []byte, offset *uint64) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, newOffset := d.store.Read(p, *offset)
	d.log.Debug("Read", zap.Uint64("offset", *offset), zap.Int("requested", len(p)), zap.Int("read", n))
	*offset = newOffset

	return n
}

// Write writes data at offset and moves offset by the number of bytes written.
// Write never crosses the quantum boundary, so fewer bytes than requested might be written.
// On error offset is not changed.
func (d *Device) Write(data []byte, offset *uint64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if *offset > math.MaxInt64 {
		return 0, errors.Wrapf(seek.ErrInvalidArgument, "offset %d is out of range", *offset)
	}

	n, newOffset, err := d.store.Write(data, *offset)
	if err != nil {
		d.log.Error("Bad allocation", zap.Uint64("offset", *offset), zap.Error(err))
		return 0, err
	}
	d.log.Debug("Write", zap.Uint64("offset", *offset), zap.Int("requested", len(data)), zap.Int("written", n))
	*offset = newOffset

	return n, nil
}

// Seek moves offset. On error offset is not changed.
func (d *Device) Seek(offset *uint64, delta int64, mode seek.Mode) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	newOffset, err := seek.Resolve(*offset, delta, mode)
	if err != nil {
		return 0, err
	}
	d.log.Debug("Seek", zap.Uint64("from", *offset), zap.Uint64("to", newOffset))
	*offset = newOffset

	return newOffset, nil
}

// Pages returns the number of pages allocated by the device.
func (d *Device) Pages() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.store.Pages()
}

// Teardown releases the storage of the device. Calling it on a device which holds no data is a no-op.
func (d *Device) Teardown() {
	d.mu.Lock()
	defer d.mu.Unlock()

	pages := d.store.Pages()
	d.store.Teardown()
	d.log.Info("Storage released", zap.Uint64("pages", pages))
}
