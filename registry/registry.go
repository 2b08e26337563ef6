package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/outofforest/logger"
	"github.com/outofforest/scull/alloc"
	"github.com/outofforest/scull/chain"
	"github.com/outofforest/scull/device"
)

// ErrNoDevice is returned when device does not exist.
var ErrNoDevice = errors.New("no such device")

// Config stores registry configuration.
type Config struct {
	// NumOfDevices is the number of devices to create.
	NumOfDevices uint64

	// NamePrefix is prepended to the minor number to produce the name of the device.
	NamePrefix string

	// MaxPagesPerDevice limits the number of pages each device might allocate. 0 means no limit.
	MaxPagesPerDevice uint64
}

// DefaultConfig is the default registry configuration.
var DefaultConfig = Config{
	NumOfDevices: 2,
	NamePrefix:   "scull",
}

// New creates devices sharing the allocator.
func New(ctx context.Context, config Config, allocator alloc.Allocator) (*Registry, error) {
	if config.NumOfDevices == 0 {
		return nil, errors.New("number of devices must be greater than zero")
	}

	log := logger.Get(ctx)
	devices := make([]*device.Device, 0, config.NumOfDevices)
	for minor := range config.NumOfDevices {
		devices = append(devices, device.New(device.Config{
			Name: fmt.Sprintf("%s%d", config.NamePrefix, minor),
			Chain: chain.Config{
				Allocator: allocator,
				MaxPages:  config.MaxPagesPerDevice,
			},
		}, log))
	}

	log.Info("Driver initialized", zap.Uint64("devices", config.NumOfDevices))

	return &Registry{
		log:     log,
		devices: devices,
	}, nil
}

// Registry owns the devices.
type Registry struct {
	log     *zap.Logger
	devices []*device.Device

	closeOnce sync.Once
}

// Device returns the device with the minor number.
func (r *Registry) Device(minor uint64) (*device.Device, error) {
	if minor >= uint64(len(r.devices)) {
		return nil, errors.Wrapf(ErrNoDevice, "minor %d", minor)
	}
	return r.devices[minor], nil
}

// Open opens the device with the minor number.
func (r *Registry) Open(minor uint64) (*device.Handle, error) {
	d, err := r.Device(minor)
	if err != nil {
		return nil, err
	}
	return d.Open(), nil
}

// Names returns names of all the devices.
func (r *Registry) Names() []string {
	return lo.Map(r.devices, func(d *device.Device, _ int) string {
		return d.Name()
	})
}

// Close tears down all the devices.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		for _, d := range r.devices {
			d.Teardown()
		}
		r.log.Info("Driver exited")
	})
}
