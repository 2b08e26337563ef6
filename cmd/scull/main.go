package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cespare/xxhash"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
	"github.com/outofforest/scull/alloc"
	"github.com/outofforest/scull/registry"
	"github.com/outofforest/scull/types"
)

type workload struct {
	Writers uint64
	Bytes   uint64
}

func main() {
	allocConfig := alloc.DefaultConfig
	registryConfig := registry.DefaultConfig
	w := workload{
		Writers: 4,
		Bytes:   64 * 1024,
	}

	flags := pflag.NewFlagSet("scull", pflag.ExitOnError)
	flags.Uint64Var(&registryConfig.NumOfDevices, "devices", registryConfig.NumOfDevices, "Number of devices")
	flags.Uint64Var(&registryConfig.MaxPagesPerDevice, "max-pages", registryConfig.MaxPagesPerDevice,
		"Maximum number of pages allocated by each device, 0 means no limit")
	flags.Uint64Var(&allocConfig.Capacity, "capacity", allocConfig.Capacity, "Size of the quantum arena in bytes")
	flags.Uint64Var(&allocConfig.NumOfEraseWorkers, "erase-workers", allocConfig.NumOfEraseWorkers,
		"Number of goroutines erasing deallocated quanta")
	flags.Uint64Var(&w.Writers, "writers", w.Writers, "Number of concurrent writers")
	flags.Uint64Var(&w.Bytes, "bytes", w.Bytes, "Number of bytes stored by each writer")
	lo.Must0(flags.Parse(os.Args[1:]))

	ctx, cancel := signal.NotifyContext(
		logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)),
		os.Interrupt, syscall.SIGTERM,
	)
	defer cancel()

	if err := run(ctx, allocConfig, registryConfig, w); err != nil {
		logger.Get(ctx).Error("Workload failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, allocConfig alloc.Config, registryConfig registry.Config, w workload) (retErr error) {
	if w.Bytes == 0 {
		return errors.New("number of bytes must be greater than zero")
	}

	state, stateDeallocFunc, err := alloc.NewState(allocConfig)
	if err != nil {
		return err
	}
	defer stateDeallocFunc()

	group := parallel.NewGroup(ctx)
	group.Spawn("state", parallel.Continue, state.Run)
	defer func() {
		group.Exit(nil)
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && retErr == nil {
			retErr = err
		}
	}()

	r, err := registry.New(ctx, registryConfig, state)
	if err != nil {
		return err
	}
	defer r.Close()

	// Writers sharing a device use disjoint page-aligned regions.
	stride := (w.Bytes + types.PageSize - 1) / types.PageSize * types.PageSize
	numOfDevices := uint64(len(r.Names()))

	err = parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		for i := range w.Writers {
			minor := i % numOfDevices
			offset := i / numOfDevices * stride
			spawn(fmt.Sprintf("writer-%02d", i), parallel.Continue, func(ctx context.Context) error {
				return write(ctx, r, minor, offset, w.Bytes)
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	stats := state.Stats()
	logger.Get(ctx).Info("Workload finished",
		zap.Uint64("capacity", stats.Capacity),
		zap.Uint64("quantaInUse", stats.QuantaInUse))

	return nil
}

func write(ctx context.Context, r *registry.Registry, minor, offset, size uint64) error {
	log := logger.Get(ctx).With(zap.Uint64("minor", minor), zap.Uint64("offset", offset))

	h, err := r.Open(minor)
	if err != nil {
		return err
	}
	defer h.Close() //nolint:errcheck

	data := []byte(lo.RandomString(int(size), lo.AlphanumericCharset))

	if _, err := h.Seek(int64(offset), io.SeekStart); err != nil {
		return err
	}
	if _, err := h.Write(data); err != nil {
		return err
	}

	if _, err := h.Seek(int64(offset), io.SeekStart); err != nil {
		return err
	}
	readBack := make([]byte, size)
	if _, err := io.ReadFull(h, readBack); err != nil {
		return errors.Wrap(err, "reading back failed")
	}

	expected := xxhash.Sum64(data)
	actual := xxhash.Sum64(readBack)
	if expected != actual {
		return errors.Errorf("digest mismatch on device %d at offset %d: expected %x, got %x",
			minor, offset, expected, actual)
	}

	log.Info("Data verified", zap.Uint64("bytes", size), zap.String("digest", fmt.Sprintf("%016x", actual)))
	return nil
}
