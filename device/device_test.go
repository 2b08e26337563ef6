package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
	"github.com/outofforest/scull/alloc"
	"github.com/outofforest/scull/chain"
	"github.com/outofforest/scull/seek"
	"github.com/outofforest/scull/test"
	"github.com/outofforest/scull/types"
)

func newDevice(allocator alloc.Allocator) *Device {
	return New(Config{
		Name:  "scull0",
		Chain: chain.Config{Allocator: allocator},
	}, logger.New(logger.DefaultConfig))
}

func TestWriteAndReadWithCursor(t *testing.T) {
	requireT := require.New(t)
	d := newDevice(test.NewAllocator())

	var offset uint64 = 10
	data := test.Pattern(3, 20)

	n, err := d.Write(data, &offset)
	requireT.NoError(err)
	requireT.Equal(20, n)
	requireT.EqualValues(30, offset)

	offset = 10
	buf := make([]byte, 100)
	n = d.Read(buf, &offset)
	requireT.Equal(20, n)
	requireT.EqualValues(30, offset)
	requireT.Equal(data, buf[:n])

	// End of data.
	requireT.Zero(d.Read(buf, &offset))
	requireT.EqualValues(30, offset)
}

func TestFailedWriteKeepsCursor(t *testing.T) {
	requireT := require.New(t)
	allocator := test.NewAllocator()
	d := newDevice(allocator)

	allocator.FailQuantumAt(7)

	var offset uint64 = 3 * types.PageSize
	n, err := d.Write([]byte{0x01}, &offset)
	requireT.True(errors.Is(err, alloc.ErrOutOfMemory))
	requireT.Zero(n)
	requireT.EqualValues(3*types.PageSize, offset)
	requireT.Zero(d.Pages())

	used, _, _ := allocator.Quanta()
	requireT.Empty(used)
}

func TestWriteBeyondMaxInt64(t *testing.T) {
	requireT := require.New(t)
	allocator := test.NewAllocator()
	d := newDevice(allocator)

	var offset uint64 = math.MaxInt64 + 1
	_, err := d.Write([]byte{0x01}, &offset)
	requireT.True(errors.Is(err, seek.ErrInvalidArgument))
	requireT.EqualValues(uint64(math.MaxInt64+1), offset)
	requireT.Zero(allocator.Pages().Allocated)
}

func TestSeekRejectsNegative(t *testing.T) {
	requireT := require.New(t)
	allocator := test.NewAllocator()
	d := newDevice(allocator)

	var offset uint64 = 5

	_, err := d.Seek(&offset, -6, seek.RelativeToCurrent)
	requireT.True(errors.Is(err, seek.ErrInvalidArgument))
	requireT.EqualValues(5, offset)

	_, err = d.Seek(&offset, -1, seek.Absolute)
	requireT.True(errors.Is(err, seek.ErrInvalidArgument))
	requireT.EqualValues(5, offset)

	_, err = d.Seek(&offset, 0, seek.RelativeToEnd)
	requireT.True(errors.Is(err, seek.ErrUnsupported))
	requireT.EqualValues(5, offset)

	newOffset, err := d.Seek(&offset, 1<<30, seek.RelativeToCurrent)
	requireT.NoError(err)
	requireT.EqualValues(1<<30+5, newOffset)
	requireT.Equal(newOffset, offset)

	// Seeking never allocates.
	requireT.Zero(allocator.Pages().Allocated)
	requireT.Zero(d.Pages())
}

func TestTeardownReleasesEverything(t *testing.T) {
	requireT := require.New(t)
	allocator := test.NewAllocator()
	d := newDevice(allocator)

	var offset uint64
	for i := range uint64(4) {
		offset = i*types.PageSize + 1
		_, err := d.Write(test.Pattern(byte(i), 10), &offset)
		requireT.NoError(err)
	}
	requireT.EqualValues(4, d.Pages())

	d.Teardown()
	d.Teardown()

	requireT.Zero(d.Pages())
	requireT.Zero(allocator.Pages().Used)
	requireT.Zero(allocator.QuantumSets().Used)
	used, allocated, deallocated := allocator.Quanta()
	requireT.Empty(used)
	requireT.Len(allocated, 4*types.QuantumSetLength)
	requireT.Equal(allocated, deallocated)
	requireT.Zero(allocator.DoubleFrees())

	// Device is usable after teardown.
	offset = 0
	buf := make([]byte, 10)
	requireT.Zero(d.Read(buf, &offset))
	n, err := d.Write([]byte{0x01}, &offset)
	requireT.NoError(err)
	requireT.Equal(1, n)
}

func TestRacingWritersNeverInterleave(t *testing.T) {
	const (
		numOfWriters = 8
		numOfRounds  = 200
	)

	requireT := require.New(t)
	state := alloc.RunInTest(t, alloc.DefaultConfig)
	d := newDevice(state)

	patterns := make([][]byte, 0, numOfWriters)
	for i := range numOfWriters {
		patterns = append(patterns, bytes.Repeat([]byte{byte(i + 1)}, types.QuantumLength))
	}

	err := parallel.Run(test.Context(t), func(ctx context.Context, spawn parallel.SpawnFn) error {
		for i := range numOfWriters {
			spawn(fmt.Sprintf("writer-%02d", i), parallel.Continue, func(ctx context.Context) error {
				for range numOfRounds {
					var offset uint64
					n, err := d.Write(patterns[i], &offset)
					if err != nil {
						return err
					}
					if n != types.QuantumLength {
						return errors.Errorf("short write: %d", n)
					}
				}
				return nil
			})
		}
		spawn("reader", parallel.Continue, func(ctx context.Context) error {
			buf := make([]byte, types.QuantumLength)
			for range numOfRounds {
				var offset uint64
				n := d.Read(buf, &offset)
				if n == 0 {
					continue
				}
				if n != types.QuantumLength {
					return errors.Errorf("partial quantum read: %d", n)
				}
				if !bytes.Equal(buf, bytes.Repeat(buf[:1], types.QuantumLength)) {
					return errors.New("interleaved writes observed")
				}
			}
			return nil
		})
		return nil
	})
	requireT.NoError(err)

	var offset uint64
	buf := make([]byte, types.QuantumLength)
	requireT.Equal(types.QuantumLength, d.Read(buf, &offset))
	requireT.Contains(patterns, buf)
	requireT.EqualValues(1, d.Pages())

	d.Teardown()
	requireT.Zero(state.Stats().QuantaInUse)
}

func TestDevicesAreIndependent(t *testing.T) {
	requireT := require.New(t)
	allocator := test.NewAllocator()
	d1 := newDevice(allocator)
	d2 := newDevice(allocator)

	var offset uint64
	_, err := d1.Write([]byte{0x01, 0x02}, &offset)
	requireT.NoError(err)

	offset = 0
	buf := make([]byte, 2)
	requireT.Zero(d2.Read(buf, &offset))

	d1.Teardown()
	requireT.Zero(allocator.Pages().Used)
	requireT.Zero(d2.Pages())
}

func TestHandleReadWrite(t *testing.T) {
	requireT := require.New(t)
	d := newDevice(test.NewAllocator())

	h := d.Open()
	data := test.Pattern(9, 3*types.PageSize+100)

	n, err := h.Write(data)
	requireT.NoError(err)
	requireT.Equal(len(data), n)
	requireT.EqualValues(len(data), h.Offset())

	pos, err := h.Seek(0, io.SeekStart)
	requireT.NoError(err)
	requireT.Zero(pos)

	read, err := io.ReadAll(h)
	requireT.NoError(err)
	requireT.Equal(data, read)

	// Second handle keeps its own cursor.
	h2 := d.Open()
	buf := make([]byte, 10)
	n, err = h2.Read(buf)
	requireT.NoError(err)
	requireT.Equal(10, n)
	requireT.Equal(data[:10], buf)

	requireT.NoError(h.Close())
	requireT.NoError(h2.Close())
}

func TestHandleEOF(t *testing.T) {
	requireT := require.New(t)
	d := newDevice(test.NewAllocator())

	h := d.Open()
	buf := make([]byte, 10)

	n, err := h.Read(buf)
	requireT.ErrorIs(err, io.EOF)
	requireT.Zero(n)

	n, err = h.Read(nil)
	requireT.NoError(err)
	requireT.Zero(n)

	_, err = h.Seek(2*types.PageSize, io.SeekStart)
	requireT.NoError(err)
	n, err = h.Read(buf)
	requireT.ErrorIs(err, io.EOF)
	requireT.Zero(n)
}

func TestHandleSeek(t *testing.T) {
	requireT := require.New(t)
	d := newDevice(test.NewAllocator())
	h := d.Open()

	pos, err := h.Seek(100, io.SeekCurrent)
	requireT.NoError(err)
	requireT.EqualValues(100, pos)

	_, err = h.Seek(-101, io.SeekCurrent)
	requireT.True(errors.Is(err, seek.ErrInvalidArgument))
	requireT.EqualValues(100, h.Offset())

	_, err = h.Seek(0, io.SeekEnd)
	requireT.True(errors.Is(err, seek.ErrUnsupported))
	requireT.EqualValues(100, h.Offset())
}

func TestHandleWriteFailure(t *testing.T) {
	requireT := require.New(t)
	allocator := test.NewAllocator()
	d := newDevice(allocator)
	h := d.Open()

	// Second page fails to allocate.
	allocator.FailPageAt(2)

	data := test.Pattern(1, types.PageSize+10)
	n, err := h.Write(data)
	requireT.True(errors.Is(err, alloc.ErrOutOfMemory))
	requireT.Equal(types.PageSize, n)
	requireT.EqualValues(types.PageSize, h.Offset())
	requireT.EqualValues(1, d.Pages())
}

func TestClosedHandle(t *testing.T) {
	requireT := require.New(t)
	d := newDevice(test.NewAllocator())
	h := d.Open()

	requireT.NoError(h.Close())
	requireT.True(errors.Is(h.Close(), ErrClosed))

	_, err := h.Read(make([]byte, 1))
	requireT.True(errors.Is(err, ErrClosed))
	_, err = h.Write([]byte{0x01})
	requireT.True(errors.Is(err, ErrClosed))
	_, err = h.Seek(0, io.SeekStart)
	requireT.True(errors.Is(err, ErrClosed))
}
