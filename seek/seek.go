package seek

import (
	"io"
	"math"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidArgument is returned when seek is requested with invalid arguments.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupported is returned when seek mode is not supported.
	ErrUnsupported = errors.New("unsupported")
)

// Mode defines the reference point of the seek.
type Mode int

// Mode constants, equal to the io.Seek* ones.
const (
	Absolute          Mode = io.SeekStart
	RelativeToCurrent Mode = io.SeekCurrent
	RelativeToEnd     Mode = io.SeekEnd
)

// Resolve computes the new offset.
func Resolve(current uint64, delta int64, mode Mode) (uint64, error) {
	if current > math.MaxInt64 {
		return 0, errors.Wrapf(ErrInvalidArgument, "current offset %d is out of range", current)
	}

	var newOffset int64
	switch mode {
	case Absolute:
		newOffset = delta
	case RelativeToCurrent:
		if delta > 0 && int64(current) > math.MaxInt64-delta {
			return 0, errors.Wrapf(ErrInvalidArgument, "offset %d moved by %d overflows", current, delta)
		}
		newOffset = int64(current) + delta
	case RelativeToEnd:
		return 0, errors.Wrap(ErrUnsupported, "seeking relative to the end of data is not supported")
	default:
		return 0, errors.Wrapf(ErrInvalidArgument, "unknown seek mode %d", mode)
	}

	if newOffset < 0 {
		return 0, errors.Wrapf(ErrInvalidArgument, "negative offset %d", newOffset)
	}

	return uint64(newOffset), nil
}
