package test

import (
	"context"
	"testing"

	"github.com/outofforest/logger"
)

// Context returns context carrying logger, canceled when test finishes.
func Context(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)))
	t.Cleanup(cancel)
	return ctx
}

// Pattern returns n bytes of data which never contains zero byte.
func Pattern(seed byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte((int(seed)+i)%255) + 1
	}
	return b
}
