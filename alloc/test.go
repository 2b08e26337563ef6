package alloc

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
)

// NewForTest creates state for unit tests.
func NewForTest(t *testing.T, config Config) *State {
	state, stateDeallocFunc, err := NewState(config)
	require.NoError(t, err)
	t.Cleanup(stateDeallocFunc)

	return state
}

// RunInTest creates state for unit tests and runs its erasers until the test finishes.
func RunInTest(t *testing.T, config Config) *State {
	state := NewForTest(t, config)

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)))
	t.Cleanup(cancel)

	group := parallel.NewGroup(ctx)
	group.Spawn("state", parallel.Continue, state.Run)

	t.Cleanup(func() {
		group.Exit(nil)
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			t.Fatal(err)
		}
	})

	return state
}
