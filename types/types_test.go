package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLayout(t *testing.T) {
	requireT := require.New(t)

	requireT.EqualValues(4096, PageSize)
	requireT.EqualValues(32, QuantumSetLength)
	requireT.EqualValues(128, QuantumLength)
	requireT.EqualValues(PageSize, QuantumSetLength*QuantumLength)
}
