package uuid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeneratorNewRunID(t *testing.T) {
	t.Parallel()

	gen := NewGenerator()
	first, err := gen.NewRunID()
	require.NoError(t, err)
	second := gen.MustRunID()
	require.NotEqual(t, first, second)
	require.EqualValues(t, 7, first.Version())
	require.EqualValues(t, 7, second.Version())
}
