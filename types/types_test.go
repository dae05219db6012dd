package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateLayout(t *testing.T) {
	sl := NewStateLayout(1, 2, 1)
	assert.Equal(t, 7, sl.FirstAdv())
	assert.Equal(t, 8, sl.FirstSpec())
	assert.Equal(t, 10, sl.FirstAux())
	assert.Equal(t, 11, sl.NumState())
	assert.Equal(t, "rho_Y1", sl.Name(9))
	assert.Equal(t, "aux_0", sl.Name(10))
	assert.Equal(t, Zmom, Mom(2))
	assert.False(t, sl.IsConservedDensity(Temp))
	assert.Panics(t, func() { NewStateLayout(-1, 0, 0) })
}

func TestParseNames(t *testing.T) {
	st, err := ParseSourceType(" Forcing ")
	require.NoError(t, err)
	assert.Equal(t, ForcingSrc, st)
	assert.Equal(t, "forcing", st.String())
	_, err = ParseSourceType("gravity")
	assert.Error(t, err)

	s, err := ParseScheme("sdc")
	require.NoError(t, err)
	assert.Equal(t, SDC, s)
	_, err = ParseScheme("rk4")
	assert.Error(t, err)
	assert.Equal(t, BC_Out, BCNameMap["outflow"])
	assert.Equal(t, "wall", BC_Wall.String())
}
