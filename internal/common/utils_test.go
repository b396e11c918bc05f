package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFloatList(t *testing.T) {
	got, err := ParseFloatList(" 23.660, 38.030,23.690 ,38.055,")
	require.NoError(t, err)
	assert.Equal(t, []float64{23.66, 38.03, 23.69, 38.055}, got)

	_, err = ParseFloatList("1,two")
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"brown", "yellow"}, SplitList("brown, ,yellow,"))
	assert.Nil(t, SplitList(""))
}
