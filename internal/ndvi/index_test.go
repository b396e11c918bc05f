package ndvi

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRaster(t *testing.T, w, h int, values []float64, valid []bool) *Raster {
	t.Helper()
	r, err := NewRaster(w, h, values, valid)
	require.NoError(t, err)
	return r
}

func TestComputeNDVI(t *testing.T) {
	t.Parallel()

	t.Run("two pixel scenario", func(t *testing.T) {
		t.Parallel()
		red := mustRaster(t, 2, 1, []float64{0.1, 0.2}, nil)
		nir := mustRaster(t, 2, 1, []float64{0.3, 0.2}, nil)

		out, err := ComputeNDVI(red, nir)
		require.NoError(t, err)
		require.Equal(t, 2, out.Width())
		require.Equal(t, 1, out.Height())

		v, ok := out.At(0, 0)
		assert.True(t, ok)
		assert.InDelta(t, 0.5, v, 1e-12)
		v, ok = out.At(1, 0)
		assert.True(t, ok)
		assert.InDelta(t, 0.0, v, 1e-12)

		mean, err := RegionMean(out)
		require.NoError(t, err)
		assert.InDelta(t, 0.25, mean, 1e-12)
	})

	t.Run("zero denominator is masked", func(t *testing.T) {
		t.Parallel()
		red := mustRaster(t, 3, 1, []float64{0, 0.2, -0.1}, nil)
		nir := mustRaster(t, 3, 1, []float64{0, 0.6, 0.1}, nil)

		out, err := ComputeNDVI(red, nir)
		require.NoError(t, err)

		_, ok := out.Index(0)
		assert.False(t, ok, "red=nir=0 must be missing")
		_, ok = out.Index(2)
		assert.False(t, ok, "red+nir=0 must be missing regardless of values")
		assert.Equal(t, 1, out.ValidCount())

		mean, err := RegionMean(out)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, mean, 1e-12)
	})

	t.Run("missing inputs stay missing", func(t *testing.T) {
		t.Parallel()
		mask := []bool{true, false}
		red := mustRaster(t, 2, 1, []float64{0.1, 0.1}, mask)
		nir := mustRaster(t, 2, 1, []float64{0.4, 0.4}, mask)

		out, err := ComputeNDVI(red, nir)
		require.NoError(t, err)
		_, ok := out.Index(1)
		assert.False(t, ok)
	})

	t.Run("shape mismatch", func(t *testing.T) {
		t.Parallel()
		red := mustRaster(t, 2, 1, []float64{0.1, 0.2}, nil)
		nir := mustRaster(t, 1, 2, []float64{0.3, 0.2}, nil)

		_, err := ComputeNDVI(red, nir)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("mask mismatch", func(t *testing.T) {
		t.Parallel()
		red := mustRaster(t, 2, 1, []float64{0.1, 0.2}, []bool{true, false})
		nir := mustRaster(t, 2, 1, []float64{0.3, 0.2}, nil)

		_, err := ComputeNDVI(red, nir)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("values bounded", func(t *testing.T) {
		t.Parallel()
		rng := rand.New(rand.NewSource(7))
		const n = 4096
		redVals := make([]float64, n)
		nirVals := make([]float64, n)
		for i := range redVals {
			redVals[i] = rng.Float64() * 10000
			nirVals[i] = rng.Float64() * 10000
		}
		out, err := ComputeNDVI(mustRaster(t, 64, 64, redVals, nil), mustRaster(t, 64, 64, nirVals, nil))
		require.NoError(t, err)
		for i := 0; i < out.Len(); i++ {
			v, ok := out.Index(i)
			if !ok {
				continue
			}
			assert.GreaterOrEqual(t, v, -1.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()
		red := mustRaster(t, 2, 2, []float64{0.11, 0.07, 0.3, 0.05}, nil)
		nir := mustRaster(t, 2, 2, []float64{0.42, 0.33, 0.31, 0.05}, nil)
		a, err := ComputeNDVI(red, nir)
		require.NoError(t, err)
		b, err := ComputeNDVI(red, nir)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestComputeChange(t *testing.T) {
	t.Parallel()

	t.Run("single pixel increase", func(t *testing.T) {
		t.Parallel()
		a := mustRaster(t, 1, 1, []float64{0.4}, nil)
		b := mustRaster(t, 1, 1, []float64{0.55}, nil)
		out, err := ComputeChange(a, b)
		require.NoError(t, err)
		v, ok := out.Index(0)
		require.True(t, ok)
		assert.InDelta(t, 0.15, v, 1e-12)
	})

	t.Run("self difference is zero", func(t *testing.T) {
		t.Parallel()
		x := mustRaster(t, 3, 1, []float64{0.2, -0.4, 0.9}, []bool{true, false, true})
		out, err := ComputeChange(x, x)
		require.NoError(t, err)
		for i := 0; i < out.Len(); i++ {
			v, ok := out.Index(i)
			_, srcOK := x.Index(i)
			assert.Equal(t, srcOK, ok)
			if ok {
				assert.Zero(t, v)
			}
		}
	})

	t.Run("antisymmetric", func(t *testing.T) {
		t.Parallel()
		a := mustRaster(t, 2, 2, []float64{0.1, 0.5, -0.2, 0.8}, []bool{true, true, false, true})
		b := mustRaster(t, 2, 2, []float64{0.3, 0.1, 0.4, -1}, []bool{true, true, true, true})
		ab, err := ComputeChange(a, b)
		require.NoError(t, err)
		ba, err := ComputeChange(b, a)
		require.NoError(t, err)
		for i := 0; i < ab.Len(); i++ {
			v1, ok1 := ab.Index(i)
			v2, ok2 := ba.Index(i)
			assert.Equal(t, ok1, ok2)
			if ok1 {
				assert.Equal(t, v1, -v2)
			}
		}
		_, ok := ab.Index(2)
		assert.False(t, ok)
	})

	t.Run("shape mismatch", func(t *testing.T) {
		t.Parallel()
		a := mustRaster(t, 2, 1, []float64{0.1, 0.2}, nil)
		b := mustRaster(t, 1, 1, []float64{0.3}, nil)
		_, err := ComputeChange(a, b)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}
