package spectral

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.jpl.nasa.gov/bdube/picamfft/camera"
	"github.jpl.nasa.gov/bdube/picamfft/picam"
)

func patterned(t *testing.T, rows, cols int) camera.Frame {
	t.Helper()
	pix := make([]uint16, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			pix[r*cols+c] = picam.DefaultPattern(r, c, 0)
		}
	}
	f, err := camera.NewFrame(0, rows, cols, pix)
	require.NoError(t, err)
	return f
}

// naiveRowDFT transforms each row of f, zero padded to n columns
func naiveRowDFT(f camera.Frame, n int) [][]complex128 {
	out := make([][]complex128, f.Rows)
	for r := 0; r < f.Rows; r++ {
		out[r] = make([]complex128, n)
		for k := 0; k < n; k++ {
			var sum complex128
			for c := 0; c < f.Cols; c++ {
				angle := -2 * math.Pi * float64(k*c) / float64(n)
				sum += complex(float64(f.At(r, c)), 0) * cmplx.Exp(complex(0, angle))
			}
			out[r][k] = sum
		}
	}
	return out
}

func TestTransformMatchesNaiveDFT(t *testing.T) {
	f := patterned(t, 3, 7)
	s, err := Transform(f, Options{Mode: RealImaginary})
	require.NoError(t, err)
	_, pc := s.PaddedShape()
	assert.Equal(t, OptimalSize(7), pc)
	want := naiveRowDFT(f, pc)
	for r := 0; r < s.Rows(); r++ {
		for c := 0; c < s.Cols(); c++ {
			re, im := s.At(r, c)
			assert.InDelta(t, real(want[r][c]), float64(re), 1e-1, "re at %d,%d", r, c)
			assert.InDelta(t, imag(want[r][c]), float64(im), 1e-1, "im at %d,%d", r, c)
		}
	}
}

func TestModesAgree(t *testing.T) {
	f := patterned(t, 11, 29)
	mag, err := Transform(f, Options{Mode: Magnitude})
	require.NoError(t, err)
	ri, err := Transform(f, Options{Mode: RealImaginary})
	require.NoError(t, err)
	assert.Equal(t, mag.Rows(), ri.Rows())
	assert.Equal(t, mag.Cols(), ri.Cols())

	got := ri.Magnitude()
	want, zero := mag.Planes()
	require.Len(t, got.Data, len(want.Data))
	for i := range want.Data {
		assert.InDelta(t, want.Data[i], got.Data[i], 1e-3)
		assert.Zero(t, zero.Data[i])
	}
}

func TestCroppedShapeIsEven(t *testing.T) {
	shapes := [][2]int{{2, 2}, {3, 5}, {7, 9}, {101, 33}, {400, 1340}, {100, 1340}}
	for _, sh := range shapes {
		f := patterned(t, sh[0], sh[1])
		s, err := Transform(f, Options{})
		require.NoError(t, err)
		pr, pc := s.PaddedShape()
		assert.Equal(t, sh[0]&^1, s.Rows(), "%v", sh)
		assert.Equal(t, sh[1]&^1, s.Cols(), "%v", sh)
		assert.Zero(t, s.Rows()%2)
		assert.Zero(t, s.Cols()%2)
		assert.LessOrEqual(t, s.Rows(), pr)
		assert.LessOrEqual(t, s.Cols(), pc)
	}
}

func TestAllZeroFrame(t *testing.T) {
	f, err := camera.NewFrame(3, 400, 1340, make([]uint16, 400*1340))
	require.NoError(t, err)
	s, err := Transform(f, Options{Mode: Magnitude})
	require.NoError(t, err)
	assert.Equal(t, 400, s.Rows())
	assert.Equal(t, 1340, s.Cols())
	assert.Equal(t, 3, s.Index())
	m, _ := s.Planes()
	for _, v := range m.Data {
		if v != 0 {
			t.Fatalf("expected an all-zero magnitude, found %v", v)
		}
	}
}

func TestEmptyFrame(t *testing.T) {
	_, err := Transform(camera.Frame{}, Options{})
	assert.Equal(t, ErrEmptyFrame, err)
	_, err = Transform(camera.Frame{Rows: 2, Cols: 2, Pix: []uint16{1}}, Options{})
	assert.True(t, errors.Is(err, ErrEmptyFrame))
	_, err = Transform(patterned(t, 1, 8), Options{})
	assert.True(t, errors.Is(err, ErrEmptyFrame))
}

func TestCenterSwapsRowHalves(t *testing.T) {
	f := patterned(t, 4, 12)
	plain, err := Transform(f, Options{Mode: RealImaginary})
	require.NoError(t, err)
	centered, err := Transform(f, Options{Mode: RealImaginary, Center: true})
	require.NoError(t, err)
	assert.False(t, plain.Centered())
	assert.True(t, centered.Centered())
	half := plain.Cols() / 2
	for r := 0; r < plain.Rows(); r++ {
		for c := 0; c < plain.Cols(); c++ {
			pre, pim := plain.At(r, (c+half)%plain.Cols())
			cre, cim := centered.At(r, c)
			assert.Equal(t, pre, cre)
			assert.Equal(t, pim, cim)
		}
	}
	// DC term of the first row lands mid-row
	dc, _ := plain.At(0, 0)
	mid, _ := centered.At(0, half)
	assert.Equal(t, dc, mid)
}

func TestSpectrumAccessorsCopy(t *testing.T) {
	s, err := Transform(patterned(t, 4, 4), Options{Mode: RealImaginary})
	require.NoError(t, err)
	a, _ := s.Planes()
	before := a.Data[0]
	a.Data[0] = -1
	again, _ := s.Planes()
	assert.Equal(t, before, again.Data[0])

	re, im := s.Region(camera.RowBand(1, 2))
	assert.Equal(t, 2, re.Rows)
	assert.Equal(t, 4, re.Cols)
	assert.Equal(t, again.At(1, 0), re.At(0, 0))
	assert.Len(t, im.Data, 8)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Real-Imaginary")
	require.NoError(t, err)
	assert.Equal(t, RealImaginary, m)
	m, err = ParseMode("magnitude")
	require.NoError(t, err)
	assert.Equal(t, Magnitude, m)
	_, err = ParseMode("phase")
	assert.Error(t, err)
}
