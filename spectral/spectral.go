/*Package spectral computes row-wise Fourier spectra of camera frames for
visual inspection.

The transform zero-pads a frame on its trailing edges to sizes OpenCV
transforms quickly, takes the DFT of each row on its own, and keeps an even
sized block from the top left of the result.  It is not a general 2-D FFT.
*/
package spectral

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"runtime"
	"strings"

	"gocv.io/x/gocv"

	"github.jpl.nasa.gov/bdube/picamfft/camera"
	"github.jpl.nasa.gov/bdube/picamfft/mathx"
)

// ErrEmptyFrame is returned for a frame too small to have a spectrum
var ErrEmptyFrame = errors.New("spectral: empty frame")

// Mode selects what a Spectrum holds
type Mode int

const (
	// Magnitude holds log(1 + |X|); the second grid is zero
	Magnitude Mode = iota

	// RealImaginary holds the unscaled real and imaginary parts
	RealImaginary
)

func (m Mode) String() string {
	switch m {
	case Magnitude:
		return "magnitude"
	case RealImaginary:
		return "real-imaginary"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode converts a mode name to a Mode
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "", "/", "", " ", "").Replace(s)) {
	case "magnitude", "mag", "":
		return Magnitude, nil
	case "realimaginary", "realimag", "complex":
		return RealImaginary, nil
	}
	return Magnitude, fmt.Errorf("spectral: unknown mode %q", s)
}

// Options controls Transform
type Options struct {
	Mode Mode

	// Center swaps the left and right halves of every row so that the zero
	// frequency sits mid-row
	Center bool
}

// Grid is a row-major grid of float32 values
type Grid struct {
	Rows int       `json:"rows" yaml:"rows"`
	Cols int       `json:"cols" yaml:"cols"`
	Data []float32 `json:"data" yaml:"data,flow"`
}

// At returns the value at (row, col)
func (g Grid) At(row, col int) float32 {
	return g.Data[row*g.Cols+col]
}

// Region copies the part of the grid inside r, clipped to the grid
func (g Grid) Region(r image.Rectangle) Grid {
	r = r.Intersect(image.Rect(0, 0, g.Cols, g.Rows))
	out := Grid{Rows: r.Dy(), Cols: r.Dx(), Data: make([]float32, 0, r.Dx()*r.Dy())}
	for row := r.Min.Y; row < r.Max.Y; row++ {
		start := row*g.Cols + r.Min.X
		out.Data = append(out.Data, g.Data[start:start+r.Dx()]...)
	}
	return out
}

// Spectrum is the spectrum of one frame.  It is not modified after Transform
// returns it; accessors hand out copies.
type Spectrum struct {
	index            int
	rows, cols       int
	padRows, padCols int
	mode             Mode
	centered         bool
	a, b             []float32
}

// Index is the index of the frame the spectrum came from
func (s *Spectrum) Index() int { return s.index }

// Rows is the number of rows of both grids
func (s *Spectrum) Rows() int { return s.rows }

// Cols is the number of columns of both grids
func (s *Spectrum) Cols() int { return s.cols }

// PaddedShape is the size the frame was padded to before the transform
func (s *Spectrum) PaddedShape() (rows, cols int) { return s.padRows, s.padCols }

// Mode is the mode the spectrum was computed in
func (s *Spectrum) Mode() Mode { return s.mode }

// Centered is true if the row halves were swapped
func (s *Spectrum) Centered() bool { return s.centered }

// Planes returns copies of both grids: real and imaginary parts, or the
// log magnitude and a zero grid
func (s *Spectrum) Planes() (Grid, Grid) {
	return s.grid(s.a), s.grid(s.b)
}

// Magnitude returns log(1 + |X|) whatever the mode
func (s *Spectrum) Magnitude() Grid {
	if s.mode == Magnitude {
		return s.grid(s.a)
	}
	out := make([]float32, len(s.a))
	for i := range out {
		out[i] = logMagnitude(s.a[i], s.b[i])
	}
	return Grid{Rows: s.rows, Cols: s.cols, Data: out}
}

// At returns both grid values at (row, col)
func (s *Spectrum) At(row, col int) (float32, float32) {
	i := row*s.cols + col
	return s.a[i], s.b[i]
}

// Region returns the AOI of both grids, clipped to the spectrum
func (s *Spectrum) Region(aoi camera.AOI) (Grid, Grid) {
	r := aoi.Rect(s.rows, s.cols)
	a, b := s.Planes()
	return a.Region(r), b.Region(r)
}

func (s *Spectrum) grid(data []float32) Grid {
	return Grid{Rows: s.rows, Cols: s.cols, Data: append([]float32(nil), data...)}
}

func logMagnitude(re, im float32) float32 {
	return float32(math.Log(1 + math.Hypot(float64(re), float64(im))))
}

// OptimalSize is the smallest size >= n that the DFT handles efficiently
func OptimalSize(n int) int {
	return gocv.GetOptimalDFTSize(n)
}

// Transform computes the row-wise spectrum of f.  The result has the frame's
// shape rounded down to even sizes on both axes.
func Transform(f camera.Frame, opts Options) (*Spectrum, error) {
	if f.Empty() {
		return nil, ErrEmptyFrame
	}
	if len(f.Pix) != f.Rows*f.Cols {
		return nil, fmt.Errorf("%w: %d samples for a %dx%d frame", ErrEmptyFrame, len(f.Pix), f.Rows, f.Cols)
	}
	rows, cols := mathx.Even(f.Rows), mathx.Even(f.Cols)
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("%w: a %dx%d frame crops to nothing", ErrEmptyFrame, f.Rows, f.Cols)
	}
	if opts.Mode != Magnitude && opts.Mode != RealImaginary {
		return nil, fmt.Errorf("spectral: unknown mode %d", int(opts.Mode))
	}

	raw := f.Bytes()
	src, err := gocv.NewMatFromBytes(f.Rows, f.Cols, gocv.MatTypeCV16UC1, raw)
	if err != nil {
		return nil, fmt.Errorf("spectral: %w", err)
	}
	defer src.Close()
	flt := gocv.NewMat()
	defer flt.Close()
	src.ConvertTo(&flt, gocv.MatTypeCV32F)
	runtime.KeepAlive(raw)

	pr, pc := OptimalSize(f.Rows), OptimalSize(f.Cols)
	padded := gocv.NewMat()
	defer padded.Close()
	gocv.CopyMakeBorder(flt, &padded, 0, pr-f.Rows, 0, pc-f.Cols, gocv.BorderConstant, color.RGBA{})

	cplx := gocv.NewMat()
	defer cplx.Close()
	gocv.DFT(padded, &cplx, gocv.DftRows|gocv.DftComplexOutput)
	planes := gocv.Split(cplx)
	defer func() {
		for _, p := range planes {
			p.Close()
		}
	}()
	if len(planes) != 2 {
		return nil, fmt.Errorf("spectral: DFT gave %d planes, expected 2", len(planes))
	}

	s := &Spectrum{
		index:    f.Index,
		rows:     rows,
		cols:     cols,
		padRows:  pr,
		padCols:  pc,
		mode:     opts.Mode,
		centered: opts.Center,
	}
	if opts.Mode == Magnitude {
		mag := gocv.NewMat()
		defer mag.Close()
		gocv.Magnitude(planes[0], planes[1], &mag)
		mag.AddFloat(1)
		lg := gocv.NewMat()
		defer lg.Close()
		gocv.Log(mag, &lg)
		if s.a, err = crop(lg, rows, cols); err != nil {
			return nil, err
		}
		s.b = make([]float32, rows*cols)
	} else {
		if s.a, err = crop(planes[0], rows, cols); err != nil {
			return nil, err
		}
		if s.b, err = crop(planes[1], rows, cols); err != nil {
			return nil, err
		}
	}
	if opts.Center {
		halfSwap(s.a, rows, cols)
		halfSwap(s.b, rows, cols)
	}
	return s, nil
}

// crop copies the top left rows x cols block of a float32 Mat
func crop(m gocv.Mat, rows, cols int) ([]float32, error) {
	data, err := m.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("spectral: %w", err)
	}
	stride := m.Cols()
	out := make([]float32, 0, rows*cols)
	for r := 0; r < rows; r++ {
		out = append(out, data[r*stride:r*stride+cols]...)
	}
	return out, nil
}

// halfSwap exchanges the left and right halves of every row.  cols is even.
func halfSwap(data []float32, rows, cols int) {
	half := cols / 2
	for r := 0; r < rows; r++ {
		row := data[r*cols : (r+1)*cols]
		for c := 0; c < half; c++ {
			row[c], row[c+half] = row[c+half], row[c]
		}
	}
}
