/*Package camera drives a picam.Camera through a session: open, stage and
commit parameters, acquire frames, close.

A Session owns the camera handle exclusively.  Acquire returns frames that
own their own memory, so a later acquisition never changes a frame already
handed out.  Loop wraps Acquire into the two acquisition styles used by the
pipeline: one bulk request, or repeated single-frame requests.

*/
package camera

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
)

// ErrEmptyFrame is returned when a frame has no rows or no columns
var ErrEmptyFrame = errors.New("camera: frame has zero rows or columns")

// AOI describes an area of interest on a frame.  Indices are 0-based.
// A zero Width or Height spans from Left or Top to the end of the frame.
type AOI struct {
	// Left is the left pixel index
	Left int `json:"left" yaml:"left"`

	// Top is the top pixel index
	Top int `json:"top" yaml:"top"`

	// Width is the width in pixels
	Width int `json:"width" yaml:"width"`

	// Height is the height in pixels
	Height int `json:"height" yaml:"height"`
}

// Rect resolves the AOI against a rows x cols grid and clips it to the grid.
// The result may be empty.
func (a AOI) Rect(rows, cols int) image.Rectangle {
	w, h := a.Width, a.Height
	if w == 0 {
		w = cols - a.Left
	}
	if h == 0 {
		h = rows - a.Top
	}
	r := image.Rect(a.Left, a.Top, a.Left+w, a.Top+h)
	return r.Intersect(image.Rect(0, 0, cols, rows))
}

// RowBand is the AOI spanning rows [top, top+height) across the full width
func RowBand(top, height int) AOI {
	return AOI{Top: top, Height: height}
}

// Frame is one readout as a row-major grid of 16-bit samples
type Frame struct {
	// Index is the position of the frame within its acquisition
	Index int

	// Rows is the height of the frame
	Rows int

	// Cols is the width of the frame
	Cols int

	// Pix holds Rows*Cols samples, row-major
	Pix []uint16
}

// NewFrame makes a frame around pix, which the frame then owns
func NewFrame(index, rows, cols int, pix []uint16) (Frame, error) {
	if rows <= 0 || cols <= 0 {
		return Frame{}, ErrEmptyFrame
	}
	if len(pix) != rows*cols {
		return Frame{}, fmt.Errorf("camera: %d samples cannot fill a %dx%d frame", len(pix), rows, cols)
	}
	return Frame{Index: index, Rows: rows, Cols: cols, Pix: pix}, nil
}

// Empty is true for a frame without samples
func (f Frame) Empty() bool {
	return f.Rows <= 0 || f.Cols <= 0 || len(f.Pix) == 0
}

// At returns the sample at (row, col)
func (f Frame) At(row, col int) uint16 {
	return f.Pix[row*f.Cols+col]
}

// CenterThree returns the three samples around the midpoint of the buffer
func (f Frame) CenterThree() [3]uint16 {
	mid := len(f.Pix) / 2
	out := [3]uint16{}
	for i := -1; i <= 1; i++ {
		if j := mid + i; j >= 0 && j < len(f.Pix) {
			out[i+1] = f.Pix[j]
		}
	}
	return out
}

// Bytes returns the samples as little-endian bytes, the readout byte order
func (f Frame) Bytes() []byte {
	out := make([]byte, 2*len(f.Pix))
	for i, v := range f.Pix {
		binary.LittleEndian.PutUint16(out[2*i:], v)
	}
	return out
}

// Region copies the part of the frame inside the AOI into a new frame
func (f Frame) Region(a AOI) (Frame, error) {
	r := a.Rect(f.Rows, f.Cols)
	if r.Empty() {
		return Frame{}, fmt.Errorf("camera: AOI %+v does not overlap the %dx%d frame: %w", a, f.Rows, f.Cols, ErrEmptyFrame)
	}
	w, h := r.Dx(), r.Dy()
	pix := make([]uint16, 0, w*h)
	for row := r.Min.Y; row < r.Max.Y; row++ {
		start := row*f.Cols + r.Min.X
		pix = append(pix, f.Pix[start:start+w]...)
	}
	return Frame{Index: f.Index, Rows: h, Cols: w, Pix: pix}, nil
}

// Gray16 converts the frame to an image.  The image does not share memory
// with the frame.
func (f Frame) Gray16() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, f.Cols, f.Rows))
	for i, v := range f.Pix {
		binary.BigEndian.PutUint16(img.Pix[2*i:], v)
	}
	return img
}

// frameFromReadout copies the top left rows x cols of one readout whose rows
// are pitch samples apart.  The readout may carry trailing metadata.
func frameFromReadout(index, rows, cols, pitch int, readout []byte) (Frame, error) {
	if cols > pitch {
		return Frame{}, fmt.Errorf("camera: %d columns do not fit a readout row of %d", cols, pitch)
	}
	if len(readout) < 2*((rows-1)*pitch+cols) {
		return Frame{}, fmt.Errorf("camera: readout of %d bytes cannot hold a %dx%d frame", len(readout), rows, cols)
	}
	pix := make([]uint16, rows*cols)
	for r := 0; r < rows; r++ {
		row := readout[2*r*pitch:]
		for c := 0; c < cols; c++ {
			pix[r*cols+c] = binary.LittleEndian.Uint16(row[2*c:])
		}
	}
	return NewFrame(index, rows, cols, pix)
}
