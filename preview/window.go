package preview

import (
	"encoding/binary"
	"fmt"
	"math"
	"runtime"
	"time"

	"gocv.io/x/gocv"

	"github.jpl.nasa.gov/bdube/picamfft/camera"
	"github.jpl.nasa.gov/bdube/picamfft/spectral"
)

// DefaultCancelKeys are q, Q and escape
var DefaultCancelKeys = []int{'q', 'Q', 27}

// Window shows frames in a named OpenCV window, and spectra in a second one
type Window struct {
	// Name is the window title
	Name string

	// Wait is how long to wait for a key after each frame.  Zero waits for
	// a key press with no limit.
	Wait time.Duration

	// CancelKeys are the key codes that cancel.  Other keys continue.
	CancelKeys []int

	frame, spec *gocv.Window
}

// NewWindow opens a window
func NewWindow(name string, wait time.Duration) *Window {
	return &Window{Name: name, Wait: wait, CancelKeys: DefaultCancelKeys, frame: gocv.NewWindow(name)}
}

// Preview implements Previewer
func (w *Window) Preview(f camera.Frame, s *spectral.Spectrum) (bool, error) {
	img, err := frameMat(f)
	if err != nil {
		return false, err
	}
	defer img.Close()
	w.frame.IMShow(img)

	if s != nil {
		if w.spec == nil {
			w.spec = gocv.NewWindow(w.Name + " spectrum")
		}
		sm, err := gridMat(s.Magnitude())
		if err != nil {
			return false, err
		}
		defer sm.Close()
		w.spec.IMShow(sm)
	}

	ms := 0
	if w.Wait > 0 {
		ms = int(w.Wait / time.Millisecond)
		if ms == 0 {
			ms = 1
		}
	}
	key := w.frame.WaitKey(ms)
	for _, k := range w.CancelKeys {
		if key == k {
			return true, nil
		}
	}
	return false, nil
}

// Close closes the windows
func (w *Window) Close() error {
	var err error
	if w.spec != nil {
		err = w.spec.Close()
	}
	if cerr := w.frame.Close(); err == nil {
		err = cerr
	}
	return err
}

// frameMat stretches a frame to an 8-bit Mat
func frameMat(f camera.Frame) (gocv.Mat, error) {
	raw := f.Bytes()
	src, err := gocv.NewMatFromBytes(f.Rows, f.Cols, gocv.MatTypeCV16UC1, raw)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("preview: %w", err)
	}
	defer src.Close()
	norm := gocv.NewMat()
	defer norm.Close()
	gocv.Normalize(src, &norm, 0, 255, gocv.NormMinMax)
	out := gocv.NewMat()
	norm.ConvertTo(&out, gocv.MatTypeCV8U)
	runtime.KeepAlive(raw)
	return out, nil
}

// gridMat stretches a float grid to 0..1, the range imshow displays for floats
func gridMat(g spectral.Grid) (gocv.Mat, error) {
	raw := make([]byte, 4*len(g.Data))
	for i, v := range g.Data {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	src, err := gocv.NewMatFromBytes(g.Rows, g.Cols, gocv.MatTypeCV32F, raw)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("preview: %w", err)
	}
	defer src.Close()
	out := gocv.NewMat()
	gocv.Normalize(src, &out, 0, 1, gocv.NormMinMax)
	runtime.KeepAlive(raw)
	return out, nil
}
