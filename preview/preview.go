/*Package preview shows frames and spectra while they are acquired.

A Previewer returns after at most one bounded wait for the user to cancel.
Window shows an OpenCV window and listens for a key press.  Stream serves the
latest frame over HTTP and takes cancellation as a POST.  Multi fans out to
several previewers.
*/
package preview

import (
	"github.jpl.nasa.gov/bdube/picamfft/camera"
	"github.jpl.nasa.gov/bdube/picamfft/spectral"
)

// Previewer displays a frame and its spectrum, which may be nil.  cancel is
// true when the user asked to stop.
type Previewer interface {
	Preview(f camera.Frame, s *spectral.Spectrum) (cancel bool, err error)
}

// Closer is a Previewer holding resources
type Closer interface {
	Previewer
	Close() error
}

// Multi previews on every member in order.  It cancels if any member does
// and returns the first error after every member has had the frame.
type Multi []Previewer

// Preview implements Previewer
func (m Multi) Preview(f camera.Frame, s *spectral.Spectrum) (bool, error) {
	var (
		cancel bool
		first  error
	)
	for _, p := range m {
		c, err := p.Preview(f, s)
		cancel = cancel || c
		if err != nil && first == nil {
			first = err
		}
	}
	return cancel, first
}

// Close closes every member that holds resources
func (m Multi) Close() error {
	var first error
	for _, p := range m {
		if c, ok := p.(Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// Nop discards frames and never cancels
type Nop struct{}

// Preview implements Previewer
func (Nop) Preview(camera.Frame, *spectral.Spectrum) (bool, error) { return false, nil }
