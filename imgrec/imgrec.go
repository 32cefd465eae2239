// Package imgrec contains record writers used to automatically save frames
// and spectra to disk.
package imgrec

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.jpl.nasa.gov/bdube/picamfft/camera"
	"github.jpl.nasa.gov/bdube/picamfft/spectral"
)

// ErrEmptyRegion is returned when a region does not overlap a grid
var ErrEmptyRegion = errors.New("imgrec: region is empty")

// Format is the file format of a record
type Format int

const (
	// FITS writes the frame as the primary HDU and the spectrum as image extensions
	FITS Format = iota

	// YAML writes a YAML document with one mapping per grid
	YAML
)

// Ext is the filename extension of the format, without a dot
func (f Format) Ext() string {
	if f == YAML {
		return "yml"
	}
	return "fits"
}

func (f Format) String() string {
	if f == YAML {
		return "yaml"
	}
	return "fits"
}

// ParseFormat converts "fits" or "yaml" to a Format
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "fits", "fit", "":
		return FITS, nil
	case "yaml", "yml":
		return YAML, nil
	}
	return FITS, fmt.Errorf("imgrec: unknown record format %q", s)
}

// record is the content of one file
type record struct {
	index    int
	runID    string
	image    camera.Frame
	spectrum *spectral.Spectrum
	a, b     spectral.Grid
}

// Recorder records frames with incrementing filenames in yyyy-mm-dd
// subfolders.  It is safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	// counter is the internally incrementing counter
	counter int

	// scanned is true once the counter has been synced with the folder
	scanned bool

	// Root is the root path
	Root string

	// Prefix is the prefix for the filenames
	Prefix string

	// Format is the file format
	Format Format

	// RunID tags every record
	RunID string

	// timeFldr is the subfolder with yyyy-mm-dd format.
	timeFldr string

	// Enabled gates automatic writes.  Persist itself does not read it;
	// callers writing on their own schedule check IsEnabled first.
	Enabled bool

	// last is the path of the last record written
	last string
}

// updateFolder checks the current time and updates the folder as needed.
// A new folder resets the counter.
func (r *Recorder) updateFolder() {
	now := time.Now()
	y, m, d := now.Year(), now.Month(), now.Day()
	fldr := fmt.Sprintf("%04d-%02d-%02d", y, m, d)
	if fldr != r.timeFldr {
		r.timeFldr = fldr
		r.scanned = false
	}
}

// mkDir makes the folder and returns it
func (r *Recorder) mkDir() (string, error) {
	fldr := path.Join(r.Root, r.timeFldr)
	err := os.MkdirAll(fldr, 0777)
	return fldr, err
}

// incr sets the counter one past the highest numbered record in the folder.
// If there is an error, the counter is not changed.
func (r *Recorder) incr(dn string) {
	files, err := ioutil.ReadDir(dn)
	if err != nil {
		return
	}
	ext := "." + r.Format.Ext()
	count := 0
	for _, file := range files {
		// skip directories, other formats, and wrong prefix
		if file.IsDir() {
			continue
		}
		fn := file.Name()
		if !strings.HasSuffix(fn, ext) || !strings.HasPrefix(fn, r.Prefix) {
			continue
		}
		bit := strings.TrimSuffix(strings.TrimPrefix(fn, r.Prefix), ext)
		n, err := strconv.Atoi(bit)
		if err != nil {
			continue
		}
		if count < n {
			count = n
		}
	}
	r.counter = count + 1
	r.scanned = true
}

// next returns the path of the next record
func (r *Recorder) next() (string, error) {
	r.updateFolder()
	fldr, err := r.mkDir()
	if err != nil {
		return "", err
	}
	if !r.scanned {
		r.incr(fldr)
	}
	fn := fmt.Sprintf("%s%06d.%s", r.Prefix, r.counter, r.Format.Ext())
	return path.Join(fldr, fn), nil
}

// Persist writes one record holding the frame index, the region of the
// frame, and when s is not nil the same region of both spectrum grids.  The
// region is clipped against each grid.  It returns the path written.
func (r *Recorder) Persist(f camera.Frame, s *spectral.Spectrum, region camera.AOI) (string, error) {
	img, err := f.Region(region)
	if err != nil {
		return "", fmt.Errorf("%w: %+v on the %dx%d frame", ErrEmptyRegion, region, f.Rows, f.Cols)
	}
	rec := record{index: f.Index, image: img, spectrum: s}
	if s != nil {
		rec.a, rec.b = s.Region(region)
		if rec.a.Rows == 0 || rec.a.Cols == 0 {
			return "", fmt.Errorf("%w: %+v on the %dx%d spectrum", ErrEmptyRegion, region, s.Rows(), s.Cols())
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec.runID = r.RunID
	fn, err := r.next()
	if err != nil {
		return "", err
	}
	fid, err := os.Create(fn)
	if err != nil {
		return "", err
	}
	switch r.Format {
	case YAML:
		err = writeYAML(fid, rec)
	default:
		err = writeFits(fid, rec)
	}
	if cerr := fid.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("imgrec: writing %s: %w", fn, err)
	}
	r.counter++
	r.last = fn
	return fn, nil
}

// Last returns the path of the most recent record, or "" if none was written
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// IsEnabled reports whether automatic writes are on
func (r *Recorder) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Enabled
}

// SetRoot changes the root folder, creating it if needed
func (r *Recorder) SetRoot(root string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Root = root
	r.updateFolder()
	r.scanned = false
	_, err := r.mkDir()
	return err
}

// SetPrefix changes the filename prefix
func (r *Recorder) SetPrefix(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Prefix = prefix
	r.scanned = false
}
