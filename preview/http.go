package preview

import (
	"bytes"
	"encoding/json"
	"image"
	"image/jpeg"
	"image/png"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/rs/zerolog"

	"github.jpl.nasa.gov/bdube/picamfft/camera"
	"github.jpl.nasa.gov/bdube/picamfft/imgrec"
	"github.jpl.nasa.gov/bdube/picamfft/mathx"
	"github.jpl.nasa.gov/bdube/picamfft/server"
	"github.jpl.nasa.gov/bdube/picamfft/spectral"
	"github.jpl.nasa.gov/bdube/picamfft/util"
)

// Status is the JSON body of GET /status
type Status struct {
	Frames    int       `json:"frames"`
	LastIndex int       `json:"lastIndex"`
	Rows      int       `json:"rows"`
	Cols      int       `json:"cols"`
	Center    string    `json:"center"`
	FPS       float64   `json:"fps"`
	Updated   time.Time `json:"updated"`
	Cancelled bool      `json:"cancelled"`
	RunID     string    `json:"runID,omitempty"`
}

// StreamOptions configures a Stream
type StreamOptions struct {
	// Wait bounds how long each Preview waits for a cancel request.  Zero
	// only checks for one that already arrived.
	Wait time.Duration

	// MaxWidth downsizes png and jpg images wider than this.  Zero keeps the
	// full width.
	MaxWidth int

	// Rotate turns png and jpg images clockwise by quarter turns
	Rotate int

	// RunID is reported by /status and tagged on fits downloads
	RunID string

	// Recorder, if not nil, gets /autowrite routes
	Recorder *imgrec.Recorder

	// Logger receives request errors.  Nil logs nothing.
	Logger *zerolog.Logger
}

// Stream serves the most recent frame and spectrum over HTTP.
//
// Routes:
//  GET  /frame?fmt=jpg|png|fits
//  GET  /spectrum
//  GET  /status
//  POST /cancel
//  GET  /list-of-routes
type Stream struct {
	opts   StreamOptions
	log    zerolog.Logger
	router chi.Router
	cancel chan struct{}

	mu     sync.Mutex
	frame  camera.Frame
	spec   *spectral.Spectrum
	status Status
	first  time.Time
}

// NewStream builds a Stream and its routes
func NewStream(opts StreamOptions) *Stream {
	s := &Stream{
		opts:   opts,
		log:    zerolog.Nop(),
		cancel: make(chan struct{}, 1),
		status: Status{LastIndex: -1, RunID: opts.RunID},
	}
	if opts.Logger != nil {
		s.log = *opts.Logger
	}
	rt := chi.NewRouter()
	rt.Get("/frame", s.GetFrame)
	rt.Get("/spectrum", s.GetSpectrum)
	rt.Get("/status", s.GetStatus)
	rt.Post("/cancel", s.PostCancel)
	if opts.Recorder != nil {
		imgrec.NewHTTPWrapper(opts.Recorder).Inject(rt)
	}
	rt.Get("/list-of-routes", server.ListRoutesHandler(rt))
	s.router = rt
	return s
}

// ServeHTTP implements http.Handler
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start serves on addr in the background.  Shut the returned server down to
// stop.
func (s *Stream) Start(addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: s}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("preview stream stopped")
		}
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("serving preview")
	return srv, nil
}

// Preview implements Previewer.  It keeps the frame for the HTTP routes, then
// waits up to Wait for POST /cancel.
func (s *Stream) Preview(f camera.Frame, sp *spectral.Spectrum) (bool, error) {
	now := time.Now()
	s.mu.Lock()
	s.frame = f
	s.spec = sp
	if s.status.Frames == 0 {
		s.first = now
	}
	s.status.Frames++
	s.status.LastIndex = f.Index
	s.status.Rows, s.status.Cols = f.Rows, f.Cols
	c3 := f.CenterThree()
	s.status.Center = util.IntSliceToCSV(util.Uint16sToInts(c3[:]))
	s.status.Updated = now
	if el := now.Sub(s.first).Seconds(); el > 0 && s.status.Frames > 1 {
		s.status.FPS = mathx.Round(float64(s.status.Frames-1)/el, 0.01)
	}
	s.mu.Unlock()

	if s.opts.Wait <= 0 {
		select {
		case <-s.cancel:
			return true, nil
		default:
			return false, nil
		}
	}
	t := time.NewTimer(s.opts.Wait)
	defer t.Stop()
	select {
	case <-s.cancel:
		return true, nil
	case <-t.C:
		return false, nil
	}
}

// Cancel asks the next, or the waiting, Preview to cancel
func (s *Stream) Cancel() {
	s.mu.Lock()
	s.status.Cancelled = true
	s.mu.Unlock()
	select {
	case s.cancel <- struct{}{}:
	default:
	}
}

func (s *Stream) latest() (camera.Frame, *spectral.Spectrum, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.spec, s.status.Frames > 0
}

// GetFrame returns the latest frame.
//
// the image format may be specified in a query parameter; default to jpg
func (s *Stream) GetFrame(w http.ResponseWriter, r *http.Request) {
	f, sp, ok := s.latest()
	if !ok {
		http.Error(w, "no frame has been acquired", http.StatusNotFound)
		return
	}
	format := r.URL.Query().Get("fmt")
	if format == "" {
		format = "jpg"
	}
	switch format {
	case "jpg", "jpeg", "png":
		s.sendImage(w, format, Gray8(f))
	case "fits":
		buf := &bytes.Buffer{}
		err := imgrec.WriteFits(buf, f, sp, s.opts.RunID)
		if err != nil {
			s.log.Error().Err(err).Msg("encoding fits")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hdr := w.Header()
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", "attachment; filename=image.fits")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	default:
		http.Error(w, "format must be jpg, png, or fits", http.StatusBadRequest)
	}
}

// GetSpectrum returns the log magnitude of the latest spectrum as a png
func (s *Stream) GetSpectrum(w http.ResponseWriter, r *http.Request) {
	_, sp, _ := s.latest()
	if sp == nil {
		http.Error(w, "no spectrum has been computed", http.StatusNotFound)
		return
	}
	s.sendImage(w, "png", GridGray(sp.Magnitude()))
}

func (s *Stream) sendImage(w http.ResponseWriter, format string, img image.Image) {
	img = Fit(Rotate(img, s.opts.Rotate), s.opts.MaxWidth)
	buf := &bytes.Buffer{}
	var (
		err  error
		ctyp string
	)
	if format == "png" {
		ctyp = "image/png"
		err = png.Encode(buf, img)
	} else {
		ctyp = "image/jpeg"
		err = jpeg.Encode(buf, img, nil)
	}
	if err != nil {
		s.log.Error().Err(err).Str("fmt", format).Msg("encoding image")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ctyp)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// GetStatus returns the Status as JSON
func (s *Stream) GetStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(st)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// PostCancel cancels the acquisition
func (s *Stream) PostCancel(w http.ResponseWriter, r *http.Request) {
	s.Cancel()
	s.log.Info().Str("remote", r.RemoteAddr).Msg("cancel requested")
	w.WriteHeader(http.StatusOK)
}
