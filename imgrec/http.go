package imgrec

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi"

	"github.jpl.nasa.gov/bdube/picamfft/server"
)

// HTTPWrapper is an HTTP wrapper around a recorder that allows the folder,
// prefix and enabled flag to be changed on the fly, and serves the most
// recent record
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

func (h HTTPWrapper) root() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Root, nil
}

func (h HTTPWrapper) prefix() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Prefix, nil
}

func (h HTTPWrapper) enabled() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Enabled, nil
}

func (h HTTPWrapper) setPrefix(s string) error {
	h.SetPrefix(s)
	return nil
}

func (h HTTPWrapper) setEnabled(b bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Enabled = b
	return nil
}

// Latest serves the most recently written record
func (h HTTPWrapper) Latest(w http.ResponseWriter, r *http.Request) {
	fn := h.Last()
	if fn == "" {
		http.Error(w, "no record has been written", http.StatusNotFound)
		return
	}
	server.ReplyWithFile(w, r, filepath.Base(fn), filepath.Dir(fn))
}

// Inject adds GET and POST routes for /autowrite/root, /autowrite/prefix and
// /autowrite/enabled, and GET /autowrite/latest to a router
func (h HTTPWrapper) Inject(rt chi.Router) {
	rt.Post("/autowrite/root", server.SetString(h.SetRoot))
	rt.Get("/autowrite/root", server.GetString(h.root))
	rt.Post("/autowrite/prefix", server.SetString(h.setPrefix))
	rt.Get("/autowrite/prefix", server.GetString(h.prefix))
	rt.Post("/autowrite/enabled", server.SetBool(h.setEnabled))
	rt.Get("/autowrite/enabled", server.GetBool(h.enabled))
	rt.Get("/autowrite/latest", h.Latest)
}
