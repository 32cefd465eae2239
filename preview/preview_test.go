package preview

import (
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.jpl.nasa.gov/bdube/picamfft/camera"
	"github.jpl.nasa.gov/bdube/picamfft/imgrec"
	"github.jpl.nasa.gov/bdube/picamfft/spectral"
)

func frame(t *testing.T, index, rows, cols int) camera.Frame {
	t.Helper()
	pix := make([]uint16, rows*cols)
	for i := range pix {
		pix[i] = uint16(1000 + i)
	}
	f, err := camera.NewFrame(index, rows, cols, pix)
	require.NoError(t, err)
	return f
}

type fake struct {
	cancel bool
	err    error
	seen   []int
}

func (f *fake) Preview(fr camera.Frame, s *spectral.Spectrum) (bool, error) {
	f.seen = append(f.seen, fr.Index)
	return f.cancel, f.err
}

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	a, b, c := &fake{}, &fake{cancel: true}, &fake{err: boom}
	m := Multi{a, b, c, Nop{}}
	cancel, err := m.Preview(frame(t, 3, 2, 2), nil)
	assert.True(t, cancel)
	assert.Equal(t, boom, err)
	for _, p := range []*fake{a, b, c} {
		assert.Equal(t, []int{3}, p.seen)
	}
	assert.NoError(t, m.Close())
}

func TestGray8Stretches(t *testing.T) {
	f, err := camera.NewFrame(0, 1, 3, []uint16{600, 700, 800})
	require.NoError(t, err)
	img := Gray8(f)
	assert.Equal(t, []uint8{0, 128, 255}, img.Pix)

	flat, err := camera.NewFrame(0, 1, 2, []uint16{5, 5})
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 0}, Gray8(flat).Pix)

	g := GridGray(spectral.Grid{Rows: 1, Cols: 2, Data: []float32{-1, 1}})
	assert.Equal(t, []uint8{0, 255}, g.Pix)
}

func TestFitAndRotate(t *testing.T) {
	img := Gray8(frame(t, 0, 100, 400))
	small := Fit(img, 100)
	assert.Equal(t, 100, small.Bounds().Dx())
	assert.Equal(t, 25, small.Bounds().Dy())
	assert.Equal(t, img, Fit(img, 0))

	turned := Rotate(img, 1)
	assert.Equal(t, 100, turned.Bounds().Dx())
	assert.Equal(t, 400, turned.Bounds().Dy())
	assert.Equal(t, img, Rotate(img, 4))
}

func TestStreamServesLatest(t *testing.T) {
	rec := &imgrec.Recorder{Root: t.TempDir(), Format: imgrec.YAML}
	s := NewStream(StreamOptions{RunID: "r1", Recorder: rec})
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/frame")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	f := frame(t, 2, 4, 6)
	sp, err := spectral.Transform(f, spectral.Options{})
	require.NoError(t, err)
	cancel, err := s.Preview(f, sp)
	require.NoError(t, err)
	assert.False(t, cancel)

	resp, err = http.Get(srv.URL + "/frame?fmt=png")
	require.NoError(t, err)
	img, err := png.Decode(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, 6, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())

	resp, err = http.Get(srv.URL + "/frame?fmt=fits")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "image/fits", resp.Header.Get("Content-Type"))

	resp, err = http.Get(srv.URL + "/frame?fmt=bmp")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/spectrum")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	assert.Equal(t, 1, st.Frames)
	assert.Equal(t, 2, st.LastIndex)
	assert.Equal(t, "r1", st.RunID)
	assert.Equal(t, "1011,1012,1013", st.Center)

	resp, err = http.Get(srv.URL + "/list-of-routes")
	require.NoError(t, err)
	var routes []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&routes))
	resp.Body.Close()
	assert.Contains(t, routes, "POST /cancel")
	assert.Contains(t, routes, "GET /autowrite/latest")
}

func TestStreamCancel(t *testing.T) {
	s := NewStream(StreamOptions{Wait: 5 * time.Second})
	srv := httptest.NewServer(s)
	defer srv.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		resp, err := http.Post(srv.URL+"/cancel", "application/json", nil)
		if err == nil {
			resp.Body.Close()
		}
	}()
	start := time.Now()
	cancel, err := s.Preview(frame(t, 0, 2, 2), nil)
	require.NoError(t, err)
	assert.True(t, cancel)
	assert.True(t, time.Since(start) < 5*time.Second)
}

func TestStreamBoundedWait(t *testing.T) {
	s := NewStream(StreamOptions{Wait: 10 * time.Millisecond})
	cancel, err := s.Preview(frame(t, 0, 2, 2), nil)
	require.NoError(t, err)
	assert.False(t, cancel)

	s.Cancel()
	cancel, err = s.Preview(frame(t, 1, 2, 2), nil)
	require.NoError(t, err)
	assert.True(t, cancel)
}
