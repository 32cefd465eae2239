package imgrec

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"github.jpl.nasa.gov/bdube/picamfft/camera"
	"github.jpl.nasa.gov/bdube/picamfft/spectral"
)

func ramp(t *testing.T, index, rows, cols int) camera.Frame {
	t.Helper()
	pix := make([]uint16, rows*cols)
	for i := range pix {
		pix[i] = uint16(i)
	}
	f, err := camera.NewFrame(index, rows, cols, pix)
	require.NoError(t, err)
	return f
}

func TestRawRecorderScenario(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "raw.bin")
	rr := NewRawRecorder(fn)
	frames := make([]camera.Frame, 5)
	for i := range frames {
		frames[i] = ramp(t, i, 400, 1340)
	}
	batch, err := rr.Append(frames...)
	require.NoError(t, err)
	assert.Equal(t, 5, batch.Frames)
	assert.Equal(t, 5*400*1340*2, batch.Bytes)

	st, err := os.Stat(fn)
	require.NoError(t, err)
	assert.EqualValues(t, 5*400*1340*2, st.Size())

	data, err := ioutil.ReadFile(fn)
	require.NoError(t, err)
	assert.Equal(t, crc32.ChecksumIEEE(data), batch.CRC)
}

func TestRawRecorderAppends(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "raw.bin")
	rr := NewRawRecorder(fn)
	a := ramp(t, 0, 2, 3)
	_, err := rr.Append(a)
	require.NoError(t, err)
	b, err := rr.Append(a, a)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Frames)
	assert.EqualValues(t, 3*12, rr.Total())

	data, err := ioutil.ReadFile(fn)
	require.NoError(t, err)
	require.Len(t, data, 36)
	assert.Equal(t, uint16(5), binary.LittleEndian.Uint16(data[10:]))
}

func TestPersistYAML(t *testing.T) {
	rec := &Recorder{Root: t.TempDir(), Prefix: "fft", Format: YAML, RunID: "run-1"}
	f := ramp(t, 4, 6, 8)
	s, err := spectral.Transform(f, spectral.Options{Mode: spectral.RealImaginary})
	require.NoError(t, err)

	fn, err := rec.Persist(f, s, camera.RowBand(2, 2))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(fn, "fft000001.yml"))
	assert.Equal(t, fn, rec.Last())

	raw, err := ioutil.ReadFile(fn)
	require.NoError(t, err)
	var doc struct {
		Frame int    `yaml:"frame number"`
		RunID string `yaml:"run id"`
		Image struct {
			Rows int      `yaml:"rows"`
			Cols int      `yaml:"cols"`
			Data []uint16 `yaml:"data"`
		} `yaml:"image"`
		Real spectral.Grid `yaml:"fft-real"`
		Imag spectral.Grid `yaml:"fft-imag"`
	}
	require.NoError(t, yaml.Unmarshal(raw, &doc))
	assert.Equal(t, 4, doc.Frame)
	assert.Equal(t, "run-1", doc.RunID)
	assert.Equal(t, 2, doc.Image.Rows)
	assert.Equal(t, 8, doc.Image.Cols)
	assert.Equal(t, uint16(16), doc.Image.Data[0])
	assert.Equal(t, 2, doc.Real.Rows)
	assert.Len(t, doc.Imag.Data, 16)

	fn2, err := rec.Persist(f, nil, camera.AOI{})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(fn2, "fft000002.yml"))
}

func TestCounterResumesFromFolder(t *testing.T) {
	root := t.TempDir()
	rec := &Recorder{Root: root, Prefix: "img", Format: YAML}
	f := ramp(t, 0, 2, 2)
	_, err := rec.Persist(f, nil, camera.AOI{})
	require.NoError(t, err)
	_, err = rec.Persist(f, nil, camera.AOI{})
	require.NoError(t, err)

	again := &Recorder{Root: root, Prefix: "img", Format: YAML}
	fn, err := again.Persist(f, nil, camera.AOI{})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(fn, "img000003.yml"))
}

func TestPersistFITS(t *testing.T) {
	rec := &Recorder{Root: t.TempDir(), Prefix: "fft", RunID: "abc"}
	f := ramp(t, 7, 6, 8)
	s, err := spectral.Transform(f, spectral.Options{Mode: spectral.Magnitude, Center: true})
	require.NoError(t, err)
	fn, err := rec.Persist(f, s, camera.RowBand(1, 3))
	require.NoError(t, err)
	assert.Equal(t, ".fits", filepath.Ext(fn))

	fid, err := os.Open(fn)
	require.NoError(t, err)
	defer fid.Close()
	fits, err := fitsio.Open(fid)
	require.NoError(t, err)
	defer fits.Close()
	hdus := fits.HDUs()
	require.Len(t, hdus, 3)

	hdr := hdus[0].Header()
	assert.EqualValues(t, 7, hdr.Get("FRAMENUM").Value)
	assert.Equal(t, "abc", hdr.Get("RUNID").Value)
	assert.Equal(t, "magnitude", hdr.Get("SPECMODE").Value)
	assert.Equal(t, []int{8, 3}, hdr.Axes())

	var ints []int16
	require.NoError(t, hdus[0].(fitsio.Image).Read(&ints))
	require.Len(t, ints, 24)

	var mag []float32
	require.NoError(t, hdus[1].(fitsio.Image).Read(&mag))
	want, _ := s.Region(camera.RowBand(1, 3))
	assert.Equal(t, want.Data, mag)
}

func TestPersistEmptyRegion(t *testing.T) {
	rec := &Recorder{Root: t.TempDir(), Format: YAML}
	f := ramp(t, 0, 5, 5)
	_, err := rec.Persist(f, nil, camera.RowBand(10, 2))
	assert.True(t, errors.Is(err, ErrEmptyRegion))

	// row 4 exists on the frame but not on the 4x4 spectrum
	s, err := spectral.Transform(f, spectral.Options{})
	require.NoError(t, err)
	_, err = rec.Persist(f, s, camera.RowBand(4, 1))
	assert.True(t, errors.Is(err, ErrEmptyRegion))
	assert.Equal(t, "", rec.Last())
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("YML")
	require.NoError(t, err)
	assert.Equal(t, YAML, f)
	assert.Equal(t, "fits", FITS.Ext())
	_, err = ParseFormat("hdf5")
	assert.Error(t, err)
}

func TestHTTPWrapper(t *testing.T) {
	rec := &Recorder{Root: t.TempDir(), Prefix: "a", Format: YAML}
	rt := chi.NewRouter()
	NewHTTPWrapper(rec).Inject(rt)
	srv := httptest.NewServer(rt)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/autowrite/latest")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/autowrite/prefix", "application/json", strings.NewReader(`{"str": "b"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/autowrite/prefix")
	require.NoError(t, err)
	var s struct {
		Str string `json:"str"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	resp.Body.Close()
	assert.Equal(t, "b", s.Str)

	fn, err := rec.Persist(ramp(t, 0, 2, 2), nil, camera.AOI{})
	require.NoError(t, err)
	assert.Equal(t, "b000001.yml", filepath.Base(fn))

	resp, err = http.Get(srv.URL + "/autowrite/latest")
	require.NoError(t, err)
	body, _ := ioutil.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "frame number: 0")
}
