package imgrec

import (
	"io"

	"github.com/astrogo/fitsio"

	"github.jpl.nasa.gov/bdube/picamfft/camera"
	"github.jpl.nasa.gov/bdube/picamfft/spectral"
)

// metadata produces the primary header cards of a record
func (rec record) metadata() []fitsio.Card {
	cards := []fitsio.Card{
		{Name: "FRAMENUM", Value: rec.index, Comment: "index of the frame in its acquisition"},
		{Name: "DATACRC", Value: int64(checksum(rec.image.Bytes())), Comment: "CRC-32 of the little-endian samples"},
	}
	if rec.runID != "" {
		cards = append(cards, fitsio.Card{Name: "RUNID", Value: rec.runID, Comment: "acquisition run"})
	}
	if rec.spectrum != nil {
		cards = append(cards,
			fitsio.Card{Name: "SPECMODE", Value: rec.spectrum.Mode().String(), Comment: "row-wise DFT output"},
			fitsio.Card{Name: "CENTERED", Value: rec.spectrum.Centered(), Comment: "row halves swapped"},
		)
	}
	return cards
}

// WriteFits streams a whole frame, and its spectrum if s is not nil, to w
func WriteFits(w io.Writer, f camera.Frame, s *spectral.Spectrum, runID string) error {
	rec := record{index: f.Index, runID: runID, image: f, spectrum: s}
	if s != nil {
		rec.a, rec.b = s.Planes()
	}
	return writeFits(w, rec)
}

// writeFits streams a record to w.  The frame is the primary HDU, stored as
// int16 with BZERO so that it reads back as uint16.  Spectrum grids follow as
// float32 image extensions.
func writeFits(w io.Writer, rec record) error {
	metadata := append(rec.metadata(), fitsio.Card{Name: "BZERO", Value: 32768}, fitsio.Card{Name: "BSCALE", Value: 1.0})
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()

	img := rec.image
	im := fitsio.NewImage(16, []int{img.Cols, img.Rows})
	defer im.Close()
	err = im.Header().Append(metadata...)
	if err != nil {
		return err
	}
	ints := make([]int16, len(img.Pix))
	for idx, v := range img.Pix {
		ints[idx] = int16(v - 32768)
	}
	err = im.Write(ints)
	if err != nil {
		return err
	}
	err = fits.Write(im)
	if err != nil {
		return err
	}

	if rec.spectrum == nil {
		return nil
	}
	names := [2]string{"FFT_REAL", "FFT_IMAG"}
	if rec.spectrum.Mode() == spectral.Magnitude {
		names = [2]string{"FFT_MAG", "UNUSED"}
	}
	for i, g := range []spectral.Grid{rec.a, rec.b} {
		err = writeGrid(fits, names[i], g)
		if err != nil {
			return err
		}
	}
	return nil
}

func writeGrid(fits *fitsio.File, name string, g spectral.Grid) error {
	im := fitsio.NewImage(-32, []int{g.Cols, g.Rows})
	defer im.Close()
	err := im.Header().Append(fitsio.Card{Name: "EXTNAME", Value: name})
	if err != nil {
		return err
	}
	err = im.Write(g.Data)
	if err != nil {
		return err
	}
	return fits.Write(im)
}
