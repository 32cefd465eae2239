package imgrec

import (
	"io"

	"gopkg.in/yaml.v2"

	"github.jpl.nasa.gov/bdube/picamfft/spectral"
)

// intGrid is the YAML form of a frame region
type intGrid struct {
	Rows int      `yaml:"rows"`
	Cols int      `yaml:"cols"`
	Data []uint16 `yaml:"data,flow"`
}

// writeYAML writes a record as one YAML document.  Keys keep a fixed order.
func writeYAML(w io.Writer, rec record) error {
	doc := yaml.MapSlice{
		{Key: "frame number", Value: rec.index},
	}
	if rec.runID != "" {
		doc = append(doc, yaml.MapItem{Key: "run id", Value: rec.runID})
	}
	img := rec.image
	doc = append(doc, yaml.MapItem{Key: "image", Value: intGrid{Rows: img.Rows, Cols: img.Cols, Data: img.Pix}})
	if rec.spectrum != nil {
		doc = append(doc, yaml.MapItem{Key: "centered", Value: rec.spectrum.Centered()})
		if rec.spectrum.Mode() == spectral.Magnitude {
			doc = append(doc, yaml.MapItem{Key: "fft-mag", Value: rec.a})
		} else {
			doc = append(doc,
				yaml.MapItem{Key: "fft-real", Value: rec.a},
				yaml.MapItem{Key: "fft-imag", Value: rec.b},
			)
		}
	}
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
