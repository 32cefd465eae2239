// this file contains a few small image processing utilities
package preview

import (
	"image"
	"math"

	"github.com/disintegration/gift"

	"github.jpl.nasa.gov/bdube/picamfft/camera"
	"github.jpl.nasa.gov/bdube/picamfft/mathx"
	"github.jpl.nasa.gov/bdube/picamfft/spectral"
	"github.jpl.nasa.gov/bdube/picamfft/util"
)

// Gray8 scales a frame to 8 bits, stretching its min..max to 0..255
func Gray8(f camera.Frame) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.Cols, f.Rows))
	if len(f.Pix) == 0 {
		return img
	}
	lo, hi := f.Pix[0], f.Pix[0]
	for _, v := range f.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := float64(hi) - float64(lo)
	for i, v := range f.Pix {
		if span == 0 {
			img.Pix[i] = 0
			continue
		}
		img.Pix[i] = uint8(util.Clamp(math.Round(255*(float64(v)-float64(lo))/span), 0, 255))
	}
	return img
}

// GridGray scales a float grid to 8 bits, stretching its min..max to 0..255
func GridGray(g spectral.Grid) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.Cols, g.Rows))
	lo, hi := mathx.MinMax(g.Data)
	span := float64(hi) - float64(lo)
	for i, v := range g.Data {
		if span == 0 {
			continue
		}
		img.Pix[i] = uint8(util.Clamp(math.Round(255*(float64(v)-float64(lo))/span), 0, 255))
	}
	return img
}

// Fit shrinks img to at most maxWidth pixels wide, keeping the aspect ratio.
// Images already narrow enough, or maxWidth <= 0, are returned as-is.
func Fit(img image.Image, maxWidth int) image.Image {
	if maxWidth <= 0 || img.Bounds().Dx() <= maxWidth {
		return img
	}
	return apply(img, gift.Resize(maxWidth, 0, gift.LinearResampling))
}

// Rotate turns img clockwise by quarter turns
func Rotate(img image.Image, quarters int) image.Image {
	switch ((quarters % 4) + 4) % 4 {
	case 1:
		// gift rotates counter-clockwise
		return apply(img, gift.Rotate270())
	case 2:
		return apply(img, gift.Rotate180())
	case 3:
		return apply(img, gift.Rotate90())
	}
	return img
}

func apply(img image.Image, filters ...gift.Filter) image.Image {
	g := gift.New(filters...)
	dst := image.NewGray(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return dst
}
