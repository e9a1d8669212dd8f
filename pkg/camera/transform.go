package camera

import (
	"image"
	"image/draw"

	"github.com/nfnt/resize"
)

// Fit scales img to exactly width x height. Images already at that size are returned as is.
func Fit(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	return resize.Resize(uint(width), uint(height), img, resize.Bilinear)
}

// Mirror returns a horizontally flipped copy of img.
func Mirror(img image.Image) *image.RGBA {
	b := img.Bounds()
	src := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(src, src.Bounds(), img, b.Min, draw.Src)

	out := image.NewRGBA(src.Bounds())
	w := b.Dx()
	for y := 0; y < b.Dy(); y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+w*4]
		for x := 0; x < w; x++ {
			copy(dst[(w-1-x)*4:(w-x)*4], row[x*4:x*4+4])
		}
	}
	return out
}

// prepare applies the configured size and mirroring to a decoded image.
func prepare(img image.Image, cfg Config) image.Image {
	img = Fit(img, cfg.Width, cfg.Height)
	if cfg.Mirror {
		return Mirror(img)
	}
	return img
}
