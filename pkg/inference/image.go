package inference

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/nfnt/resize"
)

// CropSquare returns the centered square region of img.
func CropSquare(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() == b.Dy() {
		return img
	}
	size := min(b.Dx(), b.Dy())
	x0 := b.Min.X + (b.Dx()-size)/2
	y0 := b.Min.Y + (b.Dy()-size)/2
	rect := image.Rect(x0, y0, x0+size, y0+size)

	if sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(rect)
	}
	out := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			out.Set(x, y, img.At(x0+x, y0+y))
		}
	}
	return out
}

// Preprocess crops img to a square, resizes it to the model input size,
// normalizes pixels and writes them in the metadata's tensor layout.
// dst is reused when large enough.
func Preprocess(img image.Image, md *Metadata, dst []float32) []float32 {
	size := md.ImageSize
	resized := resize.Resize(uint(size), uint(size), CropSquare(img), resize.Bilinear)

	n := 3 * size * size
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]

	scale, offset := float32(1.0/127.5), float32(-1)
	if md.Normalization == NormalizeUnit {
		scale, offset = 1.0/255.0, 0
	}

	b := resized.Bounds()
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, bl, _ := resized.At(b.Min.X+x, b.Min.Y+y).RGBA()
			rv := float32(r>>8)*scale + offset
			gv := float32(g>>8)*scale + offset
			bv := float32(bl>>8)*scale + offset

			idx := y*size + x
			if md.Layout == LayoutNCHW {
				dst[idx] = rv
				dst[plane+idx] = gv
				dst[2*plane+idx] = bv
			} else {
				dst[idx*3] = rv
				dst[idx*3+1] = gv
				dst[idx*3+2] = bv
			}
		}
	}
	return dst
}

// EncodeJPEG encodes an image to JPEG bytes.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
