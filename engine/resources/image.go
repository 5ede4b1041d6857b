package resources

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageOptions control how a decoded image is turned into texture pixels.
type ImageOptions struct {
	// FlipY flips the image vertically, for sources with a bottom-left origin.
	FlipY bool
}

// OpenImage decodes a png, jpeg, bmp, tiff or webp file.
func OpenImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("unable to decode image '%s': %w", path, err)
	}
	return img, nil
}

// ToRGBA converts any image to tightly packed 8-bit RGBA.
func ToRGBA(src image.Image, opts ImageOptions) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	if opts.FlipY {
		stride := dst.Stride
		row := make([]byte, stride)
		for y := 0; y < dst.Rect.Dy()/2; y++ {
			top := dst.Pix[y*stride : (y+1)*stride]
			bottom := dst.Pix[(dst.Rect.Dy()-1-y)*stride : (dst.Rect.Dy()-y)*stride]
			copy(row, top)
			copy(top, bottom)
			copy(bottom, row)
		}
	}
	return dst
}

// solid returns a size x size image of a single colour.
func solid(size int, r, g, b, a uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = r, g, b, a
	}
	return img
}
