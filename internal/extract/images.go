// ABOUTME: Decodes PDF image XObjects into PNG for OCR and storage
// ABOUTME: Supports JPEG streams, 8-bit Gray, RGB and CMYK, indexed palettes and 1-bit masks
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
)

// ErrUnsupportedImage marks an image whose encoding cannot be decoded here
var ErrUnsupportedImage = errors.New("unsupported image encoding")

// Filters the PDF reader can undo before samples reach DecodeImage
var readableFilters = map[string]bool{
	"FlateDecode":   true,
	"ASCII85Decode": true,
}

const jpegFilter = "DCTDecode"

// ImageSpec describes an image XObject's sample layout
type ImageSpec struct {
	Width            int
	Height           int
	BitsPerComponent int
	// Components is the sample count per pixel, alpha excluded; 1 for
	// indexed images
	Components int
	ColorSpace string
	ImageMask  bool
	Filters    []string
	// Palette holds the lookup table of an Indexed colour space, Base
	// components per entry
	Palette []byte
	Base    int
}

// JPEG reports whether the stream ends in a DCT encoded image
func (s ImageSpec) JPEG() bool {
	return len(s.Filters) > 0 && s.Filters[len(s.Filters)-1] == jpegFilter
}

// Indexed reports whether samples are palette indices
func (s ImageSpec) Indexed() bool {
	return s.ColorSpace == "Indexed"
}

// Channels is the colour channel count of the decoded image
func (s ImageSpec) Channels() int {
	if s.Indexed() {
		return s.Base
	}
	return s.Components
}

// Check reports why the image cannot be decoded, or nil
func (s ImageSpec) Check() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrUnsupportedImage, s.Width, s.Height)
	}

	if s.JPEG() {
		// JPEG data is read raw, so only Flate may wrap it
		for _, f := range s.Filters[:len(s.Filters)-1] {
			if f != "FlateDecode" {
				return fmt.Errorf("%w: filter %s before %s", ErrUnsupportedImage, f, jpegFilter)
			}
		}
		return nil
	}
	for _, f := range s.Filters {
		if !readableFilters[f] {
			return fmt.Errorf("%w: filter %s", ErrUnsupportedImage, f)
		}
	}

	switch {
	case s.Indexed():
		switch s.BitsPerComponent {
		case 1, 2, 4, 8:
		default:
			return fmt.Errorf("%w: %d bits per index", ErrUnsupportedImage, s.BitsPerComponent)
		}
		if s.Base != 1 && s.Base != 3 && s.Base != 4 {
			return fmt.Errorf("%w: indexed base with %d components", ErrUnsupportedImage, s.Base)
		}
		if len(s.Palette) < s.Base {
			return fmt.Errorf("%w: empty palette", ErrUnsupportedImage)
		}
		return nil
	case s.ImageMask || (s.Components == 1 && s.BitsPerComponent == 1):
		return nil
	case s.BitsPerComponent != 8:
		return fmt.Errorf("%w: %d bits per component", ErrUnsupportedImage, s.BitsPerComponent)
	case s.Components != 1 && s.Components != 3 && s.Components != 4:
		return fmt.Errorf("%w: colour space %s", ErrUnsupportedImage, s.ColorSpace)
	}
	return nil
}

// NeedsOCR reports whether OCR runs on this image: fewer than four colour
// channels
func (s ImageSpec) NeedsOCR() bool {
	return s.Channels() < 4
}

// DecodeImage converts stream data to PNG bytes. data holds JPEG bytes for
// DCT images and decoded samples otherwise.
func DecodeImage(spec ImageSpec, data []byte) ([]byte, error) {
	if err := spec.Check(); err != nil {
		return nil, err
	}

	var (
		img image.Image
		err error
	)
	switch {
	case spec.JPEG():
		img, err = jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: jpeg: %v", ErrUnsupportedImage, err)
		}
	case spec.Indexed():
		img, err = indexedImage(spec, data)
	default:
		img, err = toImage(spec, data)
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// indexedImage looks every index up in the palette and decodes the result
// as 8-bit samples of the base colour space
func indexedImage(spec ImageSpec, samples []byte) (image.Image, error) {
	w, h, bpc := spec.Width, spec.Height, spec.BitsPerComponent
	stride := (w*bpc + 7) / 8
	if len(samples) < stride*h {
		return nil, shortData(stride*h, len(samples))
	}

	entries := len(spec.Palette) / spec.Base
	out := make([]byte, 0, w*h*spec.Base)
	mask := 1<<uint(bpc) - 1
	for y := 0; y < h; y++ {
		line := samples[y*stride : (y+1)*stride]
		for x := 0; x < w; x++ {
			bit := x * bpc
			idx := int(line[bit/8]>>uint(8-bpc-bit%8)) & mask
			if idx >= entries {
				idx = entries - 1
			}
			out = append(out, spec.Palette[idx*spec.Base:(idx+1)*spec.Base]...)
		}
	}

	base := ImageSpec{Width: w, Height: h, BitsPerComponent: 8, Components: spec.Base}
	return toImage(base, out)
}

func toImage(spec ImageSpec, samples []byte) (image.Image, error) {
	w, h := spec.Width, spec.Height
	rect := image.Rect(0, 0, w, h)

	if spec.ImageMask || spec.BitsPerComponent == 1 {
		stride := (w + 7) / 8
		if len(samples) < stride*h {
			return nil, shortData(stride*h, len(samples))
		}
		img := image.NewGray(rect)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				// a set bit is white for gray images and unpainted for masks
				if samples[y*stride+x/8]>>(7-uint(x%8))&1 == 1 {
					img.SetGray(x, y, color.Gray{Y: 255})
				}
			}
		}
		return img, nil
	}

	need := w * h * spec.Components
	if len(samples) < need {
		return nil, shortData(need, len(samples))
	}

	switch spec.Components {
	case 1:
		img := image.NewGray(rect)
		copy(img.Pix, samples[:need])
		return img, nil
	case 3:
		img := image.NewNRGBA(rect)
		for i, j := 0, 0; i < need; i, j = i+3, j+4 {
			img.Pix[j] = samples[i]
			img.Pix[j+1] = samples[i+1]
			img.Pix[j+2] = samples[i+2]
			img.Pix[j+3] = 0xff
		}
		return img, nil
	default:
		img := image.NewCMYK(rect)
		copy(img.Pix, samples[:need])
		return img, nil
	}
}

func shortData(want, got int) error {
	return fmt.Errorf("%w: expected %d sample bytes, got %d", ErrUnsupportedImage, want, got)
}
