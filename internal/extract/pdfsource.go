// ABOUTME: Adapts github.com/ledongthuc/pdf to the extractor's document model
// ABOUTME: Rebuilds text rows from positioned glyphs and describes image XObjects lazily
package extract

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

type pdfDocument struct {
	file      *os.File
	reader    *pdf.Reader
	encrypted bool
}

func openPDF(path string) (doc document, err error) {
	// the reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("parse panic: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	return &pdfDocument{file: f, reader: r, encrypted: !r.Trailer().Key("Encrypt").IsNull()}, nil
}

func (d *pdfDocument) NumPages() int {
	return d.reader.NumPage()
}

func (d *pdfDocument) Close() error {
	return d.file.Close()
}

func (d *pdfDocument) Page(n int) (pg *page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pg, err = nil, fmt.Errorf("page panic: %v", r)
		}
	}()

	p := d.reader.Page(n)
	if p.V.IsNull() {
		return &page{}, nil
	}

	pg = &page{}
	rows, err := pageRows(p)
	if err != nil {
		pg.TextErr = err
	} else {
		pg.Rows = rows
	}
	pg.Images = d.pageImages(p)
	return pg, nil
}

// pageRows interprets the content stream so every text positioning
// operator is honoured, then regroups the glyphs into rows
func pageRows(p pdf.Page) (rows []Row, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("content stream: %v", r)
		}
	}()

	content := p.Content()
	glyphs := make([]Glyph, len(content.Text))
	for i, t := range content.Text {
		glyphs[i] = Glyph{S: t.S, X: t.X, Y: t.Y, W: t.W, Size: t.FontSize}
	}
	return GroupRows(glyphs), nil
}

func (d *pdfDocument) pageImages(p pdf.Page) []pageImage {
	xobjects := p.Resources().Key("XObject")
	if xobjects.IsNull() {
		return nil
	}

	names := xobjects.Keys()
	sort.Strings(names)

	var images []pageImage
	for _, name := range names {
		obj := xobjects.Key(name)
		if obj.Key("Subtype").Name() != "Image" {
			continue
		}
		spec, specErr := imageSpec(obj)
		read := streamReader(obj)
		if spec.JPEG() {
			read = d.jpegReader(obj, spec.Filters)
		}
		images = append(images, pageImage{
			Name:    name,
			Spec:    spec,
			SpecErr: specErr,
			Read:    read,
		})
	}
	return images
}

func imageSpec(obj pdf.Value) (ImageSpec, error) {
	spec := ImageSpec{
		Width:            int(obj.Key("Width").Int64()),
		Height:           int(obj.Key("Height").Int64()),
		BitsPerComponent: int(obj.Key("BitsPerComponent").Int64()),
		ImageMask:        obj.Key("ImageMask").Bool(),
	}
	if spec.ImageMask {
		spec.BitsPerComponent = 1
		spec.Components = 1
		spec.ColorSpace = "ImageMask"
	}

	filter := obj.Key("Filter")
	switch filter.Kind() {
	case pdf.Name:
		spec.Filters = []string{filter.Name()}
	case pdf.Array:
		for i := 0; i < filter.Len(); i++ {
			spec.Filters = append(spec.Filters, filter.Index(i).Name())
		}
	}

	if spec.ImageMask {
		return spec, nil
	}

	cs := obj.Key("ColorSpace")
	switch cs.Kind() {
	case pdf.Name:
		spec.ColorSpace = cs.Name()
	case pdf.Array:
		spec.ColorSpace = cs.Index(0).Name()
		if spec.ColorSpace == "Indexed" {
			return indexedSpec(spec, cs)
		}
	}

	n, err := components(cs)
	if err != nil {
		return spec, err
	}
	spec.Components = n
	return spec, nil
}

// components counts the channels of a colour space given by name or array
func components(cs pdf.Value) (int, error) {
	name := cs.Name()
	if cs.Kind() == pdf.Array {
		name = cs.Index(0).Name()
		if name == "ICCBased" {
			return int(cs.Index(1).Key("N").Int64()), nil
		}
	}

	switch name {
	case "DeviceGray", "CalGray", "G":
		return 1, nil
	case "DeviceRGB", "CalRGB", "RGB":
		return 3, nil
	case "DeviceCMYK", "CMYK":
		return 4, nil
	}
	return 0, fmt.Errorf("%w: colour space %q", ErrUnsupportedImage, name)
}

// indexedSpec reads [/Indexed base hival lookup]
func indexedSpec(spec ImageSpec, cs pdf.Value) (ImageSpec, error) {
	spec.Components = 1
	if cs.Len() < 4 {
		return spec, fmt.Errorf("%w: malformed Indexed colour space", ErrUnsupportedImage)
	}

	base, err := components(cs.Index(1))
	if err != nil {
		return spec, err
	}
	spec.Base = base

	lookup := cs.Index(3)
	switch lookup.Kind() {
	case pdf.String:
		spec.Palette = []byte(lookup.RawString())
	case pdf.Stream:
		data, err := streamReader(lookup)()
		if err != nil {
			return spec, fmt.Errorf("palette: %w", err)
		}
		spec.Palette = data
	default:
		return spec, fmt.Errorf("%w: missing palette", ErrUnsupportedImage)
	}

	if entries := int(cs.Index(2).Int64()) + 1; entries*base < len(spec.Palette) {
		spec.Palette = spec.Palette[:entries*base]
	}
	return spec, nil
}

func streamReader(obj pdf.Value) func() ([]byte, error) {
	return func() ([]byte, error) {
		rc := obj.Reader()
		defer func() { _ = rc.Close() }()
		return io.ReadAll(rc)
	}
}

// jpegReader returns the stream's DCT data with any Flate layers removed.
// The reader cannot decode DCTDecode, so the bytes come straight from the
// file; encrypted files are refused since their streams are ciphertext.
func (d *pdfDocument) jpegReader(obj pdf.Value, filters []string) func() ([]byte, error) {
	return func() ([]byte, error) {
		if d.encrypted {
			return nil, fmt.Errorf("%w: JPEG in encrypted file", ErrUnsupportedImage)
		}
		data, err := rawStream(d.file, obj)
		if err != nil {
			return nil, err
		}
		for range filters[:len(filters)-1] {
			zr, err := zlib.NewReader(bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("flate: %w", err)
			}
			data, err = io.ReadAll(zr)
			if err != nil {
				return nil, fmt.Errorf("flate: %w", err)
			}
		}
		return data, nil
	}
}

// rawStream reads a stream's undecoded bytes. The reader only exposes the
// data offset through the value's printed form, "<<dict>>@offset".
func rawStream(f io.ReaderAt, obj pdf.Value) ([]byte, error) {
	if obj.Kind() != pdf.Stream {
		return nil, errors.New("not a stream")
	}
	printed := obj.String()
	at := strings.LastIndexByte(printed, '@')
	if at < 0 {
		return nil, errors.New("stream offset unavailable")
	}
	off, err := strconv.ParseInt(printed[at+1:], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("stream offset %q: %w", printed[at+1:], err)
	}

	length := obj.Key("Length").Int64()
	if length <= 0 {
		return nil, fmt.Errorf("stream length %d", length)
	}
	return io.ReadAll(io.NewSectionReader(f, off, length))
}
