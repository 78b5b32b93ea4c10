package nclr

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	_ "image/jpeg" // Register JPEG decoder.
	_ "image/png"  // Register PNG decoder.

	_ "golang.org/x/image/tiff" // Register TIFF decoder.
)

// Format identifies the container format of a source file.
type Format int

const (
	FormatUnknown Format = iota
	FormatTIFF
	FormatPNG
	FormatJPEG
)

func (f Format) String() string {
	switch f {
	case FormatTIFF:
		return "tiff"
	case FormatPNG:
		return "png"
	case FormatJPEG:
		return "jpeg"
	default:
		return "unknown"
	}
}

var pngSig = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// DetectFormat sniffs the container format from the file magic.
func DetectFormat(data []byte) Format {
	switch {
	case len(data) >= 4 && (data[0] == 'I' && data[1] == 'I' || data[0] == 'M' && data[1] == 'M'):
		if data[0] == 'I' && data[2] == 42 && data[3] == 0 ||
			data[0] == 'M' && data[2] == 0 && data[3] == 42 ||
			data[0] == 'I' && data[2] == 43 && data[3] == 0 ||
			data[0] == 'M' && data[2] == 0 && data[3] == 43 {
			return FormatTIFF
		}
		return FormatUnknown
	case len(data) >= 8 && bytes.Equal(data[:8], pngSig):
		return FormatPNG
	case len(data) >= 3 && data[0] == markerStart && data[1] == markerSOI && data[2] == markerStart:
		return FormatJPEG
	default:
		return FormatUnknown
	}
}

// DecodedImage bundles the pixel raster with the raw container bytes so the
// ICC extractor can re-scan the container without redecoding pixels.
type DecodedImage struct {
	Raster    *Raster
	Format    Format
	Container []byte
}

// DecodeImage decodes a TIFF, PNG or JPEG payload into a canonical raster.
// TIFF and PNG keep their native 8- or 16-bit depth; JPEG is always 8-bit.
// Grayscale is promoted to RGB by channel replication, palettes are expanded.
func DecodeImage(data []byte) (*DecodedImage, error) {
	format := DetectFormat(data)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%w: not a TIFF, PNG or JPEG file", ErrUnsupportedFormat)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	r, err := rasterize(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &DecodedImage{Raster: r, Format: format, Container: data}, nil
}

func rasterize(img image.Image) (*Raster, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", w, h)
	}

	switch src := img.(type) {
	case *image.RGBA64:
		return copyRows(src.Pix, src.Stride, w, h, 4, 16), nil
	case *image.NRGBA64:
		return copyRows(src.Pix, src.Stride, w, h, 4, 16), nil
	case *image.RGBA:
		return copyRows(src.Pix, src.Stride, w, h, 4, 8), nil
	case *image.NRGBA:
		return copyRows(src.Pix, src.Stride, w, h, 4, 8), nil
	case *image.Gray:
		out := &Raster{Width: w, Height: h, Channels: 3, Depth: 8, Pix: make([]byte, w*h*3)}
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+w]
			for x, v := range row {
				d := (y*w + x) * 3
				out.Pix[d], out.Pix[d+1], out.Pix[d+2] = v, v, v
			}
		}
		return out, nil
	case *image.Gray16:
		out := &Raster{Width: w, Height: h, Channels: 3, Depth: 16, Pix: make([]byte, w*h*6)}
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+w*2]
			for x := 0; x < w; x++ {
				hi, lo := row[2*x], row[2*x+1]
				d := (y*w + x) * 6
				out.Pix[d], out.Pix[d+1] = hi, lo
				out.Pix[d+2], out.Pix[d+3] = hi, lo
				out.Pix[d+4], out.Pix[d+5] = hi, lo
			}
		}
		return out, nil
	case *image.Paletted:
		out := &Raster{Width: w, Height: h, Channels: 4, Depth: 8, Pix: make([]byte, w*h*4)}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				d := (y*w + x) * 4
				out.Pix[d], out.Pix[d+1], out.Pix[d+2], out.Pix[d+3] = c.R, c.G, c.B, c.A
			}
		}
		return out, nil
	case *image.YCbCr:
		out := &Raster{Width: w, Height: h, Channels: 3, Depth: 8, Pix: make([]byte, w*h*3)}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := src.YCbCrAt(b.Min.X+x, b.Min.Y+y)
				r8, g8, b8 := color.YCbCrToRGB(c.Y, c.Cb, c.Cr)
				d := (y*w + x) * 3
				out.Pix[d], out.Pix[d+1], out.Pix[d+2] = r8, g8, b8
			}
		}
		return out, nil
	case *image.CMYK:
		out := &Raster{Width: w, Height: h, Channels: 3, Depth: 8, Pix: make([]byte, w*h*3)}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := src.CMYKAt(b.Min.X+x, b.Min.Y+y)
				r8, g8, b8 := color.CMYKToRGB(c.C, c.M, c.Y, c.K)
				d := (y*w + x) * 3
				out.Pix[d], out.Pix[d+1], out.Pix[d+2] = r8, g8, b8
			}
		}
		return out, nil
	default:
		// Generic path: sample through the 16-bit color interface.
		out := &Raster{Width: w, Height: h, Channels: 3, Depth: 16, Pix: make([]byte, w*h*6)}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r16, g16, b16, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				d := (y*w + x) * 6
				out.Pix[d], out.Pix[d+1] = byte(r16>>8), byte(r16)
				out.Pix[d+2], out.Pix[d+3] = byte(g16>>8), byte(g16)
				out.Pix[d+4], out.Pix[d+5] = byte(b16>>8), byte(b16)
			}
		}
		return out, nil
	}
}

func copyRows(pix []byte, stride, w, h, channels, depth int) *Raster {
	rowBytes := w * channels * depth / 8
	out := &Raster{Width: w, Height: h, Channels: channels, Depth: depth, Pix: make([]byte, h*rowBytes)}
	for y := 0; y < h; y++ {
		copy(out.Pix[y*rowBytes:(y+1)*rowBytes], pix[y*stride:y*stride+rowBytes])
	}
	return out
}
