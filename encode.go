package nclr

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/jpeg"
	"image/png"
)

// EncodePNG serializes the raster as a PNG, embedding the profile as an
// iCCP chunk when one is given. 16-bit rasters keep their depth; the stdlib
// encoder emits an RGB (no alpha) PNG for fully opaque images.
func EncodePNG(pix []byte, width, height, depth int, iccProfile []byte) ([]byte, error) {
	var img image.Image
	switch depth {
	case 8:
		m := image.NewNRGBA(image.Rect(0, 0, width, height))
		for i := 0; i < width*height; i++ {
			s := i * 3
			d := i * 4
			m.Pix[d], m.Pix[d+1], m.Pix[d+2], m.Pix[d+3] = pix[s], pix[s+1], pix[s+2], 0xFF
		}
		img = m
	case 16:
		m := image.NewNRGBA64(image.Rect(0, 0, width, height))
		for i := 0; i < width*height; i++ {
			s := i * 6
			d := i * 8
			copy(m.Pix[d:d+6], pix[s:s+6])
			m.Pix[d+6], m.Pix[d+7] = 0xFF, 0xFF
		}
		img = m
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", depth)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	if iccProfile == nil {
		return buf.Bytes(), nil
	}
	return insertICCPChunk(buf.Bytes(), iccProfile)
}

// insertICCPChunk places an iCCP chunk directly after IHDR, ahead of any
// PLTE/IDAT as the format requires.
func insertICCPChunk(pngData, profile []byte) ([]byte, error) {
	// signature(8) + IHDR length(4) type(4) data(13) crc(4)
	const ihdrEnd = 8 + 4 + 4 + 13 + 4
	if len(pngData) < ihdrEnd {
		return nil, fmt.Errorf("short PNG stream")
	}

	var body bytes.Buffer
	body.WriteString("ICC profile")
	body.WriteByte(0) // name terminator
	body.WriteByte(0) // compression method: zlib
	zw := zlib.NewWriter(&body)
	if _, err := zw.Write(profile); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	var chunk bytes.Buffer
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(body.Len()))
	chunk.Write(n[:])
	chunk.WriteString("iCCP")
	chunk.Write(body.Bytes())
	crc := crc32.NewIEEE()
	crc.Write([]byte("iCCP"))
	crc.Write(body.Bytes())
	binary.BigEndian.PutUint32(n[:], crc.Sum32())
	chunk.Write(n[:])

	out := make([]byte, 0, len(pngData)+chunk.Len())
	out = append(out, pngData[:ihdrEnd]...)
	out = append(out, chunk.Bytes()...)
	out = append(out, pngData[ihdrEnd:]...)
	return out, nil
}

// EncodeJPEG serializes an 8-bit raster as a baseline JPEG and inserts the
// profile as APP2 ICC_PROFILE segments after SOI.
func EncodeJPEG(pix []byte, width, height int, iccProfile []byte, quality int) ([]byte, error) {
	m := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		s := i * 3
		d := i * 4
		m.Pix[d], m.Pix[d+1], m.Pix[d+2], m.Pix[d+3] = pix[s], pix[s+1], pix[s+2], 0xFF
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, m, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	if iccProfile == nil {
		return buf.Bytes(), nil
	}
	return insertAPP2ICC(buf.Bytes(), iccProfile)
}

// insertAPP2ICC splits the profile across APP2 segments at the 64 KiB
// segment limit and splices them in after SOI.
func insertAPP2ICC(jpegData, profile []byte) ([]byte, error) {
	if len(jpegData) < 2 || jpegData[0] != markerStart || jpegData[1] != markerSOI {
		return nil, fmt.Errorf("invalid JPEG stream")
	}
	total := (len(profile) + maxICCSegmentData - 1) / maxICCSegmentData
	if total > 255 {
		return nil, fmt.Errorf("ICC profile too large for JPEG: %d bytes", len(profile))
	}

	var out bytes.Buffer
	out.WriteByte(markerStart)
	out.WriteByte(markerSOI)
	for seq := 1; seq <= total; seq++ {
		start := (seq - 1) * maxICCSegmentData
		end := start + maxICCSegmentData
		if end > len(profile) {
			end = len(profile)
		}
		payloadLen := len(iccSig) + 2 + (end - start)
		out.WriteByte(markerStart)
		out.WriteByte(markerAPP2)
		out.WriteByte(byte((payloadLen + 2) >> 8))
		out.WriteByte(byte(payloadLen + 2))
		out.Write(iccSig)
		out.WriteByte(byte(seq))
		out.WriteByte(byte(total))
		out.Write(profile[start:end])
	}
	out.Write(jpegData[2:])
	return out.Bytes(), nil
}
