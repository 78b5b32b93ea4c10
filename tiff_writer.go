package nclr

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// rowsPerStrip follows the archival layout: 64 rows at 16-bit, 128 at 8-bit,
// halved while a strip would exceed maxStripBytes at extreme widths.
func rowsPerStrip(rowBytes, depth int) int {
	rows := 128
	if depth == 16 {
		rows = 64
	}
	for rows > 1 && rows*rowBytes > maxStripBytes {
		rows /= 2
	}
	return rows
}

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte // raw value bytes, inlined when <= 4 bytes
}

// EncodeTIFF serializes an RGB raster as an uncompressed little-endian
// baseline TIFF with a single IFD. pix carries channel-interleaved samples,
// 16-bit values big-endian as in the Raster layout; they are swapped to the
// file byte order on the way out. Strip data sits contiguously from offset 8,
// out-of-line values follow it, and the IFD closes the file.
func EncodeTIFF(pix []byte, width, height, depth int, res Resolution, iccProfile []byte) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", width, height)
	}
	if depth != 8 && depth != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d", depth)
	}
	rowBytes := width * 3 * depth / 8
	if len(pix) != rowBytes*height {
		return nil, fmt.Errorf("pixel buffer %d bytes, want %d", len(pix), rowBytes*height)
	}

	rows := rowsPerStrip(rowBytes, depth)
	strips := (height + rows - 1) / rows
	le := binary.LittleEndian

	var buf bytes.Buffer
	buf.WriteString("II")
	writeU16(&buf, 42)
	writeU32(&buf, 0) // IFD offset, patched below

	stripOffsets := make([]uint32, strips)
	stripCounts := make([]uint32, strips)
	for s := 0; s < strips; s++ {
		r0 := s * rows
		r1 := r0 + rows
		if r1 > height {
			r1 = height
		}
		stripOffsets[s] = uint32(buf.Len())
		stripCounts[s] = uint32((r1 - r0) * rowBytes)
		if depth == 8 {
			buf.Write(pix[r0*rowBytes : r1*rowBytes])
		} else {
			for i := r0 * rowBytes; i < r1*rowBytes; i += 2 {
				buf.WriteByte(pix[i+1])
				buf.WriteByte(pix[i])
			}
		}
	}

	d16 := uint16(depth)
	entries := []ifdEntry{
		{tagImageWidth, tiffTypeLong, 1, u32le(uint32(width))},
		{tagImageLength, tiffTypeLong, 1, u32le(uint32(height))},
		{tagBitsPerSample, tiffTypeShort, 3, u16sle(d16, d16, d16)},
		{tagCompression, tiffTypeShort, 1, u16sle(1)},
		{tagPhotometric, tiffTypeShort, 1, u16sle(2)},
		{tagStripOffsets, tiffTypeLong, uint32(strips), u32sle(stripOffsets)},
		{tagSamplesPerPixel, tiffTypeShort, 1, u16sle(3)},
		{tagRowsPerStrip, tiffTypeLong, 1, u32le(uint32(rows))},
		{tagStripByteCounts, tiffTypeLong, uint32(strips), u32sle(stripCounts)},
		{tagXResolution, tiffTypeRational, 1, rationalLE(res.X)},
		{tagYResolution, tiffTypeRational, 1, rationalLE(res.Y)},
		{tagPlanarConfig, tiffTypeShort, 1, u16sle(1)},
		{tagResolutionUnit, tiffTypeShort, 1, u16sle(res.Unit)},
		{tagSampleFormat, tiffTypeShort, 3, u16sle(1, 1, 1)},
	}
	if iccProfile != nil {
		entries = append(entries, ifdEntry{tagICCProfile, tiffTypeUndefined, uint32(len(iccProfile)), iccProfile})
	}

	// Out-of-line values land between the strips and the IFD, each on an
	// even offset as the format requires.
	valueField := make([][4]byte, len(entries))
	for i, e := range entries {
		if len(e.value) <= 4 {
			copy(valueField[i][:], e.value)
			continue
		}
		if buf.Len()%2 == 1 {
			buf.WriteByte(0)
		}
		le.PutUint32(valueField[i][:], uint32(buf.Len()))
		buf.Write(e.value)
	}

	if buf.Len()%2 == 1 {
		buf.WriteByte(0)
	}
	ifdOffset := uint32(buf.Len())
	writeU16(&buf, uint16(len(entries)))
	for i, e := range entries {
		writeU16(&buf, e.tag)
		writeU16(&buf, e.typ)
		writeU32(&buf, e.count)
		buf.Write(valueField[i][:])
	}
	writeU32(&buf, 0) // no next IFD

	out := buf.Bytes()
	le.PutUint32(out[4:8], ifdOffset)
	return out, nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func u32le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func u16sle(vs ...uint16) []byte {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint16(b[2*i:], v)
	}
	return b
}

func u32sle(vs []uint32) []byte {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	return b
}

func rationalLE(r Rational) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], r.Num)
	binary.LittleEndian.PutUint32(b[4:8], r.Den)
	return b
}
