package nclr

import (
	"encoding/binary"
	"errors"
)

// TIFFMeta is the metadata read straight from a TIFF container: the embedded
// ICC profile (tag 34675) and the resolution tags, untouched by the decoder.
type TIFFMeta struct {
	ICC        []byte
	XRes, YRes *Rational
	Unit       uint16 // 0 when the tag is absent
}

var errNotTIFF = errors.New("not a TIFF header")

// readTIFFMeta scans IFD0 of a classic TIFF or BigTIFF, either byte order,
// and returns the ICC profile bytes and resolution tags. Tags it does not
// care about are skipped; a missing IFD yields an empty result, not an error,
// so a structurally odd but decodable file still converts.
func readTIFFMeta(data []byte) (TIFFMeta, error) {
	var meta TIFFMeta
	if len(data) < 8 {
		return meta, errNotTIFF
	}
	var order binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		order = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		order = binary.BigEndian
	default:
		return meta, errNotTIFF
	}
	magic := order.Uint16(data[2:4])
	switch magic {
	case 42:
		return readClassicIFD0(data, order)
	case 43:
		return readBigIFD0(data, order)
	default:
		return meta, errNotTIFF
	}
}

func tiffTypeSize(t uint16) int {
	switch t {
	case tiffTypeByte, tiffTypeASCII, tiffTypeUndefined:
		return 1
	case tiffTypeShort:
		return 2
	case tiffTypeLong:
		return 4
	case tiffTypeRational, tiffTypeLong8:
		return 8
	default:
		return 0
	}
}

func readClassicIFD0(data []byte, order binary.ByteOrder) (TIFFMeta, error) {
	var meta TIFFMeta
	ifdOff := int64(order.Uint32(data[4:8]))
	if ifdOff < 8 || ifdOff+2 > int64(len(data)) {
		return meta, nil
	}
	n := int64(order.Uint16(data[ifdOff : ifdOff+2]))
	entOff := ifdOff + 2
	for i := int64(0); i < n; i++ {
		if entOff+12 > int64(len(data)) {
			break
		}
		ent := data[entOff : entOff+12]
		entOff += 12

		tag := order.Uint16(ent[0:2])
		typ := order.Uint16(ent[2:4])
		count := int64(order.Uint32(ent[4:8]))

		tsz := int64(tiffTypeSize(typ))
		if tsz == 0 {
			continue
		}
		byteLen := count * tsz
		var val []byte
		if byteLen == 0 {
			continue
		} else if byteLen <= 4 {
			val = ent[8 : 8+byteLen]
		} else {
			off := int64(order.Uint32(ent[8:12]))
			if off < 0 || off+byteLen > int64(len(data)) {
				continue
			}
			val = data[off : off+byteLen]
		}
		meta.apply(tag, val, order)
	}
	return meta, nil
}

func readBigIFD0(data []byte, order binary.ByteOrder) (TIFFMeta, error) {
	var meta TIFFMeta
	if len(data) < 16 {
		return meta, errNotTIFF
	}
	if order.Uint16(data[4:6]) != 8 {
		return meta, errNotTIFF
	}
	ifdOff := int64(order.Uint64(data[8:16]))
	if ifdOff < 16 || ifdOff+8 > int64(len(data)) {
		return meta, nil
	}
	n := int64(order.Uint64(data[ifdOff : ifdOff+8]))
	entOff := ifdOff + 8
	for i := int64(0); i < n; i++ {
		if entOff+20 > int64(len(data)) {
			break
		}
		ent := data[entOff : entOff+20]
		entOff += 20

		tag := order.Uint16(ent[0:2])
		typ := order.Uint16(ent[2:4])
		count := int64(order.Uint64(ent[4:12]))

		tsz := int64(tiffTypeSize(typ))
		if tsz == 0 {
			continue
		}
		byteLen := count * tsz
		var val []byte
		if byteLen == 0 {
			continue
		} else if byteLen <= 8 {
			val = ent[12 : 12+byteLen]
		} else {
			off := int64(order.Uint64(ent[12:20]))
			if off < 0 || off+byteLen > int64(len(data)) {
				continue
			}
			val = data[off : off+byteLen]
		}
		meta.apply(tag, val, order)
	}
	return meta, nil
}

func (m *TIFFMeta) apply(tag uint16, val []byte, order binary.ByteOrder) {
	switch tag {
	case tagICCProfile:
		m.ICC = append([]byte(nil), val...)
	case tagXResolution:
		if r, ok := readRational(val, order); ok {
			m.XRes = &r
		}
	case tagYResolution:
		if r, ok := readRational(val, order); ok {
			m.YRes = &r
		}
	case tagResolutionUnit:
		if len(val) >= 2 {
			m.Unit = order.Uint16(val[0:2])
		}
	}
}

func readRational(val []byte, order binary.ByteOrder) (Rational, bool) {
	if len(val) < 8 {
		return Rational{}, false
	}
	r := Rational{Num: order.Uint32(val[0:4]), Den: order.Uint32(val[4:8])}
	if r.Den == 0 {
		return Rational{}, false
	}
	return r, true
}

// Resolution converts the raw tags into a writer-ready Resolution. A lone
// X or Y rational is mirrored onto the other axis; with neither present the
// 72 dpi default applies.
func (m TIFFMeta) Resolution() Resolution {
	res := defaultResolution()
	x, y := m.XRes, m.YRes
	if x == nil {
		x = y
	}
	if y == nil {
		y = x
	}
	if x == nil {
		return res
	}
	res.X, res.Y = *x, *y
	switch m.Unit {
	case resolutionUnitNone, resolutionUnitInch, resolutionUnitCm:
		res.Unit = m.Unit
	}
	return res
}
