package nclr

import (
	"bytes"
	"encoding/binary"
	"testing"

	"seehuhn.de/go/icc"
)

// buildClassicBE assembles a minimal big-endian TIFF whose IFD0 carries only
// an ICCProfile tag pointing past the IFD.
func buildClassicBE(profile []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("MM")
	binary.Write(&buf, binary.BigEndian, uint16(42))
	binary.Write(&buf, binary.BigEndian, uint32(8)) // IFD0 offset

	// one entry + next-IFD pointer, then the profile
	profileOff := uint32(8 + 2 + 12 + 4)
	binary.Write(&buf, binary.BigEndian, uint16(1))
	binary.Write(&buf, binary.BigEndian, uint16(tagICCProfile))
	binary.Write(&buf, binary.BigEndian, uint16(tiffTypeUndefined))
	binary.Write(&buf, binary.BigEndian, uint32(len(profile)))
	binary.Write(&buf, binary.BigEndian, profileOff)
	binary.Write(&buf, binary.BigEndian, uint32(0))
	buf.Write(profile)
	return buf.Bytes()
}

// buildBigTIFFLE assembles a little-endian BigTIFF with an ICCProfile entry.
func buildBigTIFFLE(profile []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, binary.LittleEndian, uint16(43))
	binary.Write(&buf, binary.LittleEndian, uint16(8))
	binary.Write(&buf, binary.LittleEndian, uint16(0))
	binary.Write(&buf, binary.LittleEndian, uint64(16)) // IFD0 offset

	profileOff := uint64(16 + 8 + 20 + 8)
	binary.Write(&buf, binary.LittleEndian, uint64(1))
	binary.Write(&buf, binary.LittleEndian, uint16(tagICCProfile))
	binary.Write(&buf, binary.LittleEndian, uint16(tiffTypeUndefined))
	binary.Write(&buf, binary.LittleEndian, uint64(len(profile)))
	binary.Write(&buf, binary.LittleEndian, profileOff)
	binary.Write(&buf, binary.LittleEndian, uint64(0))
	buf.Write(profile)
	return buf.Bytes()
}

func TestReadTIFFMetaBigEndian(t *testing.T) {
	meta, err := readTIFFMeta(buildClassicBE(icc.SRGBv4Profile))
	if err != nil {
		t.Fatalf("readTIFFMeta: %v", err)
	}
	if !bytes.Equal(meta.ICC, icc.SRGBv4Profile) {
		t.Fatal("embedded profile does not round-trip through a big-endian IFD")
	}
}

func TestReadTIFFMetaBigTIFF(t *testing.T) {
	meta, err := readTIFFMeta(buildBigTIFFLE(icc.SRGBv4Profile))
	if err != nil {
		t.Fatalf("readTIFFMeta: %v", err)
	}
	if !bytes.Equal(meta.ICC, icc.SRGBv4Profile) {
		t.Fatal("embedded profile does not round-trip through a BigTIFF IFD")
	}
}

func TestReadTIFFMetaFromWriter(t *testing.T) {
	pix := make([]byte, 4*2*3)
	res := Resolution{X: Rational{600, 1}, Y: Rational{600, 1}, Unit: resolutionUnitInch}
	data, err := EncodeTIFF(pix, 4, 2, 8, res, icc.SRGBv4Profile)
	if err != nil {
		t.Fatalf("EncodeTIFF: %v", err)
	}
	meta, err := readTIFFMeta(data)
	if err != nil {
		t.Fatalf("readTIFFMeta: %v", err)
	}
	if !bytes.Equal(meta.ICC, icc.SRGBv4Profile) {
		t.Fatal("profile does not survive a write/read cycle")
	}
	if meta.XRes == nil || meta.XRes.Num != 600 || meta.XRes.Den != 1 {
		t.Fatalf("XRes = %v, want 600/1", meta.XRes)
	}
	if meta.Unit != resolutionUnitInch {
		t.Fatalf("unit = %d, want %d", meta.Unit, resolutionUnitInch)
	}
}

func TestResolutionMirrorsLoneAxis(t *testing.T) {
	m := TIFFMeta{XRes: &Rational{300, 1}, Unit: resolutionUnitInch}
	res := m.Resolution()
	if res.Y != (Rational{300, 1}) {
		t.Fatalf("YRes = %v, want mirrored 300/1", res.Y)
	}
}

func iccAPP2Segment(seq, total byte, data []byte) []byte {
	payload := append(append([]byte(nil), iccSig...), seq, total)
	payload = append(payload, data...)
	seg := []byte{markerStart, markerAPP2, byte((len(payload) + 2) >> 8), byte(len(payload) + 2)}
	return append(seg, payload...)
}

func jpegWithSegments(segs ...[]byte) []byte {
	out := []byte{markerStart, markerSOI}
	for _, s := range segs {
		out = append(out, s...)
	}
	return append(out, markerStart, markerEOI)
}

func TestExtractJPEGICCMultiSegment(t *testing.T) {
	jpg := jpegWithSegments(
		iccAPP2Segment(1, 2, []byte("first-half-")),
		iccAPP2Segment(2, 2, []byte("second-half")),
	)
	profile, warns := extractJPEGICC(jpg)
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	if string(profile) != "first-half-second-half" {
		t.Fatalf("profile = %q", profile)
	}
}

func TestExtractJPEGICCOutOfOrder(t *testing.T) {
	jpg := jpegWithSegments(
		iccAPP2Segment(2, 2, []byte("bbb")),
		iccAPP2Segment(1, 2, []byte("aaa")),
	)
	profile, warns := extractJPEGICC(jpg)
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	if string(profile) != "aaabbb" {
		t.Fatalf("profile = %q", profile)
	}
}

func TestExtractJPEGICCBrokenSequence(t *testing.T) {
	jpg := jpegWithSegments(
		iccAPP2Segment(1, 3, []byte("aaa")),
		iccAPP2Segment(3, 3, []byte("ccc")),
	)
	profile, warns := extractJPEGICC(jpg)
	if profile != nil {
		t.Fatal("broken sequence must drop the profile")
	}
	if len(warns) == 0 {
		t.Fatal("broken sequence must warn")
	}
}

func TestInsertAndExtractAPP2RoundTrip(t *testing.T) {
	base := []byte{markerStart, markerSOI, markerStart, markerEOI}
	withICC, err := insertAPP2ICC(base, icc.SRGBv4Profile)
	if err != nil {
		t.Fatalf("insertAPP2ICC: %v", err)
	}
	profile, warns := extractJPEGICC(withICC)
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	if !bytes.Equal(profile, icc.SRGBv4Profile) {
		t.Fatal("profile does not survive insert/extract")
	}
}

func TestValidateICCHeader(t *testing.T) {
	if err := validateICCHeader(icc.SRGBv4Profile); err != nil {
		t.Fatalf("built-in sRGB rejected: %v", err)
	}
	if err := validateICCHeader([]byte("short")); err == nil {
		t.Fatal("short blob accepted")
	}
	bad := append([]byte(nil), icc.SRGBv4Profile...)
	copy(bad[36:40], "nope")
	if err := validateICCHeader(bad); err == nil {
		t.Fatal("blob without acsp signature accepted")
	}
	truncated := icc.SRGBv4Profile[:130]
	if err := validateICCHeader(truncated); err == nil {
		t.Fatal("truncated blob accepted")
	}
}

func TestSameProfile(t *testing.T) {
	a := make([]byte, 160)
	b := make([]byte, 160)
	copy(a[36:40], "acsp")
	copy(b[36:40], "acsp")

	// No profile ID set: byte equality decides.
	if !sameProfile(a, b) {
		t.Fatal("identical blobs without IDs must compare equal")
	}
	b[120] = 1
	if sameProfile(a, b) {
		t.Fatal("differing blobs without IDs must compare unequal")
	}

	// Matching IDs win over differing bytes.
	for i := 84; i < 100; i++ {
		a[i] = byte(i)
		b[i] = byte(i)
	}
	if !sameProfile(a, b) {
		t.Fatal("matching profile IDs must compare equal")
	}
	b[90] = 0xEE
	if sameProfile(a, b) {
		t.Fatal("differing profile IDs must compare unequal")
	}
}
