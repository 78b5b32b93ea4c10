package nclr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// ExtractedICC is the result of scanning a container for an embedded profile.
type ExtractedICC struct {
	Profile    []byte
	Resolution Resolution
	Warnings   []string
}

// ExtractEmbeddedICC pulls the embedded ICC profile (and, for TIFF, the
// resolution tags) out of the source container. A malformed embedded profile
// is dropped with a warning rather than failing the file: the resolver falls
// back to sRGB in that case.
func ExtractEmbeddedICC(d *DecodedImage) ExtractedICC {
	out := ExtractedICC{Resolution: defaultResolution()}
	switch d.Format {
	case FormatTIFF:
		meta, err := readTIFFMeta(d.Container)
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("tiff metadata scan: %v", err))
			return out
		}
		out.Resolution = meta.Resolution()
		out.Profile = meta.ICC
	case FormatJPEG:
		profile, warns := extractJPEGICC(d.Container)
		out.Profile = profile
		out.Warnings = append(out.Warnings, warns...)
	}
	if out.Profile != nil {
		if err := validateICCHeader(out.Profile); err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("embedded ICC rejected: %v", err))
			out.Profile = nil
		}
	}
	return out
}

// extractJPEGICC reassembles the ICC profile from APP2 ICC_PROFILE segments.
// Segments carry a 1-based sequence number and a total count; a gap, a
// duplicate or an inconsistent total drops the profile with a warning.
func extractJPEGICC(data []byte) ([]byte, []string) {
	type chunk struct {
		seq   int
		total int
		data  []byte
	}
	var chunks []chunk
	for _, seg := range scanAPP2Segments(data) {
		if len(seg) <= len(iccSig)+2 || !bytes.HasPrefix(seg, iccSig) {
			continue
		}
		chunks = append(chunks, chunk{
			seq:   int(seg[len(iccSig)]),
			total: int(seg[len(iccSig)+1]),
			data:  seg[len(iccSig)+2:],
		})
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].seq < chunks[j].seq })

	total := chunks[0].total
	if total != len(chunks) {
		return nil, []string{fmt.Sprintf("jpeg ICC: %d segments present, %d declared", len(chunks), total)}
	}
	size := 0
	for i, c := range chunks {
		if c.seq != i+1 {
			return nil, []string{fmt.Sprintf("jpeg ICC: segment sequence broken at %d", c.seq)}
		}
		if c.total != total {
			return nil, []string{"jpeg ICC: inconsistent segment totals"}
		}
		size += len(c.data)
	}
	out := make([]byte, 0, size)
	for _, c := range chunks {
		out = append(out, c.data...)
	}
	return out, nil
}

// scanAPP2Segments walks the JPEG marker stream up to SOS and returns the
// APP2 payloads in file order.
func scanAPP2Segments(data []byte) [][]byte {
	if len(data) < 4 || data[0] != markerStart || data[1] != markerSOI {
		return nil
	}
	var out [][]byte
	pos := 2
	for pos+3 < len(data) {
		if data[pos] != markerStart {
			pos++
			continue
		}
		for pos < len(data) && data[pos] == markerStart {
			pos++
		}
		if pos >= len(data) {
			break
		}
		marker := data[pos]
		pos++
		if marker == markerSOS || marker == markerEOI {
			break
		}
		if marker >= 0xD0 && marker <= 0xD7 {
			continue
		}
		if pos+1 >= len(data) {
			break
		}
		segLen := int(binary.BigEndian.Uint16(data[pos:]))
		if segLen < 2 || pos+segLen > len(data) {
			break
		}
		if marker == markerAPP2 {
			out = append(out, data[pos+2:pos+segLen])
		}
		pos += segLen
	}
	return out
}

// validateICCHeader checks the fixed 128-byte ICC header: minimum length,
// the 'acsp' signature at offset 36, and the declared profile size against
// the blob length (containers may pad the tag with up to 4 trailing bytes).
func validateICCHeader(profile []byte) error {
	if len(profile) < 128 {
		return fmt.Errorf("profile too short: %d bytes", len(profile))
	}
	if !bytes.Equal(profile[36:40], []byte("acsp")) {
		return fmt.Errorf("missing acsp signature")
	}
	declared := int(binary.BigEndian.Uint32(profile[0:4]))
	if declared < 128 || declared > len(profile) || len(profile)-declared > 4 {
		return fmt.Errorf("declared size %d does not match %d bytes", declared, len(profile))
	}
	return nil
}

// profileID returns the header profile ID (an MD5 over the canonicalized
// profile, bytes 84..100) when the creator filled it in.
func profileID(profile []byte) ([16]byte, bool) {
	var id [16]byte
	if len(profile) < 100 {
		return id, false
	}
	copy(id[:], profile[84:100])
	return id, id != [16]byte{}
}

// sameProfile reports identity of two profiles: by header MD5 when both
// carry one, else by byte equality.
func sameProfile(a, b []byte) bool {
	ida, oka := profileID(a)
	idb, okb := profileID(b)
	if oka && okb {
		return ida == idb
	}
	return bytes.Equal(a, b)
}
