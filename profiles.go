package nclr

import (
	"encoding/binary"
	"fmt"
	"os"
	"unicode/utf16"

	"seehuhn.de/go/icc"
)

func (i Intent) iccIntent() icc.RenderingIntent {
	switch i {
	case IntentRelative:
		return icc.RelativeColorimetric
	case IntentAbsolute:
		return icc.AbsoluteColorimetric
	case IntentSaturation:
		return icc.Saturation
	default:
		return icc.Perceptual
	}
}

// builtinSRGB returns the built-in sRGB profile used both as the Auto-mode
// fallback and as the SRGB destination. Using one blob for both means a
// fallback source and an sRGB destination compare equal and the transform is
// skipped.
func builtinSRGB() []byte { return icc.SRGBv4Profile }

// loadProfileFile reads and validates an ICC profile from disk. Any failure
// is a hard ProfileLoad error: the user pointed at this file explicitly.
func loadProfileFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProfileLoad, path, err)
	}
	if err := validateICCHeader(data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProfileLoad, path, err)
	}
	if _, err := icc.Decode(data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProfileLoad, path, err)
	}
	return data, nil
}

// ResolveProfiles turns the plan's ICC policy plus the extracted embedded
// profile into the concrete source/destination pair for one file.
func ResolveProfiles(plan *ExecutionPlan, embedded []byte) (*ResolvedProfiles, error) {
	rp := &ResolvedProfiles{}

	switch plan.InputICCMode {
	case InputICCForceSRGB:
		rp.Source = builtinSRGB()
	case InputICCFile:
		src, err := loadProfileFile(plan.InputICCFile)
		if err != nil {
			return nil, err
		}
		rp.Source = src
	default: // InputICCAuto
		if embedded != nil {
			if _, err := icc.Decode(embedded); err != nil {
				rp.Warnings = append(rp.Warnings,
					fmt.Sprintf("embedded ICC profile unusable (%v), assuming sRGB", err))
				rp.Source = builtinSRGB()
			} else {
				rp.Source = embedded
				rp.SourceEmbedded = true
			}
		} else {
			rp.Source = builtinSRGB()
		}
	}

	switch plan.OutputICCMode {
	case OutputICCNone:
		rp.Destination = nil
	case OutputICCPreserveInput:
		// Byte-exact passthrough of the source blob so the profile MD5
		// survives into the output container.
		rp.Destination = rp.Source
	case OutputICCFile:
		dst, err := loadProfileFile(plan.OutputICCFile)
		if err != nil {
			return nil, err
		}
		rp.Destination = dst
	default: // OutputICCSRGB
		rp.Destination = builtinSRGB()
	}

	rp.TransformNeeded = rp.Destination != nil &&
		!plan.SkipICC &&
		!sameProfile(rp.Source, rp.Destination)
	return rp, nil
}

// ProfileSummary renders a one-line description of a profile blob for the
// --debug-icc report.
func ProfileSummary(blob []byte) string {
	if blob == nil {
		return "(none)"
	}
	p, err := icc.Decode(blob)
	if err != nil {
		return fmt.Sprintf("%d bytes, unparseable: %v", len(blob), err)
	}
	desc := profileDescription(p)
	if desc == "" {
		desc = "(no description)"
	}
	return fmt.Sprintf("%q %s %v v%v, %d bytes", desc, p.ColorSpace, p.Class, p.Version, len(blob))
}

// profileDescription extracts the desc tag text, handling both the v2
// textDescription layout and the v4 mluc layout.
func profileDescription(p *icc.Profile) string {
	data, ok := p.TagData[icc.TagType(0x64657363)] // 'desc'
	if !ok || len(data) < 8 {
		return ""
	}
	switch string(data[0:4]) {
	case "desc":
		// type(4) reserved(4) asciiCount(4) ascii...
		if len(data) < 12 {
			return ""
		}
		n := int(binary.BigEndian.Uint32(data[8:12]))
		if n <= 0 || 12+n > len(data) {
			return ""
		}
		s := data[12 : 12+n]
		if i := indexNUL(s); i >= 0 {
			s = s[:i]
		}
		return string(s)
	case "mluc":
		// type(4) reserved(4) count(4) recSize(4) then records of
		// lang(2) country(2) len(4) off(4); strings are UTF-16BE.
		if len(data) < 28 {
			return ""
		}
		count := int(binary.BigEndian.Uint32(data[8:12]))
		if count <= 0 {
			return ""
		}
		strLen := int(binary.BigEndian.Uint32(data[20:24]))
		strOff := int(binary.BigEndian.Uint32(data[24:28]))
		if strOff < 0 || strLen < 0 || strOff+strLen > len(data) || strLen%2 != 0 {
			return ""
		}
		u := make([]uint16, strLen/2)
		for i := range u {
			u[i] = binary.BigEndian.Uint16(data[strOff+2*i:])
		}
		return string(utf16.Decode(u))
	default:
		return ""
	}
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}
