package nclr

import (
	"fmt"
	"math"

	"seehuhn.de/go/icc"
)

// ColorTransform converts 16-bit RGB samples from the source profile to the
// destination profile through the D50 XYZ connection space, with optional
// black point compensation.
type ColorTransform struct {
	src    *icc.Profile
	dst    *icc.Profile
	intent icc.RenderingIntent
	bpc    *bpcCorrection
}

// NewColorTransform validates the resolved profile pair and prepares the
// transform. Profile pairs that cannot carry an RGB->RGB conversion fail
// here, before any pixel work starts.
func NewColorTransform(plan *ExecutionPlan, rp *ResolvedProfiles) (*ColorTransform, error) {
	srcProfile, err := icc.Decode(rp.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: source profile: %v", ErrTransformBuild, err)
	}
	dstProfile, err := icc.Decode(rp.Destination)
	if err != nil {
		return nil, fmt.Errorf("%w: destination profile: %v", ErrTransformBuild, err)
	}
	if srcProfile.ColorSpace != icc.RGBSpace {
		return nil, fmt.Errorf("%w: source profile color space %v, want RGB", ErrTransformBuild, srcProfile.ColorSpace)
	}
	if dstProfile.ColorSpace != icc.RGBSpace {
		return nil, fmt.Errorf("%w: destination profile color space %v, want RGB", ErrTransformBuild, dstProfile.ColorSpace)
	}

	intent := plan.Intent.iccIntent()

	// Probe construction once so incompatible profiles fail the file with a
	// build error instead of surfacing mid-raster.
	if _, err := icc.NewTransform(srcProfile, icc.DeviceToPCS, intent); err != nil {
		return nil, fmt.Errorf("%w: source: %v", ErrTransformBuild, err)
	}
	if _, err := icc.NewTransform(dstProfile, icc.PCSToDevice, intent); err != nil {
		return nil, fmt.Errorf("%w: destination: %v", ErrTransformBuild, err)
	}

	t := &ColorTransform{src: srcProfile, dst: dstProfile, intent: intent}
	if plan.BPC && plan.Intent != IntentSaturation {
		t.bpc = newBPCCorrection(srcProfile, dstProfile, intent)
	}
	return t, nil
}

// Apply converts interleaved 16-bit RGB samples in place. Rows are processed
// in parallel bands; each band builds its own transform pair because the
// underlying transforms are not safe for concurrent use.
func (t *ColorTransform) Apply(samples []uint16, width, height int) error {
	if len(samples) != width*height*3 {
		return fmt.Errorf("%w: sample buffer %d, want %d", ErrTransformRuntime, len(samples), width*height*3)
	}
	bands := bandCount(height)
	rowsPerBand := (height + bands - 1) / bands
	errs := make([]error, bands)

	parallelFor(bands, func(start, end int) {
		for band := start; band < end; band++ {
			r0 := band * rowsPerBand
			r1 := r0 + rowsPerBand
			if r1 > height {
				r1 = height
			}
			if r0 >= r1 {
				continue
			}
			errs[band] = t.applyRows(samples, width, r0, r1)
		}
	})

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *ColorTransform) applyRows(samples []uint16, width, r0, r1 int) error {
	fwd, err := icc.NewTransform(t.src, icc.DeviceToPCS, t.intent)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransformRuntime, err)
	}
	rev, err := icc.NewTransform(t.dst, icc.PCSToDevice, t.intent)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransformRuntime, err)
	}

	device := make([]float64, 3)
	for i := r0 * width * 3; i < r1*width*3; i += 3 {
		device[0] = float64(samples[i]) / 65535
		device[1] = float64(samples[i+1]) / 65535
		device[2] = float64(samples[i+2]) / 65535

		x, y, z := fwd.ToXYZ(device)
		if t.bpc != nil {
			x, y, z = t.bpc.apply(x, y, z)
		}
		rgb := rev.FromXYZ(x, y, z)
		if len(rgb) != 3 {
			return fmt.Errorf("%w: destination transform produced %d channels", ErrTransformRuntime, len(rgb))
		}
		samples[i] = quantizeUnit(rgb[0])
		samples[i+1] = quantizeUnit(rgb[1])
		samples[i+2] = quantizeUnit(rgb[2])
	}
	return nil
}

func quantizeUnit(v float64) uint16 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 65535
	}
	return uint16(math.Round(v * 65535))
}

// bandCount splits height into bands of at least minBandRows rows so tiny
// images stay single-threaded.
func bandCount(height int) int {
	n := height / minBandRows
	if n < 1 {
		n = 1
	}
	return n
}
