package nclr

import (
	"math"

	"seehuhn.de/go/icc"
)

var d50 = [3]float64{0.9642, 1.0, 0.82491}

// bpcCorrection is a black point compensation step applied between the
// source and destination halves of the transform: a linear scale/offset in
// XYZ that maps the source black point onto the destination black point
// while keeping D50 white fixed.
type bpcCorrection struct {
	scale  [3]float64
	offset [3]float64
}

func (c *bpcCorrection) apply(x, y, z float64) (float64, float64, float64) {
	return c.scale[0]*x + c.offset[0],
		c.scale[1]*y + c.offset[1],
		c.scale[2]*z + c.offset[2]
}

// estimateBlackPoint maps device black through the profile's forward
// transform. This is the darker-colorant estimate; it is exact for
// matrix/TRC profiles and a usable approximation for LUT profiles.
func estimateBlackPoint(p *icc.Profile, intent icc.RenderingIntent) ([3]float64, error) {
	t, err := icc.NewTransform(p, icc.DeviceToPCS, intent)
	if err != nil {
		return [3]float64{}, err
	}
	x, y, z := t.ToXYZ([]float64{0, 0, 0})
	return [3]float64{x, y, z}, nil
}

// newBPCCorrection builds the compensation step for a source/destination
// profile pair. It returns nil when compensation is a no-op: equal black
// points, a degenerate source black at D50, or a failed estimate (the
// transform then runs uncompensated, matching LittleCMS behavior).
func newBPCCorrection(src, dst *icc.Profile, intent icc.RenderingIntent) *bpcCorrection {
	in, err := estimateBlackPoint(src, intent)
	if err != nil {
		return nil
	}
	out, err := estimateBlackPoint(dst, intent)
	if err != nil {
		return nil
	}

	const eps = 1e-7
	same := math.Abs(in[0]-out[0]) < eps &&
		math.Abs(in[1]-out[1]) < eps &&
		math.Abs(in[2]-out[2]) < eps
	if same {
		return nil
	}

	var c bpcCorrection
	for i := 0; i < 3; i++ {
		t := in[i] - d50[i]
		if math.Abs(t) < eps {
			return nil
		}
		c.scale[i] = (out[i] - d50[i]) / t
		c.offset[i] = -d50[i] * (out[i] - in[i]) / t
	}
	return &c
}
