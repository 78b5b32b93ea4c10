package nclr

import "math"

func toneCurve(t ToneMap) func(float64) float64 {
	switch t {
	case ToneMapGamma22:
		return func(x float64) float64 { return math.Pow(x, 1/2.2) }
	case ToneMapPerceptual:
		return math.Sqrt
	default:
		return func(x float64) float64 { return x }
	}
}

// Quantize reduces 16-bit RGB samples to the plan's output depth. At depth
// 16 the samples pass through untouched; at depth 8 the tone curve and
// optional Floyd-Steinberg dithering run in normalized [0,1] space.
// Dithering carries an error buffer across rows so it runs single-threaded;
// the non-dithered path is band-parallel. Output is byte-identical across
// runs for identical inputs.
func Quantize(samples []uint16, width, height int, plan *ExecutionPlan) []byte {
	if plan.OutDepth == 16 {
		out := make([]byte, len(samples)*2)
		for i, v := range samples {
			out[2*i] = byte(v >> 8)
			out[2*i+1] = byte(v)
		}
		return out
	}
	if plan.Dither {
		return ditherTo8(samples, width, height, plan.ToneMap)
	}
	return roundTo8(samples, height, plan.ToneMap)
}

func roundTo8(samples []uint16, height int, tone ToneMap) []byte {
	out := make([]byte, len(samples))
	if tone == ToneMapNone {
		// round(v/65535*255) == (v + 128) / 257 for the identity curve.
		parallelFor(height, func(r0, r1 int) {
			n := len(samples) / height
			for i := r0 * n; i < r1*n; i++ {
				out[i] = byte((uint32(samples[i]) + 128) / 257)
			}
		})
		return out
	}
	curve := toneCurve(tone)
	var lut [65536]byte
	for v := range lut {
		lut[v] = byte(math.Round(curve(float64(v)/65535) * 255))
	}
	parallelFor(height, func(r0, r1 int) {
		n := len(samples) / height
		for i := r0 * n; i < r1*n; i++ {
			out[i] = lut[samples[i]]
		}
	})
	return out
}

// ditherTo8 is Floyd-Steinberg error diffusion in post-tone-map normalized
// space: strict row-major traversal, per-channel error, edges skipped.
func ditherTo8(samples []uint16, width, height int, tone ToneMap) []byte {
	curve := toneCurve(tone)
	out := make([]byte, len(samples))

	// Two rows of per-channel error: current and next.
	cur := make([]float64, width*3)
	next := make([]float64, width*3)

	for y := 0; y < height; y++ {
		for i := range next {
			next[i] = 0
		}
		row := y * width * 3
		for x := 0; x < width; x++ {
			for c := 0; c < 3; c++ {
				idx := row + x*3 + c
				yv := curve(float64(samples[idx])/65535) + cur[x*3+c]
				if yv < 0 {
					yv = 0
				} else if yv > 1 {
					yv = 1
				}
				q := math.Round(yv * 255)
				out[idx] = byte(q)
				err := yv - q/255

				if x+1 < width {
					cur[(x+1)*3+c] += err * 7 / 16
				}
				if y+1 < height {
					if x > 0 {
						next[(x-1)*3+c] += err * 3 / 16
					}
					next[x*3+c] += err * 5 / 16
					if x+1 < width {
						next[(x+1)*3+c] += err * 1 / 16
					}
				}
			}
		}
		cur, next = next, cur
	}
	return out
}
