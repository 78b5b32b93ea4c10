package nclr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileReport is the per-file outcome handed back to the CLI: warnings are
// printed to stderr, debug lines to stdout when --debug-icc is on.
type FileReport struct {
	Input    string
	Output   string
	Warnings []string
	Debug    []string
}

// ConvertFile runs the full pipeline for one file: decode, profile
// resolution, color transform, quantization, encode, atomic write. The
// context is polled between stages; a mid-stage cancellation finishes the
// stage first.
func ConvertFile(ctx context.Context, plan *ExecutionPlan, inputPath, outputPath string) (*FileReport, error) {
	report := &FileReport{Input: inputPath, Output: outputPath}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return report, fmt.Errorf("read input: %w", err)
	}
	decoded, err := DecodeImage(data)
	if err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	extracted := ExtractEmbeddedICC(decoded)
	report.Warnings = append(report.Warnings, extracted.Warnings...)

	profiles, err := ResolveProfiles(plan, extracted.Profile)
	if err != nil {
		return report, err
	}
	report.Warnings = append(report.Warnings, profiles.Warnings...)

	if plan.DebugICC {
		report.Debug = append(report.Debug,
			fmt.Sprintf("source ICC: %s (embedded=%v)", ProfileSummary(profiles.Source), profiles.SourceEmbedded),
			fmt.Sprintf("destination ICC: %s", ProfileSummary(profiles.Destination)),
			fmt.Sprintf("transform needed: %v", profiles.TransformNeeded),
		)
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	raster := decoded.Raster
	samples := raster.RGB16()
	if profiles.TransformNeeded {
		transform, err := NewColorTransform(plan, profiles)
		if err != nil {
			return report, err
		}
		if err := transform.Apply(samples, raster.Width, raster.Height); err != nil {
			return report, err
		}
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	pix := Quantize(samples, raster.Width, raster.Height, plan)

	encoded, err := encodeOutput(outputPath, pix, raster.Width, raster.Height, plan, extracted.Resolution, profiles.Destination)
	if err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	if err := writeAtomic(outputPath, encoded); err != nil {
		return report, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if plan.WriteICCSidecar && profiles.Destination != nil {
		if err := writeAtomic(sidecarPath(outputPath), profiles.Destination); err != nil {
			return report, fmt.Errorf("%w: sidecar: %v", ErrWrite, err)
		}
	}
	return report, nil
}

func encodeOutput(path string, pix []byte, width, height int, plan *ExecutionPlan, res Resolution, dstICC []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		out, err := EncodeTIFF(pix, width, height, plan.OutDepth, res, dstICC)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWrite, err)
		}
		return out, nil
	case ".png":
		out, err := EncodePNG(pix, width, height, plan.OutDepth, dstICC)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWrite, err)
		}
		return out, nil
	case ".jpg", ".jpeg":
		if plan.OutDepth != 8 {
			return nil, fmt.Errorf("%w: JPEG output requires out-depth b8", ErrUsage)
		}
		out, err := EncodeJPEG(pix, width, height, dstICC, defaultJPEGQuality)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWrite, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported output extension %q", ErrUsage, filepath.Ext(path))
	}
}

// writeAtomic writes to a temp file in the destination directory and renames
// it into place, so a crash or cancellation never leaves a partial output.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".nclr-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// sidecarPath swaps the output extension for .icc.
func sidecarPath(outputPath string) string {
	ext := filepath.Ext(outputPath)
	return strings.TrimSuffix(outputPath, ext) + ".icc"
}
