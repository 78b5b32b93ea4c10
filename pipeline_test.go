package nclr

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"seehuhn.de/go/icc"
)

func writeTestPNG(t *testing.T, path string, w, h int) []byte {
	t.Helper()
	src := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		src.Pix[i*4] = byte(i * 13)
		src.Pix[i*4+1] = byte(i * 29)
		src.Pix[i*4+2] = byte(i * 47)
		src.Pix[i*4+3] = 0xFF
	}
	data := encodePNG(t, src)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	rgb := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		copy(rgb[i*3:], src.Pix[i*4:i*4+3])
	}
	return rgb
}

func skipICCPlan(t *testing.T, depth int) *ExecutionPlan {
	t.Helper()
	d := depth
	skip := true
	plan, err := ResolvePlan(&Options{OutDepth: &d, SkipICC: skip})
	if err != nil {
		t.Fatalf("ResolvePlan: %v", err)
	}
	return plan
}

func TestConvertFileIdentity8Bit(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.tif")
	want := writeTestPNG(t, in, 6, 4)

	report, err := ConvertFile(context.Background(), skipICCPlan(t, 8), in, out)
	if err != nil {
		t.Fatalf("ConvertFile: %v", err)
	}
	if len(report.Warnings) != 0 {
		t.Fatalf("warnings: %v", report.Warnings)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	decoded, err := DecodeImage(data)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	r := decoded.Raster
	if r.Depth != 8 {
		t.Fatalf("output depth = %d, want 8", r.Depth)
	}
	got := make([]byte, len(want))
	for i := 0; i < r.Width*r.Height; i++ {
		copy(got[i*3:], r.Pix[i*r.Channels:i*r.Channels+3])
	}
	if !bytes.Equal(got, want) {
		t.Fatal("skip-icc 8-bit pipeline is not byte-identical")
	}
}

func TestConvertFileIdentity16Bit(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.tif")
	out := filepath.Join(dir, "out.tif")

	const w, h = 3, 5
	pix := make([]byte, w*h*6)
	for i := range pix {
		pix[i] = byte(i * 7)
	}
	src, err := EncodeTIFF(pix, w, h, 16, defaultResolution(), nil)
	if err != nil {
		t.Fatalf("EncodeTIFF fixture: %v", err)
	}
	if err := os.WriteFile(in, src, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := ConvertFile(context.Background(), skipICCPlan(t, 16), in, out); err != nil {
		t.Fatalf("ConvertFile: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	decoded, err := DecodeImage(data)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	r := decoded.Raster
	if r.Depth != 16 {
		t.Fatalf("output depth = %d, want 16", r.Depth)
	}
	bpp := r.Channels * 2
	got := make([]byte, len(pix))
	for i := 0; i < r.Width*r.Height; i++ {
		copy(got[i*6:], r.Pix[i*bpp:i*bpp+6])
	}
	if !bytes.Equal(got, pix) {
		t.Fatal("skip-icc 16-bit pipeline is not byte-identical")
	}
}

func TestConvertFileMCPreservesEmbeddedProfile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.tif")
	out := filepath.Join(dir, "out.tif")

	const w, h = 2, 2
	pix := make([]byte, w*h*6)
	res := Resolution{X: Rational{600, 1}, Y: Rational{600, 1}, Unit: resolutionUnitInch}
	src, err := EncodeTIFF(pix, w, h, 16, res, icc.SRGBv2Profile)
	if err != nil {
		t.Fatalf("EncodeTIFF fixture: %v", err)
	}
	if err := os.WriteFile(in, src, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	plan, err := ResolvePlan(&Options{Preset: PresetNDKMC})
	if err != nil {
		t.Fatalf("ResolvePlan: %v", err)
	}
	if _, err := ConvertFile(context.Background(), plan, in, out); err != nil {
		t.Fatalf("ConvertFile: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	meta, err := readTIFFMeta(data)
	if err != nil {
		t.Fatalf("readTIFFMeta: %v", err)
	}
	if !bytes.Equal(meta.ICC, icc.SRGBv2Profile) {
		t.Fatal("MC output must carry the source profile byte-exact")
	}
	if meta.XRes == nil || meta.XRes.Num != 600 {
		t.Fatalf("resolution not carried: %v", meta.XRes)
	}
}

func TestConvertFileUCIOmitsProfile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.tif")
	writeTestPNG(t, in, 3, 3)

	plan, err := ResolvePlan(&Options{Preset: PresetNDKUCI})
	if err != nil {
		t.Fatalf("ResolvePlan: %v", err)
	}
	if _, err := ConvertFile(context.Background(), plan, in, out); err != nil {
		t.Fatalf("ConvertFile: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	meta, err := readTIFFMeta(data)
	if err != nil {
		t.Fatalf("readTIFFMeta: %v", err)
	}
	if meta.ICC != nil {
		t.Fatal("UC-I output must not carry an ICC profile")
	}
}

func TestConvertFileUCIIEmbedsSRGB(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.tif")
	writeTestPNG(t, in, 3, 3)

	plan, err := ResolvePlan(&Options{Preset: PresetNDKUCII})
	if err != nil {
		t.Fatalf("ResolvePlan: %v", err)
	}
	if _, err := ConvertFile(context.Background(), plan, in, out); err != nil {
		t.Fatalf("ConvertFile: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	meta, err := readTIFFMeta(data)
	if err != nil {
		t.Fatalf("readTIFFMeta: %v", err)
	}
	if !bytes.Equal(meta.ICC, builtinSRGB()) {
		t.Fatal("UC-II output must carry the built-in sRGB profile")
	}
}

func TestConvertFileWritesSidecar(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.tif")
	writeTestPNG(t, in, 2, 2)

	sidecar := true
	plan, err := ResolvePlan(&Options{Preset: PresetNDKUCII, WriteICCSidecar: sidecar})
	if err != nil {
		t.Fatalf("ResolvePlan: %v", err)
	}
	if _, err := ConvertFile(context.Background(), plan, in, out); err != nil {
		t.Fatalf("ConvertFile: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "out.icc"))
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	if !bytes.Equal(got, builtinSRGB()) {
		t.Fatal("sidecar bytes differ from the destination profile")
	}
}

func TestConvertFileCancelled(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.tif")
	writeTestPNG(t, in, 2, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ConvertFile(ctx, skipICCPlan(t, 8), in, out); err == nil {
		t.Fatal("cancelled context must abort the pipeline")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatal("cancelled pipeline must not leave an output file")
	}
}

func TestRunBatch(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	writeTestPNG(t, filepath.Join(inDir, "a.png"), 2, 2)
	writeTestPNG(t, filepath.Join(inDir, "b.png"), 2, 2)
	if err := os.WriteFile(filepath.Join(inDir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	plan := skipICCPlan(t, 8)
	report, err := RunBatch(context.Background(), plan, inDir, outDir, BatchOptions{Jobs: 2})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if len(report.Results) != 2 || report.Failed != 0 {
		t.Fatalf("results = %d failed = %d, want 2/0", len(report.Results), report.Failed)
	}
	for _, name := range []string{"a.tif", "b.tif"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("missing output %s: %v", name, err)
		}
	}

	// A second run without --overwrite skips everything.
	report, err = RunBatch(context.Background(), plan, inDir, outDir, BatchOptions{Jobs: 2})
	if err != nil {
		t.Fatalf("RunBatch rerun: %v", err)
	}
	if report.Skipped != 2 || report.Failed != 0 {
		t.Fatalf("skipped = %d failed = %d, want 2/0", report.Skipped, report.Failed)
	}
}

func TestRunBatchRecursiveWithSuffix(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	sub := filepath.Join(inDir, "box1")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeTestPNG(t, filepath.Join(sub, "scan.png"), 2, 2)

	report, err := RunBatch(context.Background(), skipICCPlan(t, 8), inDir, outDir,
		BatchOptions{Recursive: true, Suffix: "_uc", OutExt: "png", Jobs: 1})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if report.Failed != 0 {
		t.Fatalf("failed = %d: %+v", report.Failed, report.Results)
	}
	if _, err := os.Stat(filepath.Join(outDir, "box1", "scan_uc.png")); err != nil {
		t.Fatalf("recursive output missing: %v", err)
	}
}

func TestRunBatchPartialFailure(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	writeTestPNG(t, filepath.Join(inDir, "good.png"), 2, 2)
	if err := os.WriteFile(filepath.Join(inDir, "bad.png"), []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := RunBatch(context.Background(), skipICCPlan(t, 8), inDir, outDir, BatchOptions{Jobs: 2})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if report.Failed != 1 {
		t.Fatalf("failed = %d, want 1", report.Failed)
	}
}

func TestSidecarPath(t *testing.T) {
	if got := sidecarPath("/out/scan.tif"); got != "/out/scan.icc" {
		t.Fatalf("sidecarPath = %q", got)
	}
	if got := sidecarPath("scan.jpeg"); got != "scan.icc" {
		t.Fatalf("sidecarPath = %q", got)
	}
}
