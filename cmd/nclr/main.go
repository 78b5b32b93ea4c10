package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/houserekj/nclr"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("nclr", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() { usage(fs) }

	var (
		input  = fs.String("input", "", "input file or directory")
		output = fs.String("output", "", "output file or directory")

		preset     = fs.String("preset", "", "convenience preset: ndk-mc, ndk-uc-i, ndk-uc-ii")
		ndkProfile = fs.String("ndk-profile", "uc-ii", "NDK policy profile: mc, uc-i, uc-ii")

		detectInputICC = fs.String("detect-input-icc", "auto", "source profile detection: auto, srgb, file")
		inputICCFile   = fs.String("input-icc-file", "", "source ICC profile path (with -detect-input-icc file)")
		outICC         = fs.String("out-icc", "", "destination ICC profile path")
		forceOutICC    = fs.Bool("force-out-icc", false, "embed an output profile even for uc-i")
		writeICC       = fs.Bool("write-icc", false, "write the destination profile as an .icc sidecar")
		debugICC       = fs.Bool("debug-icc", false, "print profile diagnostics")
		noICC          = fs.Bool("no-icc", false, "skip the color transform entirely")

		intent   = fs.String("intent", "perceptual", "rendering intent: perceptual, relative, absolute, saturation")
		bpc      = fs.Bool("bpc", true, "black point compensation")
		outDepth = fs.String("out-depth", "", "output bit depth: b8, b16")
		toneMap  = fs.String("tone-map", "none", "16->8 tone curve: none, gamma, perceptual")
		dither   = fs.Bool("dither", false, "Floyd-Steinberg dithering during 16->8")

		recursive bool
		outExt    = fs.String("out-ext", "tif", "batch output extension: tif, tiff, png, jpg, jpeg")
		suffix    = fs.String("suffix", "", "batch output filename suffix")
		overwrite = fs.Bool("overwrite", false, "replace existing outputs")
		jobs      = fs.Int("jobs", runtime.GOMAXPROCS(0), "max files converted in parallel")
	)
	fs.BoolVar(&recursive, "recursive", false, "recurse into subdirectories")
	fs.BoolVar(&recursive, "r", false, "recurse into subdirectories (shorthand)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nclr.ExitOK
		}
		return nclr.ExitUsage
	}
	if *input == "" || *output == "" {
		fmt.Fprintln(os.Stderr, "nclr: --input and --output are required")
		fs.Usage()
		return nclr.ExitUsage
	}

	opts, err := buildOptions(fs, *preset, *ndkProfile, *detectInputICC, *inputICCFile,
		*outICC, *forceOutICC, *writeICC, *debugICC, *noICC,
		*intent, *bpc, *outDepth, *toneMap, *dither)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nclr: %v\n", err)
		return nclr.ExitCodeFor(err)
	}
	plan, err := nclr.ResolvePlan(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nclr: %v\n", err)
		return nclr.ExitCodeFor(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := os.Stat(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nclr: %s: %v\n", *input, err)
		return nclr.ExitOther
	}
	if st.IsDir() {
		return runBatch(ctx, plan, *input, *output, nclr.BatchOptions{
			Recursive: recursive,
			OutExt:    *outExt,
			Suffix:    *suffix,
			Overwrite: *overwrite,
			Jobs:      *jobs,
		})
	}

	report, err := nclr.ConvertFile(ctx, plan, *input, *output)
	printReport(report)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", *input, err)
		return nclr.ExitCodeFor(err)
	}
	return nclr.ExitOK
}

func runBatch(ctx context.Context, plan *nclr.ExecutionPlan, inDir, outDir string, bo nclr.BatchOptions) int {
	report, err := nclr.RunBatch(ctx, plan, inDir, outDir, bo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nclr: %v\n", err)
		return nclr.ExitCodeFor(err)
	}
	for _, r := range report.Results {
		printReport(r.Report)
		if r.Err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.Input, r.Err)
		}
	}
	if report.Failed > 0 {
		fmt.Fprintf(os.Stderr, "nclr: %d of %d files failed\n", report.Failed, len(report.Results))
		return nclr.ExitPartialBatch
	}
	return nclr.ExitOK
}

func printReport(r *nclr.FileReport) {
	if r == nil {
		return
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(os.Stderr, "%s: warning: %s\n", r.Input, w)
	}
	for _, d := range r.Debug {
		fmt.Printf("%s: %s\n", r.Input, d)
	}
}

// buildOptions maps parsed flags onto the option record. Enum and bool
// fields are recorded only when the user actually passed the flag, so the
// preset and profile defaults can fill the rest.
func buildOptions(fs *flag.FlagSet, preset, ndkProfile, detectInputICC, inputICCFile,
	outICC string, forceOutICC, writeICC, debugICC, noICC bool,
	intent string, bpc bool, outDepth, toneMap string, dither bool) (*nclr.Options, error) {

	visited := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { visited[f.Name] = true })

	opts := &nclr.Options{
		InputICCFile:    inputICCFile,
		OutputICCFile:   outICC,
		SkipICC:         noICC,
		ForceOutICC:     forceOutICC,
		WriteICCSidecar: writeICC,
		DebugICC:        debugICC,
	}
	if outICC != "" {
		mode := nclr.OutputICCFile
		opts.OutputICCMode = &mode
	}

	if preset != "" {
		p, err := parsePreset(preset)
		if err != nil {
			return nil, err
		}
		opts.Preset = p
	}
	if visited["ndk-profile"] {
		p, err := parseNDKProfile(ndkProfile)
		if err != nil {
			return nil, err
		}
		opts.NDKProfile = &p
	}
	if visited["detect-input-icc"] {
		m, err := parseInputICCMode(detectInputICC)
		if err != nil {
			return nil, err
		}
		opts.InputICCMode = &m
	}
	if visited["intent"] {
		i, err := parseIntent(intent)
		if err != nil {
			return nil, err
		}
		opts.Intent = &i
	}
	if visited["bpc"] {
		v := bpc
		opts.BPC = &v
	}
	if visited["out-depth"] || outDepth != "" {
		d, err := parseOutDepth(outDepth)
		if err != nil {
			return nil, err
		}
		opts.OutDepth = &d
	}
	if visited["tone-map"] {
		t, err := parseToneMap(toneMap)
		if err != nil {
			return nil, err
		}
		opts.ToneMap = &t
	}
	if visited["dither"] {
		v := dither
		opts.Dither = &v
	}
	return opts, nil
}

func parsePreset(s string) (nclr.Preset, error) {
	switch s {
	case "ndk-mc":
		return nclr.PresetNDKMC, nil
	case "ndk-uc-i":
		return nclr.PresetNDKUCI, nil
	case "ndk-uc-ii":
		return nclr.PresetNDKUCII, nil
	default:
		return nclr.PresetNone, fmt.Errorf("%w: unknown preset %q", nclr.ErrUsage, s)
	}
}

func parseNDKProfile(s string) (nclr.NDKProfile, error) {
	switch s {
	case "mc":
		return nclr.ProfileMC, nil
	case "uc-i":
		return nclr.ProfileUCI, nil
	case "uc-ii":
		return nclr.ProfileUCII, nil
	default:
		return 0, fmt.Errorf("%w: unknown ndk-profile %q", nclr.ErrUsage, s)
	}
}

func parseInputICCMode(s string) (nclr.InputICCMode, error) {
	switch s {
	case "auto":
		return nclr.InputICCAuto, nil
	case "srgb":
		return nclr.InputICCForceSRGB, nil
	case "file":
		return nclr.InputICCFile, nil
	default:
		return 0, fmt.Errorf("%w: unknown detect-input-icc mode %q", nclr.ErrUsage, s)
	}
}

func parseIntent(s string) (nclr.Intent, error) {
	switch s {
	case "perceptual":
		return nclr.IntentPerceptual, nil
	case "relative":
		return nclr.IntentRelative, nil
	case "absolute":
		return nclr.IntentAbsolute, nil
	case "saturation":
		return nclr.IntentSaturation, nil
	default:
		return 0, fmt.Errorf("%w: unknown intent %q", nclr.ErrUsage, s)
	}
}

func parseOutDepth(s string) (int, error) {
	switch s {
	case "b8":
		return 8, nil
	case "b16":
		return 16, nil
	default:
		return 0, fmt.Errorf("%w: out-depth must be b8 or b16, got %q", nclr.ErrUsage, s)
	}
}

func parseToneMap(s string) (nclr.ToneMap, error) {
	switch s {
	case "none":
		return nclr.ToneMapNone, nil
	case "gamma":
		return nclr.ToneMapGamma22, nil
	case "perceptual":
		return nclr.ToneMapPerceptual, nil
	default:
		return 0, fmt.Errorf("%w: unknown tone-map %q", nclr.ErrUsage, s)
	}
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintln(os.Stderr, "Usage: nclr [options] -input <path> -output <path>")
	fmt.Fprintln(os.Stderr, "Converts TIFF/PNG/JPEG scans into validator-clean archival outputs")
	fmt.Fprintln(os.Stderr, "following the NDK MC / UC-I / UC-II color policies.")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Options:")
	fs.PrintDefaults()
}
