package nclr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// BatchOptions controls directory conversion.
type BatchOptions struct {
	Recursive bool
	OutExt    string // output extension without the dot; default tif
	Suffix    string // appended to the file stem before the extension
	Overwrite bool
	Jobs      int // max concurrent files; <=0 means 1
}

// FileResult pairs one input with its outcome.
type FileResult struct {
	Input  string
	Output string
	Report *FileReport
	Err    error
}

// BatchReport collects per-file outcomes. Failed counts files whose pipeline
// errored; Skipped counts outputs that already existed without --overwrite.
type BatchReport struct {
	Results []FileResult
	Failed  int
	Skipped int
}

func supportedInputExt(ext string) bool {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "tif", "tiff", "png", "jpg", "jpeg":
		return true
	}
	return false
}

// ValidOutExt reports whether ext names a writable container.
func ValidOutExt(ext string) bool {
	return supportedInputExt(ext)
}

// collectInputs lists convertible files under root, sorted by path for a
// stable processing order. Non-recursive mode takes only the top level.
func collectInputs(root string, recursive bool) ([]string, error) {
	var files []string
	if recursive {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && supportedInputExt(filepath.Ext(path)) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && supportedInputExt(filepath.Ext(e.Name())) {
				files = append(files, filepath.Join(root, e.Name()))
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// OutputPathFor maps an input under inDir onto outDir, keeping the relative
// layout, applying the suffix and swapping the extension.
func OutputPathFor(inputPath, inDir, outDir, suffix, outExt string) (string, error) {
	rel, err := filepath.Rel(inDir, inputPath)
	if err != nil {
		return "", err
	}
	ext := filepath.Ext(rel)
	stem := strings.TrimSuffix(rel, ext)
	return filepath.Join(outDir, stem+suffix+"."+outExt), nil
}

// RunBatch converts every supported file under inDir into outDir, up to
// Jobs files in parallel. Per-file failures are collected, not fatal; the
// caller maps a partially failed batch onto its exit code.
func RunBatch(ctx context.Context, plan *ExecutionPlan, inDir, outDir string, bo BatchOptions) (*BatchReport, error) {
	if bo.OutExt == "" {
		bo.OutExt = "tif"
	}
	if !ValidOutExt(bo.OutExt) {
		return nil, fmt.Errorf("%w: unsupported --out-ext %q", ErrUsage, bo.OutExt)
	}
	inputs, err := collectInputs(inDir, bo.Recursive)
	if err != nil {
		return nil, fmt.Errorf("scan input directory: %w", err)
	}

	report := &BatchReport{Results: make([]FileResult, len(inputs))}
	jobs := bo.Jobs
	if jobs <= 0 {
		jobs = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, input := range inputs {
		i, input := i, input
		output, err := OutputPathFor(input, inDir, outDir, bo.Suffix, bo.OutExt)
		if err != nil {
			report.Results[i] = FileResult{Input: input, Err: err}
			continue
		}
		report.Results[i] = FileResult{Input: input, Output: output}
		g.Go(func() error {
			if gctx.Err() != nil {
				report.Results[i].Err = gctx.Err()
				return nil
			}
			if !bo.Overwrite {
				if _, err := os.Stat(output); err == nil {
					report.Results[i].Report = &FileReport{Input: input, Output: output}
					report.Results[i].Err = errSkipped
					return nil
				}
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				report.Results[i].Err = fmt.Errorf("%w: %v", ErrWrite, err)
				return nil
			}
			fr, err := ConvertFile(gctx, plan, input, output)
			report.Results[i].Report = fr
			report.Results[i].Err = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	for i := range report.Results {
		switch {
		case report.Results[i].Err == errSkipped:
			report.Results[i].Err = nil
			report.Skipped++
		case report.Results[i].Err != nil:
			report.Failed++
		}
	}
	return report, nil
}

var errSkipped = fmt.Errorf("output exists")
