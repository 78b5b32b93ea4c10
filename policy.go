package nclr

import "fmt"

func setProfile(dst **NDKProfile, v NDKProfile) {
	if *dst == nil {
		*dst = &v
	}
}

func setInt(dst **int, v int) {
	if *dst == nil {
		*dst = &v
	}
}

func setIntent(dst **Intent, v Intent) {
	if *dst == nil {
		*dst = &v
	}
}

func setBool(dst **bool, v bool) {
	if *dst == nil {
		*dst = &v
	}
}

func setToneMap(dst **ToneMap, v ToneMap) {
	if *dst == nil {
		*dst = &v
	}
}

func setInputMode(dst **InputICCMode, v InputICCMode) {
	if *dst == nil {
		*dst = &v
	}
}

func setOutputMode(dst **OutputICCMode, v OutputICCMode) {
	if *dst == nil {
		*dst = &v
	}
}

// applyPreset fills unset option fields from the chosen preset. Explicit
// flags were already written into the record, so a preset never overrides
// what the user said.
func applyPreset(o *Options) {
	switch o.Preset {
	case PresetNDKMC:
		setProfile(&o.NDKProfile, ProfileMC)
		setInt(&o.OutDepth, 16)
		setInputMode(&o.InputICCMode, InputICCAuto)
		setIntent(&o.Intent, IntentPerceptual)
		setBool(&o.BPC, true)
		setToneMap(&o.ToneMap, ToneMapNone)
		setBool(&o.Dither, false)
	case PresetNDKUCI:
		setProfile(&o.NDKProfile, ProfileUCI)
		setInt(&o.OutDepth, 8)
		setInputMode(&o.InputICCMode, InputICCAuto)
		setIntent(&o.Intent, IntentPerceptual)
		setBool(&o.BPC, true)
		setToneMap(&o.ToneMap, ToneMapNone)
		setBool(&o.Dither, false)
	case PresetNDKUCII:
		setProfile(&o.NDKProfile, ProfileUCII)
		setInt(&o.OutDepth, 8)
		setInputMode(&o.InputICCMode, InputICCAuto)
		setOutputMode(&o.OutputICCMode, OutputICCSRGB)
		setIntent(&o.Intent, IntentPerceptual)
		setBool(&o.BPC, true)
		setToneMap(&o.ToneMap, ToneMapPerceptual)
		setBool(&o.Dither, true)
	}
}

// applyNDKDefaults fills what the preset left unset from the NDK profile's
// policy: bit depth and the output ICC posture.
func applyNDKDefaults(o *Options) {
	switch *o.NDKProfile {
	case ProfileMC:
		setInt(&o.OutDepth, 16)
		setOutputMode(&o.OutputICCMode, OutputICCPreserveInput)
	case ProfileUCI:
		setInt(&o.OutDepth, 8)
		if o.ForceOutICC {
			setOutputMode(&o.OutputICCMode, OutputICCSRGB)
		} else {
			setOutputMode(&o.OutputICCMode, OutputICCNone)
		}
	default: // ProfileUCII
		setInt(&o.OutDepth, 8)
		setOutputMode(&o.OutputICCMode, OutputICCSRGB)
	}
}

func applyGlobalDefaults(o *Options) {
	setProfile(&o.NDKProfile, ProfileUCII)
	setInputMode(&o.InputICCMode, InputICCAuto)
	setIntent(&o.Intent, IntentPerceptual)
	setBool(&o.BPC, true)
	setToneMap(&o.ToneMap, ToneMapNone)
	setBool(&o.Dither, false)
}

// ResolvePlan reconciles the option record into a frozen execution plan.
// Unset fields are filled in precedence order (explicit flags were written
// by the caller, then preset, then NDK-profile defaults, then globals), and
// the NDK policy invariants are enforced last.
func ResolvePlan(opts *Options) (*ExecutionPlan, error) {
	o := *opts

	// A profile path implies the corresponding file mode.
	if o.InputICCFile != "" && o.InputICCMode == nil {
		mode := InputICCFile
		o.InputICCMode = &mode
	}
	if o.OutputICCFile != "" && o.OutputICCMode == nil {
		mode := OutputICCFile
		o.OutputICCMode = &mode
	}

	applyPreset(&o)
	applyGlobalDefaults(&o)
	applyNDKDefaults(&o)

	if *o.InputICCMode == InputICCFile && o.InputICCFile == "" {
		return nil, fmt.Errorf("%w: input ICC mode 'file' requires --input-icc-file", ErrUsage)
	}
	if *o.OutputICCMode == OutputICCFile && o.OutputICCFile == "" {
		return nil, fmt.Errorf("%w: output ICC file policy requires --out-icc", ErrUsage)
	}
	if d := *o.OutDepth; d != 8 && d != 16 {
		return nil, fmt.Errorf("%w: out-depth must be 8 or 16, got %d", ErrUsage, d)
	}

	plan := &ExecutionPlan{
		NDKProfile: *o.NDKProfile,
		OutDepth:   *o.OutDepth,
		Intent:     *o.Intent,
		BPC:        *o.BPC,
		ToneMap:    *o.ToneMap,
		Dither:     *o.Dither,

		InputICCMode: *o.InputICCMode,
		InputICCFile: o.InputICCFile,

		OutputICCMode: *o.OutputICCMode,
		OutputICCFile: o.OutputICCFile,

		SkipICC:         o.SkipICC,
		ForceOutICC:     o.ForceOutICC,
		WriteICCSidecar: o.WriteICCSidecar,
		DebugICC:        o.DebugICC,
	}

	// UC-I keeps its outputs bare unless the user forces an output profile.
	if plan.NDKProfile == ProfileUCI && !plan.ForceOutICC {
		plan.OutputICCMode = OutputICCNone
		plan.OutputICCFile = ""
	}
	return plan, nil
}
