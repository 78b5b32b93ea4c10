package nclr

import "errors"

// Error categories. Pipeline stages wrap these with %w so callers can map
// a failure onto an exit code with errors.Is.
var (
	ErrUsage             = errors.New("invalid usage")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrDecode            = errors.New("image decode failed")
	ErrProfileLoad       = errors.New("ICC profile load failed")
	ErrTransformBuild    = errors.New("cannot build color transform")
	ErrTransformRuntime  = errors.New("color transform failed")
	ErrWrite             = errors.New("output write failed")
)

// Exit codes of the nclr command.
const (
	ExitOK           = 0
	ExitOther        = 1
	ExitUsage        = 2
	ExitDecode       = 3
	ExitProfile      = 4
	ExitTransform    = 5
	ExitWrite        = 6
	ExitPartialBatch = 7
)

// ExitCodeFor maps an error onto the documented exit codes.
func ExitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUsage):
		return ExitUsage
	case errors.Is(err, ErrDecode), errors.Is(err, ErrUnsupportedFormat):
		return ExitDecode
	case errors.Is(err, ErrProfileLoad):
		return ExitProfile
	case errors.Is(err, ErrTransformBuild), errors.Is(err, ErrTransformRuntime):
		return ExitTransform
	case errors.Is(err, ErrWrite):
		return ExitWrite
	default:
		return ExitOther
	}
}
