package calib

import "fmt"

// DetectionKind classifies checkerboard detection failures.
type DetectionKind int

const (
	// NoPatternFound means the frame did not yield the expected corner grid.
	// The caller may simply retry with the next frame.
	NoPatternFound DetectionKind = iota
)

// DetectionError reports a failed corner detection. Session state is left
// untouched.
type DetectionError struct {
	Kind DetectionKind
	Msg  string
}

func (e *DetectionError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("detection failed: %s", e.Msg)
	}
	return "detection failed: no pattern found"
}

// SolveKind classifies solve failures.
type SolveKind int

const (
	// InsufficientSamples means fewer than MinSamples views were captured.
	InsufficientSamples SolveKind = iota
	// DegenerateGeometry means the captured views do not constrain the
	// intrinsics (near-identical poses, coplanar motion) or the optimizer
	// failed to converge.
	DegenerateGeometry
)

// SolveError reports a failed calibration solve. The session returns to
// Capturing so the operator can add more samples; a previously solved
// model is never touched.
type SolveError struct {
	Kind SolveKind
	Msg  string
	Err  error
}

func (e *SolveError) Error() string {
	switch e.Kind {
	case InsufficientSamples:
		return fmt.Sprintf("solve failed: insufficient samples: %s", e.Msg)
	case DegenerateGeometry:
		return fmt.Sprintf("solve failed: degenerate geometry: %s", e.Msg)
	default:
		return fmt.Sprintf("solve failed: %s", e.Msg)
	}
}

func (e *SolveError) Unwrap() error { return e.Err }

// StateKind classifies session state violations.
type StateKind int

const (
	// SessionBusy means another session is already Capturing or Solving.
	SessionBusy StateKind = iota
	// NotCapturing means the operation requires an active Capturing session.
	NotCapturing
)

// StateError reports an operation attempted in the wrong session state.
type StateError struct {
	Kind StateKind
	Msg  string
}

func (e *StateError) Error() string {
	switch e.Kind {
	case SessionBusy:
		return fmt.Sprintf("session busy: %s", e.Msg)
	case NotCapturing:
		return fmt.Sprintf("no capturing session: %s", e.Msg)
	default:
		return e.Msg
	}
}

// ConfigError reports invalid calibration configuration, such as a board
// geometry that cannot exist.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("invalid geometry: %s", e.Msg) }
