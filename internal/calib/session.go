package calib

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/aquasight/sonarcam/internal/camera"
)

// State is the calibration session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateSolving
	StateSolved
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateSolving:
		return "solving"
	case StateSolved:
		return "solved"
	default:
		return "unknown"
	}
}

// MinSamples is the fewest checkerboard views a solve will accept. Ten
// well-spread views constrain the intrinsics and distortion reliably.
const MinSamples = 10

// Result is a successful solve: the intrinsic model and the RMS
// reprojection error in pixels.
type Result struct {
	Intrinsics *camera.Intrinsics
	RMSError   float64
	SessionID  uuid.UUID
}

// Engine owns the single calibration session allowed per process. Its
// state machine is Idle -> Capturing -> Solving -> Solved, with failed
// solves returning to Capturing. Starting a new session while one is
// Capturing or Solving fails with SessionBusy.
type Engine struct {
	detector CornerDetector

	mu      sync.Mutex
	state   State
	id      uuid.UUID
	board   Board
	samples []Sample
	width   int
	height  int
}

// NewEngine creates an engine in the Idle state. A nil detector selects
// the default chessboard detector.
func NewEngine(detector CornerDetector) *Engine {
	if detector == nil {
		detector = NewChessboardDetector()
	}
	return &Engine{detector: detector, state: StateIdle}
}

// State returns the current session state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SampleCount returns the number of captured samples in the active
// session.
func (e *Engine) SampleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.samples)
}

// SessionID returns the identifier of the current session, or uuid.Nil
// when Idle.
func (e *Engine) SessionID() uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}

// Start begins a new capturing session for the given board. It fails with
// SessionBusy while a session is Capturing or Solving; a Solved or Idle
// engine starts fresh, discarding any prior sample list.
func (e *Engine) Start(rows, cols int, squareSize float64) (uuid.UUID, error) {
	board := Board{Rows: rows, Cols: cols, SquareSize: squareSize}
	if err := board.Validate(); err != nil {
		return uuid.Nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateCapturing || e.state == StateSolving {
		return uuid.Nil, &StateError{Kind: SessionBusy, Msg: "a calibration session is already active"}
	}
	e.state = StateCapturing
	e.id = uuid.New()
	e.board = board
	e.samples = nil
	e.width = 0
	e.height = 0
	log.Printf("Calibration session %s started (%dx%d board, %.3fm squares)", e.id, rows, cols, squareSize)
	return e.id, nil
}

// Capture runs corner detection on a frame and appends a sample on
// success. Detection failure leaves the session unchanged; the caller
// retries with the next frame. Returns the sample count after capture.
func (e *Engine) Capture(frame image.Image) (int, error) {
	e.mu.Lock()
	if e.state != StateCapturing {
		e.mu.Unlock()
		return 0, &StateError{Kind: NotCapturing, Msg: "call Start first"}
	}
	board := e.board
	e.mu.Unlock()

	// Detection runs unlocked; it is the expensive part and only touches
	// the frame.
	corners, err := e.detector.FindCorners(frame, board.Rows, board.Cols)
	if err != nil {
		return 0, err
	}

	b := frame.Bounds()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateCapturing {
		return 0, &StateError{Kind: NotCapturing, Msg: "session ended during capture"}
	}
	if e.width == 0 {
		e.width = b.Dx()
		e.height = b.Dy()
	} else if e.width != b.Dx() || e.height != b.Dy() {
		return len(e.samples), &ConfigError{Msg: "frame resolution changed mid-session"}
	}
	e.samples = append(e.samples, Sample{Image: corners, Object: board.ObjectPoints()})
	return len(e.samples), nil
}

// Solve runs the calibration over the captured samples. On success the
// session transitions to Solved, the ephemeral samples are discarded, and
// the solved model is returned for the caller to persist and activate. On
// failure (or cancellation) the session returns to Capturing with all
// samples intact; any previously solved model is unaffected.
func (e *Engine) Solve(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.state != StateCapturing {
		e.mu.Unlock()
		return nil, &StateError{Kind: NotCapturing, Msg: "call Start first"}
	}
	if len(e.samples) < MinSamples {
		err := &SolveError{Kind: InsufficientSamples,
			Msg: fmt.Sprintf("have %d, need %d", len(e.samples), MinSamples)}
		e.mu.Unlock()
		return nil, err
	}
	e.state = StateSolving
	samples := e.samples
	width, height := e.width, e.height
	id := e.id
	e.mu.Unlock()

	intr, rms, err := solveIntrinsics(ctx, samples, width, height)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.state = StateCapturing
		return nil, err
	}
	e.state = StateSolved
	e.samples = nil
	log.Printf("Calibration session %s solved: fx=%.2f fy=%.2f cx=%.2f cy=%.2f rms=%.4fpx",
		id, intr.Fx, intr.Fy, intr.Cx, intr.Cy, rms)
	return &Result{Intrinsics: intr, RMSError: rms, SessionID: id}, nil
}
