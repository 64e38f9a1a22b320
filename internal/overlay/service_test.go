package overlay

import (
	"context"
	"image"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquasight/sonarcam/internal/calib"
	"github.com/aquasight/sonarcam/internal/camera"
	"github.com/aquasight/sonarcam/internal/pointcloud"
	"github.com/aquasight/sonarcam/internal/store"
)

// viewDetector replays synthetic corner detections, one per frame.
type viewDetector struct {
	corners [][][2]float64
	calls   int
}

func (d *viewDetector) FindCorners(img image.Image, rows, cols int) ([][2]float64, error) {
	if d.calls >= len(d.corners) {
		return nil, &calib.DetectionError{Kind: calib.NoPatternFound, Msg: "out of views"}
	}
	out := d.corners[d.calls]
	d.calls++
	return out, nil
}

// synthesizeDetections projects a checkerboard through distinct poses with
// a known camera, giving the detector perfectly consistent corner sets.
func synthesizeDetections(t *testing.T, intr *camera.Intrinsics, board calib.Board, n int) *viewDetector {
	t.Helper()
	obj := board.ObjectPoints()
	views := make([][][2]float64, 0, n)
	for i := 0; i < n; i++ {
		pose := camera.Pose{
			Rotation: [3]float64{
				0.35 * math.Sin(float64(i)*1.1),
				0.35 * math.Cos(float64(i)*0.7),
				0.15 * math.Sin(float64(i)*0.5),
			},
			Translation: [3]float64{
				-0.1 + 0.02*float64(i),
				0.05 - 0.015*float64(i),
				0.8 + 0.07*float64(i),
			},
		}
		img := make([][2]float64, len(obj))
		for j, o := range obj {
			x, y, z := pose.Apply(o[0], o[1], o[2])
			require.Greater(t, z, 0.0)
			u, v := intr.Project(x, y, z)
			img[j] = [2]float64{u, v}
		}
		views = append(views, img)
	}
	return &viewDetector{corners: views}
}

func newTestService(t *testing.T, detector calib.CornerDetector) (*Service, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calibration.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc, err := NewService(st, &pointcloud.Snapshot{}, detector)
	require.NoError(t, err)
	return svc, path
}

func TestServiceStartsUnconfigured(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, _, ok := svc.Intrinsics()
	assert.False(t, ok)
	_, ok = svc.Extrinsics()
	assert.False(t, ok)

	_, err := svc.ProjectLatest(nil)
	assert.True(t, camera.IsNotConfigured(err))
}

func TestServiceOptionsClamping(t *testing.T) {
	svc, _ := newTestService(t, nil)
	got := svc.SetOptions(Options{Enabled: true, PointSize: 99, Decimate: -3, ColorMode: "rainbow"})
	assert.Equal(t, 10, got.PointSize)
	assert.Equal(t, 1, got.Decimate)
	assert.Equal(t, "range", got.ColorMode)

	got = svc.SetOptions(Options{Enabled: true, PointSize: 3, Decimate: 16, ColorMode: "intensity"})
	assert.Equal(t, Options{Enabled: true, PointSize: 3, Decimate: 16, ColorMode: "intensity"}, got)
	assert.Equal(t, got, svc.Options())
}

func TestServiceDisabledOverlayIsEmpty(t *testing.T) {
	svc, _ := newTestService(t, nil)
	opts := svc.Options()
	opts.Enabled = false
	svc.SetOptions(opts)

	frame, err := svc.ProjectLatest(nil)
	require.NoError(t, err)
	assert.Empty(t, frame.Points)
}

func TestServiceExtrinsicsPersistAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.db")
	st, err := store.Open(path)
	require.NoError(t, err)

	svc, err := NewService(st, &pointcloud.Snapshot{}, nil)
	require.NoError(t, err)
	require.NoError(t, svc.SaveExtrinsics([3]float64{0.1, 0.2, 0.3}, [3]float64{0, 0.05, 0}))
	require.NoError(t, st.Close())

	st2, err := store.Open(path)
	require.NoError(t, err)
	defer st2.Close()
	svc2, err := NewService(st2, &pointcloud.Snapshot{}, nil)
	require.NoError(t, err)

	p, ok := svc2.Extrinsics()
	require.True(t, ok)
	assert.Equal(t, [3]float64{0.1, 0.2, 0.3}, p.Rotation)
	assert.Equal(t, [3]float64{0, 0.05, 0}, p.Translation)
}

func TestServiceRejectsInvalidExtrinsics(t *testing.T) {
	svc, _ := newTestService(t, nil)
	err := svc.SaveExtrinsics([3]float64{math.NaN(), 0, 0}, [3]float64{})
	require.Error(t, err)
	_, ok := svc.Extrinsics()
	assert.False(t, ok, "invalid pose must not activate")
}

func TestServiceCalibrationFlowActivatesAndPersists(t *testing.T) {
	truth := &camera.Intrinsics{Width: 1280, Height: 720, Fx: 1000, Fy: 1050, Cx: 640, Cy: 360}
	board := calib.Board{Rows: 6, Cols: 9, SquareSize: 0.03}
	detector := synthesizeDetections(t, truth, board, calib.MinSamples)

	path := filepath.Join(t.TempDir(), "calibration.db")
	st, err := store.Open(path)
	require.NoError(t, err)

	svc, err := NewService(st, &pointcloud.Snapshot{}, detector)
	require.NoError(t, err)

	_, err = svc.StartCalibration(board.Rows, board.Cols, board.SquareSize)
	require.NoError(t, err)

	frame := image.NewGray(image.Rect(0, 0, truth.Width, truth.Height))
	for i := 0; i < calib.MinSamples; i++ {
		n, err := svc.CaptureCalibrationFrame(frame)
		require.NoError(t, err)
		require.Equal(t, i+1, n)
	}

	res, err := svc.SolveCalibration(context.Background())
	require.NoError(t, err)
	assert.InEpsilon(t, truth.Fx, res.Intrinsics.Fx, 1e-2)

	active, rms, ok := svc.Intrinsics()
	require.True(t, ok)
	assert.Equal(t, res.Intrinsics, active)
	assert.Equal(t, res.RMSError, rms)

	// A restart reloads the persisted model.
	require.NoError(t, st.Close())
	st2, err := store.Open(path)
	require.NoError(t, err)
	defer st2.Close()
	svc2, err := NewService(st2, &pointcloud.Snapshot{}, nil)
	require.NoError(t, err)
	loaded, _, ok := svc2.Intrinsics()
	require.True(t, ok)
	assert.Equal(t, active, loaded)
}

func TestServiceProjectLatest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clouds := &pointcloud.Snapshot{}
	svc, err := NewService(st, clouds, nil)
	require.NoError(t, err)

	intr := &camera.Intrinsics{Width: 1280, Height: 720, Fx: 1000, Fy: 1000, Cx: 640, Cy: 360}
	require.NoError(t, st.SaveIntrinsics(intr, 0.2))
	// Activate by restart semantics: a fresh service loads the model.
	svc, err = NewService(st, clouds, nil)
	require.NoError(t, err)

	// Sonar forward (+x) onto camera depth (+z).
	require.NoError(t, svc.SaveExtrinsics([3]float64{0, -math.Pi / 2, 0}, [3]float64{}))

	pts := make([]pointcloud.Point, 8)
	for i := range pts {
		pts[i] = pointcloud.Point{X: 5, Y: float64(i) * 0.01, Intensity: 200}
	}
	clouds.Publish(&pointcloud.Cloud{Points: pts})

	svc.SetOptions(Options{Enabled: true, PointSize: 2, Decimate: 2, ColorMode: "range"})
	frame, err := svc.ProjectLatest(&camera.Bounds{Width: 1280, Height: 720})
	require.NoError(t, err)
	assert.Len(t, frame.Points, 4)
	assert.Equal(t, 2, frame.PointSize)
	for _, p := range frame.Points {
		assert.InDelta(t, 5.0, p.Depth, 1e-9)
	}

	// Mismatched frame size is an error, not a silent wrong overlay.
	_, err = svc.ProjectLatest(&camera.Bounds{Width: 640, Height: 480})
	require.Error(t, err)
}
