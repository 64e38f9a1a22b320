package calib

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

// renderCheckerboard draws a (rows+1)x(cols+1)-square checkerboard with
// the given square size and margin, returning the image and the expected
// inner-corner positions in row-major order.
func renderCheckerboard(rows, cols, square, margin int) (*image.Gray, [][2]float64) {
	w := margin*2 + (cols+1)*square
	h := margin*2 + (rows+1)*square
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: 230})
		}
	}
	for sr := 0; sr <= rows; sr++ {
		for sc := 0; sc <= cols; sc++ {
			if (sr+sc)%2 != 0 {
				continue
			}
			for y := 0; y < square; y++ {
				for x := 0; x < square; x++ {
					img.SetGray(margin+sc*square+x, margin+sr*square+y, color.Gray{Y: 25})
				}
			}
		}
	}

	want := make([][2]float64, 0, rows*cols)
	for r := 1; r <= rows; r++ {
		for c := 1; c <= cols; c++ {
			want = append(want, [2]float64{float64(margin + c*square), float64(margin + r*square)})
		}
	}
	return img, want
}

func TestChessboardDetectorFindsAllCorners(t *testing.T) {
	const rows, cols = 4, 6
	img, want := renderCheckerboard(rows, cols, 40, 40)

	d := NewChessboardDetector()
	got, err := d.FindCorners(img, rows, cols)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(got) != rows*cols {
		t.Fatalf("got %d corners, want %d", len(got), rows*cols)
	}
	for i := range got {
		dx := got[i][0] - want[i][0]
		dy := got[i][1] - want[i][1]
		if math.Hypot(dx, dy) > 2.0 {
			t.Errorf("corner %d at (%.2f, %.2f), want (%.1f, %.1f)",
				i, got[i][0], got[i][1], want[i][0], want[i][1])
		}
	}
}

func TestChessboardDetectorRowMajorOrder(t *testing.T) {
	const rows, cols = 3, 5
	img, _ := renderCheckerboard(rows, cols, 40, 40)

	d := NewChessboardDetector()
	got, err := d.FindCorners(img, rows, cols)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	// Within each row, u increases; between rows, v increases.
	for r := 0; r < rows; r++ {
		for c := 1; c < cols; c++ {
			if got[r*cols+c][0] <= got[r*cols+c-1][0] {
				t.Fatalf("row %d is not ordered by u", r)
			}
		}
		if r > 0 && got[r*cols][1] <= got[(r-1)*cols][1] {
			t.Fatalf("rows are not ordered by v")
		}
	}
}

func TestBinarizeKeepsUniformRegionsLight(t *testing.T) {
	img, _ := renderCheckerboard(4, 6, 40, 40)
	w := img.Rect.Dx()
	bin := binarize(img)

	// Uniform margin and white squares sit on the light side even though
	// the local mean equals the pixel value there.
	if !bin[5*w+5] {
		t.Error("uniform margin classified dark")
	}
	if !bin[75*w+85] {
		t.Error("white square near an inner corner classified dark")
	}
	// A dark quadrant beside the same corner must stay dark.
	if bin[85*w+85] {
		t.Error("dark square near an inner corner classified light")
	}
}

func TestChessboardDetectorRejectsBlankFrame(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 640, 480))
	d := NewChessboardDetector()
	_, err := d.FindCorners(img, 4, 6)
	var detErr *DetectionError
	if !errors.As(err, &detErr) || detErr.Kind != NoPatternFound {
		t.Errorf("got %v, want no-pattern-found detection error", err)
	}
}

func TestChessboardDetectorRejectsWrongBoardSize(t *testing.T) {
	img, _ := renderCheckerboard(4, 6, 40, 40)
	d := NewChessboardDetector()
	// Asking for a different grid than the frame contains must fail rather
	// than return a partial set.
	if _, err := d.FindCorners(img, 7, 7); err == nil {
		t.Error("expected detection failure for mismatched board size")
	}
}

func TestChessboardDetectorRejectsTinyFrame(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	d := NewChessboardDetector()
	if _, err := d.FindCorners(img, 4, 6); err == nil {
		t.Error("expected detection failure for a tiny frame")
	}
}

func TestChessboardDetectorNilFrame(t *testing.T) {
	d := NewChessboardDetector()
	if _, err := d.FindCorners(nil, 4, 6); err == nil {
		t.Error("expected detection failure for nil frame")
	}
}
