package calib

import (
	"image"
	"math"
	"sort"

	xdraw "golang.org/x/image/draw"
)

// CornerDetector finds the inner corners of a rows x cols checkerboard in
// a frame, returned row-major with sub-pixel precision.
type CornerDetector interface {
	FindCorners(img image.Image, rows, cols int) ([][2]float64, error)
}

// ChessboardDetector is the default detector: local-mean binarization, an
// X-corner ring test, clustering, grid ordering along the board's
// principal axes, and gradient-based sub-pixel refinement.
type ChessboardDetector struct {
	// RingRadius is the sampling radius of the X-corner test in pixels.
	RingRadius int
}

// NewChessboardDetector returns a detector with default parameters.
func NewChessboardDetector() *ChessboardDetector {
	return &ChessboardDetector{RingRadius: 5}
}

// FindCorners implements CornerDetector.
func (d *ChessboardDetector) FindCorners(img image.Image, rows, cols int) ([][2]float64, error) {
	if img == nil {
		return nil, &DetectionError{Kind: NoPatternFound, Msg: "nil frame"}
	}
	gray := toGray(img)
	w := gray.Rect.Dx()
	h := gray.Rect.Dy()
	if w < 4*d.RingRadius || h < 4*d.RingRadius {
		return nil, &DetectionError{Kind: NoPatternFound, Msg: "frame too small"}
	}

	bin := binarize(gray)
	candidates := d.xCorners(bin, w, h)
	centers := clusterCandidates(candidates, float64(2*d.RingRadius))
	if len(centers) != rows*cols {
		return nil, &DetectionError{Kind: NoPatternFound, Msg: "corner count does not match board"}
	}

	grid, ok := orderGrid(centers, rows, cols)
	if !ok {
		return nil, &DetectionError{Kind: NoPatternFound, Msg: "corners do not form a grid"}
	}

	for i := range grid {
		grid[i] = refineSubPixel(gray, grid[i])
	}
	return grid, nil
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(gray, gray.Rect, img, b.Min, xdraw.Src)
	return gray
}

// binarizeOffset biases the adaptive threshold so that uniform regions,
// where the local mean equals the pixel value, classify as light instead
// of dark.
const binarizeOffset = 10

// binarize thresholds each pixel against the local mean computed with an
// integral image.
func binarize(gray *image.Gray) []bool {
	w := gray.Rect.Dx()
	h := gray.Rect.Dy()

	// Integral image with an extra top/left border row.
	integral := make([]uint64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var rowSum uint64
		for x := 0; x < w; x++ {
			rowSum += uint64(gray.GrayAt(x, y).Y)
			integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + rowSum
		}
	}

	win := minInt(w, h) / 8
	if win < 15 {
		win = 15
	}
	if win%2 == 0 {
		win++
	}
	half := win / 2

	bin := make([]bool, w*h)
	for y := 0; y < h; y++ {
		y0 := maxInt(0, y-half)
		y1 := minInt(h-1, y+half)
		for x := 0; x < w; x++ {
			x0 := maxInt(0, x-half)
			x1 := minInt(w-1, x+half)
			area := uint64((x1 - x0 + 1) * (y1 - y0 + 1))
			sum := integral[(y1+1)*(w+1)+x1+1] - integral[y0*(w+1)+x1+1] -
				integral[(y1+1)*(w+1)+x0] + integral[y0*(w+1)+x0]
			mean := float64(sum) / float64(area)
			bin[y*w+x] = float64(gray.GrayAt(x, y).Y) > mean-binarizeOffset
		}
	}
	return bin
}

// xCorners scans for checkerboard inner corners: points where a ring of
// samples alternates dark/light exactly four times and diagonally opposite
// samples agree (the signature of two dark and two light quadrants).
func (d *ChessboardDetector) xCorners(bin []bool, w, h int) [][2]int {
	const ringSamples = 16
	r := float64(d.RingRadius)
	var offs [ringSamples][2]int
	for k := 0; k < ringSamples; k++ {
		a := 2 * math.Pi * float64(k) / ringSamples
		offs[k] = [2]int{int(math.Round(r * math.Cos(a))), int(math.Round(r * math.Sin(a)))}
	}

	margin := d.RingRadius + 1
	var out [][2]int
	var ring [ringSamples]bool
	for y := margin; y < h-margin; y++ {
		for x := margin; x < w-margin; x++ {
			for k := 0; k < ringSamples; k++ {
				ring[k] = bin[(y+offs[k][1])*w+x+offs[k][0]]
			}
			transitions := 0
			white := 0
			opposite := 0
			for k := 0; k < ringSamples; k++ {
				if ring[k] != ring[(k+1)%ringSamples] {
					transitions++
				}
				if ring[k] {
					white++
				}
				if ring[k] == ring[(k+ringSamples/2)%ringSamples] {
					opposite++
				}
			}
			// Up to four ring samples can land exactly on the quadrant
			// boundary lines of an axis-aligned board, where pixel
			// discretization breaks diagonal agreement in pairs.
			if transitions == 4 && opposite >= ringSamples-4 && white >= 5 && white <= 11 {
				out = append(out, [2]int{x, y})
			}
		}
	}
	return out
}

// clusterCandidates merges nearby candidate pixels into centroids.
func clusterCandidates(candidates [][2]int, radius float64) [][2]float64 {
	type cluster struct {
		sumX, sumY float64
		n          int
	}
	var clusters []*cluster
	for _, c := range candidates {
		cx, cy := float64(c[0]), float64(c[1])
		var best *cluster
		for _, cl := range clusters {
			mx := cl.sumX / float64(cl.n)
			my := cl.sumY / float64(cl.n)
			if math.Hypot(cx-mx, cy-my) <= radius {
				best = cl
				break
			}
		}
		if best == nil {
			clusters = append(clusters, &cluster{sumX: cx, sumY: cy, n: 1})
		} else {
			best.sumX += cx
			best.sumY += cy
			best.n++
		}
	}
	out := make([][2]float64, len(clusters))
	for i, cl := range clusters {
		out[i] = [2]float64{cl.sumX / float64(cl.n), cl.sumY / float64(cl.n)}
	}
	return out
}

// orderGrid arranges detected corners row-major. Points are rotated into
// the board's principal frame, split into rows by the largest gaps along
// one axis, and sorted along the other. Both axis assignments are tried.
func orderGrid(pts [][2]float64, rows, cols int) ([][2]float64, bool) {
	theta := principalAngle(pts)
	cosT := math.Cos(-theta)
	sinT := math.Sin(-theta)

	type rotated struct {
		orig [2]float64
		rx   float64
		ry   float64
	}
	rot := make([]rotated, len(pts))
	for i, p := range pts {
		rot[i] = rotated{
			orig: p,
			rx:   p[0]*cosT - p[1]*sinT,
			ry:   p[0]*sinT + p[1]*cosT,
		}
	}

	try := func(swap bool) ([][2]float64, bool) {
		key := func(r rotated) float64 {
			if swap {
				return r.rx
			}
			return r.ry
		}
		minor := func(r rotated) float64 {
			if swap {
				return r.ry
			}
			return r.rx
		}
		sorted := make([]rotated, len(rot))
		copy(sorted, rot)
		sort.Slice(sorted, func(i, j int) bool { return key(sorted[i]) < key(sorted[j]) })

		// Split into rows at the (rows-1) largest gaps along the row axis.
		if len(sorted) != rows*cols {
			return nil, false
		}
		type gap struct {
			idx  int
			size float64
		}
		gaps := make([]gap, 0, len(sorted)-1)
		for i := 1; i < len(sorted); i++ {
			gaps = append(gaps, gap{idx: i, size: key(sorted[i]) - key(sorted[i-1])})
		}
		sort.Slice(gaps, func(i, j int) bool { return gaps[i].size > gaps[j].size })
		splits := make([]int, 0, rows-1)
		for i := 0; i < rows-1 && i < len(gaps); i++ {
			splits = append(splits, gaps[i].idx)
		}
		sort.Ints(splits)

		out := make([][2]float64, 0, len(sorted))
		start := 0
		bounds := append(splits, len(sorted))
		for _, end := range bounds {
			row := sorted[start:end]
			if len(row) != cols {
				return nil, false
			}
			rowCopy := make([]rotated, len(row))
			copy(rowCopy, row)
			sort.Slice(rowCopy, func(i, j int) bool { return minor(rowCopy[i]) < minor(rowCopy[j]) })
			for _, r := range rowCopy {
				out = append(out, r.orig)
			}
			start = end
		}
		return out, true
	}

	if out, ok := try(false); ok {
		return out, true
	}
	return try(true)
}

// principalAngle returns the orientation of the point set's major axis.
func principalAngle(pts [][2]float64) float64 {
	var mx, my float64
	for _, p := range pts {
		mx += p[0]
		my += p[1]
	}
	n := float64(len(pts))
	mx /= n
	my /= n

	var sxx, sxy, syy float64
	for _, p := range pts {
		dx := p[0] - mx
		dy := p[1] - my
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	return 0.5 * math.Atan2(2*sxy, sxx-syy)
}

// refineSubPixel sharpens a corner estimate with the gradient orthogonality
// condition: at the true saddle point, sum over the window of
// (grad I)(grad I)^T (q - p) is zero.
func refineSubPixel(gray *image.Gray, c [2]float64) [2]float64 {
	const window = 5
	const iterations = 5
	w := gray.Rect.Dx()
	h := gray.Rect.Dy()

	at := func(x, y int) float64 {
		if x < 0 {
			x = 0
		} else if x >= w {
			x = w - 1
		}
		if y < 0 {
			y = 0
		} else if y >= h {
			y = h - 1
		}
		return float64(gray.GrayAt(x, y).Y)
	}

	q := c
	for iter := 0; iter < iterations; iter++ {
		cx := int(math.Round(q[0]))
		cy := int(math.Round(q[1]))
		var a11, a12, a22, b1, b2 float64
		for dy := -window; dy <= window; dy++ {
			for dx := -window; dx <= window; dx++ {
				px := cx + dx
				py := cy + dy
				gx := (at(px+1, py) - at(px-1, py)) / 2
				gy := (at(px, py+1) - at(px, py-1)) / 2
				a11 += gx * gx
				a12 += gx * gy
				a22 += gy * gy
				b1 += gx*gx*float64(px) + gx*gy*float64(py)
				b2 += gx*gy*float64(px) + gy*gy*float64(py)
			}
		}
		det := a11*a22 - a12*a12
		if math.Abs(det) < 1e-9 {
			break
		}
		nx := (a22*b1 - a12*b2) / det
		ny := (a11*b2 - a12*b1) / det
		if math.Hypot(nx-q[0], ny-q[1]) > float64(window) {
			break // refinement wandered off the corner
		}
		moved := math.Hypot(nx-q[0], ny-q[1])
		q[0] = nx
		q[1] = ny
		if moved < 0.01 {
			break
		}
	}
	return q
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
