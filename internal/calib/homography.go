package calib

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// estimateHomography computes the planar homography mapping board-plane
// points (X, Y, 0) to image pixels via a normalized direct linear
// transform. Returns the row-major 3x3 matrix scaled so h33 = 1.
func estimateHomography(obj [][3]float64, img [][2]float64) ([9]float64, error) {
	var h [9]float64
	n := len(obj)
	if n < 4 || n != len(img) {
		return h, &SolveError{Kind: DegenerateGeometry, Msg: "homography needs at least 4 point pairs"}
	}

	// Hartley normalization of both point sets conditions the DLT system.
	srcPts := make([][2]float64, n)
	for i, p := range obj {
		srcPts[i] = [2]float64{p[0], p[1]}
	}
	tSrc := normalizingSimilarity(srcPts)
	tDst := normalizingSimilarity(img)

	a := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		x, y := applySimilarity(tSrc, srcPts[i][0], srcPts[i][1])
		u, v := applySimilarity(tDst, img[i][0], img[i][1])
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	hn, ok := smallestSingularVector(a)
	if !ok {
		return h, &SolveError{Kind: DegenerateGeometry, Msg: "homography system is rank deficient"}
	}

	// Denormalize: H = inv(Tdst) * Hn * Tsrc.
	hnM := mat.NewDense(3, 3, hn)
	tSrcM := mat.NewDense(3, 3, tSrc[:])
	tDstM := mat.NewDense(3, 3, tDst[:])
	var tDstInv mat.Dense
	if err := tDstInv.Inverse(tDstM); err != nil {
		return h, &SolveError{Kind: DegenerateGeometry, Msg: "normalization is singular", Err: err}
	}
	var tmp, hFull mat.Dense
	tmp.Mul(hnM, tSrcM)
	hFull.Mul(&tDstInv, &tmp)

	scale := hFull.At(2, 2)
	if math.Abs(scale) < 1e-12 {
		return h, &SolveError{Kind: DegenerateGeometry, Msg: "homography has vanishing scale"}
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[3*r+c] = hFull.At(r, c) / scale
		}
	}
	return h, nil
}

// normalizingSimilarity returns the row-major 3x3 similarity transform
// that moves pts to zero centroid and average distance sqrt(2).
func normalizingSimilarity(pts [][2]float64) [9]float64 {
	var cx, cy float64
	for _, p := range pts {
		cx += p[0]
		cy += p[1]
	}
	n := float64(len(pts))
	cx /= n
	cy /= n

	var meanDist float64
	for _, p := range pts {
		meanDist += math.Hypot(p[0]-cx, p[1]-cy)
	}
	meanDist /= n
	s := 1.0
	if meanDist > 1e-12 {
		s = math.Sqrt2 / meanDist
	}
	return [9]float64{
		s, 0, -s * cx,
		0, s, -s * cy,
		0, 0, 1,
	}
}

func applySimilarity(t [9]float64, x, y float64) (float64, float64) {
	return t[0]*x + t[1]*y + t[2], t[3]*x + t[4]*y + t[5]
}

// smallestSingularVector returns the right singular vector of a
// corresponding to its smallest singular value. The full factorization is
// required: a thin SVD of a wide matrix omits the null-space vectors, so a
// minimally constrained system would yield the wrong column.
func smallestSingularVector(a *mat.Dense) ([]float64, bool) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return nil, false
	}
	var v mat.Dense
	svd.VTo(&v)
	_, cols := v.Dims()
	out := make([]float64, 0, cols)
	rows, _ := v.Dims()
	col := cols - 1
	for r := 0; r < rows; r++ {
		out = append(out, v.At(r, col))
	}
	return out, true
}
