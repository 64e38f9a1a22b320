package calib

import (
	"context"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/aquasight/sonarcam/internal/camera"
)

// Sample is one checkerboard observation: detected corner pixels paired
// with the board-frame coordinates of the same corners. Samples exist
// only for the lifetime of a capturing session.
type Sample struct {
	Image  [][2]float64
	Object [][3]float64
}

// viewPose is the board-to-camera transform recovered for one sample.
type viewPose struct {
	rot   [3]float64 // axis-angle
	trans [3]float64
}

// refineRMSThreshold skips non-linear refinement when the closed-form
// estimate already explains the data to numeric noise (synthetic or very
// clean captures).
const refineRMSThreshold = 1e-8

// solveIntrinsics runs the full calibration: per-view homographies,
// closed-form intrinsics from the absolute-conic constraints, per-view
// extrinsics, then joint refinement of intrinsics, distortion and poses
// minimizing reprojection error.
func solveIntrinsics(ctx context.Context, samples []Sample, width, height int) (*camera.Intrinsics, float64, error) {
	homs := make([][9]float64, len(samples))
	for i, s := range samples {
		h, err := estimateHomography(s.Object, s.Image)
		if err != nil {
			return nil, 0, err
		}
		homs[i] = h
	}

	intr, err := intrinsicsFromHomographies(homs, width, height)
	if err != nil {
		return nil, 0, err
	}

	poses := make([]viewPose, len(samples))
	for i := range samples {
		pose, err := extrinsicsFromHomography(homs[i], intr)
		if err != nil {
			return nil, 0, err
		}
		poses[i] = pose
	}

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	rms := reprojectionRMS(samples, intr, poses)
	if math.IsNaN(rms) || math.IsInf(rms, 0) {
		return nil, 0, &SolveError{Kind: DegenerateGeometry, Msg: "closed-form estimate diverged"}
	}
	if rms > refineRMSThreshold {
		intr, poses, rms, err = refine(ctx, samples, intr, poses)
		if err != nil {
			return nil, 0, err
		}
	}
	if err := intr.CheckValid(); err != nil {
		return nil, 0, &SolveError{Kind: DegenerateGeometry, Msg: "solve produced unusable intrinsics", Err: err}
	}
	return intr, rms, nil
}

// conicRow builds the Zhang constraint row v_ij from homography columns i
// and j: v_ij^T b = 0 where b packs the symmetric conic B.
func conicRow(h [9]float64, i, j int) [6]float64 {
	hi := [3]float64{h[i], h[3+i], h[6+i]}
	hj := [3]float64{h[j], h[3+j], h[6+j]}
	return [6]float64{
		hi[0] * hj[0],
		hi[0]*hj[1] + hi[1]*hj[0],
		hi[1] * hj[1],
		hi[2]*hj[0] + hi[0]*hj[2],
		hi[2]*hj[1] + hi[1]*hj[2],
		hi[2] * hj[2],
	}
}

// intrinsicsFromHomographies recovers the pinhole parameters from the
// image of the absolute conic, following Zhang's closed-form solution.
func intrinsicsFromHomographies(homs [][9]float64, width, height int) (*camera.Intrinsics, error) {
	if len(homs) < 2 {
		return nil, &SolveError{Kind: DegenerateGeometry, Msg: "need at least two views"}
	}
	rows := 2 * len(homs)
	v := mat.NewDense(rows, 6, nil)
	for i, h := range homs {
		v01 := conicRow(h, 0, 1)
		v00 := conicRow(h, 0, 0)
		v11 := conicRow(h, 1, 1)
		var diff [6]float64
		for k := 0; k < 6; k++ {
			diff[k] = v00[k] - v11[k]
		}
		v.SetRow(2*i, v01[:])
		v.SetRow(2*i+1, diff[:])
	}

	// Identical or pure-translation views leave the conic system rank
	// deficient: detect it before extracting parameters.
	var svd mat.SVD
	if !svd.Factorize(v, mat.SVDThin) {
		return nil, &SolveError{Kind: DegenerateGeometry, Msg: "conic system factorization failed"}
	}
	vals := svd.Values(nil)
	if vals[0] <= 0 || vals[len(vals)-2]/vals[0] < 1e-9 {
		return nil, &SolveError{Kind: DegenerateGeometry, Msg: "views do not constrain the intrinsics (near-identical poses)"}
	}

	b, ok := smallestSingularVector(v)
	if !ok {
		return nil, &SolveError{Kind: DegenerateGeometry, Msg: "conic system is rank deficient"}
	}
	b11, b12, b22, b13, b23, b33 := b[0], b[1], b[2], b[3], b[4], b[5]

	den := b11*b22 - b12*b12
	if math.Abs(den) < 1e-18 || math.Abs(b11) < 1e-18 {
		return nil, &SolveError{Kind: DegenerateGeometry, Msg: "conic solution is singular"}
	}
	cy := (b12*b13 - b11*b23) / den
	lambda := b33 - (b13*b13+cy*(b12*b13-b11*b23))/b11
	if lambda/b11 <= 0 || lambda*b11/den <= 0 {
		return nil, &SolveError{Kind: DegenerateGeometry, Msg: "conic solution is not positive definite"}
	}
	fx := math.Sqrt(lambda / b11)
	fy := math.Sqrt(lambda * b11 / den)
	skew := -b12 * fx * fx * fy / lambda
	cx := skew*cy/fy - b13*fx*fx/lambda

	intr := &camera.Intrinsics{
		Width:  width,
		Height: height,
		Fx:     fx,
		Fy:     fy,
		Cx:     cx,
		Cy:     cy,
	}
	if err := intr.CheckValid(); err != nil {
		return nil, &SolveError{Kind: DegenerateGeometry, Msg: "closed-form intrinsics are unusable", Err: err}
	}
	return intr, nil
}

// extrinsicsFromHomography recovers the board-to-camera pose for one view
// given the solved intrinsics.
func extrinsicsFromHomography(h [9]float64, intr *camera.Intrinsics) (viewPose, error) {
	kInv := mat.NewDense(3, 3, []float64{
		1 / intr.Fx, 0, -intr.Cx / intr.Fx,
		0, 1 / intr.Fy, -intr.Cy / intr.Fy,
		0, 0, 1,
	})
	col := func(i int) *mat.VecDense {
		return mat.NewVecDense(3, []float64{h[i], h[3+i], h[6+i]})
	}
	var r1, r2, t mat.VecDense
	r1.MulVec(kInv, col(0))
	r2.MulVec(kInv, col(1))
	t.MulVec(kInv, col(2))

	norm := mat.Norm(&r1, 2)
	if norm < 1e-12 {
		return viewPose{}, &SolveError{Kind: DegenerateGeometry, Msg: "view homography collapses"}
	}
	scale := 1 / norm
	r1.ScaleVec(scale, &r1)
	r2.ScaleVec(scale, &r2)
	t.ScaleVec(scale, &t)

	// The board must sit in front of the camera.
	if t.AtVec(2) < 0 {
		r1.ScaleVec(-1, &r1)
		r2.ScaleVec(-1, &r2)
		t.ScaleVec(-1, &t)
	}

	r3 := [3]float64{
		r1.AtVec(1)*r2.AtVec(2) - r1.AtVec(2)*r2.AtVec(1),
		r1.AtVec(2)*r2.AtVec(0) - r1.AtVec(0)*r2.AtVec(2),
		r1.AtVec(0)*r2.AtVec(1) - r1.AtVec(1)*r2.AtVec(0),
	}
	rApprox := mat.NewDense(3, 3, []float64{
		r1.AtVec(0), r2.AtVec(0), r3[0],
		r1.AtVec(1), r2.AtVec(1), r3[1],
		r1.AtVec(2), r2.AtVec(2), r3[2],
	})

	// Snap to the nearest true rotation: R = U V^T of the SVD.
	var svd mat.SVD
	if !svd.Factorize(rApprox, mat.SVDThin) {
		return viewPose{}, &SolveError{Kind: DegenerateGeometry, Msg: "rotation factorization failed"}
	}
	var u, vt mat.Dense
	svd.UTo(&u)
	svd.VTo(&vt)
	var r mat.Dense
	r.Mul(&u, vt.T())
	if mat.Det(&r) < 0 {
		// Flip the last column of U to stay in SO(3).
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, vt.T())
	}

	var m [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[3*i+j] = r.At(i, j)
		}
	}
	return viewPose{
		rot:   camera.MatrixToAxisAngle(m),
		trans: [3]float64{t.AtVec(0), t.AtVec(1), t.AtVec(2)},
	}, nil
}

// projectSample projects one board point through a view pose and the
// intrinsics (with distortion).
func projectSample(obj [3]float64, pose viewPose, intr *camera.Intrinsics) (float64, float64, bool) {
	r := camera.AxisAngleToMatrix(pose.rot)
	x := r[0]*obj[0] + r[1]*obj[1] + r[2]*obj[2] + pose.trans[0]
	y := r[3]*obj[0] + r[4]*obj[1] + r[5]*obj[2] + pose.trans[1]
	z := r[6]*obj[0] + r[7]*obj[1] + r[8]*obj[2] + pose.trans[2]
	if z <= 1e-9 {
		return 0, 0, false
	}
	u, v := intr.Project(x, y, z)
	return u, v, true
}

// reprojectionRMS computes the root-mean-square pixel error over all
// corners of all samples.
func reprojectionRMS(samples []Sample, intr *camera.Intrinsics, poses []viewPose) float64 {
	var sse float64
	var n int
	for i, s := range samples {
		for j, obj := range s.Object {
			u, v, ok := projectSample(obj, poses[i], intr)
			if !ok {
				return math.Inf(1)
			}
			du := u - s.Image[j][0]
			dv := v - s.Image[j][1]
			sse += du*du + dv*dv
			n++
		}
	}
	if n == 0 {
		return math.Inf(1)
	}
	return math.Sqrt(sse / float64(n))
}

// refine jointly optimizes intrinsics, distortion and per-view poses by
// minimizing mean squared reprojection error.
func refine(ctx context.Context, samples []Sample, intr *camera.Intrinsics, poses []viewPose) (*camera.Intrinsics, []viewPose, float64, error) {
	nIntr := 9 // fx fy cx cy k1 k2 p1 p2 k3
	params := make([]float64, nIntr+6*len(poses))
	params[0] = intr.Fx
	params[1] = intr.Fy
	params[2] = intr.Cx
	params[3] = intr.Cy
	for i, p := range poses {
		base := nIntr + 6*i
		copy(params[base:base+3], p.rot[:])
		copy(params[base+3:base+6], p.trans[:])
	}

	unpack := func(p []float64) (*camera.Intrinsics, []viewPose) {
		in := &camera.Intrinsics{
			Width: intr.Width, Height: intr.Height,
			Fx: p[0], Fy: p[1], Cx: p[2], Cy: p[3],
			Distortion: camera.Distortion{K1: p[4], K2: p[5], P1: p[6], P2: p[7], K3: p[8]},
		}
		vps := make([]viewPose, len(poses))
		for i := range vps {
			base := nIntr + 6*i
			copy(vps[i].rot[:], p[base:base+3])
			copy(vps[i].trans[:], p[base+3:base+6])
		}
		return in, vps
	}

	objective := func(p []float64) float64 {
		// An infinite objective stops the line search at the next
		// evaluation, so cancellation does not wait out the full
		// iteration budget.
		if ctx.Err() != nil {
			return math.Inf(1)
		}
		in, vps := unpack(p)
		var sse float64
		var n int
		for i, s := range samples {
			for j, obj := range s.Object {
				u, v, ok := projectSample(obj, vps[i], in)
				if !ok {
					return math.Inf(1)
				}
				du := u - s.Image[j][0]
				dv := v - s.Image[j][1]
				sse += du*du + dv*dv
				n++
			}
		}
		return sse / float64(n)
	}

	problem := optimize.Problem{
		Func: objective,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, objective, x, nil)
		},
	}
	settings := &optimize.Settings{
		MajorIterations: 300,
		Converger: &optimize.FunctionConverge{
			Relative:   1e-10,
			Absolute:   1e-12,
			Iterations: 50,
		},
	}
	result, err := optimize.Minimize(problem, params, settings, &optimize.LBFGS{})
	if cerr := ctx.Err(); cerr != nil {
		return nil, nil, 0, cerr
	}
	if err != nil || result == nil {
		return nil, nil, 0, &SolveError{Kind: DegenerateGeometry, Msg: "refinement did not converge", Err: err}
	}

	refIntr, refPoses := unpack(result.X)
	rms := reprojectionRMS(samples, refIntr, refPoses)
	if math.IsNaN(rms) || math.IsInf(rms, 0) {
		return nil, nil, 0, &SolveError{Kind: DegenerateGeometry, Msg: "refinement diverged"}
	}
	// Keep whichever estimate reprojects better; LBFGS can stall on flat
	// distortion directions without improving on the linear estimate.
	if init := reprojectionRMS(samples, intr, poses); init < rms {
		return intr, poses, init, nil
	}
	return refIntr, refPoses, rms, nil
}
