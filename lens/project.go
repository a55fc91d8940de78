// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lens

import "math"

// zEpsilon is the minimum |p.z| below which a point is considered to be at
// or behind the camera, per spec §4.2.
const zEpsilon = 1e-9

// DerivRequest selects which partial derivatives Project computes.
type DerivRequest struct {
	Point      bool // want ∂px/∂p
	Intrinsics bool // want ∂px/∂intrinsics
}

// Result is the outcome of projecting one 3D point.
type Result struct {
	Pixel [2]float64

	// Valid is false when the point was behind the camera or too close to
	// the image plane; Pixel is then {NaN, NaN} and the derivatives below
	// are left at their zero value (§4.2, §7 ProjectionInvalid).
	Valid bool

	DPoint      [2][3]float64 // ∂px/∂p, populated iff requested and Valid
	DIntrinsics [2][]float64  // ∂px/∂intrinsics, populated iff requested and Valid
}

// distortion is the uniform interface every family implements: given
// undistorted normalized coordinates (u,v) and the family's coefficient
// block, compute distorted normalized coordinates and their partials.
type distortion interface {
	// distort returns (xd, yd), the 2x2 Jacobian d(xd,yd)/d(u,v), and the
	// 2xNd Jacobian d(xd,yd)/d(coeffs) (nil rows if Nd==0).
	distort(u, v float64, coeffs []float64) (xd, yd float64, dUV [2][2]float64, dCoef [2][]float64)
}

func distortionFor(family Family) distortion {
	switch family {
	case None:
		return noneDistortion{}
	case OpenCV4, OpenCV5, OpenCV8, OpenCV12, OpenCV14:
		return openCVDistortion{}
	case CAHVOR:
		return cahvorDistortion{}
	case CAHVORE:
		return cahvoreDistortion{}
	default:
		return nil
	}
}

// Project maps one 3D point p, expressed in the camera frame, to a pixel
// under the pinhole-plus-distortion model selected by family, per §4.2.
// intrinsics must have length TotalIntrinsicCount(family).
func Project(p [3]float64, family Family, intrinsics []float64, req DerivRequest) Result {
	var res Result

	if math.Abs(p[2]) < zEpsilon || p[2] <= 0 {
		res.Pixel = [2]float64{math.NaN(), math.NaN()}
		return res
	}

	dist := distortionFor(family)
	if dist == nil {
		res.Pixel = [2]float64{math.NaN(), math.NaN()}
		return res
	}

	fx, fy, cx, cy := intrinsics[0], intrinsics[1], intrinsics[2], intrinsics[3]
	coeffs := intrinsics[4:]

	u := p[0] / p[2]
	v := p[1] / p[2]

	xd, yd, dUV, dCoef := dist.distort(u, v, coeffs)

	res.Valid = true
	res.Pixel = [2]float64{fx*xd + cx, fy*yd + cy}

	if req.Point {
		// d(u,v)/dp
		duDp := [3]float64{1 / p[2], 0, -p[0] / (p[2] * p[2])}
		dvDp := [3]float64{0, 1 / p[2], -p[1] / (p[2] * p[2])}
		for k := 0; k < 3; k++ {
			dxdDp := dUV[0][0]*duDp[k] + dUV[0][1]*dvDp[k]
			dydDp := dUV[1][0]*duDp[k] + dUV[1][1]*dvDp[k]
			res.DPoint[0][k] = fx * dxdDp
			res.DPoint[1][k] = fy * dydDp
		}
	}

	if req.Intrinsics {
		n := 4 + len(coeffs)
		res.DIntrinsics[0] = make([]float64, n)
		res.DIntrinsics[1] = make([]float64, n)
		res.DIntrinsics[0][0] = xd // dpx/dfx
		res.DIntrinsics[0][1] = 0
		res.DIntrinsics[0][2] = 1 // dpx/dcx
		res.DIntrinsics[0][3] = 0
		res.DIntrinsics[1][0] = 0
		res.DIntrinsics[1][1] = yd // dpy/dfy
		res.DIntrinsics[1][2] = 0
		res.DIntrinsics[1][3] = 1 // dpy/dcy
		for k := 0; k < len(coeffs); k++ {
			var dxdDk, dydDk float64
			if dCoef[0] != nil {
				dxdDk = dCoef[0][k]
			}
			if dCoef[1] != nil {
				dydDk = dCoef[1][k]
			}
			res.DIntrinsics[0][4+k] = fx * dxdDk
			res.DIntrinsics[1][4+k] = fy * dydDk
		}
	}

	return res
}

// ProjectMany projects N points sharing one family and one intrinsics
// vector, mirroring the per-point semantics of Project.
func ProjectMany(points [][3]float64, family Family, intrinsics []float64, req DerivRequest) []Result {
	out := make([]Result, len(points))
	for i, p := range points {
		out[i] = Project(p, family, intrinsics, req)
	}
	return out
}
