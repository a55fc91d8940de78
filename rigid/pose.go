// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rigid implements the six-parameter camera/frame poses of the
// data model (§3 Pose): a Rodrigues rotation composed with a translation,
// and the analytic Jacobians of a transformed point needed by the
// measurement assembly's chain rule (§4.4).
package rigid

import "math"

// Pose is an unconstrained 6DOF transform: R is a Rodrigues (axis-angle)
// rotation vector in radians, T is a translation in the caller's length
// unit. The reference camera's implicit identity pose (§3) is Pose{}.
type Pose struct {
	R [3]float64
	T [3]float64
}

// Identity returns the zero pose (no rotation, no translation).
func Identity() Pose { return Pose{} }

// Apply transforms point p by the pose: R(p.R)*p + p.T.
func (p Pose) Apply(point [3]float64) [3]float64 {
	R, _ := RotationMatrix(p.R, false)
	return addVec(matVec(R, point), p.T)
}

// ApplyWithJacobian transforms point and additionally returns the two
// Jacobians needed to propagate derivatives through the chain of §4.4:
// dOutDPoint (∂out/∂point, 3x3) and dOutDPose (∂out/∂(r,t), 3x6).
func (p Pose) ApplyWithJacobian(point [3]float64) (out [3]float64, dOutDPoint [3][3]float64, dOutDPose [3][6]float64) {
	R, dRdr := RotationMatrix(p.R, true)
	out = addVec(matVec(R, point), p.T)
	dOutDPoint = R
	for j := 0; j < 3; j++ {
		col := matVec(dRdr[j], point)
		for i := 0; i < 3; i++ {
			dOutDPose[i][j] = col[i]
		}
	}
	for i := 0; i < 3; i++ {
		dOutDPose[i][3+i] = 1
	}
	return
}

func addVec(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func matVec(m [3][3]float64, v [3]float64) [3]float64 {
	return [3]float64{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

func matMul(a, b [3][3]float64) (c [3][3]float64) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += a[i][k] * b[k][j]
			}
			c[i][j] = s
		}
	}
	return
}

func matAdd(a, b [3][3]float64) (c [3][3]float64) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			c[i][j] = a[i][j] + b[i][j]
		}
	}
	return
}

func matScale(a [3][3]float64, s float64) (c [3][3]float64) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			c[i][j] = a[i][j] * s
		}
	}
	return
}

func identity3() [3][3]float64 {
	return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

func skew(v [3]float64) [3][3]float64 {
	return [3][3]float64{
		{0, -v[2], v[1]},
		{v[2], 0, -v[0]},
		{-v[1], v[0], 0},
	}
}

// rotationEpsilon is the rotation angle below which the Rodrigues formula's
// 1/theta terms are replaced by their second-order Taylor expansion.
const rotationEpsilon = 1e-8

// RotationMatrix evaluates the rotation matrix R(r) of a Rodrigues vector r
// via R = I + sin(theta)*K + (1-cos(theta))*K^2, K = skew(r/theta),
// theta=|r|. When wantJ is true it additionally returns the three 3x3
// matrices dR/dr_0, dR/dr_1, dR/dr_2.
func RotationMatrix(r [3]float64, wantJ bool) (R [3][3]float64, dRdr [3][3][3]float64) {
	theta2 := r[0]*r[0] + r[1]*r[1] + r[2]*r[2]
	theta := math.Sqrt(theta2)
	I := identity3()
	Kr := skew(r)

	if theta < rotationEpsilon {
		// small-angle expansion: R ~= I + K + K^2/2
		K2 := matMul(Kr, Kr)
		R = matAdd(I, matAdd(Kr, matScale(K2, 0.5)))
		if wantJ {
			for j := 0; j < 3; j++ {
				var ej [3]float64
				ej[j] = 1
				Ej := skew(ej)
				dK2 := matAdd(matMul(Ej, Kr), matMul(Kr, Ej))
				dRdr[j] = matAdd(Ej, matScale(dK2, 0.5))
			}
		}
		return
	}

	s, c := math.Sin(theta), math.Cos(theta)
	c1 := 1 - c
	k := [3]float64{r[0] / theta, r[1] / theta, r[2] / theta}
	Kk := skew(k)
	Kk2 := matMul(Kk, Kk)
	R = matAdd(I, matAdd(matScale(Kk, s), matScale(Kk2, c1)))

	if wantJ {
		for j := 0; j < 3; j++ {
			dThetaDrj := r[j] / theta
			var dk [3]float64
			for i := 0; i < 3; i++ {
				d := -r[i] * r[j] / (theta * theta2)
				if i == j {
					d += 1 / theta
				}
				dk[i] = d
			}
			dKk := skew(dk)
			ds := c * dThetaDrj
			dc1 := s * dThetaDrj
			dKk2 := matAdd(matMul(dKk, Kk), matMul(Kk, dKk))
			dRdr[j] = matAdd(matScale(Kk, ds), matAdd(matScale(dKk, s), matAdd(matScale(Kk2, dc1), matScale(dKk2, c1))))
		}
	}
	return
}
