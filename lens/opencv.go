// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lens

// openCVDistortion implements the Brown-Conrady radial+tangential model
// shared by OPENCV4/5/8/12/14 (§4.2). The coefficient slice is always laid
// out in the same fixed order:
//
//	[k1 k2 p1 p2 k3 k4 k5 k6 s1 s2 s3 s4 s5 s6]
//
// and a family simply uses a prefix of it (OPENCV4 uses the first 4, ...,
// OPENCV14 uses all 14). Missing trailing coefficients are treated as
// zero, which lets a single formula serve every family: OPENCV4/5 have no
// rational-denominator terms (k4..k6) and no prism terms (s1..s6), so the
// denominator degenerates to 1 and the prism terms vanish automatically.
type openCVDistortion struct{}

func coef(c []float64, i int) float64 {
	if i < len(c) {
		return c[i]
	}
	return 0
}

func (openCVDistortion) distort(u, v float64, c []float64) (xd, yd float64, dUV [2][2]float64, dCoef [2][]float64) {
	k1, k2, p1, p2 := coef(c, 0), coef(c, 1), coef(c, 2), coef(c, 3)
	k3, k4, k5, k6 := coef(c, 4), coef(c, 5), coef(c, 6), coef(c, 7)
	s1, s2, s3, s4 := coef(c, 8), coef(c, 9), coef(c, 10), coef(c, 11)
	s5, s6 := coef(c, 12), coef(c, 13)

	r2 := u*u + v*v
	r4 := r2 * r2
	r6 := r4 * r2

	num := 1 + k1*r2 + k2*r4 + k3*r6
	den := 1 + k4*r2 + k5*r4 + k6*r6
	radial := num / den

	xd = u*radial + 2*p1*u*v + p2*(r2+2*u*u) + s1*r2 + s2*r4 + s5*r6
	yd = v*radial + p1*(r2+2*v*v) + 2*p2*u*v + s3*r2 + s4*r4 + s6*r6

	// d(r2)/du = 2u, d(r2)/dv = 2v
	dr2Du, dr2Dv := 2*u, 2*v
	dr4Du, dr4Dv := 2*r2*dr2Du, 2*r2*dr2Dv
	dr6Du, dr6Dv := 3*r2*r2*dr2Du, 3*r2*r2*dr2Dv

	dnumDu := k1*dr2Du + k2*dr4Du + k3*dr6Du
	dnumDv := k1*dr2Dv + k2*dr4Dv + k3*dr6Dv
	ddenDu := k4*dr2Du + k5*dr4Du + k6*dr6Du
	ddenDv := k4*dr2Dv + k5*dr4Dv + k6*dr6Dv

	dRadialDu := (dnumDu*den - num*ddenDu) / (den * den)
	dRadialDv := (dnumDv*den - num*ddenDv) / (den * den)

	dxdDu := radial + u*dRadialDu + 2*p1*v + 6*p2*u + s1*dr2Du + s2*dr4Du + s5*dr6Du
	dxdDv := u*dRadialDv + 2*p1*u + 2*p2*v + s1*dr2Dv + s2*dr4Dv + s5*dr6Dv
	dydDu := v*dRadialDu + 2*p1*u + 2*p2*v + s3*dr2Du + s4*dr4Du + s6*dr6Du
	dydDv := radial + v*dRadialDv + 6*p1*v + 2*p2*u + s3*dr2Dv + s4*dr4Dv + s6*dr6Dv

	dUV = [2][2]float64{{dxdDu, dxdDv}, {dydDu, dydDv}}

	n := len(c)
	dx := make([]float64, n)
	dy := make([]float64, n)
	// dradial/dk_i for the numerator coefficients: r^(2i+2)/den
	if n > 0 {
		dx[0] = u * r2 / den
		dy[0] = v * r2 / den
	}
	if n > 1 {
		dx[1] = u * r4 / den
		dy[1] = v * r4 / den
	}
	if n > 2 { // p1
		dx[2] = 2 * u * v
		dy[2] = r2 + 2*v*v
	}
	if n > 3 { // p2
		dx[3] = r2 + 2*u*u
		dy[3] = 2 * u * v
	}
	if n > 4 { // k3
		dx[4] = u * r6 / den
		dy[4] = v * r6 / den
	}
	// dradial/dk_j for the denominator coefficients j=k4,k5,k6: -radial*r^(2j)/den
	if n > 5 {
		dx[5] = -u * radial * r2 / den
		dy[5] = -v * radial * r2 / den
	}
	if n > 6 {
		dx[6] = -u * radial * r4 / den
		dy[6] = -v * radial * r4 / den
	}
	if n > 7 {
		dx[7] = -u * radial * r6 / den
		dy[7] = -v * radial * r6 / den
	}
	if n > 8 { // s1
		dx[8] = r2
	}
	if n > 9 { // s2
		dx[9] = r4
	}
	if n > 10 { // s3
		dy[10] = r2
	}
	if n > 11 { // s4
		dy[11] = r4
	}
	if n > 12 { // s5
		dx[12] = r6
	}
	if n > 13 { // s6
		dy[13] = r6
	}

	dCoef = [2][]float64{dx, dy}
	return
}
