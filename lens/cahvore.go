// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lens

import "math"

// cahvoreDistortion implements CAHVORE (§4.2): CAHVOR extended with an
// entrance-pupil parameter E and a linearity parameter, applied to the
// normalized ray before the five-coefficient radial-offset step.
//
// The original CAHVORE model shifts the unprojected 3D ray by E before the
// pinhole division; this package's projection kernel only hands distortion
// implementations the already-divided (u,v), so here E and linearity are
// folded into an equivalent radial remapping of (u,v) — blending the
// perspective radius r=|u,v| with the equidistant angle theta=atan(r)
// according to linearity, then perturbing the blended radius by E. This
// keeps CAHVORE, like every other family, a pure function of (u,v).
type cahvoreDistortion struct{}

func (cahvoreDistortion) distort(u, v float64, c []float64) (xd, yd float64, dUV [2][2]float64, dCoef [2][]float64) {
	if len(c) < 9 {
		padded := make([]float64, 9)
		copy(padded, c)
		c = padded
	}
	radial := c[0:5]
	ox, oy, e, lin := c[5], c[6], c[7], c[8]

	r2 := u*u + v*v
	r := math.Sqrt(r2)

	var scale, dscaleDr, dscaleDe, dscaleDlin float64
	if r < 1e-12 {
		scale = 1
		dscaleDr, dscaleDe, dscaleDlin = 0, 0, 0
	} else {
		theta := math.Atan(r)
		dthetaDr := 1 / (1 + r2)
		rlin := lin*r + (1-lin)*theta
		drlinDr := lin + (1-lin)*dthetaDr
		drlinDlin := r - theta

		reff := rlin + e*rlin*rlin
		dreffDrlin := 1 + 2*e*rlin
		dreffDe := rlin * rlin

		scale = reff / r
		dreffDr := dreffDrlin * drlinDr
		dscaleDr = (dreffDr*r - reff) / (r * r)
		dscaleDe = dreffDe / r
		dscaleDlin = dreffDrlin * drlinDlin / r
	}

	u2 := u * scale
	v2 := v * scale

	var du2Du, du2Dv, dv2Du, dv2Dv float64
	if r < 1e-12 {
		du2Du, dv2Dv = scale, scale
		du2Dv, dv2Du = 0, 0
	} else {
		dscaleDu := dscaleDr * (u / r)
		dscaleDv := dscaleDr * (v / r)
		du2Du = scale + u*dscaleDu
		du2Dv = u * dscaleDv
		dv2Du = v * dscaleDu
		dv2Dv = scale + v*dscaleDv
	}

	xd, yd, dUV2, dCoef5 := radialOffsetModel(u2, v2, radial, ox, oy)

	// chain rule through the (u,v) -> (u2,v2) remap
	dUV[0][0] = dUV2[0][0]*du2Du + dUV2[0][1]*dv2Du
	dUV[0][1] = dUV2[0][0]*du2Dv + dUV2[0][1]*dv2Dv
	dUV[1][0] = dUV2[1][0]*du2Du + dUV2[1][1]*dv2Du
	dUV[1][1] = dUV2[1][0]*du2Dv + dUV2[1][1]*dv2Dv

	dx := make([]float64, 9)
	dy := make([]float64, 9)
	copy(dx[0:7], dCoef5[0]) // c1..c5, ox, oy: no indirect dependency on (u2,v2)
	copy(dy[0:7], dCoef5[1])

	du2De := u * dscaleDe
	dv2De := v * dscaleDe
	du2Dlin := u * dscaleDlin
	dv2Dlin := v * dscaleDlin

	dx[7] = dUV2[0][0]*du2De + dUV2[0][1]*dv2De // d xd / d e
	dy[7] = dUV2[1][0]*du2De + dUV2[1][1]*dv2De // d yd / d e
	dx[8] = dUV2[0][0]*du2Dlin + dUV2[0][1]*dv2Dlin
	dy[8] = dUV2[1][0]*du2Dlin + dUV2[1][1]*dv2Dlin

	dCoef = [2][]float64{dx, dy}
	return
}
