// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lens

// cahvorDistortion implements the CAHVOR model (§4.2): a radial polynomial
// driven by three coefficients (c1,c2,c3), evaluated about an optical-axis
// offset O=(ox,oy) rather than about the undistorted origin.
type cahvorDistortion struct{}

// radialOffsetModel evaluates, about offset (ox,oy), the radial polynomial
//
//	mu(ro2) = 1 + c[0]*ro2 + c[1]*ro2^2 + ... + c[n-1]*ro2^n
//
// where ro2 = (u-ox)^2+(v-oy)^2, and returns the distorted point
//
//	xd = ox + (u-ox)*mu,  yd = oy + (v-oy)*mu
//
// along with its full Jacobian with respect to (u,v) and the n+2
// coefficients [c..., ox, oy]. Shared by CAHVOR (n=3) and, as the inner
// step, CAHVORE (n=5).
func radialOffsetModel(u, v float64, c []float64, ox, oy float64) (xd, yd float64, dUV [2][2]float64, dC [2][]float64) {
	uo := u - ox
	vo := v - oy
	ro2 := uo*uo + vo*vo

	mu := 1.0
	dmuDro2 := 0.0
	ro2Pow := 1.0
	powers := make([]float64, len(c)) // ro2^(i+1), reused for the coefficient derivatives
	for i, ci := range c {
		ro2Pow *= ro2
		powers[i] = ro2Pow
		mu += ci * ro2Pow
		if ro2 != 0 {
			dmuDro2 += float64(i+1) * ci * ro2Pow / ro2
		}
	}

	xd = ox + uo*mu
	yd = oy + vo*mu

	dro2Du, dro2Dv := 2*uo, 2*vo
	dmuDu := dmuDro2 * dro2Du
	dmuDv := dmuDro2 * dro2Dv

	dUV[0][0] = mu + uo*dmuDu
	dUV[0][1] = uo * dmuDv
	dUV[1][0] = vo * dmuDu
	dUV[1][1] = mu + vo*dmuDv

	n := len(c)
	dx := make([]float64, n+2)
	dy := make([]float64, n+2)
	for i := 0; i < n; i++ {
		dx[i] = uo * powers[i]
		dy[i] = vo * powers[i]
	}
	// d/dox: ro2's dependence on ox is d(ro2)/dox = -2*uo
	dx[n] = 1 - mu - 2*uo*uo*dmuDro2   // dxd/dox
	dy[n] = vo * dmuDro2 * (-2 * uo)   // dyd/dox
	dx[n+1] = uo * dmuDro2 * (-2 * vo) // dxd/doy
	dy[n+1] = 1 - mu - 2*vo*vo*dmuDro2 // dyd/doy

	dC = [2][]float64{dx, dy}
	return
}

func (cahvorDistortion) distort(u, v float64, c []float64) (xd, yd float64, dUV [2][2]float64, dCoef [2][]float64) {
	if len(c) < 5 {
		padded := make([]float64, 5)
		copy(padded, c)
		c = padded
	}
	return radialOffsetModel(u, v, c[0:3], c[3], c[4])
}
