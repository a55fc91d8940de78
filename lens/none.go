// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lens

// noneDistortion implements the identity mapping of the NONE family.
type noneDistortion struct{}

func (noneDistortion) distort(u, v float64, coeffs []float64) (xd, yd float64, dUV [2][2]float64, dCoef [2][]float64) {
	xd, yd = u, v
	dUV[0][0], dUV[1][1] = 1, 1
	return
}
