// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vec

// small fixed-shape matrix products used to chain the per-stage Jacobians
// (projection x pose-composition) produced by the lens and rigid packages.

func mul2x3by3x3(a [2][3]float64, b [3][3]float64) (c [2][3]float64) {
	for i := 0; i < 2; i++ {
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

func mul2x3by3x6(a [2][3]float64, b [3][6]float64) (c [2][6]float64) {
	for i := 0; i < 2; i++ {
		for j := 0; j < 6; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += a[i][k] * b[k][j]
			}
			c[i][j] = s
		}
	}
	return
}

func identity3x3() [3][3]float64 {
	return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}
