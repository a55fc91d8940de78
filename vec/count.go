// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vec implements the measurement assembly of §4.4: for every kept
// observation it builds the reprojection (and, for ranged points, range)
// residuals and their sparse Jacobian row block, plus a regularization
// block pulling intrinsics toward a prior.
package vec

import (
	"github.com/angrycaptain19/mrcal/lens"
	"github.com/angrycaptain19/mrcal/obsset"
	"github.com/angrycaptain19/mrcal/statevec"
)

// MeasurementCount returns the exact residual-vector length the assembly
// produces for the given inputs, per §4.4.
func MeasurementCount(ncameras int, boardObs []obsset.FrameObservation, pointObs []obsset.PointObservation, w int, details statevec.ProblemDetails, family lens.Family) int {
	n := 0
	for _, o := range boardObs {
		if o.Kept() {
			n += 2 * w * w
		}
	}
	for _, o := range pointObs {
		if o.Kept() {
			n += 2
			if o.Range > 0 {
				n++
			}
		}
	}
	if !details.SkipRegularization {
		nd := lens.ParamCount(family)
		if nd < 0 {
			nd = 0
		}
		perCamera := 0
		if details.OptimizeIntrinsicCore {
			perCamera += 2
		}
		if details.OptimizeIntrinsicDistortions && nd > 0 {
			perCamera += nd
		}
		n += ncameras * perCamera
	}
	return n
}
