// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mrcal

import (
	"github.com/angrycaptain19/mrcal/statevec"
	"github.com/angrycaptain19/mrcal/uncertainty"
)

// QueryIntrinsicOutliernessAt implements C6: for each point (given in
// camera iCamera's own coordinate frame), returns a scaled variance
// estimate of its reprojection under camera's fitted intrinsics, pulled
// from a SolverContext retained by a prior Optimize call.
func QueryIntrinsicOutliernessAt(ctx *SolverContext, camera CameraIntrinsics, iCamera int, imagerSize [2]float64, points [][3]float64) ([]float64, error) {
	focalScale := statevec.FocalScale(imagerSize[0], imagerSize[1])
	return uncertainty.QueryIntrinsicOutliernessAt(ctx, camera.pack(), iCamera, focalScale, points)
}
