// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mrcal

import "github.com/angrycaptain19/mrcal/lens"

// ProjectionResult is the public, Jacobian-free outcome of projecting one
// 3D point; callers who need derivatives work in terms of lens.Project
// directly (or go through Optimize, which always needs them).
type ProjectionResult struct {
	Pixel [2]float64
	Valid bool
}

// Project maps a point from camera's own coordinate frame into pixel
// coordinates under camera's distortion model, per C2.
func Project(point [3]float64, camera CameraIntrinsics) ProjectionResult {
	r := lens.Project(point, camera.Family, camera.pack(), lens.DerivRequest{})
	return ProjectionResult{Pixel: r.Pixel, Valid: r.Valid}
}

// ProjectMany projects a batch of points under the same camera, per C2.
func ProjectMany(points [][3]float64, camera CameraIntrinsics) []ProjectionResult {
	rs := lens.ProjectMany(points, camera.Family, camera.pack(), lens.DerivRequest{})
	out := make([]ProjectionResult, len(rs))
	for i, r := range rs {
		out[i] = ProjectionResult{Pixel: r.Pixel, Valid: r.Valid}
	}
	return out
}

// DistortionParamCount returns the number of distortion coefficients
// family's parameter block carries (0 for NONE), per C1.
func DistortionParamCount(family lens.Family) int {
	n := lens.ParamCount(family)
	if n < 0 {
		return 0
	}
	return n
}

// SupportedDistortionModels lists the distortion families available in
// this build, per C1's supplemented mrcal_getSupportedDistortionModels.
func SupportedDistortionModels() []string {
	return lens.Supported()
}

// NextDistortionModel walks the registry from current towards goal,
// per C1.
func NextDistortionModel(current, goal lens.Family) lens.Family {
	return lens.Next(current, goal)
}
