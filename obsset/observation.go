// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package obsset holds the observation types of the data model (§3) and
// the ordering/derivation invariants that the measurement assembly relies
// on: board and point observations sorted by (index, camera), a strictly
// monotonic skip list, and the frame/point skip-derivation rule.
package obsset

import "github.com/cpmech/gosl/chk"

// FrameObservation is one board capture: a W×W grid of observed corner
// pixels belonging to frame IFrame as seen by camera ICamera.
type FrameObservation struct {
	ICamera   int
	IFrame    int
	SkipFrame bool
	SkipObs   bool
	Pixels    [][2]float64 // length W*W, row-major (i*W+j)
	W         int
}

// PointObservation is one sighting of a named 3D point.
type PointObservation struct {
	ICamera   int
	IPoint    int
	SkipPoint bool
	SkipObs   bool
	Pixel     [2]float64
	Range     float64 // <=0 disables the range residual
}

// Kept reports whether o should contribute residuals to the assembly.
func (o FrameObservation) Kept() bool { return !o.SkipObs && !o.SkipFrame }

// Kept reports whether o should contribute residuals to the assembly.
func (o PointObservation) Kept() bool { return !o.SkipObs && !o.SkipPoint }

// CheckOrder validates the §3 observation-ordering invariant for board
// observations: sorted by (IFrame, ICamera), both ascending.
func CheckOrder(obs []FrameObservation) error {
	for i := 1; i < len(obs); i++ {
		a, b := obs[i-1], obs[i]
		if b.IFrame < a.IFrame || (b.IFrame == a.IFrame && b.ICamera <= a.ICamera) {
			return chk.Err("board observations out of order at index %d: (%d,%d) must follow (%d,%d)", i, b.IFrame, b.ICamera, a.IFrame, a.ICamera)
		}
	}
	return nil
}

// CheckOrderPoints validates the same invariant for point observations,
// keyed on (IPoint, ICamera).
func CheckOrderPoints(obs []PointObservation) error {
	for i := 1; i < len(obs); i++ {
		a, b := obs[i-1], obs[i]
		if b.IPoint < a.IPoint || (b.IPoint == a.IPoint && b.ICamera <= a.ICamera) {
			return chk.Err("point observations out of order at index %d: (%d,%d) must follow (%d,%d)", i, b.IPoint, b.ICamera, a.IPoint, a.ICamera)
		}
	}
	return nil
}

// CheckSkipListMonotonic validates that a caller-supplied skip index list
// is strictly increasing, as required by §6.
func CheckSkipListMonotonic(indices []int) error {
	for i := 1; i < len(indices); i++ {
		if indices[i] <= indices[i-1] {
			return chk.Err("skip list not strictly monotonic at index %d: %d <= %d", i, indices[i], indices[i-1])
		}
	}
	return nil
}

// DeriveFrameSkips applies the §3 frame-skip derivation rule in place: if
// every observation of a frame has SkipObs set, all of that frame's
// observations are marked SkipFrame.
func DeriveFrameSkips(obs []FrameObservation) {
	allSkipped := map[int]bool{}
	seen := map[int]bool{}
	for _, o := range obs {
		if !seen[o.IFrame] {
			seen[o.IFrame] = true
			allSkipped[o.IFrame] = true
		}
		if !o.SkipObs {
			allSkipped[o.IFrame] = false
		}
	}
	for i := range obs {
		if allSkipped[obs[i].IFrame] {
			obs[i].SkipFrame = true
		}
	}
}

// DerivePointSkips applies the analogous rule to point observations.
func DerivePointSkips(obs []PointObservation) {
	allSkipped := map[int]bool{}
	seen := map[int]bool{}
	for _, o := range obs {
		if !seen[o.IPoint] {
			seen[o.IPoint] = true
			allSkipped[o.IPoint] = true
		}
		if !o.SkipObs {
			allSkipped[o.IPoint] = false
		}
	}
	for i := range obs {
		if allSkipped[obs[i].IPoint] {
			obs[i].SkipPoint = true
		}
	}
}
