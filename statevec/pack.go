// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package statevec

import "github.com/angrycaptain19/mrcal/rigid"

// Seed bundles the in-out arrays of §3: intrinsics per camera (width
// 4+Nd), extrinsics for cameras 1..Ncameras-1, frame poses, and point
// positions.
type Seed struct {
	Intrinsics [][]float64 // len Ncameras, each width 4+Nd
	Extrinsics []rigid.Pose // len Ncameras-1, indexed by camera-1
	Frames     []rigid.Pose // len Nframes
	Points     [][3]float64 // len Npoints
}

// Scaling for a rotation component (1 rad) and a translation/point
// component (1 length unit) per §4.3; distortion coefficients scale by
// unit magnitude, so 1.0 for all three. Exported so the measurement
// assembly can apply the same factors when building the Jacobian of the
// packed (dimensionless) state vector.
const (
	RotationScale    = 1.0
	TranslationScale = 1.0
	DistortionScale  = 1.0
)

// Pack writes seed's free variables into a new state vector x of length
// l.NState, dividing by each variable's scale so the NLLS driver sees a
// dimensionless problem. focalScales has length Ncameras and holds each
// camera's FocalScale. Disabled variables are omitted, per the layout.
func Pack(l *Layout, seed Seed, focalScales []float64) []float64 {
	x := make([]float64, l.NState)
	for c := 0; c < l.Ncameras; c++ {
		intr := seed.Intrinsics[c]
		if off := l.CoreOffset[c]; off >= 0 {
			fs := focalScales[c]
			x[off+0] = intr[0] / fs
			x[off+1] = intr[1] / fs
			x[off+2] = intr[2] / fs
			x[off+3] = intr[3] / fs
		}
		if off := l.DistOffset[c]; off >= 0 {
			for i := 0; i < l.Nd; i++ {
				x[off+i] = intr[4+i] / DistortionScale
			}
		}
	}
	for c := 1; c < l.Ncameras; c++ {
		if off := l.ExtrinsicsOffset[c]; off >= 0 {
			p := seed.Extrinsics[c-1]
			for i := 0; i < 3; i++ {
				x[off+i] = p.R[i] / RotationScale
				x[off+3+i] = p.T[i] / TranslationScale
			}
		}
	}
	for f := 0; f < l.Nframes; f++ {
		if off := l.FrameOffset[f]; off >= 0 {
			p := seed.Frames[f]
			for i := 0; i < 3; i++ {
				x[off+i] = p.R[i] / RotationScale
				x[off+3+i] = p.T[i] / TranslationScale
			}
		}
	}
	for p := 0; p < l.Npoints; p++ {
		if off := l.PointOffset[p]; off >= 0 {
			pt := seed.Points[p]
			for i := 0; i < 3; i++ {
				x[off+i] = pt[i] / TranslationScale
			}
		}
	}
	return x
}

// Unpack writes x's free variables back into seed (mutating it in place),
// re-applying each variable's scale. Variables disabled by the layout are
// left unchanged, satisfying the round-trip property of §8.3.
func Unpack(l *Layout, x []float64, focalScales []float64, seed *Seed) {
	for c := 0; c < l.Ncameras; c++ {
		intr := seed.Intrinsics[c]
		if off := l.CoreOffset[c]; off >= 0 {
			fs := focalScales[c]
			intr[0] = x[off+0] * fs
			intr[1] = x[off+1] * fs
			intr[2] = x[off+2] * fs
			intr[3] = x[off+3] * fs
		}
		if off := l.DistOffset[c]; off >= 0 {
			for i := 0; i < l.Nd; i++ {
				intr[4+i] = x[off+i] * DistortionScale
			}
		}
	}
	for c := 1; c < l.Ncameras; c++ {
		if off := l.ExtrinsicsOffset[c]; off >= 0 {
			p := &seed.Extrinsics[c-1]
			for i := 0; i < 3; i++ {
				p.R[i] = x[off+i] * RotationScale
				p.T[i] = x[off+3+i] * TranslationScale
			}
		}
	}
	for f := 0; f < l.Nframes; f++ {
		if off := l.FrameOffset[f]; off >= 0 {
			p := &seed.Frames[f]
			for i := 0; i < 3; i++ {
				p.R[i] = x[off+i] * RotationScale
				p.T[i] = x[off+3+i] * TranslationScale
			}
		}
	}
	for p := 0; p < l.Npoints; p++ {
		if off := l.PointOffset[p]; off >= 0 {
			pt := &seed.Points[p]
			for i := 0; i < 3; i++ {
				pt[i] = x[off+i] * TranslationScale
			}
		}
	}
}
