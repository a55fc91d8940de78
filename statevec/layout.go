// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package statevec

import "math"

// Layout assigns each free variable a global index in the packed state
// vector, mirroring the equation-numbering pattern of a finite-element
// assembler: every variable block (a camera's intrinsics, an extrinsics
// pose, a frame pose, a point) is given a contiguous run of global indices,
// or -1 throughout when the whole block is not free.
type Layout struct {
	Ncameras, Nframes, Npoints, Nd int
	Details                        ProblemDetails

	CoreOffset       []int // len Ncameras; -1 if core not optimized
	DistOffset       []int // len Ncameras; -1 if distortions not optimized or Nd==0
	ExtrinsicsOffset []int // len Ncameras; index 0 unused (always -1)
	FrameOffset      []int // len Nframes
	PointOffset      []int // len Npoints

	NState int
}

// NewLayout computes the deterministic ordering of §4.3: intrinsics for
// camera 0, 1, ... (core before distortions within a camera), then
// extrinsics for cameras 1..Ncameras-1, then frames, then points.
func NewLayout(ncameras, nframes, npoints, nd int, details ProblemDetails) *Layout {
	l := &Layout{
		Ncameras: ncameras, Nframes: nframes, Npoints: npoints, Nd: nd,
		Details:          details,
		CoreOffset:       make([]int, ncameras),
		DistOffset:       make([]int, ncameras),
		ExtrinsicsOffset: make([]int, ncameras),
		FrameOffset:      make([]int, nframes),
		PointOffset:      make([]int, npoints),
	}
	next := 0
	for c := 0; c < ncameras; c++ {
		if details.OptimizeIntrinsicCore {
			l.CoreOffset[c] = next
			next += 4
		} else {
			l.CoreOffset[c] = -1
		}
		if details.OptimizeIntrinsicDistortions && nd > 0 {
			l.DistOffset[c] = next
			next += nd
		} else {
			l.DistOffset[c] = -1
		}
	}
	l.ExtrinsicsOffset[0] = -1
	for c := 1; c < ncameras; c++ {
		if details.OptimizeExtrinsics {
			l.ExtrinsicsOffset[c] = next
			next += 6
		} else {
			l.ExtrinsicsOffset[c] = -1
		}
	}
	for f := 0; f < nframes; f++ {
		if details.OptimizeFrames {
			l.FrameOffset[f] = next
			next += 6
		} else {
			l.FrameOffset[f] = -1
		}
	}
	for p := 0; p < npoints; p++ {
		// points have no enable flag distinct from frames in §3; they are
		// free whenever frames are (both are "structure" variables).
		if details.OptimizeFrames {
			l.PointOffset[p] = next
			next += 3
		} else {
			l.PointOffset[p] = -1
		}
	}
	l.NState = next
	return l
}

// FocalScale implements the §4.3 imager-size heuristic: the typical focal
// length scale is one tenth of the imager diagonal.
func FocalScale(imagerWidth, imagerHeight float64) float64 {
	return 0.1 * math.Hypot(imagerWidth, imagerHeight)
}
