// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mrcal

import (
	"github.com/angrycaptain19/mrcal/lens"
	"github.com/angrycaptain19/mrcal/obsset"
	"github.com/cpmech/gosl/chk"
)

// validate checks the §6/§7 InvalidArgument preconditions before Optimize
// touches problem: structural consistency across the camera/frame/point
// arrays, the §3 observation-ordering invariant, and the §6 skip-list
// monotonicity invariant. It returns the first violation found; on a valid
// problem it is silent.
func (p *Problem) validate() error {
	ncameras := len(p.Cameras)
	if ncameras == 0 {
		return chk.Err("mrcal: at least one camera is required")
	}
	if err := p.Details.Validate(); err != nil {
		return err
	}
	if p.Sigma <= 0 {
		return chk.Err("mrcal: Sigma must be > 0, got %v", p.Sigma)
	}
	if len(p.Extrinsics) != ncameras-1 {
		return chk.Err("mrcal: len(Extrinsics)=%d, want %d (Ncameras-1; camera 0 has no extrinsics)", len(p.Extrinsics), ncameras-1)
	}
	if len(p.ImagerSizes) != ncameras {
		return chk.Err("mrcal: len(ImagerSizes)=%d, want %d (one per camera)", len(p.ImagerSizes), ncameras)
	}

	family := p.Cameras[0].Family
	nd := DistortionParamCount(family)
	for i, c := range p.Cameras {
		if c.Family != family {
			return chk.Err("mrcal: camera %d has family %s, want %s (all cameras must share one distortion family)", i, lens.Name(c.Family), lens.Name(family))
		}
		if len(c.Distortions) != nd {
			return chk.Err("mrcal: camera %d has %d distortion coefficients, want %d for %s", i, len(c.Distortions), nd, lens.Name(family))
		}
	}

	nframes, npoints := len(p.Frames), len(p.Points)
	if len(p.BoardObs) > 0 && p.BoardSpacing <= 0 {
		return chk.Err("mrcal: BoardSpacing must be > 0 when board observations are present")
	}
	for i, o := range p.BoardObs {
		if o.ICamera < 0 || o.ICamera >= ncameras {
			return chk.Err("mrcal: board observation %d: camera index %d out of range [0,%d)", i, o.ICamera, ncameras)
		}
		if o.IFrame < 0 || o.IFrame >= nframes {
			return chk.Err("mrcal: board observation %d: frame index %d out of range [0,%d)", i, o.IFrame, nframes)
		}
		if o.W <= 0 {
			return chk.Err("mrcal: board observation %d: board width W must be > 0", i)
		}
		if len(o.Pixels) != o.W*o.W {
			return chk.Err("mrcal: board observation %d: len(Pixels)=%d, want W*W=%d", i, len(o.Pixels), o.W*o.W)
		}
	}
	for i, o := range p.PointObs {
		if o.ICamera < 0 || o.ICamera >= ncameras {
			return chk.Err("mrcal: point observation %d: camera index %d out of range [0,%d)", i, o.ICamera, ncameras)
		}
		if o.IPoint < 0 || o.IPoint >= npoints {
			return chk.Err("mrcal: point observation %d: point index %d out of range [0,%d)", i, o.IPoint, npoints)
		}
	}

	if err := obsset.CheckOrder(p.BoardObs); err != nil {
		return err
	}
	if err := obsset.CheckOrderPoints(p.PointObs); err != nil {
		return err
	}
	if err := obsset.CheckSkipListMonotonic(skippedIndices(p.BoardObs)); err != nil {
		return err
	}
	if err := obsset.CheckSkipListMonotonic(skippedPointIndices(p.PointObs)); err != nil {
		return err
	}

	return nil
}

// skippedIndices derives the §6 "skipped_observations" index list this
// representation carries as a per-observation flag rather than a separate
// array: the indices, in slice order, of board observations with SkipObs
// set.
func skippedIndices(obs []FrameObservation) []int {
	var out []int
	for i, o := range obs {
		if o.SkipObs {
			out = append(out, i)
		}
	}
	return out
}

// skippedPointIndices is skippedIndices for point observations.
func skippedPointIndices(obs []PointObservation) []int {
	var out []int
	for i, o := range obs {
		if o.SkipObs {
			out = append(out, i)
		}
	}
	return out
}
