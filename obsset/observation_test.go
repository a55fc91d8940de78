// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obsset

import (
	"testing"

	"github.com/cpmech/gosl/chk"
)

// Test_deriveFrameSkips checks property 5: if every observation of a frame
// has skip_observation set, the frame inherits skip_frame=true.
func Test_deriveFrameSkips(tst *testing.T) {
	chk.PrintTitle("deriveFrameSkips")

	obs := []FrameObservation{
		{ICamera: 0, IFrame: 0, SkipObs: true},
		{ICamera: 1, IFrame: 0, SkipObs: true},
		{ICamera: 0, IFrame: 1, SkipObs: false},
		{ICamera: 1, IFrame: 1, SkipObs: true},
	}
	DeriveFrameSkips(obs)

	if !obs[0].SkipFrame || !obs[1].SkipFrame {
		tst.Errorf("frame 0: expected skip_frame derived true for all-skipped frame")
	}
	if obs[2].SkipFrame || obs[3].SkipFrame {
		tst.Errorf("frame 1: expected skip_frame false since one observation is kept")
	}
	if obs[2].Kept() != true {
		tst.Errorf("frame 1 camera 0 observation should be kept")
	}
	if obs[3].Kept() != false {
		tst.Errorf("frame 1 camera 1 observation should not be kept (skip_observation)")
	}
}

func Test_derivePointSkips(tst *testing.T) {
	chk.PrintTitle("derivePointSkips")

	obs := []PointObservation{
		{ICamera: 0, IPoint: 0, SkipObs: true},
		{ICamera: 1, IPoint: 0, SkipObs: true},
		{ICamera: 0, IPoint: 1, SkipObs: false},
	}
	DerivePointSkips(obs)
	if !obs[0].SkipPoint || !obs[1].SkipPoint {
		tst.Errorf("point 0: expected skip_point derived true")
	}
	if obs[2].SkipPoint {
		tst.Errorf("point 1: expected skip_point false")
	}
}

func Test_checkOrder(tst *testing.T) {
	chk.PrintTitle("checkOrder")

	good := []FrameObservation{
		{IFrame: 0, ICamera: 0},
		{IFrame: 0, ICamera: 1},
		{IFrame: 1, ICamera: 0},
	}
	if err := CheckOrder(good); err != nil {
		tst.Errorf("expected well-ordered observations to pass: %v", err)
	}

	bad := []FrameObservation{
		{IFrame: 0, ICamera: 1},
		{IFrame: 0, ICamera: 0},
	}
	if err := CheckOrder(bad); err == nil {
		tst.Errorf("expected out-of-order observations to fail")
	}
}

func Test_checkSkipListMonotonic(tst *testing.T) {
	chk.PrintTitle("checkSkipListMonotonic")

	if err := CheckSkipListMonotonic([]int{2, 5, 9}); err != nil {
		tst.Errorf("expected strictly increasing list to pass: %v", err)
	}
	if err := CheckSkipListMonotonic([]int{2, 5, 5}); err == nil {
		tst.Errorf("expected non-strictly-increasing list to fail")
	}
	if err := CheckSkipListMonotonic([]int{5, 2}); err == nil {
		tst.Errorf("expected decreasing list to fail")
	}
}
