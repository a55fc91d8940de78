// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uncertainty

import (
	"math"
	"testing"

	"github.com/angrycaptain19/mrcal/lens"
	"github.com/angrycaptain19/mrcal/obsset"
	"github.com/angrycaptain19/mrcal/rigid"
	"github.com/angrycaptain19/mrcal/solve"
	"github.com/angrycaptain19/mrcal/statevec"
	"github.com/cpmech/gosl/chk"
)

// calibratedContext runs a small, well-conditioned calibration to
// convergence and returns the retained SolverContext alongside the fitted
// intrinsics, for use as uncertainty-query fixtures.
func calibratedContext(tst *testing.T) (*solve.SolverContext, []float64, float64) {
	family := lens.OpenCV4
	details := statevec.AllOn()
	truth := statevec.Seed{
		Intrinsics: [][]float64{{1000, 1000, 500, 500, -0.2, 0.05, 0.001, -0.001}},
		Frames: []rigid.Pose{
			{R: [3]float64{0.05, -0.02, 0.01}, T: [3]float64{0, 0, 5}},
			{R: [3]float64{-0.03, 0.04, 0.02}, T: [3]float64{0.2, -0.1, 5.5}},
			{R: [3]float64{0.01, 0.01, -0.05}, T: [3]float64{-0.2, 0.1, 4.8}},
		},
	}

	w, s := 5, 0.08
	var boardObs []obsset.FrameObservation
	for f, pose := range truth.Frames {
		pixels := make([][2]float64, w*w)
		for i := 0; i < w; i++ {
			for j := 0; j < w; j++ {
				vertex := [3]float64{float64(i) * s, float64(j) * s, 0}
				world, _, _ := pose.ApplyWithJacobian(vertex)
				proj := lens.Project(world, family, truth.Intrinsics[0], lens.DerivRequest{})
				pixels[i*w+j] = proj.Pixel
			}
		}
		boardObs = append(boardObs, obsset.FrameObservation{ICamera: 0, IFrame: f, Pixels: pixels, W: w})
	}

	layout := statevec.NewLayout(1, len(truth.Frames), 0, 4, details)
	focalScale := statevec.FocalScale(1000, 1000)

	seed := statevec.Seed{
		Intrinsics: [][]float64{{970, 1030, 510, 490, -0.1, 0.0, 0.0, 0.0}},
		Frames: []rigid.Pose{
			{T: [3]float64{0, 0, 4.8}},
			{T: [3]float64{0.1, -0.1, 5.2}},
			{T: [3]float64{-0.1, 0.1, 4.6}},
		},
	}

	ctx := solve.New()
	opt := solve.Options{
		Family: family, BoardObs: boardObs, BoardSpacing: s,
		Sigma: 0.5, SigmaRangeFrac: 0.01,
		FocalScales:          []float64{focalScale},
		ImagerSizes:          [][2]float64{{1000, 1000}},
		SkipOutlierRejection: true,
		Context:              ctx,
	}

	report, err := solve.Optimize(layout, &seed, opt)
	if err != nil {
		tst.Fatalf("Optimize failed: %v", err)
	}
	if !report.Converged {
		tst.Fatalf("calibration did not converge")
	}
	return ctx, seed.Intrinsics[0], focalScale
}

func Test_queryIntrinsicOutlierness(tst *testing.T) {
	chk.PrintTitle("outlierness grows away from the calibration target's observed footprint")

	ctx, intr, focalScale := calibratedContext(tst)
	defer ctx.Free()

	near := [3]float64{0.1, 0.1, 5}
	far := [3]float64{50, 50, 5}

	out, err := QueryIntrinsicOutliernessAt(ctx, intr, 0, focalScale, [][3]float64{near, far})
	if err != nil {
		tst.Fatalf("QueryIntrinsicOutliernessAt failed: %v", err)
	}
	if len(out) != 2 {
		tst.Fatalf("expected 2 results, got %d", len(out))
	}
	for i, v := range out {
		if math.IsNaN(v) || v < 0 {
			tst.Errorf("result %d is not a valid non-negative variance: %v", i, v)
		}
	}
	if out[1] <= out[0] {
		tst.Errorf("expected outlierness to grow away from the well-observed region: near=%v far=%v", out[0], out[1])
	}
}

func Test_queryUnretainedContext(tst *testing.T) {
	chk.PrintTitle("querying before any solve has retained a factor returns an error")

	ctx := solve.New()
	_, err := QueryIntrinsicOutliernessAt(ctx, []float64{1000, 1000, 500, 500}, 0, 100, [][3]float64{{0, 0, 1}})
	if err == nil {
		tst.Errorf("expected an error for an empty solver context")
	}
}
