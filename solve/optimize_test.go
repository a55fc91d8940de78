// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solve

import (
	"testing"

	"github.com/angrycaptain19/mrcal/lens"
	"github.com/angrycaptain19/mrcal/obsset"
	"github.com/angrycaptain19/mrcal/rigid"
	"github.com/angrycaptain19/mrcal/statevec"
	"github.com/cpmech/gosl/chk"
)

// calibrationProblem builds a single-camera, single-frame, two-point
// problem with known-good intrinsics, then perturbs the seed before
// returning it so Optimize has real work to do.
func calibrationProblem() (*statevec.Layout, statevec.Seed, Options) {
	family := lens.OpenCV4
	details := statevec.AllOn()
	truth := statevec.Seed{
		Intrinsics: [][]float64{{1000, 1000, 500, 500, -0.2, 0.05, 0.001, -0.001}},
		Frames:     []rigid.Pose{{R: [3]float64{0.05, -0.02, 0.01}, T: [3]float64{0, 0, 5}}},
		Points:     [][3]float64{{0.5, -0.3, 4}, {-0.4, 0.2, 4.5}},
	}

	w, s := 4, 0.1
	pixels := make([][2]float64, w*w)
	for i := 0; i < w; i++ {
		for j := 0; j < w; j++ {
			vertex := [3]float64{float64(i) * s, float64(j) * s, 0}
			world, _, _ := truth.Frames[0].ApplyWithJacobian(vertex)
			proj := lens.Project(world, family, truth.Intrinsics[0], lens.DerivRequest{})
			pixels[i*w+j] = proj.Pixel
		}
	}
	boardObs := []obsset.FrameObservation{{ICamera: 0, IFrame: 0, Pixels: pixels, W: w}}

	pointObs := make([]obsset.PointObservation, len(truth.Points))
	for i, pt := range truth.Points {
		proj := lens.Project(pt, family, truth.Intrinsics[0], lens.DerivRequest{})
		pointObs[i] = obsset.PointObservation{ICamera: 0, IPoint: i, Pixel: proj.Pixel}
	}

	layout := statevec.NewLayout(1, 1, len(truth.Points), 4, details)
	opt := Options{
		Family: family, BoardObs: boardObs, PointObs: pointObs, BoardSpacing: s,
		Sigma: 0.5, SigmaRangeFrac: 0.01,
		FocalScales: []float64{statevec.FocalScale(1000, 1000)},
		ImagerSizes: [][2]float64{{1000, 1000}},
	}

	seed := statevec.Seed{
		Intrinsics: [][]float64{{950, 1050, 480, 520, -0.1, 0.0, 0.0, 0.0}},
		Frames:     []rigid.Pose{{R: [3]float64{0.0, 0.0, 0.0}, T: [3]float64{0, 0, 4.5}}},
		Points:     [][3]float64{{0.4, -0.2, 3.8}, {-0.3, 0.1, 4.2}},
	}
	return layout, seed, opt
}

func Test_optimizeConverges(tst *testing.T) {
	chk.PrintTitle("Optimize drives a perturbed seed back to a low reprojection error")

	layout, seed, opt := calibrationProblem()
	opt.SkipOutlierRejection = true

	report, err := Optimize(layout, &seed, opt)
	if err != nil {
		tst.Fatalf("Optimize failed: %v", err)
	}
	if !report.Converged {
		tst.Errorf("expected convergence, got Converged=false after %d iterations", report.Iterations)
	}
	if report.RMSReprojErrorPixels > 1e-3 {
		tst.Errorf("RMS reprojection error too large: %.6f pixels", report.RMSReprojErrorPixels)
	}
}

// Test_outlierRejection checks that a single grossly-mismeasured point
// observation gets skipped by the outlier-rejection loop (§4.5) without
// preventing the rest of the problem from converging.
func Test_outlierRejection(tst *testing.T) {
	chk.PrintTitle("Optimize flags a grossly wrong point observation as an outlier")

	layout, seed, opt := calibrationProblem()
	opt.PointObs[0].Pixel[0] += 200 // way outside the noise model

	report, err := Optimize(layout, &seed, opt)
	if err != nil {
		tst.Fatalf("Optimize failed: %v", err)
	}
	if report.Noutliers == 0 {
		tst.Errorf("expected at least one outlier to be flagged")
	}
	if !opt.PointObs[0].SkipObs && !opt.PointObs[0].SkipPoint {
		tst.Errorf("expected the perturbed point observation to be skipped")
	}
}

func Test_checkGradientMode(tst *testing.T) {
	chk.PrintTitle("check_gradient mode reports a small relative error and performs no solve")

	layout, seed, opt := calibrationProblem()
	opt.CheckGradient = true

	report, err := Optimize(layout, &seed, opt)
	if err != nil {
		tst.Fatalf("Optimize failed: %v", err)
	}
	if report.GradientCheck == nil {
		tst.Fatalf("expected a GradientCheck report")
	}
	if report.GradientCheck.MaxRelError > 1e-4 {
		tst.Errorf("gradient check relative error too large: %.3e at column %d", report.GradientCheck.MaxRelError, report.GradientCheck.WorstColumn)
	}
	if report.Iterations != 0 {
		tst.Errorf("check_gradient mode must not iterate a solve, got Iterations=%d", report.Iterations)
	}
}

func Test_skipOutlierRejectionLeavesObservationsAlone(tst *testing.T) {
	chk.PrintTitle("skip_outlier_rejection runs exactly one LM solve and marks nothing")

	layout, seed, opt := calibrationProblem()
	opt.PointObs[0].Pixel[0] += 200
	opt.SkipOutlierRejection = true

	_, err := Optimize(layout, &seed, opt)
	if err != nil {
		tst.Fatalf("Optimize failed: %v", err)
	}
	if opt.PointObs[0].SkipObs {
		tst.Errorf("skip_outlier_rejection must not flip SkipObs")
	}
}
