// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solve

import (
	"math"
	"sort"

	"github.com/angrycaptain19/mrcal/lens"
	"github.com/angrycaptain19/mrcal/obsset"
	"github.com/angrycaptain19/mrcal/rigid"
	"github.com/angrycaptain19/mrcal/statevec"
	"github.com/angrycaptain19/mrcal/vec"
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"github.com/cpmech/gosl/la"
	"github.com/cpmech/gosl/num"
)

// Tuning constants for the outer outlier-rejection loop and the inner
// Levenberg-Marquardt solve, per §4.5. kSigmaOutlier and
// thresholdFloorPixels implement DESIGN.md's decision for the open
// question of how the per-observation outlier threshold is chosen.
const (
	maxOuterIterations   = 10
	maxInnerIterations   = 100
	kSigmaOutlier        = 3.0
	thresholdFloorPixels = 1.0

	lambdaInit = 1e-3
	lambdaUp   = 10.0
	lambdaDown = 10.0
	lambdaMax  = 1e12

	gradTol = 1e-8
	stepTol = 1e-10
	costTol = 1e-12
)

// Options bundles one Optimize call's inputs: the observation set, the
// noise model, and the handful of §4.5 mode switches.
type Options struct {
	Family         lens.Family
	BoardObs       []obsset.FrameObservation
	PointObs       []obsset.PointObservation
	BoardSpacing   float64
	Sigma          float64
	SigmaRangeFrac float64
	FocalScales    []float64
	ImagerSizes    [][2]float64
	ROI            []vec.ROI

	SkipOutlierRejection bool
	CheckGradient        bool
	Verbose              bool

	// Context, if non-nil, receives the factorized normal-equations
	// matrix of the final converged solve, for later uncertainty queries.
	Context *SolverContext
}

// GradientCheckReport is the result of a check_gradient pass: the
// analytic Fb compared against a central finite difference of the cost,
// componentwise, over the whole packed state vector.
type GradientCheckReport struct {
	MaxRelError float64
	WorstColumn int
}

// StatsReport is Optimize's return value: the summary statistics of
// §4.6, plus the check-gradient report when that mode was requested.
type StatsReport struct {
	RMSReprojErrorPixels float64
	Noutliers            int
	Converged            bool
	Iterations           int
	GradientCheck        *GradientCheckReport
}

// Optimize runs the outlier-rejection loop of §4.5 around a sparse
// Levenberg-Marquardt solve, mutating seed in place to the converged (or
// best-effort, on non-convergence) state. BoardObs/PointObs are mutated
// in place too: outlier rejection flips SkipObs, and DeriveFrameSkips /
// DerivePointSkips propagate that to whole frames/points.
func Optimize(layout *statevec.Layout, seed *statevec.Seed, opt Options) (StatsReport, error) {
	in := &vec.Inputs{
		Layout: layout, Seed: *seed, Family: opt.Family,
		Sigma: opt.Sigma, SigmaRangeFrac: opt.SigmaRangeFrac,
		BoardObs: opt.BoardObs, PointObs: opt.PointObs,
		BoardSpacing: opt.BoardSpacing, FocalScales: opt.FocalScales,
		ImagerSizes: opt.ImagerSizes, ROI: opt.ROI,
	}

	if opt.CheckGradient {
		rep := checkGradient(layout, in, opt.FocalScales)
		return StatsReport{GradientCheck: &rep}, nil
	}

	var report StatsReport
	for outer := 0; outer < maxOuterIterations; outer++ {
		a, converged, iters, err := levenbergMarquardt(layout, in, opt.FocalScales, opt.Verbose)
		if err != nil {
			return report, err
		}
		*seed = in.Seed
		report.Converged = converged
		report.Iterations += iters
		report.Noutliers = countSkipped(opt.BoardObs, opt.PointObs)
		report.RMSReprojErrorPixels = rmsReprojectionError(in.Seed, opt.Family, opt.BoardSpacing, opt.BoardObs, opt.PointObs)

		if opt.SkipOutlierRejection {
			return report, retainIfRequested(opt.Context, layout, opt.Family, layout.Details, a, report.Noutliers)
		}

		newOutliers := markOutliers(in.Seed, opt.Family, opt.BoardSpacing, opt.BoardObs, opt.PointObs)
		if newOutliers == 0 {
			return report, retainIfRequested(opt.Context, layout, opt.Family, layout.Details, a, report.Noutliers)
		}

		obsset.DeriveFrameSkips(opt.BoardObs)
		obsset.DerivePointSkips(opt.PointObs)
		report.Noutliers = countSkipped(opt.BoardObs, opt.PointObs)

		if opt.Verbose {
			io.Pf("solve: outer iteration %d marked %d new outlier(s), re-solving\n", outer, newOutliers)
		}
	}

	return report, chk.Err("solve: outlier-rejection loop did not settle after %d passes", maxOuterIterations)
}

func retainIfRequested(ctx *SolverContext, layout *statevec.Layout, family lens.Family, details statevec.ProblemDetails, a vec.Assembled, noutliers int) error {
	if ctx == nil {
		return nil
	}
	ctx.Layout, ctx.Family, ctx.Details = layout, family, details
	return ctx.retain(a.Kb, sumSquares(a.Residuals), len(a.Residuals), noutliers)
}

// levenbergMarquardt runs the inner damped Gauss-Newton loop at a fixed
// observation set (fixed skip flags) to convergence, mutating in.Seed to
// the best state found.
func levenbergMarquardt(layout *statevec.Layout, in *vec.Inputs, focalScales []float64, verbose bool) (vec.Assembled, bool, int, error) {
	x := statevec.Pack(layout, in.Seed, focalScales)
	base := vec.Assemble(in)
	cost := sumSquares(base.Residuals)
	lambda := lambdaInit
	converged := false

	iter := 0
	for ; iter < maxInnerIterations; iter++ {
		if maxAbs(base.Fb) < gradTol {
			converged = true
			break
		}

		// la.Triplet only accumulates Put entries, so undoing a rejected
		// trial's damping means reassembling rather than patching Kb.
		trial := vec.Assemble(in)
		trial.ApplyDamping(lambda)

		dx, err := solveNormalEquations(layout.NState, trial.Kb, trial.Fb)
		if err != nil {
			lambda *= lambdaUp
			if lambda > lambdaMax {
				break
			}
			continue
		}

		xNew := make([]float64, len(x))
		for i := range x {
			xNew[i] = x[i] + dx[i]
		}
		seedNew := cloneSeed(in.Seed)
		statevec.Unpack(layout, xNew, focalScales, &seedNew)
		trialIn := *in
		trialIn.Seed = seedNew
		aNew := vec.Assemble(&trialIn)
		costNew := sumSquares(aNew.Residuals)

		if costNew < cost {
			stepNorm := maxAbs(dx)
			costDrop := cost - costNew
			x, in.Seed = xNew, seedNew
			base, cost = aNew, costNew
			lambda /= lambdaDown
			if verbose {
				io.Pf("solve: lm iter %3d  cost=%12.6e  lambda=%8.2e  |dx|=%8.2e\n", iter, cost, lambda, stepNorm)
			}
			if stepNorm < stepTol || costDrop < costTol*cost {
				converged = true
				iter++
				break
			}
		} else {
			lambda *= lambdaUp
			if lambda > lambdaMax {
				break
			}
		}
	}
	return base, converged, iter + 1, nil
}

func solveNormalEquations(n int, kb *la.Triplet, fb []float64) ([]float64, error) {
	factor := la.GetSolver(linSolName)
	defer factor.Free()
	if err := factor.InitR(kb, true, false, false); err != nil {
		return nil, chk.Err("solve: cannot initialise factor:\n%v", err)
	}
	if err := factor.Fact(); err != nil {
		return nil, chk.Err("solve: factorisation failed:\n%v", err)
	}
	dx := make([]float64, n)
	if err := factor.SolveR(dx, fb, false); err != nil {
		return nil, chk.Err("solve: linear solve failed:\n%v", err)
	}
	return dx, nil
}

// checkGradient implements §4.5's check_gradient mode: the analytic Fb is
// compared against a central finite difference of 0.5*sum(r^2), over
// every free state variable, with no solve performed.
func checkGradient(layout *statevec.Layout, in *vec.Inputs, focalScales []float64) GradientCheckReport {
	x0 := statevec.Pack(layout, in.Seed, focalScales)
	a := vec.Assemble(in)

	cost := func(x []float64) float64 {
		s := cloneSeed(in.Seed)
		statevec.Unpack(layout, x, focalScales, &s)
		trialIn := *in
		trialIn.Seed = s
		aa := vec.Assemble(&trialIn)
		return 0.5 * sumSquares(aa.Residuals)
	}

	var worst float64
	worstCol := -1
	xx := append([]float64(nil), x0...)
	for col := 0; col < layout.NState; col++ {
		numerical := num.DerivCen(func(v float64, args ...interface{}) float64 {
			xx[col] = v
			r := cost(xx)
			xx[col] = x0[col]
			return r
		}, x0[col])
		analytic := -a.Fb[col]
		denom := math.Max(1.0, math.Abs(numerical))
		rel := math.Abs(analytic-numerical) / denom
		if rel > worst {
			worst, worstCol = rel, col
		}
	}
	return GradientCheckReport{MaxRelError: worst, WorstColumn: worstCol}
}

// markOutliers flags observations whose reprojection error exceeds
// max(thresholdFloorPixels, kSigmaOutlier*median(errors)) by setting
// SkipObs, returning the number of newly-flagged observations.
func markOutliers(seed statevec.Seed, family lens.Family, spacing float64, boardObs []obsset.FrameObservation, pointObs []obsset.PointObservation) int {
	var errs []float64
	for _, o := range boardObs {
		if o.Kept() {
			errs = append(errs, boardRMSError(seed, family, spacing, o))
		}
	}
	for _, o := range pointObs {
		if o.Kept() {
			errs = append(errs, pointPixelError(seed, family, o))
		}
	}
	if len(errs) == 0 {
		return 0
	}
	threshold := kSigmaOutlier * median(errs)
	if threshold < thresholdFloorPixels {
		threshold = thresholdFloorPixels
	}

	newOutliers := 0
	for i := range boardObs {
		if boardObs[i].Kept() && boardRMSError(seed, family, spacing, boardObs[i]) > threshold {
			boardObs[i].SkipObs = true
			newOutliers++
		}
	}
	for i := range pointObs {
		if pointObs[i].Kept() && pointPixelError(seed, family, pointObs[i]) > threshold {
			pointObs[i].SkipObs = true
			newOutliers++
		}
	}
	return newOutliers
}

func boardRMSError(seed statevec.Seed, family lens.Family, spacing float64, o obsset.FrameObservation) float64 {
	framePose := seed.Frames[o.IFrame]
	intr := seed.Intrinsics[o.ICamera]
	var sumSq float64
	var n int
	for i := 0; i < o.W; i++ {
		for j := 0; j < o.W; j++ {
			idx := i*o.W + j
			vertex := [3]float64{float64(i) * spacing, float64(j) * spacing, 0}
			world, _, _ := framePose.ApplyWithJacobian(vertex)
			cam, _, _, _ := vec.ExtrinsicsApply(seed, o.ICamera, world)
			proj := lens.Project(cam, family, intr, lens.DerivRequest{})
			if !proj.Valid {
				continue
			}
			dx := proj.Pixel[0] - o.Pixels[idx][0]
			dy := proj.Pixel[1] - o.Pixels[idx][1]
			sumSq += dx*dx + dy*dy
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(n))
}

func pointPixelError(seed statevec.Seed, family lens.Family, o obsset.PointObservation) float64 {
	point := seed.Points[o.IPoint]
	intr := seed.Intrinsics[o.ICamera]
	cam, _, _, _ := vec.ExtrinsicsApply(seed, o.ICamera, point)
	proj := lens.Project(cam, family, intr, lens.DerivRequest{})
	if !proj.Valid {
		return 0
	}
	return math.Hypot(proj.Pixel[0]-o.Pixel[0], proj.Pixel[1]-o.Pixel[1])
}

func rmsReprojectionError(seed statevec.Seed, family lens.Family, spacing float64, boardObs []obsset.FrameObservation, pointObs []obsset.PointObservation) float64 {
	var sumSq float64
	var n int
	for _, o := range boardObs {
		if !o.Kept() {
			continue
		}
		e := boardRMSError(seed, family, spacing, o)
		sumSq += e * e
		n++
	}
	for _, o := range pointObs {
		if !o.Kept() {
			continue
		}
		e := pointPixelError(seed, family, o)
		sumSq += e * e
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(n))
}

func countSkipped(boardObs []obsset.FrameObservation, pointObs []obsset.PointObservation) int {
	n := 0
	for _, o := range boardObs {
		if o.SkipObs || o.SkipFrame {
			n++
		}
	}
	for _, o := range pointObs {
		if o.SkipObs || o.SkipPoint {
			n++
		}
	}
	return n
}

func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return 0.5 * (s[n/2-1] + s[n/2])
}

func maxAbs(v []float64) float64 {
	var m float64
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}

func sumSquares(r []float64) float64 {
	var s float64
	for _, x := range r {
		s += x * x
	}
	return s
}

func cloneSeed(s statevec.Seed) statevec.Seed {
	out := statevec.Seed{
		Intrinsics: make([][]float64, len(s.Intrinsics)),
		Extrinsics: append([]rigid.Pose(nil), s.Extrinsics...),
		Frames:     append([]rigid.Pose(nil), s.Frames...),
		Points:     make([][3]float64, len(s.Points)),
	}
	for i, row := range s.Intrinsics {
		out.Intrinsics[i] = append([]float64(nil), row...)
	}
	copy(out.Points, s.Points)
	return out
}
