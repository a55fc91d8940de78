// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mrcal

import (
	"github.com/angrycaptain19/mrcal/lens"
	"github.com/angrycaptain19/mrcal/solve"
	"github.com/angrycaptain19/mrcal/statevec"
	"github.com/angrycaptain19/mrcal/vec"
)

// Problem bundles one calibration's full state: the camera(s), the
// structure (frames and/or points) being solved for, and the
// observations that constrain them, per the data model of §3.
type Problem struct {
	Cameras     []CameraIntrinsics
	Extrinsics  []Pose // len(Cameras)-1; camera 0 is always the reference
	Frames      []Pose
	Points      [][3]float64
	ImagerSizes [][2]float64 // width, height per camera

	BoardObs     []FrameObservation
	PointObs     []PointObservation
	BoardSpacing float64

	Sigma          float64
	SigmaRangeFrac float64
	ROI            []vec.ROI

	Details ProblemDetails
}

// OptimizeOptions selects §4.5's solve modes.
type OptimizeOptions struct {
	SkipOutlierRejection bool
	CheckGradient        bool
	Verbose              bool

	// Context, if non-nil, retains the converged factorization for
	// later QueryIntrinsicOutliernessAt calls.
	Context *SolverContext
}

// Optimize runs the bundle adjustment of C5 against problem, mutating its
// Cameras/Extrinsics/Frames/Points in place to the converged (or
// best-effort) state, and its BoardObs/PointObs in place as outlier
// rejection flags observations.
func Optimize(problem *Problem, opt OptimizeOptions) (StatsReport, error) {
	if err := problem.validate(); err != nil {
		return StatsReport{}, err
	}

	ncameras := len(problem.Cameras)
	family := problem.Cameras[0].Family
	nd := DistortionParamCount(family)

	intrinsics := make([][]float64, ncameras)
	focalScales := make([]float64, ncameras)
	for i, c := range problem.Cameras {
		intrinsics[i] = c.pack()
		focalScales[i] = statevec.FocalScale(problem.ImagerSizes[i][0], problem.ImagerSizes[i][1])
	}

	layout := statevec.NewLayout(ncameras, len(problem.Frames), len(problem.Points), nd, problem.Details)
	seed := statevec.Seed{
		Intrinsics: intrinsics,
		Extrinsics: toRigidAll(problem.Extrinsics),
		Frames:     toRigidAll(problem.Frames),
		Points:     append([][3]float64(nil), problem.Points...),
	}

	report, err := solve.Optimize(layout, &seed, solve.Options{
		Family: family, BoardObs: problem.BoardObs, PointObs: problem.PointObs,
		BoardSpacing: problem.BoardSpacing, Sigma: problem.Sigma, SigmaRangeFrac: problem.SigmaRangeFrac,
		FocalScales: focalScales, ImagerSizes: problem.ImagerSizes, ROI: problem.ROI,
		SkipOutlierRejection: opt.SkipOutlierRejection,
		CheckGradient:        opt.CheckGradient,
		Verbose:              opt.Verbose,
		Context:              opt.Context,
	})
	if err != nil {
		return report, err
	}

	for i := range problem.Cameras {
		problem.Cameras[i] = unpackIntrinsics(family, seed.Intrinsics[i])
	}
	problem.Extrinsics = fromRigidAll(seed.Extrinsics)
	problem.Frames = fromRigidAll(seed.Frames)
	copy(problem.Points, seed.Points)

	return report, nil
}

// MeasurementCount returns the number of scalar residuals Optimize would
// assemble for the given observation set, per C4.
func MeasurementCount(problem *Problem) int {
	boardSide := 0
	for _, o := range problem.BoardObs {
		if o.W > 0 {
			boardSide = o.W
			break
		}
	}
	family := lens.Invalid
	if len(problem.Cameras) > 0 {
		family = problem.Cameras[0].Family
	}
	return vec.MeasurementCount(len(problem.Cameras), problem.BoardObs, problem.PointObs, boardSide, problem.Details, family)
}
