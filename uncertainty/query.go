// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package uncertainty implements the C6 outlierness-trace query: given a
// converged solve's persistent SolverContext, estimate how trustworthy a
// camera's intrinsics are at an arbitrary observation direction, without
// ever materializing the full (JᵀJ)⁻¹.
package uncertainty

import (
	"math"

	"github.com/angrycaptain19/mrcal/lens"
	"github.com/angrycaptain19/mrcal/solve"
	"github.com/angrycaptain19/mrcal/statevec"
	"github.com/cpmech/gosl/chk"
)

// intrinsicColumns returns the global state-vector columns belonging to
// camera's core and distortion variables, in the same core-then-distortion
// order the measurement assembly uses; scale is the factor that converts a
// raw-intrinsics derivative into a derivative with respect to the scaled
// (dimensionless) state variable at that column, and intrVecIdx is that
// same variable's position in lens.Project's full intrinsics parameter
// vector (0..3 for core, 4..4+nd-1 for distortions) — which is NOT the same
// as cols' position whenever the core block is disabled and distortions
// are queried on their own.
func intrinsicColumns(l *statevec.Layout, camera, nd int, focalScale float64) (cols []int, scale []float64, intrVecIdx []int, err error) {
	if camera < 0 || camera >= l.Ncameras {
		return nil, nil, nil, chk.Err("uncertainty: camera index %d out of range [0,%d)", camera, l.Ncameras)
	}
	if off := l.CoreOffset[camera]; off >= 0 {
		for k := 0; k < 4; k++ {
			cols = append(cols, off+k)
			scale = append(scale, focalScale)
			intrVecIdx = append(intrVecIdx, k)
		}
	}
	if off := l.DistOffset[camera]; off >= 0 {
		for k := 0; k < nd; k++ {
			cols = append(cols, off+k)
			scale = append(scale, statevec.DistortionScale)
			intrVecIdx = append(intrVecIdx, 4+k)
		}
	}
	if len(cols) == 0 {
		return nil, nil, nil, chk.Err("uncertainty: camera %d has no free intrinsic variables to query", camera)
	}
	return cols, scale, intrVecIdx, nil
}

// QueryIntrinsicOutliernessAt implements C6: for each point (given in
// camera's own coordinate frame), returns trace(Jv*Msub*Jvᵀ)*sigma^2,
// where Msub is the intrinsic-column submatrix of (JᵀJ)⁻¹ pulled from the
// retained factor one column at a time (SolverContext.Column), Jv is
// d(pixel)/d(intrinsics) at that point, and sigma^2 is the context's
// reduced chi-square estimate. A larger value means the projection at that
// point is less constrained by the calibration data, i.e. more likely to
// be an outlier relative to the fitted model.
func QueryIntrinsicOutliernessAt(ctx *solve.SolverContext, intrinsics []float64, camera int, focalScale float64, points [][3]float64) ([]float64, error) {
	if !ctx.HasFactor {
		return nil, chk.Err("uncertainty: solver context has no retained factor")
	}
	nd := lens.ParamCount(ctx.Family)
	if nd < 0 {
		nd = 0
	}

	cols, scale, intrVecIdx, err := intrinsicColumns(ctx.Layout, camera, nd, focalScale)
	if err != nil {
		return nil, err
	}

	n := len(cols)
	msub := make([][]float64, n)
	for i, c := range cols {
		col, err := ctx.Column(c)
		if err != nil {
			return nil, err
		}
		msub[i] = make([]float64, n)
		for j, c2 := range cols {
			msub[i][j] = col[c2]
		}
	}

	sigmaSq := ctx.SigmaSq()
	out := make([]float64, len(points))
	for i, p := range points {
		proj := lens.Project(p, ctx.Family, intrinsics, lens.DerivRequest{Intrinsics: true})
		if !proj.Valid {
			out[i] = math.NaN()
			continue
		}
		jv := make([][2]float64, n)
		for k := range cols {
			vi := intrVecIdx[k]
			jv[k] = [2]float64{
				proj.DIntrinsics[0][vi] * scale[k],
				proj.DIntrinsics[1][vi] * scale[k],
			}
		}
		out[i] = sigmaSq * traceJMJt(jv, msub)
	}
	return out, nil
}

// traceJMJt computes trace(Jᵀ' dummy... ) i.e. trace(Jv*M*Jvᵀ) for a
// 2xN Jacobian jv (stored column-major as [N][2]) and an NxN matrix m.
func traceJMJt(jv [][2]float64, m [][]float64) float64 {
	n := len(jv)
	var trace float64
	for r := 0; r < 2; r++ {
		var s float64
		for i := 0; i < n; i++ {
			var mi float64
			for j := 0; j < n; j++ {
				mi += m[i][j] * jv[j][r]
			}
			s += jv[i][r] * mi
		}
		trace += s
	}
	return trace
}
