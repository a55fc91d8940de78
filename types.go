// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mrcal is the public entry point of the bundle-adjustment core:
// camera projection (lens), a persistent solver (solve), and the
// uncertainty query (uncertainty), wired together around the data model
// of §3. It plays the role the teacher's root fem package plays for a
// gofem simulation: orchestration, not algorithm.
package mrcal

import (
	"github.com/angrycaptain19/mrcal/lens"
	"github.com/angrycaptain19/mrcal/obsset"
	"github.com/angrycaptain19/mrcal/rigid"
	"github.com/angrycaptain19/mrcal/solve"
	"github.com/angrycaptain19/mrcal/statevec"
)

// Pose is a rigid transform: a Rodrigues rotation vector plus a
// translation. It is the public face of rigid.Pose.
type Pose struct {
	R [3]float64
	T [3]float64
}

func (p Pose) toRigid() rigid.Pose  { return rigid.Pose{R: p.R, T: p.T} }
func fromRigid(p rigid.Pose) Pose   { return Pose{R: p.R, T: p.T} }
func toRigidAll(ps []Pose) []rigid.Pose {
	out := make([]rigid.Pose, len(ps))
	for i, p := range ps {
		out[i] = p.toRigid()
	}
	return out
}
func fromRigidAll(ps []rigid.Pose) []Pose {
	out := make([]Pose, len(ps))
	for i, p := range ps {
		out[i] = fromRigid(p)
	}
	return out
}

// IntrinsicsCore is the pinhole projection's four always-present
// parameters, per §3.
type IntrinsicsCore struct {
	FocalLengthX, FocalLengthY float64
	CenterX, CenterY           float64
}

// CameraIntrinsics is one camera's full intrinsic parameter block: the
// pinhole core plus however many distortion coefficients its Family uses.
type CameraIntrinsics struct {
	Family      lens.Family
	Core        IntrinsicsCore
	Distortions []float64
}

// pack flattens a CameraIntrinsics into the raw []float64 layout
// lens.Project and statevec.Seed expect: core first, then distortions.
func (c CameraIntrinsics) pack() []float64 {
	raw := make([]float64, 0, 4+len(c.Distortions))
	raw = append(raw, c.Core.FocalLengthX, c.Core.FocalLengthY, c.Core.CenterX, c.Core.CenterY)
	return append(raw, c.Distortions...)
}

func unpackIntrinsics(family lens.Family, raw []float64) CameraIntrinsics {
	nd := lens.ParamCount(family)
	if nd < 0 {
		nd = 0
	}
	return CameraIntrinsics{
		Family:      family,
		Core:        IntrinsicsCore{raw[0], raw[1], raw[2], raw[3]},
		Distortions: append([]float64(nil), raw[4:4+nd]...),
	}
}

// Re-exported data-model types (§3): these are genuinely the same types
// the sub-packages use, not a parallel representation that would need
// converting at every call site.
type (
	FrameObservation = obsset.FrameObservation
	PointObservation = obsset.PointObservation
	ProblemDetails   = statevec.ProblemDetails
	StatsReport      = solve.StatsReport
	SolverContext    = solve.SolverContext
)

// NewSolverContext returns an empty, caller-owned SolverContext. Pass it
// to Optimize to retain the converged factorization for later
// QueryIntrinsicOutliernessAt calls; release it with FreeSolverContext.
func NewSolverContext() *SolverContext { return solve.New() }

// FreeSolverContext releases ctx's retained factorization. ctx must not
// be used afterwards.
func FreeSolverContext(ctx *SolverContext) { ctx.Free() }
