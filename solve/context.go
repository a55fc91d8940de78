// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package solve implements the outer outlier-rejection loop around a
// sparse Levenberg-Marquardt solve (§4.5), and the persistent solver
// context (§3) that retains the factorized normal-equations matrix of
// the last converged solve for reuse by the uncertainty query.
package solve

import (
	"github.com/angrycaptain19/mrcal/lens"
	"github.com/angrycaptain19/mrcal/statevec"
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/la"
)

// linSolName selects the sparse factorization backend; umfpack is the
// teacher's default choice for modest direct problems (see fem.go).
const linSolName = "umfpack"

// SolverContext is the persistent, caller-owned object of §3: it retains
// the factorized normal-equations matrix of the most recent converged
// solve so queryIntrinsicOutliernessAt can reuse it without resolving.
// The zero value is "empty": HasFactor is false until a solve populates
// it, and FreeSolverContext must be called exactly once when the caller
// is done with it.
type SolverContext struct {
	Family    lens.Family
	Details   statevec.ProblemDetails
	Layout    *statevec.Layout
	HasFactor bool

	factor    la.LinSol
	rss       float64 // sum of squared weighted residuals at convergence
	nmeas     int
	noutliers int
}

// New creates an empty solver context, lazily populated by the first
// converged solve that is given it.
func New() *SolverContext {
	return &SolverContext{}
}

// Free releases the retained factorization. The context must not be used
// afterwards.
func (c *SolverContext) Free() {
	if c.HasFactor {
		c.factor.Free()
		c.HasFactor = false
	}
}

func (c *SolverContext) retain(kb *la.Triplet, rss float64, nmeas, noutliers int) error {
	c.Free()
	c.factor = la.GetSolver(linSolName)
	if err := c.factor.InitR(kb, true, false, false); err != nil {
		return chk.Err("solver context: cannot initialise factor:\n%v", err)
	}
	if err := c.factor.Fact(); err != nil {
		return chk.Err("solver context: factorisation failed:\n%v", err)
	}
	c.rss, c.nmeas, c.noutliers = rss, nmeas, noutliers
	c.HasFactor = true
	return nil
}

// SigmaSq returns the reduced chi-square estimate RSS/(M-Noutliers-N) used
// to scale (JᵀJ)⁻¹ into an actual covariance, where M is the residual
// count, Noutliers the skipped-observation count and N the state size
// (the degrees of freedom are clamped to at least 1).
func (c *SolverContext) SigmaSq() float64 {
	dof := float64(c.nmeas-c.noutliers) - float64(c.Layout.NState)
	if dof < 1 {
		dof = 1
	}
	return c.rss / dof
}

// Column solves Kb*x = e_col against the retained factor, returning the
// col-th column of (JᵀJ)⁻¹. Used by the uncertainty query to pull out
// only the intrinsic-variable rows/columns it needs.
func (c *SolverContext) Column(col int) ([]float64, error) {
	if !c.HasFactor {
		return nil, chk.Err("solver context: no retained factor")
	}
	e := make([]float64, c.Layout.NState)
	e[col] = 1
	x := make([]float64, c.Layout.NState)
	if err := c.factor.SolveR(x, e, false); err != nil {
		return nil, chk.Err("solver context: column solve failed:\n%v", err)
	}
	return x, nil
}
