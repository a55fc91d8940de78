// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package statevec implements the free-variable state vector of the data
// model (§4.3 and §4.7): which variable groups are optimized, the
// deterministic pack/unpack ordering, and the per-variable scaling applied
// so the NLLS driver sees dimensionless variables.
package statevec

import "github.com/cpmech/gosl/chk"

// ProblemDetails is the immutable five-bit record of §3/§4.7 describing
// which variable groups are free. It is passed by value everywhere.
type ProblemDetails struct {
	OptimizeIntrinsicCore        bool
	OptimizeIntrinsicDistortions bool
	OptimizeExtrinsics           bool
	OptimizeFrames               bool
	SkipRegularization           bool
}

// AllOn returns the details with every variable group enabled and
// regularization active.
func AllOn() ProblemDetails {
	return ProblemDetails{
		OptimizeIntrinsicCore:        true,
		OptimizeIntrinsicDistortions: true,
		OptimizeExtrinsics:           true,
		OptimizeFrames:               true,
	}
}

// IsNone reports whether no variable group is free, a condition the caller
// must reject per §3 ("at least one must be true").
func (d ProblemDetails) IsNone() bool {
	return !d.OptimizeIntrinsicCore && !d.OptimizeIntrinsicDistortions &&
		!d.OptimizeExtrinsics && !d.OptimizeFrames
}

// HasAnyIntrinsic reports whether either intrinsic block is free.
func (d ProblemDetails) HasAnyIntrinsic() bool {
	return d.OptimizeIntrinsicCore || d.OptimizeIntrinsicDistortions
}

// Validate returns an error if d frees no variable group at all.
func (d ProblemDetails) Validate() error {
	if d.IsNone() {
		return chk.Err("problem details: at least one variable group must be free")
	}
	return nil
}
