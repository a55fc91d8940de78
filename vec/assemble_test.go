// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vec

import (
	"testing"

	"github.com/angrycaptain19/mrcal/lens"
	"github.com/angrycaptain19/mrcal/obsset"
	"github.com/angrycaptain19/mrcal/rigid"
	"github.com/angrycaptain19/mrcal/statevec"
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
)

func smallProblem() (*statevec.Layout, statevec.Seed, *Inputs) {
	ncameras, nframes, npoints, nd := 1, 1, 1, 4
	family := lens.OpenCV4
	details := statevec.AllOn()
	layout := statevec.NewLayout(ncameras, nframes, npoints, nd, details)

	seed := statevec.Seed{
		Intrinsics: [][]float64{{1000, 1000, 500, 500, -0.2, 0.05, 0.001, -0.001}},
		Extrinsics: nil,
		Frames:     []rigid.Pose{{R: [3]float64{0.05, -0.02, 0.01}, T: [3]float64{0, 0, 5}}},
		Points:     [][3]float64{{0.5, -0.3, 4}},
	}

	w := 3
	s := 0.1
	pixels := make([][2]float64, w*w)
	for i := 0; i < w; i++ {
		for j := 0; j < w; j++ {
			vertex := [3]float64{float64(i) * s, float64(j) * s, 0}
			world, _, _ := seed.Frames[0].ApplyWithJacobian(vertex)
			proj := lens.Project(world, family, seed.Intrinsics[0], lens.DerivRequest{})
			pixels[i*w+j] = proj.Pixel
		}
	}
	boardObs := []obsset.FrameObservation{{ICamera: 0, IFrame: 0, Pixels: pixels, W: w}}

	ptProj := lens.Project(seed.Points[0], family, seed.Intrinsics[0], lens.DerivRequest{})
	pointObs := []obsset.PointObservation{{ICamera: 0, IPoint: 0, Pixel: ptProj.Pixel, Range: 4.02}}

	in := &Inputs{
		Layout: layout, Seed: seed, Family: family,
		Sigma: 0.3, SigmaRangeFrac: 0.01,
		BoardObs: boardObs, PointObs: pointObs, BoardSpacing: s,
		FocalScales: []float64{statevec.FocalScale(1000, 1000)},
		ImagerSizes: [][2]float64{{1000, 1000}},
	}
	return layout, seed, in
}

// Test_measurementCount checks property 4: MeasurementCount matches the
// length of the residual vector the assembly actually produces.
func Test_measurementCount(tst *testing.T) {
	chk.PrintTitle("measurementCount matches assembled residual length")

	_, _, in := smallProblem()
	want := MeasurementCount(in.Layout.Ncameras, in.BoardObs, in.PointObs, boardSide(in.BoardObs), in.Layout.Details, in.Family)
	got := Assemble(in)
	if len(got.Residuals) != want {
		tst.Errorf("MeasurementCount=%d but assembly produced %d residuals", want, len(got.Residuals))
	}
}

// Test_fbGradient checks the Fb side of the normal equations against a
// finite difference of -d(0.5*sum(r^2))/dx, i.e. a check-gradient pass in
// the style of §4.5's check_gradient mode, restricted to the intrinsic
// core of the single camera (cheap: 4 variables).
func Test_fbGradient(tst *testing.T) {
	chk.PrintTitle("fbGradient: Fb vs finite-difference cost gradient")

	layout, seed, in := smallProblem()

	x0 := statevec.Pack(layout, seed, in.FocalScales)
	got := Assemble(in)

	cost := func(x []float64) float64 {
		s := statevec.Seed{
			Intrinsics: [][]float64{append([]float64(nil), seed.Intrinsics[0]...)},
			Frames:     append([]rigid.Pose(nil), seed.Frames...),
			Points:     append([][3]float64(nil), seed.Points...),
		}
		statevec.Unpack(layout, x, in.FocalScales, &s)
		in2 := *in
		in2.Seed = s
		a := Assemble(&in2)
		var c float64
		for _, r := range a.Residuals {
			c += 0.5 * r * r
		}
		return c
	}

	for k := 0; k < 4; k++ {
		col := layout.CoreOffset[0] + k
		ana := -got.Fb[col] // Fb = -dCost/dx, so dCost/dx = -Fb
		label := io.Sf("dCost/dx[core%d]", k)
		chk.DerivScaSca(tst, label, 1e-3, ana, x0[col], 1e-4, false, func(xv float64) (float64, error) {
			xx := append([]float64(nil), x0...)
			xx[col] = xv
			return cost(xx), nil
		})
	}
}
