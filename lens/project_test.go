// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lens

import (
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
)

func sampleIntrinsics(family Family) []float64 {
	base := []float64{1000, 1000, 500, 500}
	switch family {
	case None:
		return base
	case OpenCV4:
		return append(base, -0.2, 0.05, 0.001, -0.001)
	case OpenCV5:
		return append(base, -0.2, 0.05, 0.001, -0.001, 0.002)
	case OpenCV8:
		return append(base, -0.2, 0.05, 0.001, -0.001, 0.002, 0.01, -0.02, 0.003)
	case OpenCV12:
		return append(base, -0.2, 0.05, 0.001, -0.001, 0.002, 0.01, -0.02, 0.003, 0.001, -0.0005, 0.0002, 0.0001)
	case OpenCV14:
		return append(base, -0.2, 0.05, 0.001, -0.001, 0.002, 0.01, -0.02, 0.003, 0.001, -0.0005, 0.0002, 0.0001, 0.00005, -0.00005)
	case CAHVOR:
		return append(base, -0.01, 0.002, -0.0003, 0.01, -0.02)
	case CAHVORE:
		return append(base, -0.01, 0.002, -0.0003, 0.0001, -0.00002, 0.01, -0.02, 0.5, 0.8)
	}
	return base
}

// Test_project01 checks property 1 of spec.md §8: the analytic point
// Jacobian agrees with a centered finite difference, for every family.
func Test_project01(tst *testing.T) {
	chk.PrintTitle("project01: dpx/dp vs finite differences")

	families := []Family{None, OpenCV4, OpenCV5, OpenCV8, OpenCV12, OpenCV14, CAHVOR, CAHVORE}
	p := [3]float64{0.35, -0.22, 5.3}

	for _, f := range families {
		intr := sampleIntrinsics(f)
		res := Project(p, f, intr, DerivRequest{Point: true})
		if !res.Valid {
			tst.Errorf("%s: expected valid projection", Name(f))
			continue
		}
		for row := 0; row < 2; row++ {
			for k := 0; k < 3; k++ {
				ana := res.DPoint[row][k]
				label := io.Sf("%s d(px%d)/dp%d", Name(f), row, k)
				chk.DerivScaSca(tst, label, 1e-5, ana, p[k], 1e-6, false, func(x float64) (float64, error) {
					pp := p
					pp[k] = x
					r := Project(pp, f, intr, DerivRequest{})
					return r.Pixel[row], nil
				})
			}
		}
	}
}

// Test_project02 checks property 1 against the intrinsics vector too.
func Test_project02(tst *testing.T) {
	chk.PrintTitle("project02: dpx/dintrinsics vs finite differences")

	families := []Family{OpenCV4, OpenCV8, OpenCV14, CAHVOR, CAHVORE}
	p := [3]float64{0.1, 0.2, 4.0}

	for _, f := range families {
		intr := sampleIntrinsics(f)
		res := Project(p, f, intr, DerivRequest{Intrinsics: true})
		if !res.Valid {
			tst.Errorf("%s: expected valid projection", Name(f))
			continue
		}
		for row := 0; row < 2; row++ {
			for k := 0; k < len(intr); k++ {
				ana := res.DIntrinsics[row][k]
				label := io.Sf("%s d(px%d)/dintr%d", Name(f), row, k)
				h := 1e-6
				if k < 2 {
					h = 1e-3 // focal lengths are O(1000): use a larger step
				}
				chk.DerivScaSca(tst, label, 1e-4, ana, intr[k], h, false, func(x float64) (float64, error) {
					ii := append([]float64(nil), intr...)
					ii[k] = x
					r := Project(p, f, ii, DerivRequest{})
					return r.Pixel[row], nil
				})
			}
		}
	}
}

// Test_registry checks property 2: totalIntrinsicCount == 4+paramCount.
func Test_registry(tst *testing.T) {
	chk.PrintTitle("registry: totalIntrinsicCount")
	for _, f := range []Family{None, OpenCV4, OpenCV5, OpenCV8, OpenCV12, OpenCV14, CAHVOR, CAHVORE} {
		if TotalIntrinsicCount(f) != 4+ParamCount(f) {
			tst.Errorf("%s: TotalIntrinsicCount mismatch", Name(f))
		}
		if FromName(Name(f)) != f {
			tst.Errorf("%s: FromName(Name(f)) round-trip failed", Name(f))
		}
	}
	if FromName("bogus") != Invalid {
		tst.Errorf("expected Invalid for unknown name")
	}
}

// Test_behindCamera checks the p_z<=0 sentinel behavior of §4.2.
func Test_behindCamera(tst *testing.T) {
	chk.PrintTitle("project: behind-camera sentinel")
	intr := sampleIntrinsics(OpenCV4)
	res := Project([3]float64{0, 0, -1}, OpenCV4, intr, DerivRequest{Point: true, Intrinsics: true})
	if res.Valid {
		tst.Errorf("expected invalid projection for p_z<0")
	}
	if res.Pixel[0] == res.Pixel[0] { // NaN != NaN
		tst.Errorf("expected NaN pixel for invalid projection")
	}
}
