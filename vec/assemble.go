// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vec

import (
	"math"

	"github.com/angrycaptain19/mrcal/lens"
	"github.com/angrycaptain19/mrcal/obsset"
	"github.com/angrycaptain19/mrcal/statevec"
	"github.com/cpmech/gosl/la"
)

// ROI is a per-camera axis-aligned region of interest in pixel coordinates.
type ROI struct {
	XMin, YMin, XMax, YMax float64
}

func (r ROI) contains(px [2]float64) bool {
	return px[0] >= r.XMin && px[0] <= r.XMax && px[1] >= r.YMin && px[1] <= r.YMax
}

// regularizationWeight is the O(10^-3) relative weight of §4.4's
// regularization term; see DESIGN.md for the tuning rationale.
const regularizationWeight = 1e-3

// Inputs bundles everything the assembly needs to build the normal
// equations for a fixed state.
type Inputs struct {
	Layout         *statevec.Layout
	Seed           statevec.Seed
	Family         lens.Family
	Sigma          float64 // observed_pixel_uncertainty, in pixels
	SigmaRangeFrac float64 // sigma_range = SigmaRangeFrac * observed range
	BoardObs       []obsset.FrameObservation
	PointObs       []obsset.PointObservation
	BoardSpacing   float64 // s, the calibration-target grid spacing
	FocalScales    []float64
	ImagerSizes    [][2]float64 // width, height per camera; used by regularization's center prior
	ROI            []ROI        // len Ncameras; zero-value ROI (all zero) means "no ROI"
}

func (in *Inputs) roiFor(camera int) (ROI, bool) {
	if in.ROI == nil || camera >= len(in.ROI) {
		return ROI{}, false
	}
	r := in.ROI[camera]
	if r == (ROI{}) {
		return ROI{}, false
	}
	return r, true
}

// Assembled is the output of one assembly pass: the plain residual vector
// (used for error reporting, outlier detection and check-gradient mode)
// and the Gauss-Newton normal equations Kb*dx=Fb built by scattering each
// observation's local Jacobian block into the global matrix, the same way
// a finite-element assembler scatters element stiffness into a global Kb.
type Assembled struct {
	Residuals  []float64
	Kb         *la.Triplet // N_state x N_state, symmetric positive semi-definite
	Fb         []float64   // N_state, = -Jᵀr
	Diag       []float64   // N_state, diagonal of Kb (accumulated alongside it, for LM damping)
	OutsideROI []int       // board-observation indices with at least one excluded vertex
}

// ExtrinsicsApply maps a point from world (camera-0) coordinates into
// camera's frame, applying camera's extrinsic pose when camera>0. It is
// exported so callers outside the assembly (e.g. reprojection-error
// reporting) can reuse the same camera chain rather than duplicating it.
func ExtrinsicsApply(seed statevec.Seed, camera int, worldPoint [3]float64) (cameraPoint [3]float64, dOutDPoint [3][3]float64, dOutDPose [3][6]float64, hasPose bool) {
	if camera == 0 {
		return worldPoint, identity3x3(), [3][6]float64{}, false
	}
	p := seed.Extrinsics[camera-1]
	cameraPoint, dOutDPoint, dOutDPose = p.ApplyWithJacobian(worldPoint)
	return cameraPoint, dOutDPoint, dOutDPose, true
}

// block is one named group of local variables (e.g. "this camera's
// intrinsics", "this frame's pose") contributing a dense column range to
// a local Jacobian. offset<0 means the group is disabled and contributes
// nothing.
type block struct {
	offset int
	rows   [][]float64 // len(rows)==nRows, each of width = number of columns in the group
}

// scatter accumulates one observation's local Jacobian blocks into the
// global normal equations: Kb += JᵀJ, Fb += -Jᵀr, restricted to the
// blocks' enabled columns.
func scatter(kb *la.Triplet, fb, diag []float64, res []float64, row0, nRows int, blocks []block) {
	type col struct {
		g int // global index
		c [3]float64
	}
	var cols []col
	for _, b := range blocks {
		if b.offset < 0 {
			continue
		}
		width := len(b.rows[0])
		for k := 0; k < width; k++ {
			var c col
			c.g = b.offset + k
			for r := 0; r < nRows; r++ {
				c.c[r] = b.rows[r][k]
			}
			cols = append(cols, c)
		}
	}
	for _, a := range cols {
		var fa float64
		for r := 0; r < nRows; r++ {
			fa += a.c[r] * res[row0+r]
		}
		fb[a.g] -= fa
		for _, b := range cols {
			var kab float64
			for r := 0; r < nRows; r++ {
				kab += a.c[r] * b.c[r]
			}
			kb.Put(a.g, b.g, kab)
			if a.g == b.g {
				diag[a.g] += kab
			}
		}
	}
}

// Assemble builds the residual vector and normal equations of §4.4 for a
// fixed state (the layout's variables come from in.Seed, already unpacked
// from the current solver iterate).
func Assemble(in *Inputs) Assembled {
	nd := lens.ParamCount(in.Family)
	if nd < 0 {
		nd = 0
	}
	nmeas := MeasurementCount(in.Layout.Ncameras, in.BoardObs, in.PointObs, boardSide(in.BoardObs), in.Layout.Details, in.Family)
	res := make([]float64, 0, nmeas)
	kb := new(la.Triplet)
	// Each kept observation touches at most ~(4+nd+6+6) columns; bound the
	// nonzero count generously rather than track it exactly.
	maxNNZ := nmeas*(4+nd+12)*(4+nd+12) + in.Layout.NState // + room for LM diagonal damping
	if maxNNZ < 1 {
		maxNNZ = 1
	}
	kb.Init(in.Layout.NState, in.Layout.NState, maxNNZ)
	fb := make([]float64, in.Layout.NState)
	diag := make([]float64, in.Layout.NState)

	var outsideROI []int

	for obsIdx, o := range in.BoardObs {
		if !o.Kept() {
			continue
		}
		framePose := in.Seed.Frames[o.IFrame]
		intr := in.Seed.Intrinsics[o.ICamera]
		roi, hasROI := in.roiFor(o.ICamera)
		excludedAny := false

		for i := 0; i < o.W; i++ {
			for j := 0; j < o.W; j++ {
				idx := i*o.W + j
				observed := o.Pixels[idx]
				// excluded vertices keep their two rows, as zeros with no
				// Jacobian, so the residual vector has MeasurementCount rows
				if hasROI && !roi.contains(observed) {
					excludedAny = true
					res = append(res, 0, 0)
					continue
				}

				vertex := [3]float64{float64(i) * in.BoardSpacing, float64(j) * in.BoardSpacing, 0}
				worldPoint, dWorldDVertexPose, _ := framePose.ApplyWithJacobian(vertex)
				cameraPoint, dCamDWorld, dCamDExt, hasExt := ExtrinsicsApply(in.Seed, o.ICamera, worldPoint)

				proj := lens.Project(cameraPoint, in.Family, intr, lens.DerivRequest{Point: true, Intrinsics: true})
				if !proj.Valid {
					excludedAny = true
					res = append(res, 0, 0)
					continue
				}

				row0 := len(res)
				res = append(res, (proj.Pixel[0]-observed[0])/in.Sigma, (proj.Pixel[1]-observed[1])/in.Sigma)

				dPixDWorld := mul2x3by3x3(proj.DPoint, dCamDWorld)
				dPixDFramePose := mul2x3by3x6(dPixDWorld, dWorldDVertexPose)

				blocks := []block{
					coreDistBlock(in.Layout, o.ICamera, in.FocalScales[o.ICamera], nd, proj.DIntrinsics),
					poseBlock(in.Layout.FrameOffset[o.IFrame], dPixDFramePose, 2),
				}
				if hasExt {
					dPixDExtPose := mul2x3by3x6(proj.DPoint, dCamDExt)
					blocks = append(blocks, poseBlock(in.Layout.ExtrinsicsOffset[o.ICamera], dPixDExtPose, 2))
				}
				for bi := range blocks {
					scaleRows(&blocks[bi], in.Sigma)
				}
				scatter(kb, fb, diag, res, row0, 2, blocks)
			}
		}
		if excludedAny {
			outsideROI = append(outsideROI, obsIdx)
		}
	}

	for _, o := range in.PointObs {
		if !o.Kept() {
			continue
		}
		intr := in.Seed.Intrinsics[o.ICamera]
		point := in.Seed.Points[o.IPoint]
		cameraPoint, dCamDPoint, dCamDExt, hasExt := ExtrinsicsApply(in.Seed, o.ICamera, point)

		proj := lens.Project(cameraPoint, in.Family, intr, lens.DerivRequest{Point: true, Intrinsics: true})
		if !proj.Valid {
			res = append(res, 0, 0)
			if o.Range > 0 {
				res = append(res, 0)
			}
			continue
		}

		row0 := len(res)
		res = append(res, (proj.Pixel[0]-o.Pixel[0])/in.Sigma, (proj.Pixel[1]-o.Pixel[1])/in.Sigma)

		dPixDPoint := mul2x3by3x3(proj.DPoint, dCamDPoint)
		blocks := []block{
			coreDistBlock(in.Layout, o.ICamera, in.FocalScales[o.ICamera], nd, proj.DIntrinsics),
			pointBlock(in.Layout.PointOffset[o.IPoint], dPixDPoint, 2),
		}
		if hasExt {
			dPixDExtPose := mul2x3by3x6(proj.DPoint, dCamDExt)
			blocks = append(blocks, poseBlock(in.Layout.ExtrinsicsOffset[o.ICamera], dPixDExtPose, 2))
		}
		for bi := range blocks {
			scaleRows(&blocks[bi], in.Sigma)
		}
		scatter(kb, fb, diag, res, row0, 2, blocks)

		if o.Range > 0 {
			norm := math.Sqrt(cameraPoint[0]*cameraPoint[0] + cameraPoint[1]*cameraPoint[1] + cameraPoint[2]*cameraPoint[2])
			sigmaRange := in.SigmaRangeFrac * o.Range
			rangeRow := len(res)
			res = append(res, (norm-o.Range)/sigmaRange)

			var dNormDCam [3]float64
			if norm > 1e-12 {
				dNormDCam = [3]float64{cameraPoint[0] / norm, cameraPoint[1] / norm, cameraPoint[2] / norm}
			}
			dNormDPoint := vec3MatMul(dNormDCam, dCamDPoint)
			rblocks := []block{pointBlock1(in.Layout.PointOffset[o.IPoint], dNormDPoint)}
			if hasExt {
				dNormDExt := vec3MatMul6(dNormDCam, dCamDExt)
				rblocks = append(rblocks, poseBlock1(in.Layout.ExtrinsicsOffset[o.ICamera], dNormDExt))
			}
			for bi := range rblocks {
				scaleRows(&rblocks[bi], sigmaRange)
			}
			scatter(kb, fb, diag, res, rangeRow, 1, rblocks)
		}
	}

	if !in.Layout.Details.SkipRegularization {
		for c := 0; c < in.Layout.Ncameras; c++ {
			intr := in.Seed.Intrinsics[c]
			w, h := in.ImagerSizes[c][0], in.ImagerSizes[c][1]
			if off := in.Layout.CoreOffset[c]; off >= 0 {
				rowCx := len(res)
				res = append(res, regularizationWeight*(intr[2]-w/2)/in.FocalScales[c])
				kb.Put(off+2, off+2, regularizationWeight*regularizationWeight)
				diag[off+2] += regularizationWeight * regularizationWeight
				fb[off+2] -= regularizationWeight * res[rowCx]

				rowCy := len(res)
				res = append(res, regularizationWeight*(intr[3]-h/2)/in.FocalScales[c])
				kb.Put(off+3, off+3, regularizationWeight*regularizationWeight)
				diag[off+3] += regularizationWeight * regularizationWeight
				fb[off+3] -= regularizationWeight * res[rowCy]
			}
			if off := in.Layout.DistOffset[c]; off >= 0 {
				for i := 0; i < nd; i++ {
					row := len(res)
					res = append(res, regularizationWeight*intr[4+i])
					kb.Put(off+i, off+i, regularizationWeight*regularizationWeight)
					diag[off+i] += regularizationWeight * regularizationWeight
					fb[off+i] -= regularizationWeight * res[row]
				}
			}
		}
	}

	return Assembled{Residuals: res, Kb: kb, Fb: fb, Diag: diag, OutsideROI: outsideROI}
}

// ApplyDamping adds lambda*Diag[i] to each diagonal entry of Kb, the
// standard Levenberg-Marquardt trust-region term. Kb.Put sums into any
// existing entry at (i,i), so this is safe to call on a freshly-assembled
// Kb that already carries the Gauss-Newton diagonal contributions.
func (a *Assembled) ApplyDamping(lambda float64) {
	for i, d := range a.Diag {
		a.Kb.Put(i, i, lambda*d)
	}
}

func boardSide(obs []obsset.FrameObservation) int {
	for _, o := range obs {
		if o.W > 0 {
			return o.W
		}
	}
	return 0
}

// coreDistBlock packs a camera's core+distortion columns (if enabled) into
// one block, scaled by the variable's pack scale (focal length for the
// core, unit for distortions) so the result is d(pixel)/d(x_scaled).
func coreDistBlock(l *statevec.Layout, camera int, focalScale float64, nd int, dIntr [2][]float64) block {
	coreOff, distOff := l.CoreOffset[camera], l.DistOffset[camera]
	if coreOff < 0 && distOff < 0 {
		return block{offset: -1}
	}
	// core and distortion are contiguous within a camera's block by
	// construction (NewLayout lays out core then distortions back to
	// back), so when both are enabled they form one run of columns.
	off := coreOff
	width := 0
	if coreOff >= 0 {
		width += 4
	}
	if off < 0 {
		off = distOff
	}
	if distOff >= 0 {
		width += nd
	}
	rows := make([][]float64, 2)
	for r := 0; r < 2; r++ {
		row := make([]float64, 0, width)
		if coreOff >= 0 {
			for k := 0; k < 4; k++ {
				row = append(row, dIntr[r][k]*focalScale)
			}
		}
		if distOff >= 0 {
			for k := 0; k < nd; k++ {
				row = append(row, dIntr[r][4+k]*statevec.DistortionScale)
			}
		}
		rows[r] = row
	}
	return block{offset: off, rows: rows}
}

func poseBlock(offset int, dPix [2][6]float64, nRows int) block {
	if offset < 0 {
		return block{offset: -1}
	}
	rows := make([][]float64, nRows)
	for r := 0; r < nRows; r++ {
		row := make([]float64, 6)
		for k := 0; k < 3; k++ {
			row[k] = dPix[r][k] * statevec.RotationScale
			row[3+k] = dPix[r][3+k] * statevec.TranslationScale
		}
		rows[r] = row
	}
	return block{offset: offset, rows: rows}
}

func poseBlock1(offset int, dPix [6]float64) block {
	if offset < 0 {
		return block{offset: -1}
	}
	row := make([]float64, 6)
	for k := 0; k < 3; k++ {
		row[k] = dPix[k] * statevec.RotationScale
		row[3+k] = dPix[3+k] * statevec.TranslationScale
	}
	return block{offset: offset, rows: [][]float64{row}}
}

func pointBlock(offset int, dPix [2][3]float64, nRows int) block {
	if offset < 0 {
		return block{offset: -1}
	}
	rows := make([][]float64, nRows)
	for r := 0; r < nRows; r++ {
		row := make([]float64, 3)
		for k := 0; k < 3; k++ {
			row[k] = dPix[r][k] * statevec.TranslationScale
		}
		rows[r] = row
	}
	return block{offset: offset, rows: rows}
}

func pointBlock1(offset int, dPix [3]float64) block {
	if offset < 0 {
		return block{offset: -1}
	}
	row := make([]float64, 3)
	for k := 0; k < 3; k++ {
		row[k] = dPix[k] * statevec.TranslationScale
	}
	return block{offset: offset, rows: [][]float64{row}}
}

func scaleRows(b *block, sigma float64) {
	if b.offset < 0 {
		return
	}
	for r := range b.rows {
		for k := range b.rows[r] {
			b.rows[r][k] /= sigma
		}
	}
}

func vec3MatMul(v [3]float64, m [3][3]float64) (out [3]float64) {
	for j := 0; j < 3; j++ {
		var s float64
		for i := 0; i < 3; i++ {
			s += v[i] * m[i][j]
		}
		out[j] = s
	}
	return
}

func vec3MatMul6(v [3]float64, m [3][6]float64) (out [6]float64) {
	for j := 0; j < 6; j++ {
		var s float64
		for i := 0; i < 3; i++ {
			s += v[i] * m[i][j]
		}
		out[j] = s
	}
	return
}
