// Copyright 2024 The mrcal-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lens implements the pinhole-plus-distortion camera models used
// throughout the bundle adjustment: the closed set of distortion families
// (C1) and the analytic projection kernel shared by all of them (C2).
package lens

import (
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/fun"
)

// Family identifies one member of the closed distortion-model set.
type Family int

// The supported distortion families. Values, names and parameter counts
// are part of the stable contract; never renumber an existing entry.
const (
	Invalid Family = iota
	None
	OpenCV4
	OpenCV5
	OpenCV8
	OpenCV12
	OpenCV14
	CAHVOR
	CAHVORE
)

type registryEntry struct {
	name       string
	nparams    int
	nextInBump Family // successor used by Next() when bumping toward a richer model
}

var registry = map[Family]registryEntry{
	None:     {"NONE", 0, OpenCV4},
	OpenCV4:  {"OPENCV4", 4, OpenCV5},
	OpenCV5:  {"OPENCV5", 5, OpenCV8},
	OpenCV8:  {"OPENCV8", 8, OpenCV12},
	OpenCV12: {"OPENCV12", 12, OpenCV14},
	OpenCV14: {"OPENCV14", 14, OpenCV14},
	CAHVOR:   {"CAHVOR", 5, CAHVORE},
	CAHVORE:  {"CAHVORE", 9, CAHVORE},
}

// buildAvailability records which families this build actually supports.
// OPENCV12/14 are modeled after mrcal's original behavior of depending on
// the host math library's version; every entry defaults to available here,
// but the table gives a constrained build a single place to narrow it
// without touching any call site.
var buildAvailability = map[Family]bool{
	None:     true,
	OpenCV4:  true,
	OpenCV5:  true,
	OpenCV8:  true,
	OpenCV12: true,
	OpenCV14: true,
	CAHVOR:   true,
	CAHVORE:  true,
}

// orderedFamilies lists every family in the canonical enumeration order,
// used by SupportedDistortionModels to produce a stable listing.
var orderedFamilies = []Family{None, OpenCV4, OpenCV5, OpenCV8, OpenCV12, OpenCV14, CAHVOR, CAHVORE}

// Name returns the uppercase token for family, or "" for Invalid.
func Name(family Family) string {
	if e, ok := registry[family]; ok {
		return e.name
	}
	return ""
}

// FromName returns the family matching name (exact match on the uppercase
// tokens used by Name), or Invalid if name is not recognized.
func FromName(name string) Family {
	for f, e := range registry {
		if e.name == name {
			return f
		}
	}
	return Invalid
}

// ParamCount returns the number of distortion coefficients for family, or
// -1 if family is Invalid or unknown.
func ParamCount(family Family) int {
	if e, ok := registry[family]; ok {
		return e.nparams
	}
	return -1
}

// TotalIntrinsicCount returns 4 + ParamCount(family): the full width of the
// per-camera intrinsics vector (pinhole core followed by distortion).
func TotalIntrinsicCount(family Family) int {
	n := ParamCount(family)
	if n < 0 {
		return -1
	}
	return 4 + n
}

// Supported returns the names of every distortion family available in this
// build, in canonical enumeration order.
func Supported() []string {
	names := make([]string, 0, len(orderedFamilies))
	for _, f := range orderedFamilies {
		if buildAvailability[f] {
			names = append(names, registry[f].name)
		}
	}
	return names
}

// Next returns the next family to enable along the progression from
// current toward goal, one step at a time, letting a caller warm-start a
// solve by gradually turning on more distortion coefficients. If current
// already equals goal, or current is not on the path to goal, goal itself
// is returned.
func Next(current, goal Family) Family {
	if current == goal {
		return goal
	}
	if current == CAHVOR || current == CAHVORE || goal == CAHVOR || goal == CAHVORE {
		// CAHV(ORE) models do not share the OpenCV bump chain.
		return goal
	}
	e, ok := registry[current]
	if !ok {
		return goal
	}
	nxt := e.nextInBump
	// never bump past the caller's requested goal
	if ParamCount(nxt) > ParamCount(goal) {
		return goal
	}
	return nxt
}

// RegularizationPrms describes, for a given family, the name and nominal
// (zero) target of each distortion coefficient, in the same order used by
// the intrinsics vector. The zero targets match the prior that package vec
// applies in its regularization residuals (§4.4), although vec builds those
// residuals directly and does not call this function.
func RegularizationPrms(family Family) fun.Prms {
	n := ParamCount(family)
	if n <= 0 {
		return nil
	}
	names := coefficientNames(family)
	prms := make(fun.Prms, n)
	for i := 0; i < n; i++ {
		prms[i] = &fun.Prm{N: names[i], V: 0}
	}
	return prms
}

func coefficientNames(family Family) []string {
	switch family {
	case OpenCV4:
		return []string{"k1", "k2", "p1", "p2"}
	case OpenCV5:
		return []string{"k1", "k2", "p1", "p2", "k3"}
	case OpenCV8:
		return []string{"k1", "k2", "p1", "p2", "k3", "k4", "k5", "k6"}
	case OpenCV12:
		return []string{"k1", "k2", "p1", "p2", "k3", "k4", "k5", "k6", "s1", "s2", "s3", "s4"}
	case OpenCV14:
		return []string{"k1", "k2", "p1", "p2", "k3", "k4", "k5", "k6", "s1", "s2", "s3", "s4", "s5", "s6"}
	case CAHVOR:
		return []string{"c1", "c2", "c3", "ox", "oy"}
	case CAHVORE:
		return []string{"c1", "c2", "c3", "c4", "c5", "ox", "oy", "e", "linearity"}
	}
	chk.Panic("lens: coefficientNames: unexpected family %v", family)
	return nil
}
