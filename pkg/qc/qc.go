// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package qc implements the quality-control external-callables referenced
// by parameter functions (spec §10 supplement), ported from the OOI
// ion_functions.qc_functions global-range, spike, and stuck-value tests.
// Each function returns 1 for presumed-good data and 0 for presumed-bad,
// one flag per input sample, matching the source's semantics exactly but
// expressed as plain Go slices of float64 rather than vectorized numpy.
package qc

import "fmt"

// GlobalRangeTest flags each sample in dat as 1 if it falls within
// [min(lim), max(lim)] inclusive, else 0. lim must have at least two
// elements (spec scenario S1).
func GlobalRangeTest(dat []float64, lim []int64) ([]int64, error) {
	if len(lim) < 2 {
		return nil, fmt.Errorf("qc: datlim must have at least 2 elements")
	}
	lo, hi := lim[0], lim[0]
	for _, v := range lim[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	out := make([]int64, len(dat))
	for i, v := range dat {
		if float64(lo) <= v && v <= float64(hi) {
			out[i] = 1
		}
	}
	return out, nil
}

// SpikeTest flags each sample in dat as 0 (spike) or 1 (good), using a
// sliding window of L neighbors (odd, defaulting to 5) and an accuracy
// floor acc on the allowed range, multiplied by N (default 5). Matches
// ion_functions.qc_functions.dataqc_spiketest.
func SpikeTest(dat []float64, acc float64, n, l int) ([]int64, error) {
	if n <= 0 {
		n = 5
	}
	if l <= 0 {
		l = 5
	}
	if l%2 == 0 {
		l++
	}
	if l < 3 {
		l = 5
	}

	out := make([]int64, len(dat))
	ll := len(dat)
	if ll < l {
		return out, nil // too short: spec returns all zeros with a warning
	}

	l2 := (l - 1) / 2

	flag := func(ii int, peers []float64) {
		mn, mx, sum := peers[0], peers[0], 0.0
		for _, v := range peers {
			if v < mn {
				mn = v
			}
			if v > mx {
				mx = v
			}
			sum += v
		}
		r := mx - mn
		if acc > r {
			r = acc
		}
		mean := sum / float64(len(peers))
		dev := dat[ii] - mean
		if dev < 0 {
			dev = -dev
		}
		if float64(n)*r > dev {
			out[ii] = 1
		}
	}

	for ii := l2; ii < ll-l2; ii++ {
		peers := make([]float64, 0, l-1)
		peers = append(peers, dat[ii-l2:ii]...)
		peers = append(peers, dat[ii+1:ii+1+l2]...)
		flag(ii, peers)
	}
	for ii := 0; ii < l2; ii++ {
		peers := make([]float64, 0, l-1)
		peers = append(peers, dat[:ii]...)
		peers = append(peers, dat[ii+1:l]...)
		flag(ii, peers)
	}
	for ii := ll - l2; ii < ll; ii++ {
		peers := make([]float64, 0, l-1)
		peers = append(peers, dat[ll-l:ii]...)
		peers = append(peers, dat[ii+1:]...)
		flag(ii, peers)
	}
	return out, nil
}

// StuckValueTest flags runs of num or more consecutive samples that stay
// within reso of each other as 0 (stuck), else 1. Matches
// ion_functions.qc_functions.dataqc_stuckvaluetest.
func StuckValueTest(x []float64, reso float64, num int) []int64 {
	if num <= 0 {
		num = 10
	}
	if reso < 0 {
		reso = -reso
	}
	ll := len(x)
	out := make([]int64, ll)
	if ll < num {
		return out // all zeros, per source's "NUM > length(X)" branch
	}
	for i := range out {
		out[i] = 1
	}
	iimax := ll - num + 1
	for ii := 0; ii < iimax; ii++ {
		stuck := true
		for k := ii; k < ii+num; k++ {
			d := x[ii] - x[k]
			if d < 0 {
				d = -d
			}
			if d >= reso {
				stuck = false
				break
			}
		}
		if stuck {
			for k := ii; k < ii+num; k++ {
				out[k] = 0
			}
		}
	}
	return out
}
