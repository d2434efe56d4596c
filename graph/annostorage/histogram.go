/*
 * AnnisDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package annostorage

import "sort"

/*
buildHistogram reduces a sorted value sample to at most MaxHistogramBuckets
evenly spaced bucket boundaries. The first and the last sample value are
always part of the result.
*/
func buildHistogram(sortedSample []string) []string {
	if len(sortedSample) == 0 {
		return nil
	}

	if len(sortedSample) <= MaxHistogramBuckets {
		res := make([]string, len(sortedSample))
		copy(res, sortedSample)
		return res
	}

	res := make([]string, 0, MaxHistogramBuckets)
	stride := float64(len(sortedSample)-1) / float64(MaxHistogramBuckets-1)

	for i := 0; i < MaxHistogramBuckets; i++ {
		res = append(res, sortedSample[int(float64(i)*stride)])
	}

	return res
}

/*
guessFromHistograms estimates how many annotations have a value in the
inclusive range [lower, upper]. Each histogram is the bucket list of one
qualified key, sizes holds the total annotation count of the key. The
estimate interpolates the bucket positions of the range bounds.
*/
func guessFromHistograms(histos [][]string, sizes []int, lower string, upper string) int {
	if upper < lower {
		return 0
	}

	total := 0

	for i, histo := range histos {
		if len(histo) == 0 {
			continue
		}

		if upper < histo[0] || lower > histo[len(histo)-1] {
			continue
		}

		lo := sort.SearchStrings(histo, lower)
		hi := sort.Search(len(histo), func(j int) bool { return histo[j] > upper })

		covered := hi - lo

		// A range between two bucket boundaries still covers one bucket

		if covered < 1 {
			covered = 1
		}

		total += (covered*sizes[i] + len(histo) - 1) / len(histo)
	}

	return total
}
