package sampleindex

import "github.com/splicevod/splicevod/internal/apperr"

// UpperBound returns the first index i with samples[i].DTS > dts; if no
// such sample exists, it returns the last index (len-1).
func UpperBound(samples []Sample, dts uint64) int {
	lo, hi := 0, len(samples)
	for lo < hi {
		mid := (lo + hi) / 2
		if samples[mid].DTS > dts {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo >= len(samples) {
		return len(samples) - 1
	}
	return lo
}

// SamplePositionFromDTS resolves dts to a sample index.
//
// It first locates i = UpperBound(samples, dts) - 1, the last sample
// whose DTS is <= dts. If i is already at the last sample, the position is out of range on the high side (callers that
// want "use the last sample in that case" make that substitution
// themselves, per spec). Otherwise: if wantRAP, i is advanced forward to
// the next sample with IsRAP set; if wantRAP is false, i is advanced
// forward to the last sample of the current GOP (the sample immediately
// preceding the next RAP), so a caller consuming [start, end] gets a
// closed-GOP slice. The continuation bound on that forward walk is
// `i < len(samples)-1`, not `i < len(samples)-2`-equivalent arithmetic on
// a distance variable — that subtly different form is what silently
// makes the true final sample of a track unreachable, and is
// deliberately not replicated here.
func SamplePositionFromDTS(samples []Sample, dts uint64, wantRAP bool) (int, error) {
	if len(samples) == 0 {
		return 0, apperr.New(apperr.KindOutOfRangeLow, "empty sample set")
	}

	i := UpperBound(samples, dts) - 1
	if i < 0 {
		return 0, apperr.New(apperr.KindOutOfRangeLow, "dts precedes first sample")
	}
	if i >= len(samples)-1 {
		return 0, apperr.New(apperr.KindOutOfRangeHigh, "dts at or beyond last sample")
	}

	if wantRAP {
		for i < len(samples) && !samples[i].IsRAP {
			i++
		}
		if i >= len(samples) {
			return 0, apperr.New(apperr.KindNoRAP, "no RAP at or after requested dts")
		}
		return i, nil
	}

	for i < len(samples)-1 && !samples[i+1].IsRAP {
		i++
	}
	return i, nil
}
