package metrics

import "strconv"

// delta returns curr-prev. A counter that went backwards (reset or wrap) is
// treated as no activity.
func delta(curr, prev uint64) float64 {
	if curr < prev {
		return 0
	}
	return float64(curr - prev)
}

// perSecond divides d by elapsed, or returns 0 when elapsed is not positive.
func perSecond(d, elapsed float64) float64 {
	if elapsed <= 0 {
		return 0
	}
	return d / elapsed
}

// ratio divides num by den, or returns 0 when den is not positive.
func ratio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}

// hasBaseline reports whether prev can serve as the baseline for curr.
func hasBaseline(curr, prev Raw, elapsed float64) bool {
	return prev != nil && len(prev) == len(curr) && elapsed > 0
}

// rates returns (curr[i]-prev[i])/elapsed for every field, or all zeros when
// there is no usable baseline.
func rates(curr, prev Raw, elapsed float64) Derived {
	out := make(Derived, len(curr))
	if !hasBaseline(curr, prev, elapsed) {
		return out
	}
	for i := range curr {
		out[i] = delta(curr[i], prev[i]) / elapsed
	}
	return out
}

func parseUint(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

// Add returns the element-wise sum of r and o. A nil r takes the shape of o.
func (r Raw) Add(o Raw) Raw {
	if r == nil {
		r = make(Raw, len(o))
	}
	for i := range r {
		if i < len(o) {
			r[i] += o[i]
		}
	}
	return r
}
