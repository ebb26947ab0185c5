package metrics

// CPULabels are the exposed CPU buckets. steal is computed but not exposed.
var CPULabels = []string{"user", "sys", "idle", "iowait"}

// ParseCPU extracts (user, sys, idle, iowait, steal) ticks from the aggregate
// "cpu" line of /proc/stat. user folds in nice, guest and guest_nice; kernels
// that omit the guest columns count them as 0.
func ParseCPU(lines [][]string) (Raw, bool) {
	for _, l := range lines {
		if len(l) < 9 || l[0] != "cpu" {
			continue
		}
		col := func(i int) uint64 {
			if i >= len(l) {
				return 0
			}
			return parseUint(l[i])
		}
		return Raw{
			col(1) + col(2) + col(9) + col(10),
			col(3),
			col(4),
			col(5),
			col(8),
		}, true
	}
	return nil, false
}

// CPUPercent returns each bucket's share of the total tick delta. Without a
// baseline, or when the total did not advance, every bucket is 0.
func CPUPercent(curr, prev Raw) Derived {
	out := make(Derived, len(curr))
	if prev == nil || len(prev) != len(curr) {
		return out
	}
	var total float64
	deltas := make([]float64, len(curr))
	for i := range curr {
		deltas[i] = delta(curr[i], prev[i])
		total += deltas[i]
	}
	if total <= 0 {
		return out
	}
	for i, d := range deltas {
		out[i] = 100 * d / total
	}
	return out
}
