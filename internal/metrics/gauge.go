package metrics

import "strconv"

var (
	LoadLabels   = []string{"load1", "load5", "load15"}
	UptimeLabels = []string{"uptime"}
)

func ParseLoad(lines [][]string) (Derived, bool) {
	for _, l := range lines {
		if len(l) < 3 {
			continue
		}
		out := make(Derived, 3)
		for i := range out {
			v, err := strconv.ParseFloat(l[i], 64)
			if err != nil {
				return nil, false
			}
			out[i] = v
		}
		return out, true
	}
	return nil, false
}

// ParseUptime returns the seconds since boot from /proc/uptime.
func ParseUptime(lines [][]string) (float64, bool) {
	for _, l := range lines {
		if len(l) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(l[0], 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}
