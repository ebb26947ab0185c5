package metrics

var SysLabels = []string{"new", "running", "block", "intr", "ctx", "softirq"}

var sysKeys = map[string]int{
	"processes":     0,
	"procs_running": 1,
	"procs_blocked": 2,
	"intr":          3,
	"ctxt":          4,
	"softirq":       5,
}

// ParseSys reads the process and interrupt counters from /proc/stat.
func ParseSys(lines [][]string) (Raw, bool) {
	raw := make(Raw, len(sysKeys))
	found := false
	for _, l := range lines {
		if len(l) < 2 {
			continue
		}
		if i, ok := sysKeys[l[0]]; ok {
			raw[i] = parseUint(l[1])
			found = true
		}
	}
	return raw, found
}

// SysRates returns the process creation rate, the running and blocked
// process gauges, and interrupt, context switch and softirq rates.
func SysRates(curr, prev Raw, elapsed float64) Derived {
	out := rates(curr, prev, elapsed)
	if len(curr) == len(sysKeys) {
		out[1] = float64(curr[1])
		out[2] = float64(curr[2])
	}
	return out
}
