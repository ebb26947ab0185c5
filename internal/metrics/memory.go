package metrics

var MemLabels = []string{"used", "free", "buffer", "cache"}

var memKeys = map[string]int{
	"MemTotal":     0,
	"MemFree":      1,
	"Buffers":      2,
	"Cached":       3,
	"SReclaimable": 4,
	"Shmem":        5,
	"SwapTotal":    6,
	"SwapFree":     7,
}

// ParseMem reads the eight meminfo fields it needs, in KB. Lines are expected
// with the colon already split off the key.
func ParseMem(lines [][]string) (Raw, bool) {
	raw := make(Raw, len(memKeys))
	found := false
	for _, l := range lines {
		if len(l) < 2 {
			continue
		}
		if i, ok := memKeys[l[0]]; ok {
			raw[i] = parseUint(l[1])
			found = true
		}
	}
	return raw, found
}

// Memory converts a meminfo tuple into MB gauges:
// (used, free, buffer, cache, swap_used, swap_free).
func Memory(raw Raw) Derived {
	mb := func(i int) float64 {
		if i >= len(raw) {
			return 0
		}
		return float64(raw[i]) / 1024
	}
	used := mb(0) - mb(1) - mb(2) - mb(3) - mb(4) + mb(5)
	swapUsed := mb(6) - mb(7)
	return Derived{used, mb(1), mb(2), mb(3), swapUsed, mb(7)}
}
