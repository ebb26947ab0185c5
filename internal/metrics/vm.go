package metrics

var VMLabels = []string{"pgin", "pgout", "swapin", "swapout", "pgfault", "pgmajfault"}

var vmKeys = map[string]int{
	"pgpgin":     0,
	"pgpgout":    1,
	"pswpin":     2,
	"pswpout":    3,
	"pgfault":    4,
	"pgmajfault": 5,
}

func ParseVM(lines [][]string) (Raw, bool) {
	raw := make(Raw, len(vmKeys))
	found := false
	for _, l := range lines {
		if len(l) < 2 {
			continue
		}
		if i, ok := vmKeys[l[0]]; ok {
			raw[i] = parseUint(l[1])
			found = true
		}
	}
	return raw, found
}

// VMRates returns per-second paging, swapping and fault rates.
func VMRates(curr, prev Raw, elapsed float64) Derived {
	return rates(curr, prev, elapsed)
}
