package metrics

var NetLabels = []string{"recv", "send"}

// NetFields is the minimum field count of a usable /proc/net/dev line.
const NetFields = 17

// ParseNet returns (bytes received, bytes sent) for every wanted interface, in
// the order the interfaces appear in the counter source.
func ParseNet(lines [][]string, wanted []string) ([]string, map[string]Raw) {
	want := make(map[string]struct{}, len(wanted))
	for _, w := range wanted {
		want[w] = struct{}{}
	}
	var order []string
	out := make(map[string]Raw, len(wanted))
	for _, l := range lines {
		if len(l) < NetFields {
			continue
		}
		if _, ok := want[l[0]]; !ok {
			continue
		}
		if _, dup := out[l[0]]; dup {
			continue
		}
		order = append(order, l[0])
		out[l[0]] = Raw{parseUint(l[1]), parseUint(l[9])}
	}
	return order, out
}

// NetRates returns receive and send throughput in KB/s.
func NetRates(curr, prev Raw, elapsed float64) Derived {
	out := rates(curr, prev, elapsed)
	for i := range out {
		out[i] /= 1024
	}
	return out
}
